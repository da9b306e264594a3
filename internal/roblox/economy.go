package roblox

import (
	"context"
	"fmt"
	"net/url"

	"rbx-valuation-api/internal/model"
)

// ResaleData is the resale summary of a collectible.
type ResaleData struct {
	AssetID       int64 `json:"assetId"`
	RAP           int64 `json:"rap"`
	Lowest        int64 `json:"lowest"`
	OriginalPrice int64 `json:"originalPrice"`
	Sales         int64 `json:"sales"`
}

type resaleResponse struct {
	AssetStock         *int64 `json:"assetStock"`
	Sales              int64  `json:"sales"`
	RecentAveragePrice int64  `json:"recentAveragePrice"`
	OriginalPrice      *int64 `json:"originalPrice"`
	PriceDataPoints    []struct {
		Value int64  `json:"value"`
		Date  string `json:"date"`
	} `json:"priceDataPoints"`
}

// FetchResale returns resale data. Lowest is the smallest positive recent
// sale price, falling back to the recent average price.
func (c *Client) FetchResale(ctx context.Context, assetID int64) (*ResaleData, error) {
	var resp resaleResponse
	u := fmt.Sprintf("%s/v1/assets/%d/resale-data", c.endpoints.Economy, assetID)
	if err := c.getJSON(ctx, "resale", u, nil, &resp); err != nil {
		return nil, err
	}

	out := &ResaleData{
		AssetID: assetID,
		RAP:     resp.RecentAveragePrice,
		Sales:   resp.Sales,
	}
	if resp.OriginalPrice != nil {
		out.OriginalPrice = *resp.OriginalPrice
	}
	for _, p := range resp.PriceDataPoints {
		if p.Value > 0 && (out.Lowest == 0 || p.Value < out.Lowest) {
			out.Lowest = p.Value
		}
	}
	if out.Lowest == 0 {
		out.Lowest = out.RAP
	}
	return out, nil
}

type transactionRow struct {
	ID        int64  `json:"id"`
	Created   string `json:"created"`
	IsPending bool   `json:"isPending"`
	Agent     struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
		Name string `json:"name"`
	} `json:"agent"`
	Details struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"details"`
	Currency struct {
		Amount int64  `json:"amount"`
		Type   string `json:"type"`
	} `json:"currency"`
}

type transactionsResponse struct {
	NextPageCursor *string          `json:"nextPageCursor"`
	Data           []transactionRow `json:"data"`
}

// TransactionPage is one page of sales. NextCursor is nil on the last page.
type TransactionPage struct {
	Transactions []model.Transaction
	NextCursor   *string
}

// FetchTransactions returns one page of the user's sales. It requires a cookie.
func (c *Client) FetchTransactions(ctx context.Context, userID int64, cookie string, limit int, cursor string) (*TransactionPage, error) {
	if cookie == "" {
		return nil, ErrAuthRequired
	}
	u := fmt.Sprintf("%s/v2/users/%d/transactions?transactionType=Sale&limit=%d&cursor=%s",
		c.endpoints.Economy, userID, limit, url.QueryEscape(cursor))

	var resp transactionsResponse
	if err := c.getJSON(ctx, "transactions", u, browserHeaders(cookie), &resp); err != nil {
		return nil, err
	}

	page := &TransactionPage{Transactions: make([]model.Transaction, 0, len(resp.Data))}
	for _, row := range resp.Data {
		page.Transactions = append(page.Transactions, model.Transaction{
			ID:        row.ID,
			Created:   row.Created,
			Pending:   row.IsPending,
			Amount:    row.Currency.Amount,
			Currency:  row.Currency.Type,
			AgentID:   row.Agent.ID,
			AgentName: row.Agent.Name,
			AssetID:   row.Details.ID,
			AssetName: row.Details.Name,
		})
	}
	if resp.NextPageCursor != nil && *resp.NextPageCursor != "" {
		next := *resp.NextPageCursor
		page.NextCursor = &next
	}
	return page, nil
}
