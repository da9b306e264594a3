package roblox

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"rbx-valuation-api/internal/model"
)

type inventoryRow struct {
	AssetID           int64  `json:"assetId"`
	Name              string `json:"name"`
	AssetType         int    `json:"assetType"`
	CollectibleItemID string `json:"collectibleItemId"`
	SerialNumber      *int64 `json:"serialNumber"`
}

type inventoryPage struct {
	NextPageCursor *string        `json:"nextPageCursor"`
	Data           []inventoryRow `json:"data"`
}

// FetchInventory walks every page of one asset-type bucket. cookie may be
// empty for public inventories.
func (c *Client) FetchInventory(ctx context.Context, userID int64, assetType int, cookie string) ([]model.InventoryEntry, error) {
	header := browserHeaders(cookie)

	var (
		entries []model.InventoryEntry
		cursor  string
		seen    = map[string]struct{}{}
	)
	for page := 0; page < c.opts.MaxInventoryPages; page++ {
		u := fmt.Sprintf("%s/v2/users/%d/inventory/%d?limit=100&sortOrder=Desc&cursor=%s",
			c.endpoints.Inventory, userID, assetType, url.QueryEscape(cursor))

		var resp inventoryPage
		if err := c.getJSON(ctx, "inventory", u, header, &resp); err != nil {
			return nil, err
		}

		for _, row := range resp.Data {
			typeID := row.AssetType
			if typeID == 0 {
				typeID = assetType
			}
			entries = append(entries, model.InventoryEntry{
				AssetRef: model.AssetRef{
					AssetID:     row.AssetID,
					Name:        row.Name,
					AssetTypeID: typeID,
				},
				CollectibleItemID: row.CollectibleItemID,
				Serial:            row.SerialNumber,
			})
		}

		if resp.NextPageCursor == nil || *resp.NextPageCursor == "" {
			return entries, nil
		}
		next := *resp.NextPageCursor
		if _, dup := seen[next]; dup {
			c.log.Warn("inventory cursor repeated", zap.Int64("user_id", userID), zap.Int("asset_type", assetType))
			return entries, nil
		}
		seen[next] = struct{}{}
		cursor = next
	}

	c.log.Warn("inventory page budget reached", zap.Int64("user_id", userID), zap.Int("asset_type", assetType))
	return entries, nil
}
