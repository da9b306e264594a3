package roblox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const thumbnailBatch = 100

// SearchPage is one page of catalog search results.
type SearchPage struct {
	IDs        []int64
	NextCursor string
}

type searchResponse struct {
	NextPageCursor *string `json:"nextPageCursor"`
	Data           []struct {
		ID       int64  `json:"id"`
		ItemType string `json:"itemType"`
	} `json:"data"`
}

// SearchCatalog returns one page of asset ids for keyword and asset type.
func (c *Client) SearchCatalog(ctx context.Context, keyword string, assetType int, cursor string) (*SearchPage, error) {
	u := fmt.Sprintf("%s/v1/search/items?Category=All&SortAggregation=PastDay&SortType=Relevance&Limit=120&Keyword=%s&AssetType=%d&Cursor=%s",
		c.endpoints.Catalog, url.QueryEscape(keyword), assetType, url.QueryEscape(cursor))

	var resp searchResponse
	if err := c.getJSON(ctx, "search", u, nil, &resp); err != nil {
		return nil, err
	}

	page := &SearchPage{}
	for _, row := range resp.Data {
		if row.ItemType != "" && !strings.EqualFold(row.ItemType, "Asset") {
			continue
		}
		page.IDs = append(page.IDs, row.ID)
	}
	if resp.NextPageCursor != nil {
		page.NextCursor = *resp.NextPageCursor
	}
	return page, nil
}

type thumbnailResponse struct {
	Data []struct {
		TargetID int64  `json:"targetId"`
		State    string `json:"state"`
		ImageURL string `json:"imageUrl"`
	} `json:"data"`
}

// FetchThumbnailURLs resolves 420x420 PNG thumbnail URLs. Ids whose
// thumbnail is not ready are absent from the result.
func (c *Client) FetchThumbnailURLs(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	for _, batch := range chunk(uniqueIDs(ids), thumbnailBatch) {
		parts := make([]string, len(batch))
		for i, id := range batch {
			parts[i] = strconv.FormatInt(id, 10)
		}
		u := fmt.Sprintf("%s/v1/assets?assetIds=%s&size=420x420&format=Png&isCircular=false",
			c.endpoints.Thumbnails, strings.Join(parts, ","))

		var resp thumbnailResponse
		if err := c.getJSON(ctx, "thumbnails", u, nil, &resp); err != nil {
			return out, err
		}
		for _, row := range resp.Data {
			if row.State == "Completed" && row.ImageURL != "" {
				out[row.TargetID] = row.ImageURL
			}
		}
	}
	return out, nil
}

// Download fetches raw bytes, typically a thumbnail image.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	h := http.Header{}
	h.Set("Accept", "image/png,image/*;q=0.8,*/*;q=0.5")
	return c.fetch(ctx, request{endpoint: "download", method: http.MethodGet, url: rawURL, header: h})
}
