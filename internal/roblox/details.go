package roblox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"rbx-valuation-api/internal/model"
	"rbx-valuation-api/internal/pricing"
)

const detailsPath = "/v1/catalog/items/details"

// DetailsStats counts what happened while fetching details.
type DetailsStats struct {
	Batches     int `json:"batches"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Sends       int `json:"sends"`
	Retries     int `json:"retries"`
	RateLimited int `json:"rateLimited"`
}

func (s *DetailsStats) add(o DetailsStats) {
	s.Batches += o.Batches
	s.Succeeded += o.Succeeded
	s.Failed += o.Failed
	s.Sends += o.Sends
	s.Retries += o.Retries
	s.RateLimited += o.RateLimited
}

// DetailsResult holds the normalised rows of every successful batch.
// Rows keeps batch order and upstream order within a batch.
type DetailsResult struct {
	ByID  map[int64]model.CatalogDetail
	Rows  []model.CatalogDetail
	Stats DetailsStats
}

type detailsItem struct {
	ItemType string `json:"itemType"`
	ID       int64  `json:"id"`
}

type detailsRequest struct {
	Items []detailsItem `json:"items"`
}

type detailsResponse struct {
	Data []model.CatalogRow `json:"data"`
}

// FetchDetails looks up catalog details in batches. Batches that fail
// contribute nothing; only cancellation is returned as an error.
func (c *Client) FetchDetails(ctx context.Context, ids []int64) (*DetailsResult, error) {
	ids = uniqueIDs(ids)
	batches := chunk(ids, c.opts.BatchSize)

	rows := make([][]model.CatalogRow, len(batches))
	stats := make([]DetailsStats, len(batches))

	sem := semaphore.NewWeighted(int64(c.opts.Concurrency))
	var wg sync.WaitGroup
	for i, batch := range batches {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, batch []int64) {
			defer wg.Done()
			defer sem.Release(1)
			rows[i], stats[i] = c.fetchBatch(ctx, batch)
		}(i, batch)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &DetailsResult{ByID: make(map[int64]model.CatalogDetail)}
	for i := range batches {
		res.Stats.add(stats[i])
		for _, row := range rows[i] {
			d := pricing.Detail(row)
			res.Rows = append(res.Rows, d)
			if _, dup := res.ByID[row.ID]; !dup {
				res.ByID[row.ID] = d
			}
		}
	}

	if res.Stats.Failed > 0 {
		c.log.Warn("catalog details partially failed",
			zap.Int("batches", res.Stats.Batches),
			zap.Int("failed", res.Stats.Failed),
			zap.Int("rate_limited", res.Stats.RateLimited),
		)
	}
	return res, nil
}

// fetchBatch runs one batch through the send loop. At most Retries+1 item
// POSTs are issued.
func (c *Client) fetchBatch(ctx context.Context, ids []int64) ([]model.CatalogRow, DetailsStats) {
	st := DetailsStats{Batches: 1}

	payload := detailsRequest{Items: make([]detailsItem, len(ids))}
	for i, id := range ids {
		payload.Items[i] = detailsItem{ItemType: "Asset", ID: id}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		st.Failed++
		return nil, st
	}

	url := c.endpoints.Catalog + detailsPath
	backoff := c.opts.RateLimitBackoff

	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			st.Retries++
		}
		hc := c.pick()
		// A challenge waits on the throttle itself. A missing token is
		// recovered by the 403 branch below.
		token, _ := c.csrf.Ensure(ctx, hc)

		if err := c.throttle.Wait(ctx); err != nil {
			st.Failed++
			return nil, st
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			st.Failed++
			return nil, st
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set(csrfHeader, token)
		}

		st.Sends++
		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				st.Failed++
				return nil, st
			}
			c.log.Debug("details transport error", zap.Int("attempt", attempt), zap.Error(err))
			if sleep(ctx, c.linear(attempt)) != nil {
				st.Failed++
				return nil, st
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch code := resp.StatusCode; {
		case code == http.StatusOK:
			var out detailsResponse
			if readErr == nil {
				if err := json.Unmarshal(data, &out); err == nil {
					st.Succeeded++
					return out.Data, st
				}
			}
			if sleep(ctx, c.linear(attempt)) != nil {
				st.Failed++
				return nil, st
			}
		case code == http.StatusTooManyRequests:
			st.RateLimited++
			if sleep(ctx, withJitter(backoff)) != nil {
				st.Failed++
				return nil, st
			}
			backoff = c.nextBackoff(backoff)
		case code == http.StatusForbidden:
			if tok := resp.Header.Get(csrfHeader); tok != "" {
				c.csrf.Set(hc, tok)
			} else {
				c.csrf.Invalidate(hc)
			}
		case transientStatus(code):
			if sleep(ctx, c.linear(attempt)) != nil {
				st.Failed++
				return nil, st
			}
		default:
			c.log.Warn("details batch failed", zap.Int("status", code), zap.Int("size", len(ids)))
			st.Failed++
			return nil, st
		}
	}

	c.log.Warn("details batch exhausted retries", zap.Int("size", len(ids)), zap.Int("sends", st.Sends))
	st.Failed++
	return nil, st
}

// uniqueIDs drops non-positive and repeated ids, keeping first-seen order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunk(ids []int64, size int) [][]int64 {
	var out [][]int64
	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}
