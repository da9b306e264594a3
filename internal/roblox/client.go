// Package roblox is the upstream API client: catalog details with CSRF
// handling, inventories, profiles, resale data, transactions, catalog search
// and thumbnails.
package roblox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rbx-valuation-api/internal/httpclient"
	"rbx-valuation-api/internal/proxy"
	"rbx-valuation-api/internal/throttle"
)

const (
	jitterMax   = 300 * time.Millisecond
	siteOrigin  = "https://www.roblox.com"
	siteReferer = "https://www.roblox.com/"
)

// Endpoints holds the base URLs of the upstream services.
type Endpoints struct {
	Users      string
	Inventory  string
	Catalog    string
	Thumbnails string
	Economy    string
}

// DefaultEndpoints returns the production base URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Users:      "https://users.roblox.com",
		Inventory:  "https://inventory.roblox.com",
		Catalog:    "https://catalog.roblox.com",
		Thumbnails: "https://thumbnails.roblox.com",
		Economy:    "https://economy.roblox.com",
	}
}

// Options tunes batching, retries and back-off.
type Options struct {
	BatchSize   int
	Concurrency int
	Retries     int
	// BaseDelay is the minimum gap between item-details POSTs.
	BaseDelay time.Duration
	// RateLimitBackoff is the first 429 back-off; it grows by 1.7x up to MaxBackoff.
	RateLimitBackoff time.Duration
	MaxBackoff       time.Duration
	// TransientBackoff is multiplied by attempt+1 after 5xx and transport errors.
	TransientBackoff  time.Duration
	MaxInventoryPages int
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		BatchSize:         100,
		Concurrency:       4,
		Retries:           6,
		BaseDelay:         350 * time.Millisecond,
		RateLimitBackoff:  500 * time.Millisecond,
		MaxBackoff:        3 * time.Second,
		TransientBackoff:  300 * time.Millisecond,
		MaxInventoryPages: 1000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RateLimitBackoff <= 0 {
		o.RateLimitBackoff = d.RateLimitBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	if o.TransientBackoff <= 0 {
		o.TransientBackoff = d.TransientBackoff
	}
	if o.MaxInventoryPages <= 0 {
		o.MaxInventoryPages = d.MaxInventoryPages
	}
	return o
}

var _ Gate = (*throttle.Throttle)(nil)

// Client talks to the upstream APIs through the shared client registry,
// rotating proxies per attempt.
type Client struct {
	endpoints Endpoints
	registry  *httpclient.Registry
	pool      *proxy.Pool
	throttle  *throttle.Throttle
	csrf      *CSRFManager
	opts      Options
	log       *zap.Logger
}

// New creates an upstream client. pool may be nil for direct egress.
func New(endpoints Endpoints, registry *httpclient.Registry, pool *proxy.Pool, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	th := throttle.New(opts.BaseDelay)
	return &Client{
		endpoints: endpoints,
		registry:  registry,
		pool:      pool,
		throttle:  th,
		csrf:      NewCSRFManager(endpoints.Catalog+detailsPath, th, logger),
		opts:      opts,
		log:       logger,
	}
}

// Options returns the effective options.
func (c *Client) Options() Options {
	return c.opts
}

// CSRF returns the token manager.
func (c *Client) CSRF() *CSRFManager {
	return c.csrf
}

// pick returns the client of a random proxy, or the direct client.
func (c *Client) pick() *httpclient.Client {
	if p, ok := c.pool.Any(); ok {
		return c.registry.Get(&p)
	}
	return c.registry.Get(nil)
}

// request describes one upstream call for fetch.
type request struct {
	endpoint string
	method   string
	url      string
	header   http.Header
	body     []byte
}

// fetch performs a request with retries: 429 backs off exponentially with
// jitter, 5xx and transport errors back off linearly. 401 and 403 map to
// ErrAuthRequired, 404 to ErrNotFound.
func (c *Client) fetch(ctx context.Context, r request) ([]byte, error) {
	backoff := c.opts.RateLimitBackoff
	var lastErr error

	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		var body io.Reader
		if r.body != nil {
			body = bytes.NewReader(r.body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s request: %w", r.endpoint, err)
		}
		for k, v := range r.header {
			req.Header[k] = v
		}

		resp, err := c.pick().Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.log.Debug("transport error", zap.String("endpoint", r.endpoint), zap.Int("attempt", attempt), zap.Error(err))
			if err := sleep(ctx, c.linear(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch code := resp.StatusCode; {
		case code >= 200 && code < 300:
			if readErr != nil {
				lastErr = readErr
				if err := sleep(ctx, c.linear(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return data, nil
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return nil, ErrAuthRequired
		case code == http.StatusNotFound:
			return nil, ErrNotFound
		case code == http.StatusTooManyRequests:
			lastErr = &StatusError{Code: code, Endpoint: r.endpoint}
			c.log.Debug("rate limited", zap.String("endpoint", r.endpoint), zap.Duration("backoff", backoff))
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return nil, err
			}
			backoff = c.nextBackoff(backoff)
		case transientStatus(code):
			lastErr = &StatusError{Code: code, Endpoint: r.endpoint}
			if err := sleep(ctx, c.linear(attempt)); err != nil {
				return nil, err
			}
		default:
			return nil, &StatusError{Code: code, Endpoint: r.endpoint}
		}
	}
	return nil, fmt.Errorf("%s: %w: %v", r.endpoint, ErrRetriesExhausted, lastErr)
}

func (c *Client) getJSON(ctx context.Context, endpoint, url string, header http.Header, dst any) error {
	data, err := c.fetch(ctx, request{endpoint: endpoint, method: http.MethodGet, url: url, header: header})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) linear(attempt int) time.Duration {
	return c.opts.TransientBackoff * time.Duration(attempt+1)
}

func (c *Client) nextBackoff(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * 1.7)
	if next > c.opts.MaxBackoff {
		next = c.opts.MaxBackoff
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int64N(int64(jitterMax)))
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// browserHeaders returns headers for user-facing reads. The cookie, when
// present, is only ever placed in the Cookie header.
func browserHeaders(cookie string) http.Header {
	h := http.Header{}
	h.Set("Referer", siteReferer)
	h.Set("Origin", siteOrigin)
	if cookie != "" {
		h.Set("Cookie", ".ROBLOSECURITY="+cookie)
	}
	return h
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
