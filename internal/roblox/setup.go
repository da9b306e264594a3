package roblox

import (
	"go.uber.org/zap"

	"rbx-valuation-api/internal/config"
	"rbx-valuation-api/internal/httpclient"
	"rbx-valuation-api/internal/proxy"
)

// Upstream bundles a configured client with the pieces main needs to report
// on and shut down.
type Upstream struct {
	Client   *Client
	Registry *httpclient.Registry
	Proxies  *proxy.Pool
}

// NewFromConfig loads the proxy pool and builds the client registry and the
// upstream client from cfg.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Upstream, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := proxy.Load(cfg.Proxy.File, cfg.Proxy.List)
	if err != nil {
		return nil, err
	}

	registry := httpclient.NewRegistry(httpclient.Config{
		Timeout:        cfg.HTTP.Timeout.Duration(),
		ConnectTimeout: cfg.HTTP.ConnectTimeout.Duration(),
		ReadTimeout:    cfg.HTTP.ReadTimeout.Duration(),
		WriteTimeout:   cfg.HTTP.WriteTimeout.Duration(),
		PoolTimeout:    cfg.HTTP.PoolTimeout.Duration(),
		KeepAlive:      cfg.HTTP.KeepaliveSecs.Duration(),
		MaxConnections: cfg.HTTP.MaxConnections,
		MaxKeepalive:   cfg.HTTP.MaxKeepalive,
	}, logger)

	opts := DefaultOptions()
	opts.BatchSize = cfg.Catalog.BatchSize
	opts.Concurrency = cfg.Catalog.Concurrency
	opts.Retries = cfg.Catalog.Retries
	opts.BaseDelay = cfg.Catalog.BaseDelay()
	opts.RateLimitBackoff = cfg.Catalog.RateLimitBackoff.Duration()

	logger.Info("upstream client ready",
		zap.Int("proxies", pool.Len()),
		zap.Int("batch_size", opts.BatchSize),
		zap.Int("concurrency", opts.Concurrency),
		zap.Duration("base_delay", opts.BaseDelay),
	)

	return &Upstream{
		Client:   New(DefaultEndpoints(), registry, pool, opts, logger),
		Registry: registry,
		Proxies:  pool,
	}, nil
}
