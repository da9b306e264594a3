// Package httpclient keeps one long-lived HTTP/2 capable client per upstream proxy.
package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"rbx-valuation-api/internal/proxy"
)

// Base headers sent on every upstream request unless the caller sets them.
const (
	DefaultAccept         = "application/json,text/plain,*/*"
	DefaultAcceptEncoding = "gzip,deflate,br"
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Config holds the shared timeouts and pool limits of every client.
type Config struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PoolTimeout    time.Duration
	KeepAlive      time.Duration
	MaxConnections int
	MaxKeepalive   int
	UserAgent      string
}

// DefaultConfig returns the client settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Timeout:        20 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    20 * time.Second,
		WriteTimeout:   20 * time.Second,
		PoolTimeout:    10 * time.Second,
		KeepAlive:      30 * time.Second,
		MaxConnections: 100,
		MaxKeepalive:   20,
		UserAgent:      DefaultUserAgent,
	}
}

// Client is a pooled HTTP client bound to one proxy (or direct egress).
type Client struct {
	http      *http.Client
	transport *http.Transport
	addr      string
	closed    atomic.Bool
}

// Do sends an HTTP request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// Addr returns the proxy address without credentials ("" for direct).
func (c *Client) Addr() string {
	return c.addr
}

// Close releases idle connections. A closed client is replaced on the next Registry.Get.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.transport.CloseIdleConnections()
	}
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// Registry maps proxy keys to clients.
type Registry struct {
	mu      sync.Mutex
	cfg     Config
	clients map[string]*Client
	log     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:     cfg,
		clients: make(map[string]*Client),
		log:     logger.Named("httpclient"),
	}
}

// Get returns the client for p, creating it on a miss. A nil proxy means direct egress.
func (r *Registry) Get(p *proxy.Proxy) *Client {
	var key, addr string
	var proxyURL *url.URL
	if p != nil && p.URL != nil {
		key, addr = p.Key(), p.String()
		proxyURL = p.URL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok && !c.Closed() {
		return c
	}

	c := r.newClient(addr, proxyURL)
	r.clients[key] = c
	r.log.Debug("created client", zap.String("proxy", addr), zap.Int("clients", len(r.clients)))
	return c
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CloseAll closes and removes every client.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, c := range r.clients {
		c.Close()
		delete(r.clients, key)
	}
}

func (r *Registry) newClient(addr string, proxyURL *url.URL) *Client {
	cfg := r.cfg
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxKeepalive,
		MaxIdleConnsPerHost:   cfg.MaxKeepalive,
		MaxConnsPerHost:       cfg.MaxConnections,
		IdleConnTimeout:       cfg.KeepAlive,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		ExpectContinueTimeout: time.Second,
	}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	if h2, err := http2.ConfigureTransports(transport); err != nil {
		r.log.Warn("http2 not enabled", zap.String("proxy", addr), zap.Error(err))
	} else {
		h2.ReadIdleTimeout = cfg.ReadTimeout
		h2.PingTimeout = cfg.PoolTimeout
		h2.WriteByteTimeout = cfg.WriteTimeout
	}

	headers := http.Header{}
	headers.Set("Accept", DefaultAccept)
	headers.Set("User-Agent", cfg.UserAgent)
	headers.Set("Accept-Encoding", DefaultAcceptEncoding)

	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &baseTransport{next: transport, headers: headers},
		},
		transport: transport,
		addr:      addr,
	}
}
