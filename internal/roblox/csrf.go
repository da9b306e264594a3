package roblox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"rbx-valuation-api/internal/httpclient"
)

const (
	csrfHeader = "X-CSRF-TOKEN"
	csrfFetch  = "fetch"
)

var errNoCSRFToken = errors.New("challenge response carried no csrf token")

// Gate paces sends to the challenge endpoint.
type Gate interface {
	Wait(ctx context.Context) error
}

// CSRFManager caches one anti-forgery token per HTTP client. Tokens are never logged.
type CSRFManager struct {
	mu        sync.Mutex
	tokens    map[*httpclient.Client]string
	challenge string
	gate      Gate
	log       *zap.Logger
}

// NewCSRFManager creates a manager that challenges challengeURL. When gate is
// non-nil every challenge POST waits on it first, so challenges share the
// pacing of the endpoint they hit.
func NewCSRFManager(challengeURL string, gate Gate, logger *zap.Logger) *CSRFManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSRFManager{
		tokens:    make(map[*httpclient.Client]string),
		challenge: challengeURL,
		gate:      gate,
		log:       logger.Named("csrf"),
	}
}

// Token returns the cached token for hc, if any.
func (m *CSRFManager) Token(hc *httpclient.Client) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[hc]
	return tok, ok
}

// Ensure returns the cached token for hc, fetching one with a zero-item POST
// when none is cached.
func (m *CSRFManager) Ensure(ctx context.Context, hc *httpclient.Client) (string, error) {
	if tok, ok := m.Token(hc); ok {
		return tok, nil
	}

	if m.gate != nil {
		if err := m.gate.Wait(ctx); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.challenge, bytes.NewReader([]byte(`{"items":[]}`)))
	if err != nil {
		return "", fmt.Errorf("failed to build csrf challenge: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(csrfHeader, csrfFetch)

	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send csrf challenge: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	tok := resp.Header.Get(csrfHeader)
	if tok == "" {
		return "", errNoCSRFToken
	}
	m.Set(hc, tok)
	m.log.Debug("csrf token acquired", zap.String("client", hc.Addr()))
	return tok, nil
}

// Set replaces the token of hc. Entries of closed clients are dropped.
func (m *CSRFManager) Set(hc *httpclient.Client, tok string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.tokens {
		if c.Closed() {
			delete(m.tokens, c)
		}
	}
	m.tokens[hc] = tok
}

// Invalidate forgets the token of hc.
func (m *CSRFManager) Invalidate(hc *httpclient.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, hc)
}

// Len returns the number of cached tokens.
func (m *CSRFManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}
