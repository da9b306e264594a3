package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rbx-valuation-api/internal/handler"
	"rbx-valuation-api/internal/middleware"
	"rbx-valuation-api/internal/model"
	"rbx-valuation-api/internal/repository"
	"rbx-valuation-api/internal/roblox"
	"rbx-valuation-api/internal/router"
	"rbx-valuation-api/internal/service"
)

type fakeValuation struct {
	inventoryErr error
	cookies      []string
	revenueEnc   string
}

func (f *fakeValuation) FetchPublicProfile(ctx context.Context, userID int64) (*model.PublicProfile, error) {
	if userID == 404 {
		return nil, roblox.ErrNotFound
	}
	return &model.PublicProfile{ID: userID, Name: "alice", DisplayName: "Alice"}, nil
}

func (f *fakeValuation) FetchInventory(ctx context.Context, userID int64, cookie string) (*model.UserInventory, error) {
	f.cookies = append(f.cookies, cookie)
	if f.inventoryErr != nil {
		return nil, f.inventoryErr
	}
	return &model.UserInventory{
		UserID:     userID,
		Categories: []string{"Hats"},
		ByCategory: map[string][]model.InventoryItem{
			"Hats": {{AssetRef: model.AssetRef{AssetID: 1, Name: "Hat"}, PriceInfo: model.PriceInfo{Value: 50, Source: model.PriceSourceCatalog}}},
		},
	}, nil
}

func (f *fakeValuation) CollectiblesWithRAP(ctx context.Context, userID int64, cookie string) ([]model.CollectibleRAP, error) {
	return nil, nil
}

func (f *fakeValuation) OffsaleCollectibles(ctx context.Context, userID int64, cookie string) ([]model.InventoryItem, error) {
	return []model.InventoryItem{}, nil
}

func (f *fakeValuation) GetRevenue(ctx context.Context, userID int64, encCookie string, page, perPage int) (*model.RevenuePage, error) {
	f.revenueEnc = encCookie
	out := &model.RevenuePage{UserID: userID, Page: page, PerPage: service.QuantizePerPage(perPage), Transactions: []model.Transaction{}}
	if encCookie != "enc-good" {
		out.Error = service.AuthRequired
	}
	return out, nil
}

type fakeSessions struct {
	mu        sync.Mutex
	encrypted map[string]string
	forgotten []int64
}

func (f *fakeSessions) EncryptedCookie(ctx context.Context, botUserID string, userID int64) (string, error) {
	return f.encrypted[botUserID], nil
}

func (f *fakeSessions) Cookie(ctx context.Context, botUserID string, userID int64) (string, error) {
	if enc := f.encrypted[botUserID]; enc != "" {
		return "plain-" + enc, nil
	}
	return "", service.ErrAuthRequired
}

func (f *fakeSessions) ForgetCookie(ctx context.Context, botUserID string, userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, userID)
}

type fakeAccounts struct {
	linked []model.LinkedAccount
}

func (f *fakeAccounts) Link(ctx context.Context, botUserID string, userID int64, cookie string) (*model.LinkedAccount, error) {
	acc := model.LinkedAccount{BotUserID: botUserID, UserID: userID, HasCookie: cookie != ""}
	f.linked = append(f.linked, acc)
	return &acc, nil
}

func (f *fakeAccounts) Unlink(ctx context.Context, botUserID string, userID int64) error {
	return repository.ErrNotFound
}

func (f *fakeAccounts) Accounts(ctx context.Context, botUserID string) ([]model.LinkedAccount, error) {
	return nil, nil
}

func (f *fakeAccounts) Events(ctx context.Context, botUserID string, limit int) ([]model.Event, error) {
	return []model.Event{{ID: "e1", BotUserID: botUserID, Kind: "link"}}, nil
}

type fixture struct {
	router    http.Handler
	valuation *fakeValuation
	sessions  *fakeSessions
	accounts  *fakeAccounts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		valuation: &fakeValuation{},
		sessions:  &fakeSessions{encrypted: map[string]string{"bot-good": "enc-good", "bot-stale": "enc-stale"}},
		accounts:  &fakeAccounts{},
	}
	f.router = router.New(router.Config{
		Handler:          handler.New("rbx-valuation-api", "test"),
		ValuationHandler: handler.NewValuationHandler(f.valuation, f.sessions, nil),
		AccountHandler:   handler.NewAccountHandler(f.accounts, nil),
		AdminHandler: handler.NewAdminHandler(handler.AdminConfig{
			CacheType:  "disk",
			CacheBytes: func() int64 { return 42 },
			Proxies:    func() int { return 3 },
		}),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			APIKeys: []string{"secret"},
		}),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-API-Key", "secret")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/1/profile", nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReadyReportsFailingCheck(t *testing.T) {
	h := handler.New("svc", "test", handler.ReadyCheck{Name: "db", Check: func(ctx context.Context) error {
		return errors.New("down")
	}})
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"down"`)
}

func TestGetProfile(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/api/v1/users/7/profile", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", body["data"].(map[string]any)["name"])

	rec, body = f.do(t, http.MethodGet, "/api/v1/users/404/profile", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, body = f.do(t, http.MethodGet, "/api/v1/users/abc/profile", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])
}

func TestGetInventoryUsesLinkedCookie(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/api/v1/users/7/inventory", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(50), data["totalValue"])
	assert.Equal(t, false, data["authenticated"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/users/7/inventory", nil, map[string]string{handler.BotUserHeader: "bot-good"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/users/7/inventory", nil, map[string]string{handler.BotUserHeader: "bot-none"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"", "plain-enc-good", ""}, f.valuation.cookies)
}

func TestRejectedCookieIsForgotten(t *testing.T) {
	f := newFixture(t)
	f.valuation.inventoryErr = roblox.ErrAuthRequired

	rec, body := f.do(t, http.MethodGet, "/api/v1/users/7/inventory", nil, map[string]string{handler.BotUserHeader: "bot-stale"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_REQUIRED", body["error"].(map[string]any)["code"])
	assert.Equal(t, []int64{7}, f.sessions.forgotten)
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.valuation.inventoryErr = &roblox.StatusError{Code: 418, Endpoint: "inventory"}

	rec, _ := f.do(t, http.MethodGet, "/api/v1/users/7/inventory", nil, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetRevenue(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/v1/users/7/revenue", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := f.do(t, http.MethodGet, "/api/v1/users/7/revenue?page=2&per_page=30", nil, map[string]string{handler.BotUserHeader: "bot-good"})
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(2), data["page"])
	assert.Equal(t, float64(50), data["perPage"])
	assert.NotContains(t, data, "error")
	assert.Equal(t, "enc-good", f.valuation.revenueEnc)

	rec, body = f.do(t, http.MethodGet, "/api/v1/users/7/revenue", nil, map[string]string{handler.BotUserHeader: "bot-stale"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.AuthRequired, body["data"].(map[string]any)["error"])
	assert.Equal(t, []int64{7}, f.sessions.forgotten)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/users/7/revenue", nil, map[string]string{handler.BotUserHeader: "bot-none"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{7}, f.sessions.forgotten, "nothing stored, nothing to forget")
}

func TestAccountsEndpoints(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/v1/accounts/bot-1/link", handler.LinkRequest{UserID: 9, Cookie: " c "}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["data"].(map[string]any)["hasCookie"])
	require.Len(t, f.accounts.linked, 1)
	assert.Equal(t, "bot-1", f.accounts.linked[0].BotUserID)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/accounts/bot-1/link", handler.LinkRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(t, http.MethodGet, "/api/v1/accounts/bot-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["data"])

	rec, body = f.do(t, http.MethodGet, "/api/v1/accounts/bot-1/events", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 1)

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/accounts/bot-1/9", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminStats(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/api/v1/admin/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(42), data["cache"].(map[string]any)["size_bytes"])
	upstream := data["upstream"].(map[string]any)
	assert.Equal(t, float64(3), upstream["proxies"])
	assert.Equal(t, "not_configured", upstream["clients"])

	rec, _ = f.do(t, http.MethodPost, "/api/v1/admin/cache/prune", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
