package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"rbx-valuation-api/internal/model"
	"rbx-valuation-api/internal/service"
	"rbx-valuation-api/pkg/apierror"
	"rbx-valuation-api/pkg/response"
)

// Valuation is the orchestrator surface served over HTTP.
type Valuation interface {
	FetchPublicProfile(ctx context.Context, userID int64) (*model.PublicProfile, error)
	FetchInventory(ctx context.Context, userID int64, cookie string) (*model.UserInventory, error)
	CollectiblesWithRAP(ctx context.Context, userID int64, cookie string) ([]model.CollectibleRAP, error)
	OffsaleCollectibles(ctx context.Context, userID int64, cookie string) ([]model.InventoryItem, error)
	GetRevenue(ctx context.Context, userID int64, encCookie string, page, perPage int) (*model.RevenuePage, error)
}

// Sessions resolves the linked session of a bot user.
type Sessions interface {
	EncryptedCookie(ctx context.Context, botUserID string, userID int64) (string, error)
	Cookie(ctx context.Context, botUserID string, userID int64) (string, error)
	ForgetCookie(ctx context.Context, botUserID string, userID int64)
}

var (
	_ Valuation = (*service.ValuationService)(nil)
	_ Sessions  = (*service.AccountService)(nil)
)

// ValuationHandler serves profiles, inventories and revenue.
type ValuationHandler struct {
	valuation Valuation
	sessions  Sessions
	log       *zap.Logger
}

// NewValuationHandler creates a valuation handler. sessions may be nil, in
// which case only public data is served.
func NewValuationHandler(valuation Valuation, sessions Sessions, logger *zap.Logger) *ValuationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValuationHandler{valuation: valuation, sessions: sessions, log: logger.Named("handler")}
}

// GetProfile handles GET /api/v1/users/{user_id}/profile
func (h *ValuationHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, apiErr := userIDParam(r, "user_id")
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	profile, err := h.valuation.FetchPublicProfile(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, profile)
}

type inventoryResponse struct {
	*model.UserInventory
	TotalValue    int64 `json:"totalValue"`
	Authenticated bool  `json:"authenticated"`
}

// GetInventory handles GET /api/v1/users/{user_id}/inventory
func (h *ValuationHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	userID, cookie, ok := h.session(w, r)
	if !ok {
		return
	}

	inv, err := h.valuation.FetchInventory(r.Context(), userID, cookie)
	if err != nil {
		h.failSession(w, r, userID, cookie, err)
		return
	}
	response.OK(w, inventoryResponse{UserInventory: inv, TotalValue: inv.TotalValue(), Authenticated: cookie != ""})
}

// GetCollectibles handles GET /api/v1/users/{user_id}/collectibles
func (h *ValuationHandler) GetCollectibles(w http.ResponseWriter, r *http.Request) {
	userID, cookie, ok := h.session(w, r)
	if !ok {
		return
	}

	items, err := h.valuation.CollectiblesWithRAP(r.Context(), userID, cookie)
	if err != nil {
		h.failSession(w, r, userID, cookie, err)
		return
	}
	if items == nil {
		items = []model.CollectibleRAP{}
	}
	response.OK(w, items)
}

// GetOffsale handles GET /api/v1/users/{user_id}/offsale
func (h *ValuationHandler) GetOffsale(w http.ResponseWriter, r *http.Request) {
	userID, cookie, ok := h.session(w, r)
	if !ok {
		return
	}

	items, err := h.valuation.OffsaleCollectibles(r.Context(), userID, cookie)
	if err != nil {
		h.failSession(w, r, userID, cookie, err)
		return
	}
	response.OK(w, items)
}

// GetRevenue handles GET /api/v1/users/{user_id}/revenue?page=&per_page=
// The bot user's stored cookie for the user is used; a rejected cookie is
// forgotten.
func (h *ValuationHandler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	userID, apiErr := userIDParam(r, "user_id")
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	botUserID := r.Header.Get(BotUserHeader)
	if botUserID == "" || h.sessions == nil {
		response.Error(w, apierror.BadRequest(BotUserHeader+" header is required"))
		return
	}

	enc, err := h.sessions.EncryptedCookie(r.Context(), botUserID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, err := h.valuation.GetRevenue(r.Context(), userID, enc, intQuery(r, "page", 1), intQuery(r, "per_page", 10))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if page.Error == service.AuthRequired && enc != "" {
		h.sessions.ForgetCookie(r.Context(), botUserID, userID)
	}
	response.OK(w, page)
}

// session parses the user id and, when X-Bot-User-ID is set, the linked
// cookie. A bot user without a usable cookie falls back to public data.
func (h *ValuationHandler) session(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	userID, apiErr := userIDParam(r, "user_id")
	if apiErr != nil {
		response.Error(w, apiErr)
		return 0, "", false
	}

	botUserID := r.Header.Get(BotUserHeader)
	if botUserID == "" || h.sessions == nil {
		return userID, "", true
	}

	cookie, err := h.sessions.Cookie(r.Context(), botUserID, userID)
	if err != nil && !errors.Is(err, service.ErrAuthRequired) {
		h.fail(w, r, err)
		return 0, "", false
	}
	return userID, cookie, true
}

func (h *ValuationHandler) failSession(w http.ResponseWriter, r *http.Request, userID int64, cookie string, err error) {
	if cookie != "" && errors.Is(err, service.ErrAuthRequired) {
		h.sessions.ForgetCookie(r.Context(), r.Header.Get(BotUserHeader), userID)
	}
	h.fail(w, r, err)
}

func (h *ValuationHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.log.Warn("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	response.Error(w, apiErr)
}
