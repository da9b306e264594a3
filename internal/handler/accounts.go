package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rbx-valuation-api/internal/model"
	"rbx-valuation-api/internal/service"
	"rbx-valuation-api/pkg/apierror"
	"rbx-valuation-api/pkg/response"
)

// Accounts is the account store surface served over HTTP.
type Accounts interface {
	Link(ctx context.Context, botUserID string, userID int64, cookie string) (*model.LinkedAccount, error)
	Unlink(ctx context.Context, botUserID string, userID int64) error
	Accounts(ctx context.Context, botUserID string) ([]model.LinkedAccount, error)
	Events(ctx context.Context, botUserID string, limit int) ([]model.Event, error)
}

var _ Accounts = (*service.AccountService)(nil)

// AccountHandler links external accounts to bot users.
type AccountHandler struct {
	accounts Accounts
	log      *zap.Logger
}

// NewAccountHandler creates an account handler.
func NewAccountHandler(accounts Accounts, logger *zap.Logger) *AccountHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountHandler{accounts: accounts, log: logger.Named("handler")}
}

// LinkRequest is the body of a link request.
type LinkRequest struct {
	UserID int64  `json:"userId"`
	Cookie string `json:"cookie,omitempty"`
}

// Link handles POST /api/v1/accounts/{bot_user_id}/link
func (h *AccountHandler) Link(w http.ResponseWriter, r *http.Request) {
	botUserID := chi.URLParam(r, "bot_user_id")

	var req LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if req.UserID <= 0 {
		response.Error(w, apierror.ValidationError("Invalid request", apierror.FieldError{Field: "userId", Message: "must be a positive integer"}))
		return
	}

	acc, err := h.accounts.Link(r.Context(), botUserID, req.UserID, strings.TrimSpace(req.Cookie))
	if err != nil {
		h.log.Debug("link failed", zap.String("bot_user_id", botUserID), zap.Error(err))
		response.Error(w, toAPIError(err))
		return
	}
	response.Created(w, acc)
}

// List handles GET /api/v1/accounts/{bot_user_id}
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.Accounts(r.Context(), chi.URLParam(r, "bot_user_id"))
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}
	if accounts == nil {
		accounts = []model.LinkedAccount{}
	}
	response.OK(w, accounts)
}

// Unlink handles DELETE /api/v1/accounts/{bot_user_id}/{user_id}
func (h *AccountHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	userID, apiErr := userIDParam(r, "user_id")
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	if err := h.accounts.Unlink(r.Context(), chi.URLParam(r, "bot_user_id"), userID); err != nil {
		response.Error(w, toAPIError(err))
		return
	}
	response.NoContent(w)
}

// Events handles GET /api/v1/accounts/{bot_user_id}/events?limit=
func (h *AccountHandler) Events(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}

	events, err := h.accounts.Events(r.Context(), chi.URLParam(r, "bot_user_id"), limit)
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	response.OK(w, events)
}
