package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rbx-valuation-api/internal/repository"
	"rbx-valuation-api/internal/roblox"
	"rbx-valuation-api/internal/secret"
	"rbx-valuation-api/pkg/apierror"
)

// BotUserHeader names the bot user whose linked session is used.
const BotUserHeader = "X-Bot-User-ID"

// toAPIError maps service errors to API errors.
func toAPIError(err error) *apierror.Error {
	if apiErr, ok := apierror.As(err); ok {
		return apiErr
	}

	var se *roblox.StatusError
	switch {
	case errors.Is(err, roblox.ErrAuthRequired):
		return apierror.AuthRequired("")
	case errors.Is(err, roblox.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return apierror.NotFound("")
	case errors.Is(err, secret.ErrNoKey):
		return apierror.ServiceUnavailable("Cookie encryption is not configured")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apierror.ServiceUnavailable("Request timed out")
	case errors.Is(err, roblox.ErrRetriesExhausted), errors.As(err, &se):
		return apierror.BadGateway("")
	default:
		return apierror.InternalError("")
	}
}

// userIDParam parses a positive numeric URL parameter.
func userIDParam(r *http.Request, name string) (int64, *apierror.Error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apierror.ValidationError("Invalid user id", apierror.FieldError{Field: name, Message: "must be a positive integer"})
	}
	return id, nil
}

// intQuery returns a positive integer query parameter, or def.
func intQuery(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}
