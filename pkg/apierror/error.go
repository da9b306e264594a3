// Package apierror defines the error envelope returned by the HTTP API.
package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error is a structured API error.
type Error struct {
	StatusCode int          `json:"-"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Details    []FieldError `json:"details,omitempty"`
}

// FieldError is a validation error for a single field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// WithDetails adds field-level error details.
func (e *Error) WithDetails(details ...FieldError) *Error {
	e.Details = details
	return e
}

type envelope struct {
	Success bool   `json:"success"`
	Error   *Error `json:"error"`
}

// ToJSON renders the error envelope.
func (e *Error) ToJSON() []byte {
	data, _ := json.Marshal(envelope{Success: false, Error: e})
	return data
}

// As returns err as an *Error when it is or wraps one.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func newError(status int, code, message, fallback string) *Error {
	if message == "" {
		message = fallback
	}
	return &Error{StatusCode: status, Code: code, Message: message}
}

// BadRequest creates a 400 error.
func BadRequest(message string) *Error {
	return newError(http.StatusBadRequest, "BAD_REQUEST", message, "Bad request")
}

// ValidationError creates a 400 error with field details.
func ValidationError(message string, details ...FieldError) *Error {
	e := newError(http.StatusBadRequest, "VALIDATION_ERROR", message, "Validation failed")
	e.Details = details
	return e
}

// Unauthorized creates a 401 error for callers of this API.
func Unauthorized(message string) *Error {
	return newError(http.StatusUnauthorized, "UNAUTHORIZED", message, "Authentication required")
}

// AuthRequired creates a 401 error for a missing or rejected upstream session.
func AuthRequired(message string) *Error {
	return newError(http.StatusUnauthorized, "AUTH_REQUIRED", message, "A valid linked session is required")
}

// NotFound creates a 404 error.
func NotFound(message string) *Error {
	return newError(http.StatusNotFound, "NOT_FOUND", message, "Resource not found")
}

// Conflict creates a 409 error.
func Conflict(message string) *Error {
	return newError(http.StatusConflict, "CONFLICT", message, "Conflict")
}

// InternalError creates a 500 error.
func InternalError(message string) *Error {
	return newError(http.StatusInternalServerError, "INTERNAL_ERROR", message, "An unexpected error occurred")
}

// BadGateway creates a 502 error for upstream failures.
func BadGateway(message string) *Error {
	return newError(http.StatusBadGateway, "UPSTREAM_ERROR", message, "Upstream request failed")
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *Error {
	return newError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, "Service temporarily unavailable")
}
