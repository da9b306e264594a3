package roblox

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired is returned when the upstream rejects the request with
	// 401, or 403 without a CSRF challenge.
	ErrAuthRequired = errors.New("auth_required")
	// ErrNotFound is returned for upstream 404 responses.
	ErrNotFound = errors.New("not found")
	// ErrRetriesExhausted is returned when every attempt was transient or rate limited.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// StatusError is an unexpected upstream status.
type StatusError struct {
	Code     int
	Endpoint string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
}
