package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"rbx-valuation-api/pkg/apierror"
	"rbx-valuation-api/pkg/response"
)

// NewRecovery returns a middleware that turns panics into 500 responses.
func NewRecovery(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("request_id", GetRequestID(r.Context())),
						zap.Stack("stack"),
					)
					response.Error(w, apierror.InternalError("internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
