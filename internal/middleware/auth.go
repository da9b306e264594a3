package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"rbx-valuation-api/pkg/apierror"
	"rbx-valuation-api/pkg/response"
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// APIKeys lists the accepted keys. An empty list disables authentication.
	APIKeys []string
	// Public lists paths served without a key.
	Public []string
}

// NewAuthMiddleware checks X-API-Key (or a Bearer token) against the
// configured keys.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	keys := make([]string, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	public := make(map[string]bool, len(cfg.Public))
	for _, p := range cfg.Public {
		public[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 || public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if apiKey == "" {
				response.Error(w, apierror.Unauthorized("Authentication required. Use the X-API-Key header."))
				return
			}
			if !isValidKey(apiKey, keys) {
				response.Error(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}
