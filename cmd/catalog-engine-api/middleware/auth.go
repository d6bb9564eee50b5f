// Package middleware provides HTTP middleware for the Catalog Engine API.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-engine/pkg/engine"
)

// Context keys for request-scoped values.
type contextKey string

// APIKeyIDKey is the context key for the index of the matched API key.
const APIKeyIDKey contextKey = "api_key_id"

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Enabled bool
	APIKeys []string
}

// Auth returns an API key middleware. The key is read from X-API-Key or a
// Bearer Authorization header.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := requestKey(r)
			if key == "" {
				unauthorized(w, "missing api key")
				return
			}

			for i, allowed := range cfg.APIKeys {
				if subtle.ConstantTimeCompare([]byte(key), []byte(allowed)) == 1 {
					if slot, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
						slot.apiKeyID = i
					}
					ctx := context.WithValue(r.Context(), APIKeyIDKey, i)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			unauthorized(w, "invalid api key")
		})
	}
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(engine.ErrorResponse{Error: "unauthorized", Message: message})
}

// APIKeyIDFromContext returns the index of the API key that authenticated
// the request, or -1.
func APIKeyIDFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(APIKeyIDKey).(int); ok {
		return v
	}
	return -1
}

// CORS returns CORS middleware for browser clients.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
