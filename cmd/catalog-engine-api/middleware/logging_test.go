package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LogConfig{Format: "json", Output: &buf})

	h := chimiddleware.RequestID(TraceID(RequestLogger(logger)(
		Auth(AuthConfig{Enabled: true, APIKeys: []string{"a", "b"}})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
				_, _ = w.Write([]byte("tea"))
			})))))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/brands", nil)
	req.Header.Set("X-API-Key", "b")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	traceID := rec.Header().Get(chimiddleware.RequestIDHeader)
	require.NotEmpty(t, traceID)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "HTTP request", entry["message"])
	assert.Equal(t, "/api/v1/brands", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, 3, entry["bytes"])
	assert.EqualValues(t, 1, entry["api_key_id"])
	assert.Equal(t, traceID, entry["trace_id"])
}

func TestRequestLogger_Unauthenticated(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LogConfig{Format: "json", Output: &buf})

	h := RequestLogger(logger)(Auth(AuthConfig{Enabled: true, APIKeys: []string{"a"}})(okHandler(t, -1)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.EqualValues(t, http.StatusUnauthorized, entry["status"])
	assert.NotContains(t, entry, "api_key_id")
}
