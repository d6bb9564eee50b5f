package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, cfg ClientConfig) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/"
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Chat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/chat", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "laptops under 1000", req.Message)

		writeJSON(w, http.StatusOK, ChatResponse{
			ConversationID: "c-1",
			Content:        "## Products Found",
			ResponseType:   "listing",
			ProductIDs:     []string{"p-1"},
			Products:       []Product{{ID: "p-1", Name: "Ultrabook", Price: "999"}},
		})
	}, ClientConfig{APIKey: "secret"})

	resp, err := c.Chat(context.Background(), ChatRequest{Message: "laptops under 1000"})
	require.NoError(t, err)
	assert.Equal(t, "c-1", resp.ConversationID)
	assert.Equal(t, "listing", resp.ResponseType)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, "999", resp.Products[0].Price)
}

func TestClient_StatsEncodesFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stats", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "gaming", q.Get("q"))
		assert.Equal(t, "laptops", q.Get("category"))
		assert.Equal(t, "1500.5", q.Get("max_price"))
		assert.Equal(t, "true", q.Get("in_stock"))
		assert.Empty(t, q.Get("brand"))
		writeJSON(w, http.StatusOK, StatsResponse{Total: 3, MinPrice: "499"})
	}, ClientConfig{})

	max, inStock := 1500.5, true
	resp, err := c.Stats(context.Background(), StatsRequest{
		Query:   "gaming",
		Filters: Filters{Category: "laptops", MaxPrice: &max, InStock: &inStock},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, "499", resp.MinPrice)
}

func TestClient_ErrorResponses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/conversations/missing":
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "conversation not found"})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("plain text"))
		}
	}, ClientConfig{MaxRetries: 3})

	_, err := c.Conversation(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "conversation not found", apiErr.Message)

	_, err = c.Search(context.Background(), SearchRequest{Query: "x"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Bad Request", apiErr.Message)
	assert.False(t, IsNotFound(err))
}

func TestClient_RetriesUnavailable(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "warming up"})
			return
		}
		writeJSON(w, http.StatusOK, []Taxonomy{{ID: "1", Name: "Laptops", Slug: "laptops"}})
	}, ClientConfig{MaxRetries: 2})

	cats, err := c.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Taxonomy{{ID: "1", Name: "Laptops", Slug: "laptops"}}, cats)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_ChatIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "provider down"})
	}, ClientConfig{MaxRetries: 5})

	_, err := c.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_DeleteAndHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/conversations/c-1":
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/health":
			writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Service: "catalog-engine"})
		default:
			http.NotFound(w, r)
		}
	}, ClientConfig{})

	require.NoError(t, c.DeleteConversation(context.Background(), "c-1"))

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(ClientConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)

	_, err = NewClient(ClientConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}
