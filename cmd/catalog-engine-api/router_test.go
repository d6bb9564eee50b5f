package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/llm"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/catalog-engine/pkg/engine"
)

type staticGenerator struct{ reply string }

func (g staticGenerator) Generate(context.Context, []llm.Message, llm.Options) (*llm.Response, error) {
	return &llm.Response{Text: g.reply, FinishReason: "stop"}, nil
}

const catalogYAML = `
categories:
  - name: Laptops
  - name: Phones
brands:
  - name: Acme
  - name: Zenith
products:
  - sku: A-1
    name: Acme Gaming Laptop
    description: RTX graphics for games
    price: 1499
    category: laptops
    brand: acme
  - sku: A-2
    name: Acme Office Laptop
    price: 699
    category: laptops
    brand: acme
  - sku: Z-1
    name: Zenith Phone
    price: 499
    in_stock: false
    category: phones
    brand: zenith
`

func newTestServer(t *testing.T, reply string, keys ...string) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "catalog.db")
	cfg.Auth.Enabled = len(keys) > 0
	cfg.Auth.APIKeys = keys

	a, err := app.New(ctx, cfg, nil, app.Options{
		Generator: staticGenerator{reply: reply},
		Embedder:  embedding.NewMockClient(storage.EmbeddingDimension),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Seeder().Seed(ctx, strings.NewReader(catalogYAML), nil)
	require.NoError(t, err)
	_, err = a.Backfiller(1).Run(ctx, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(a))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server, key string) *engine.Client {
	t.Helper()
	c, err := engine.NewClient(engine.ClientConfig{BaseURL: srv.URL, APIKey: key})
	require.NoError(t, err)
	return c
}

func TestAPI_ChatListingAndConversation(t *testing.T) {
	srv := newTestServer(t, `{"query_type":"listing","filters":{"category":"laptops","max_price":1000},"search_query":""}`)
	c := newClient(t, srv, "")
	ctx := context.Background()

	resp, err := c.Chat(ctx, engine.ChatRequest{Message: "laptops under 1000"})
	require.NoError(t, err)
	assert.Equal(t, "listing", resp.ResponseType)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, "Acme Office Laptop", resp.Products[0].Name)
	assert.Equal(t, "699", resp.Products[0].Price)
	assert.Equal(t, "laptops", resp.Filters.Category)
	assert.Equal(t, []string{resp.Products[0].ID}, resp.ProductIDs)

	conv, err := c.Conversation(ctx, resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, resp.ProductIDs, conv.LastShownProductIDs)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "user", conv.Messages[0].Role)

	require.NoError(t, c.DeleteConversation(ctx, resp.ConversationID))
	_, err = c.Conversation(ctx, resp.ConversationID)
	assert.True(t, engine.IsNotFound(err))
}

func TestAPI_Search(t *testing.T) {
	srv := newTestServer(t, "")
	c := newClient(t, srv, "")

	resp, err := c.Search(context.Background(), engine.SearchRequest{
		Query:   "gaming graphics",
		Filters: engine.Filters{Category: "laptops"},
		Limit:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, "hybrid_strict", resp.Mode)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.Equal(t, "laptops", strings.ToLower(r.Product.Category))
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestAPI_ClassifyFallsBackWhenModelReplyIsInvalid(t *testing.T) {
	srv := newTestServer(t, "not json")
	c := newClient(t, srv, "")

	resp, err := c.Classify(context.Background(), engine.ClassifyRequest{Message: "how many laptops do you have?"})
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	assert.Equal(t, "count", resp.QueryType)
}

func TestAPI_StatsAndTaxonomy(t *testing.T) {
	srv := newTestServer(t, "")
	c := newClient(t, srv, "")
	ctx := context.Background()

	inStock := true
	stats, err := c.Stats(ctx, engine.StatsRequest{Filters: engine.Filters{InStock: &inStock}})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, "699", stats.MinPrice)
	assert.Equal(t, "1499", stats.MaxPrice)
	require.NotNil(t, stats.Cheapest)
	assert.Equal(t, "Acme Office Laptop", stats.Cheapest.Name)
	assert.NotEmpty(t, stats.Markdown)

	cats, err := c.Categories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	brands, err := c.Brands(ctx)
	require.NoError(t, err)
	assert.Len(t, brands, 2)
}

func TestAPI_BadRequests(t *testing.T) {
	srv := newTestServer(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"empty message", http.MethodPost, "/api/v1/chat", `{"message":""}`},
		{"bad conversation id", http.MethodPost, "/api/v1/chat", `{"conversation_id":"nope","message":"hi"}`},
		{"unknown field", http.MethodPost, "/api/v1/search", `{"query":"x","colour":"red"}`},
		{"limit too large", http.MethodPost, "/api/v1/search", `{"query":"x","limit":1000}`},
		{"bad price", http.MethodGet, "/api/v1/stats?max_price=cheap", ``},
		{"bad stock flag", http.MethodGet, "/api/v1/stats?in_stock=maybe", ``},
		{"bad conversation path", http.MethodGet, "/api/v1/conversations/nope", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body engine.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "bad_request", body.Error)
		})
	}
}

func TestAPI_AuthAndProbes(t *testing.T) {
	srv := newTestServer(t, "", "secret")
	ctx := context.Background()

	health, err := newClient(t, srv, "").Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)

	ready, err := newClient(t, srv, "").Ready(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ready", ready.Status)

	_, err = newClient(t, srv, "").Categories(ctx)
	var apiErr *engine.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = newClient(t, srv, "secret").Categories(ctx)
	assert.NoError(t, err)
}
