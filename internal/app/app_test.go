package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/chat"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/llm"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

type staticGenerator struct{ reply string }

func (g staticGenerator) Generate(context.Context, []llm.Message, llm.Options) (*llm.Response, error) {
	return &llm.Response{Text: g.reply, FinishReason: "stop"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "catalog.db")
	return cfg
}

const seedYAML = `
categories:
  - name: Laptops
brands:
  - name: Acme
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
`

func TestNew_EndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), nil, Options{
		Generator: staticGenerator{reply: `{"query_type":"listing","filters":{"category":"laptops","max_price":1000},"search_query":""}`},
		Embedder:  embedding.NewMockClient(storage.EmbeddingDimension),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.Ready(ctx))

	seeded, err := a.Seeder().Seed(ctx, strings.NewReader(seedYAML), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, seeded.Products)

	filled, err := a.Backfiller(2).Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, filled.Embedded)

	hits, err := a.Router.Retrieve(ctx, "gaming graphics", retrieval.Filters{}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Acme Gaming Laptop", hits[0].Product.Name)

	turn, err := a.Orchestrator.Handle(ctx, chat.TurnRequest{Message: "laptops under 1000"})
	require.NoError(t, err)
	assert.Equal(t, chat.QueryTypeListing, turn.ResponseType)
	require.Len(t, turn.Products, 1)
	assert.Equal(t, "Acme Office Laptop", turn.Products[0].Name)
}

func TestNew_ReloadsIndexFromStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	opts := Options{Generator: staticGenerator{}, Embedder: embedding.NewMockClient(storage.EmbeddingDimension)}

	first, err := New(ctx, cfg, nil, opts)
	require.NoError(t, err)
	_, err = first.Seeder().Seed(ctx, strings.NewReader(seedYAML), nil)
	require.NoError(t, err)
	_, err = first.Backfiller(0).Run(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg, nil, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	n, err := second.Index.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestNew_BuildsConfiguredProviders(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.IsType(t, &llm.Client{}, a.Generator)
	// the memory cache wraps the provider embedder
	assert.IsType(t, &embedding.CachedEmbedder{}, a.Embedder)
	assert.IsType(t, &retrieval.MemoryIndex{}, a.Index)
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"
	_, err := New(context.Background(), cfg, nil, Options{})
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.AI.Ollama.ChatModel = ""
	_, err = New(context.Background(), cfg, nil, Options{Embedder: embedding.NewMockClient(0)})
	assert.ErrorContains(t, err, "llm")
}
