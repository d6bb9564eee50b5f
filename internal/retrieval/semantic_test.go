package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage/storagetest"
)

// indexCatalog embeds every fixture product, stores the vectors and loads
// them into a memory index.
func indexCatalog(t *testing.T, catalog *storagetest.Catalog, embedder embedding.Embedder) *MemoryIndex {
	t.Helper()
	ctx := context.Background()

	for _, p := range catalog.Products {
		vec, err := embedder.EmbedSingle(ctx, p.EmbeddingText())
		require.NoError(t, err)
		require.NoError(t, catalog.Repos.Products.UpdateEmbedding(ctx, p.ID, vec))
	}

	idx := NewMemoryIndex(storage.EmbeddingDimension)
	n, err := LoadIndex(ctx, catalog.Repos.Products, idx)
	require.NoError(t, err)
	// the inactive product is not listed
	require.Equal(t, len(catalog.Products)-1, n)
	return idx
}

func TestSemanticSearcher_RanksNearestFirst(t *testing.T) {
	catalog := storagetest.NewCatalog(t)
	embedder := embedding.NewMockClient(storage.EmbeddingDimension)
	idx := indexCatalog(t, catalog, embedder)

	searcher := NewSemanticSearcher(embedder, idx, catalog.Repos.Products, nil)
	query := catalog.Products["workstation"].EmbeddingText()

	out, err := searcher.Search(context.Background(), query, 3)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, catalog.Products["workstation"].ID, out[0].Product.ID)
	assert.InDelta(t, 1.0, out[0].Score, 1e-3)
	for i, c := range out {
		assert.Equal(t, ProvenanceSemantic, c.Provenance)
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, out[i-1].Score, c.Score)
		}
	}
}

func TestSemanticSearcher_SkipsInactiveProducts(t *testing.T) {
	catalog := storagetest.NewCatalog(t)
	embedder := embedding.NewMockClient(storage.EmbeddingDimension)
	idx := indexCatalog(t, catalog, embedder)

	retired := catalog.Products["retired"]
	vec, err := embedder.EmbedSingle(context.Background(), retired.EmbeddingText())
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), retired.ID, vec))

	searcher := NewSemanticSearcher(embedder, idx, catalog.Repos.Products, nil)
	out, err := searcher.Search(context.Background(), retired.EmbeddingText(), 10)
	require.NoError(t, err)
	for _, c := range out {
		assert.NotEqual(t, retired.ID, c.Product.ID)
	}
}

func TestSemanticSearcher_EmptyResults(t *testing.T) {
	catalog := storagetest.NewCatalog(t)
	idx := indexCatalog(t, catalog, embedding.NewMockClient(storage.EmbeddingDimension))

	t.Run("blank query", func(t *testing.T) {
		searcher := NewSemanticSearcher(embedding.NewMockClient(storage.EmbeddingDimension), idx, catalog.Repos.Products, nil)
		out, err := searcher.Search(context.Background(), "  ", 5)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("embedding failure", func(t *testing.T) {
		failing := embedding.NewMockClient(storage.EmbeddingDimension).FailWith(errors.New("provider down"))
		searcher := NewSemanticSearcher(failing, idx, catalog.Repos.Products, nil)
		out, err := searcher.Search(context.Background(), "gaming laptop", 5)
		require.NoError(t, err)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("no embedder", func(t *testing.T) {
		searcher := NewSemanticSearcher(nil, idx, catalog.Repos.Products, nil)
		out, err := searcher.Search(context.Background(), "gaming laptop", 5)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("empty index", func(t *testing.T) {
		searcher := NewSemanticSearcher(embedding.NewMockClient(storage.EmbeddingDimension),
			NewMemoryIndex(storage.EmbeddingDimension), catalog.Repos.Products, nil)
		out, err := searcher.Search(context.Background(), "gaming laptop", 5)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}
