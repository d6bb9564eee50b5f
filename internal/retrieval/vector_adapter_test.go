package retrieval

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

func TestMemoryIndex_Search(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(3)

	x, y, xy := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, idx.Upsert(ctx, x, []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert(ctx, y, []float32{0, 5, 0}))
	require.NoError(t, idx.Upsert(ctx, xy, []float32{1, 1, 0}))

	results, err := idx.Search(ctx, []float32{2, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, x, results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.Equal(t, xy, results[1].ID)
	assert.InDelta(t, 1-0.7071, results[1].Distance, 1e-3)

	t.Run("wrong dimension matches nothing", func(t *testing.T) {
		results, err := idx.Search(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("upsert rejects wrong dimension", func(t *testing.T) {
		err := idx.Upsert(ctx, uuid.New(), []float32{1})
		assert.True(t, errors.Is(err, ErrVectorDimensionMismatch))
	})
}

func TestMemoryIndex_TopKOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	// eight identical vectors tie; ids decide the order
	var tied []uuid.UUID
	for i := 0; i < 8; i++ {
		id := uuid.New()
		tied = append(tied, id)
		require.NoError(t, idx.Upsert(ctx, id, []float32{0, 1}))
	}
	best := uuid.New()
	require.NoError(t, idx.Upsert(ctx, best, []float32{1, 0.1}))

	results, err := idx.Search(ctx, []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, best, results[0].ID)

	sort.Slice(tied, func(i, j int) bool { return tied[i].String() < tied[j].String() })
	for i, r := range results[1:] {
		assert.Equal(t, tied[i], r.ID)
		assert.InDelta(t, 1.0, r.Distance, 1e-6)
	}

	all, err := idx.Search(ctx, []float32{1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, all, 9)
}

func TestMemoryIndex_UpsertDeleteCount(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	id := uuid.New()

	require.NoError(t, idx.Upsert(ctx, id, []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, id, []float32{0, 1}))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	results, err := idx.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)

	require.NoError(t, idx.Delete(ctx, []uuid.UUID{id}))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, idx.Close())
}

type stubLister []storage.ProductEmbedding

func (s stubLister) ListEmbeddings(ctx context.Context, fn func(storage.ProductEmbedding) error) error {
	for _, e := range s {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func TestLoadIndex_SkipsForeignDimensions(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	n, err := LoadIndex(ctx, stubLister{
		{ID: uuid.New(), Vector: []float32{1, 0}},
		{ID: uuid.New(), Vector: []float32{1, 0, 0}},
		{ID: uuid.New(), Vector: []float32{0, 1}},
	}, idx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
