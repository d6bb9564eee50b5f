package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))

	now = now.Add(2 * time.Minute)
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 1, c.Len(), "expired entry is dropped on read")

	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryClient_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(3)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, []byte(k), time.Hour))
	}
	// touching a makes b the oldest
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "d", []byte("d"), time.Hour))
	assert.Equal(t, 3, c.Len())
	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// overwriting an existing key must not evict
	require.NoError(t, c.Set(ctx, "d", []byte("d2"), time.Hour))
	assert.Equal(t, 3, c.Len())
	got, err := c.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, []byte("d2"), got)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)

	require.NoError(t, SetJSON(ctx, c, "vec", []float32{0.5, 0.25}, time.Minute))

	var out []float32
	require.NoError(t, GetJSON(ctx, c, "vec", &out))
	assert.Equal(t, []float32{0.5, 0.25}, out)

	require.NoError(t, c.Set(ctx, "bad", []byte("{"), time.Minute))
	assert.ErrorContains(t, GetJSON(ctx, c, "bad", &out), "decode cached value")
}

func TestEmbeddingKey(t *testing.T) {
	a := EmbeddingKey("nomic-embed-text", "gaming laptop")
	b := EmbeddingKey("nomic-embed-text", "gaming laptop")
	c := EmbeddingKey("text-embedding-004", "gaming laptop")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "emb:nomic-embed-text:")
	assert.Equal(t, "a:b:c", Key("a", "b", "c"))
}
