package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// CachedEmbedder memoises embeddings by model and sanitised text.
type CachedEmbedder struct {
	next   Embedder
	store  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedEmbedder wraps next with a cache.
func NewCachedEmbedder(next Embedder, store cache.Client, ttl time.Duration, logger *observability.Logger) *CachedEmbedder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CachedEmbedder{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.WithComponent("embedding_cache"),
	}
}

// Embed serves cached vectors and embeds the misses in one call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, t := range texts {
		if vec, ok := c.lookup(ctx, t); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		c.save(ctx, texts[i], vectors[j])
	}
	return out, nil
}

// EmbedSingle embeds one text through the cache.
func (c *CachedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Model returns the wrapped model name.
func (c *CachedEmbedder) Model() string {
	return c.next.Model()
}

// Dimension returns the wrapped dimension.
func (c *CachedEmbedder) Dimension() int {
	return c.next.Dimension()
}

func (c *CachedEmbedder) key(text string) string {
	return cache.EmbeddingKey(c.next.Model(), Sanitize(text, DefaultMaxInputChars))
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	var vec []float32
	err := cache.GetJSON(ctx, c.store, c.key(text), &vec)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("Embedding cache read failed")
		}
		return nil, false
	}
	if len(vec) != c.next.Dimension() {
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) save(ctx context.Context, text string, vec []float32) {
	if err := cache.SetJSON(ctx, c.store, c.key(text), vec, c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("Embedding cache write failed")
	}
}

var _ Embedder = (*CachedEmbedder)(nil)
