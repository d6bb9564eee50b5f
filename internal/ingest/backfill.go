package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// EmbeddingStore lists products without a vector and stores new ones.
type EmbeddingStore interface {
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*storage.Product, error)
	UpdateEmbedding(ctx context.Context, id uuid.UUID, vec []float32) error
}

// BackfillConfig configures a Backfiller.
type BackfillConfig struct {
	Workers   int
	BatchSize int
	PageSize  int
}

func (c BackfillConfig) withDefaults() BackfillConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.PageSize <= 0 {
		c.PageSize = 1000
	}
	return c
}

// BackfillProgress reports a finished batch. Worker is a slot number in
// [0, Workers) so callers can render one bar per worker.
type BackfillProgress struct {
	Worker   int
	Embedded int
	Failed   int
	Total    int
}

// BackfillResult summarises a backfill run.
type BackfillResult struct {
	Embedded int
	Failed   int
	Errors   []string

	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Backfiller embeds products that have no stored vector and writes the
// vectors to the store and the index.
type Backfiller struct {
	store    EmbeddingStore
	embedder embedding.Embedder
	index    retrieval.VectorIndex
	cfg      BackfillConfig
	logger   *observability.Logger
}

// NewBackfiller creates a backfiller. index may be nil.
func NewBackfiller(store EmbeddingStore, embedder embedding.Embedder, index retrieval.VectorIndex, cfg BackfillConfig, logger *observability.Logger) *Backfiller {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Backfiller{
		store:    store,
		embedder: embedder,
		index:    index,
		cfg:      cfg.withDefaults(),
		logger:   logger.WithComponent("embedding_backfill"),
	}
}

// Run processes pages of missing products until none are left or a page
// makes no progress. Per-product failures are counted, not returned.
func (b *Backfiller) Run(ctx context.Context, progress func(BackfillProgress)) (*BackfillResult, error) {
	if b.embedder == nil {
		return nil, fmt.Errorf("backfill: no embedder configured")
	}

	pool, err := ants.NewPool(b.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("backfill: create worker pool: %w", err)
	}
	defer pool.Release()

	result := &BackfillResult{StartedAt: time.Now()}
	b.logger.Info().Int("workers", b.cfg.Workers).Int("batch_size", b.cfg.BatchSize).Msg("Starting embedding backfill")

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := b.store.ListMissingEmbeddings(ctx, b.cfg.PageSize)
		if err != nil {
			return result, fmt.Errorf("backfill: list missing embeddings: %w", err)
		}
		if len(page) == 0 {
			break
		}

		embedded, err := b.runPage(ctx, pool, page, result, progress)
		if err != nil {
			return result, err
		}
		// failed rows stay missing and would be listed again
		if embedded == 0 || len(page) < b.cfg.PageSize {
			break
		}
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	b.logger.Info().
		Int("embedded", result.Embedded).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Embedding backfill completed")

	return result, nil
}

func (b *Backfiller) runPage(ctx context.Context, pool *ants.Pool, page []*storage.Product, result *BackfillResult, progress func(BackfillProgress)) (int, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		embedded int
	)

	slots := make(chan int, b.cfg.Workers)
	for i := 0; i < b.cfg.Workers; i++ {
		slots <- i
	}

	for start := 0; start < len(page); start += b.cfg.BatchSize {
		end := start + b.cfg.BatchSize
		if end > len(page) {
			end = len(page)
		}
		batch := page[start:end]

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			slot := <-slots
			defer func() { slots <- slot }()

			ok, errs := b.embedBatch(ctx, batch)

			mu.Lock()
			embedded += ok
			result.Embedded += ok
			result.Failed += len(errs)
			result.Errors = append(result.Errors, errs...)
			mu.Unlock()

			if progress != nil {
				progress(BackfillProgress{Worker: slot, Embedded: ok, Failed: len(errs), Total: len(batch)})
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return embedded, fmt.Errorf("backfill: submit batch: %w", err)
		}
	}

	wg.Wait()
	return embedded, ctx.Err()
}

func (b *Backfiller) embedBatch(ctx context.Context, batch []*storage.Product) (int, []string) {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.EmbeddingText()
	}

	vectors, err := b.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) != len(batch) {
		err = fmt.Errorf("got %d vectors for %d texts", len(vectors), len(batch))
	}
	if err != nil {
		b.logger.Warn().Err(err).Int("batch", len(batch)).Msg("Failed to embed batch")
		errs := make([]string, len(batch))
		for i, p := range batch {
			errs[i] = fmt.Sprintf("%s: %v", p.ID, err)
		}
		return 0, errs
	}

	ok := 0
	var errs []string
	for i, p := range batch {
		if err := b.store.UpdateEmbedding(ctx, p.ID, vectors[i]); err != nil {
			b.logger.Warn().Err(err).Str("product_id", p.ID.String()).Msg("Failed to store embedding")
			errs = append(errs, fmt.Sprintf("%s: %v", p.ID, err))
			continue
		}
		if b.index != nil {
			if err := b.index.Upsert(ctx, p.ID, vectors[i]); err != nil {
				b.logger.Warn().Err(err).Str("product_id", p.ID.String()).Msg("Failed to index embedding")
				errs = append(errs, fmt.Sprintf("%s: %v", p.ID, err))
				continue
			}
		}
		ok++
	}
	return ok, errs
}
