package retrieval

import (
	"bytes"
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// VectorIndex is nearest-neighbour search over product embeddings.
type VectorIndex interface {
	// Search finds the k nearest products to the query vector by cosine distance.
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)

	// Upsert adds or replaces the vector of a product.
	Upsert(ctx context.Context, id uuid.UUID, vector []float32) error

	// Delete removes products from the index.
	Delete(ctx context.Context, ids []uuid.UUID) error

	// Count returns the number of indexed products.
	Count(ctx context.Context) (int64, error)

	// Close releases resources.
	Close() error
}

// VectorResult is one neighbour, nearest first.
type VectorResult struct {
	ID       uuid.UUID
	Distance float64
}

// ErrVectorDimensionMismatch is returned by Upsert for a vector of the wrong
// length.
var ErrVectorDimensionMismatch = errors.New("vector dimension mismatch")

// MemoryIndex is an exact in-process cosine index. Vectors are normalised on
// insert so distance is 1 - dot product.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[uuid.UUID][]float32
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex(dimension int) *MemoryIndex {
	if dimension <= 0 {
		dimension = storage.EmbeddingDimension
	}
	return &MemoryIndex{
		dimension: dimension,
		vectors:   make(map[uuid.UUID][]float32),
	}
}

// Search returns the k nearest vectors, ties broken by id. A query of the
// wrong dimension matches nothing.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if len(query) != m.dimension || k <= 0 {
		return []VectorResult{}, nil
	}
	q := unit(query)

	// max-heap on distance holding the best k seen so far
	h := make(farthestFirst, 0, k+1)
	m.mu.RLock()
	for id, v := range m.vectors {
		r := VectorResult{ID: id, Distance: 1 - clamp(dot(q, v))}
		if len(h) < k {
			heap.Push(&h, r)
		} else if closer(r, h[0]) {
			h[0] = r
			heap.Fix(&h, 0)
		}
	}
	m.mu.RUnlock()

	out := make([]VectorResult, len(h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(VectorResult)
	}
	return out, nil
}

func closer(a, b VectorResult) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

type farthestFirst []VectorResult

func (h farthestFirst) Len() int           { return len(h) }
func (h farthestFirst) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h farthestFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *farthestFirst) Push(x any)        { *h = append(*h, x.(VectorResult)) }
func (h *farthestFirst) Pop() any {
	old := *h
	r := old[len(old)-1]
	*h = old[:len(old)-1]
	return r
}

// Upsert adds or replaces a vector.
func (m *MemoryIndex) Upsert(ctx context.Context, id uuid.UUID, vector []float32) error {
	if len(vector) != m.dimension {
		return fmt.Errorf("%w: expected %d, got %d for id %s",
			ErrVectorDimensionMismatch, m.dimension, len(vector), id)
	}
	v := unit(vector)
	m.mu.Lock()
	m.vectors[id] = v
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.vectors, id)
	}
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.vectors)), nil
}

func (m *MemoryIndex) Close() error {
	return nil
}

// EmbeddingLister streams stored product embeddings.
type EmbeddingLister interface {
	ListEmbeddings(ctx context.Context, fn func(storage.ProductEmbedding) error) error
}

// LoadIndex fills idx from the stored embeddings and returns how many were loaded.
// Rows with a foreign dimension are skipped.
func LoadIndex(ctx context.Context, store EmbeddingLister, idx VectorIndex) (int, error) {
	loaded := 0
	err := store.ListEmbeddings(ctx, func(e storage.ProductEmbedding) error {
		if err := idx.Upsert(ctx, e.ID, e.Vector); err != nil {
			if errors.Is(err, ErrVectorDimensionMismatch) {
				return nil
			}
			return err
		}
		loaded++
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("load vector index: %w", err)
	}
	return loaded, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// clamp keeps rounding error from pushing a cosine outside [-1, 1].
func clamp(c float64) float64 {
	return math.Max(-1, math.Min(1, c))
}

// unit returns a unit-length copy of v; the caller's slice is untouched.
func unit(v []float32) []float32 {
	return embedding.Normalize(append([]float32(nil), v...))
}

// PGVectorIndex searches the embedding column of the products table with pgvector.
type PGVectorIndex struct {
	db        storage.DB
	dimension int
}

// NewPGVectorIndex creates an index over a Postgres database with the vector extension.
func NewPGVectorIndex(db storage.DB, dimension int) *PGVectorIndex {
	if dimension <= 0 {
		dimension = storage.EmbeddingDimension
	}
	return &PGVectorIndex{db: db, dimension: dimension}
}

// Search orders active products by cosine distance (the <=> operator).
func (p *PGVectorIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if len(query) != p.dimension || k <= 0 {
		return []VectorResult{}, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, embedding <=> $1 AS distance
		FROM products
		WHERE status = 'active' AND embedding IS NOT NULL
		ORDER BY distance, id
		LIMIT $2
	`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var results []VectorResult
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.ID, &r.Distance); err != nil {
			return nil, fmt.Errorf("scan pgvector result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Upsert writes the embedding column.
func (p *PGVectorIndex) Upsert(ctx context.Context, id uuid.UUID, vector []float32) error {
	if len(vector) != p.dimension {
		return fmt.Errorf("%w: expected %d, got %d for id %s",
			ErrVectorDimensionMismatch, p.dimension, len(vector), id)
	}
	if _, err := p.db.ExecContext(ctx,
		`UPDATE products SET embedding = $1 WHERE id = $2`, pgvector.NewVector(vector), id,
	); err != nil {
		return fmt.Errorf("pgvector upsert: %w", err)
	}
	return nil
}

// Delete clears the embeddings of the given products in one statement.
func (p *PGVectorIndex) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	if _, err := p.db.ExecContext(ctx,
		`UPDATE products SET embedding = NULL WHERE id = ANY($1::uuid[])`, pq.Array(keys),
	); err != nil {
		return fmt.Errorf("pgvector delete: %w", err)
	}
	return nil
}

// Count returns the number of active products with an embedding.
func (p *PGVectorIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE status = 'active' AND embedding IS NOT NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgvector count: %w", err)
	}
	return n, nil
}

// Close is a no-op; the database handle is owned by the caller.
func (p *PGVectorIndex) Close() error {
	return nil
}

var (
	_ VectorIndex = (*MemoryIndex)(nil)
	_ VectorIndex = (*PGVectorIndex)(nil)
)
