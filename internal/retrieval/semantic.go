package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// ProductLoader loads products by id, preserving order.
type ProductLoader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*storage.Product, error)
}

// SemanticSearcher ranks products by embedding similarity to free text.
type SemanticSearcher struct {
	embedder embedding.Embedder
	index    VectorIndex
	products ProductLoader
	logger   *observability.Logger
}

// NewSemanticSearcher creates a semantic searcher.
func NewSemanticSearcher(embedder embedding.Embedder, index VectorIndex, products ProductLoader, logger *observability.Logger) *SemanticSearcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &SemanticSearcher{
		embedder: embedder,
		index:    index,
		products: products,
		logger:   logger.WithComponent("semantic_search"),
	}
}

// Search returns up to limit active products nearest to the query, scored
// max(0, 1 - distance). An embedding failure yields no results, not an error.
func (s *SemanticSearcher) Search(ctx context.Context, query string, limit int) ([]ScoredCandidate, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []ScoredCandidate{}, nil
	}
	start := time.Now()

	vector := s.embed(ctx, query)
	if len(vector) == 0 {
		return []ScoredCandidate{}, nil
	}

	neighbours, err := s.index.Search(ctx, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	if len(neighbours) == 0 {
		return []ScoredCandidate{}, nil
	}

	ids := make([]uuid.UUID, len(neighbours))
	distance := make(map[uuid.UUID]float64, len(neighbours))
	for i, n := range neighbours {
		ids[i] = n.ID
		distance[n.ID] = n.Distance
	}

	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("semantic search: load products: %w", err)
	}

	out := make([]ScoredCandidate, 0, len(products))
	for _, p := range products {
		if p.Status != storage.ProductStatusActive {
			continue
		}
		out = append(out, ScoredCandidate{
			Product:    p,
			Score:      roundScore(math.Max(0, 1-distance[p.ID])),
			Provenance: ProvenanceSemantic,
		})
	}
	sortByScore(out)

	s.logger.Debug().
		Int("neighbours", len(neighbours)).
		Int("results", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Semantic search complete")
	return out, nil
}

// embed returns the query vector, or nil when the provider gives nothing.
func (s *SemanticSearcher) embed(ctx context.Context, query string) []float32 {
	if s.embedder == nil {
		return nil
	}
	vector, err := s.embedder.EmbedSingle(ctx, query)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Query embedding failed, skipping semantic search")
		return nil
	}
	return vector
}
