package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// DefaultStructuredLimit caps a structured search without an explicit limit.
const DefaultStructuredLimit = 100

// ProductStore is the catalog query surface used by retrieval.
type ProductStore interface {
	Search(ctx context.Context, f storage.ProductFilter, limit int) ([]*storage.Product, error)
	Count(ctx context.Context, f storage.ProductFilter) (*storage.ProductCounts, error)
	Stats(ctx context.Context, f storage.ProductFilter, top int) (*storage.CatalogStats, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*storage.Product, error)
}

// CategoryFinder resolves a category token.
type CategoryFinder interface {
	FindBySlugOrName(ctx context.Context, token string) (*storage.Category, error)
}

// BrandFinder resolves a brand token.
type BrandFinder interface {
	FindBySlugOrName(ctx context.Context, token string) (*storage.Brand, error)
}

// StructuredSearcher runs exact filter queries against the relational store.
type StructuredSearcher struct {
	products   ProductStore
	categories CategoryFinder
	brands     BrandFinder
	normalizer *SpecNormalizer
	logger     *observability.Logger
}

// NewStructuredSearcher creates a structured searcher.
func NewStructuredSearcher(products ProductStore, categories CategoryFinder, brands BrandFinder, logger *observability.Logger) *StructuredSearcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &StructuredSearcher{
		products:   products,
		categories: categories,
		brands:     brands,
		normalizer: NewSpecNormalizer(),
		logger:     logger.WithComponent("structured_search"),
	}
}

// Search returns active products matching every present filter, each scored 1.0.
// An unknown category or brand yields no results.
func (s *StructuredSearcher) Search(ctx context.Context, f Filters, limit int) ([]ScoredCandidate, error) {
	start := time.Now()
	if limit <= 0 {
		limit = DefaultStructuredLimit
	}

	pf, ok, err := s.resolve(ctx, f)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []ScoredCandidate{}, nil
	}

	products, err := s.products.Search(ctx, pf, limit)
	if err != nil {
		return nil, fmt.Errorf("structured search: %w", err)
	}

	out := make([]ScoredCandidate, len(products))
	for i, p := range products {
		out[i] = ScoredCandidate{Product: p, Score: 1.0, Provenance: ProvenanceStructured}
	}

	s.logger.Debug().
		Int("results", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Structured search complete")
	return out, nil
}

// Count aggregates the products matching the filters. An unknown category
// or brand yields zero counts.
func (s *StructuredSearcher) Count(ctx context.Context, f Filters) (*storage.ProductCounts, error) {
	pf, ok, err := s.resolve(ctx, f)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &storage.ProductCounts{ByCategory: []storage.NamedCount{}, ByBrand: []storage.NamedCount{}}, nil
	}

	counts, err := s.products.Count(ctx, pf)
	if err != nil {
		return nil, fmt.Errorf("structured count: %w", err)
	}
	return counts, nil
}

// Stats summarises the products matching the filters. An unknown category
// or brand yields empty statistics.
func (s *StructuredSearcher) Stats(ctx context.Context, f Filters, top int) (*storage.CatalogStats, error) {
	pf, ok, err := s.resolve(ctx, f)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &storage.CatalogStats{ByCategory: []storage.NamedCount{}, ByBrand: []storage.NamedCount{}}, nil
	}

	stats, err := s.products.Stats(ctx, pf, top)
	if err != nil {
		return nil, fmt.Errorf("catalog stats: %w", err)
	}
	return stats, nil
}

// resolve turns user filters into a store filter. ok is false when a
// category or brand token matches nothing.
func (s *StructuredSearcher) resolve(ctx context.Context, f Filters) (storage.ProductFilter, bool, error) {
	pf := storage.ProductFilter{
		MinPrice: f.MinPrice,
		MaxPrice: f.MaxPrice,
		InStock:  f.InStock,
		Text:     strings.TrimSpace(f.Query),
	}

	if token := strings.TrimSpace(f.Category); token != "" {
		cat, err := s.categories.FindBySlugOrName(ctx, s.normalizer.NormalizeCategory(token))
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug().Str("category", token).Msg("Unknown category, no results")
			return pf, false, nil
		}
		if err != nil {
			return pf, false, fmt.Errorf("resolve category: %w", err)
		}
		pf.CategoryID = &cat.ID
	}

	if token := strings.TrimSpace(f.Brand); token != "" {
		brand, err := s.brands.FindBySlugOrName(ctx, token)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug().Str("brand", token).Msg("Unknown brand, no results")
			return pf, false, nil
		}
		if err != nil {
			return pf, false, fmt.Errorf("resolve brand: %w", err)
		}
		pf.BrandID = &brand.ID
	}

	for _, key := range sortedKeys(f.Specifications) {
		values := s.normalizer.ValueVariations(f.Specifications[key])
		if len(values) == 0 {
			continue
		}
		pf.Specs = append(pf.Specs, storage.SpecCondition{
			Keys:   s.normalizer.KeyVariations(key),
			Values: values,
		})
	}

	return pf, true, nil
}
