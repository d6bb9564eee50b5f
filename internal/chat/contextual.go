package chat

import (
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

var contextualNormalizer = retrieval.NewSpecNormalizer()

// FilterProducts keeps the products matching f, in their original order.
// It never adds products, so a follow-up only answers from what was shown.
func FilterProducts(products []*storage.Product, f retrieval.Filters) []*storage.Product {
	out := make([]*storage.Product, 0, len(products))
	for _, p := range products {
		if MatchesFilters(p, f) {
			out = append(out, p)
		}
	}
	return out
}

// MatchesFilters applies the price, stock, category and brand parts of f to
// one product. A product without a price passes price bounds; in_stock only
// constrains when true. Specification and text filters are not applied.
func MatchesFilters(p *storage.Product, f retrieval.Filters) bool {
	if price, ok := p.PriceFloat(); ok {
		if f.MinPrice != nil && price < *f.MinPrice {
			return false
		}
		if f.MaxPrice != nil && price > *f.MaxPrice {
			return false
		}
	}

	if f.InStock != nil && *f.InStock && !p.InStock {
		return false
	}

	if token := strings.TrimSpace(f.Category); token != "" {
		if p.Category == nil {
			return false
		}
		canonical := contextualNormalizer.NormalizeCategory(token)
		if !taxonomyMatches(p.Category.Slug, p.Category.Name, token) &&
			!taxonomyMatches(p.Category.Slug, p.Category.Name, canonical) {
			return false
		}
	}

	if token := strings.TrimSpace(f.Brand); token != "" {
		if p.Brand == nil || !taxonomyMatches(p.Brand.Slug, p.Brand.Name, token) {
			return false
		}
	}

	return true
}

func taxonomyMatches(slug, name, token string) bool {
	return slug == token || strings.EqualFold(name, token)
}
