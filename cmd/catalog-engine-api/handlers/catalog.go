package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/chat"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/catalog-engine/pkg/engine"
)

// ContextBuilder produces catalog statistics for a query.
type ContextBuilder interface {
	Build(ctx context.Context, query string, f retrieval.Filters) (*chat.CatalogContext, error)
}

// CategoryLister lists categories.
type CategoryLister interface {
	List(ctx context.Context) ([]*storage.Category, error)
}

// BrandLister lists brands.
type BrandLister interface {
	List(ctx context.Context) ([]*storage.Brand, error)
}

// CatalogHandler serves catalog statistics and taxonomy listings.
type CatalogHandler struct {
	logger     *observability.Logger
	context    ContextBuilder
	categories CategoryLister
	brands     BrandLister
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(logger *observability.Logger, context ContextBuilder, categories CategoryLister, brands BrandLister) *CatalogHandler {
	return &CatalogHandler{logger: logger, context: context, categories: categories, brands: brands}
}

// Stats handles GET /api/v1/stats.
func (h *CatalogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filters, err := filtersFromQuery(r.URL.Query())
	if err != nil {
		badRequest(w, err)
		return
	}

	cc, err := h.context.Build(ctx, r.URL.Query().Get("q"), filters)
	if err != nil {
		writeServiceError(ctx, w, h.logger, "stats failed", err)
		return
	}

	s := cc.Statistics
	resp := engine.StatsResponse{
		Total:         s.Total,
		InStock:       s.InStock,
		Cheapest:      toOptionalProduct(s.Cheapest),
		MostExpensive: toOptionalProduct(s.MostExpensive),
		ByCategory:    toNamedCounts(s.ByCategory),
		ByBrand:       toNamedCounts(s.ByBrand),
		Products:      toProducts(cc.Products),
		Markdown:      cc.Markdown,
	}
	if s.MinPrice != nil {
		resp.MinPrice = s.MinPrice.String()
	}
	if s.MaxPrice != nil {
		resp.MaxPrice = s.MaxPrice.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func filtersFromQuery(q url.Values) (retrieval.Filters, error) {
	f := retrieval.Filters{
		Category: q.Get("category"),
		Brand:    q.Get("brand"),
	}
	for _, bound := range []struct {
		key string
		dst **float64
	}{{"min_price", &f.MinPrice}, {"max_price", &f.MaxPrice}} {
		raw := q.Get(bound.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return f, fmt.Errorf("%s must be a non-negative number", bound.key)
		}
		*bound.dst = &v
	}
	if raw := q.Get("in_stock"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("in_stock must be true or false")
		}
		f.InStock = &v
	}
	return f, nil
}

// Categories handles GET /api/v1/categories.
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "list categories failed", err)
		return
	}
	out := make([]engine.Taxonomy, len(categories))
	for i, c := range categories {
		out[i] = engine.Taxonomy{ID: c.ID.String(), Name: c.Name, Slug: c.Slug, Description: c.Description}
	}
	writeJSON(w, http.StatusOK, out)
}

// Brands handles GET /api/v1/brands.
func (h *CatalogHandler) Brands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.brands.List(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "list brands failed", err)
		return
	}
	out := make([]engine.Taxonomy, len(brands))
	for i, b := range brands {
		out[i] = engine.Taxonomy{ID: b.ID.String(), Name: b.Name, Slug: b.Slug, Description: b.Description}
	}
	writeJSON(w, http.StatusOK, out)
}
