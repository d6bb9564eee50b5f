package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/chat"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/pkg/engine"
)

// Retriever runs the hybrid retrieval engine.
type Retriever interface {
	Retrieve(ctx context.Context, query string, f retrieval.Filters, limit int) ([]retrieval.ScoredCandidate, error)
}

// Classifier classifies a message. It never fails.
type Classifier interface {
	Classify(ctx context.Context, query string, cc chat.ClassifyContext) chat.Classification
}

// SearchHandler handles retrieval and classification requests.
type SearchHandler struct {
	logger     *observability.Logger
	retriever  Retriever
	classifier Classifier
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(logger *observability.Logger, retriever Retriever, classifier Classifier) *SearchHandler {
	return &SearchHandler{logger: logger, retriever: retriever, classifier: classifier}
}

// Search handles POST /api/v1/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req engine.SearchRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	filters := fromFilters(req.Filters)
	candidates, err := h.retriever.Retrieve(ctx, req.Query, filters, req.Limit)
	if err != nil {
		writeServiceError(ctx, w, h.logger, "search failed", err)
		return
	}

	results := make([]engine.ScoredProduct, len(candidates))
	for i, c := range candidates {
		results[i] = engine.ScoredProduct{Product: toProduct(c.Product), Score: c.Score, Source: string(c.Provenance)}
	}

	writeJSON(w, http.StatusOK, engine.SearchResponse{
		Mode:       string(retrieval.SelectMode(req.Query, filters)),
		Results:    results,
		DurationMs: time.Since(start).Milliseconds(),
	})
}

// Classify handles POST /api/v1/classify.
func (h *SearchHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req engine.ClassifyRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	c := h.classifier.Classify(r.Context(), req.Message, chat.ClassifyContext{})
	writeJSON(w, http.StatusOK, engine.ClassifyResponse{
		QueryType:   string(c.Type),
		Filters:     toFilters(c.Filters),
		SearchQuery: c.SearchQuery,
		Fallback:    c.Fallback,
	})
}
