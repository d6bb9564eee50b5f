package retrieval

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// Mode is the retrieval path chosen for a query.
type Mode string

const (
	ModeNone       Mode = "none"
	ModeStructured Mode = "structured"
	ModeSemantic   Mode = "semantic"
	ModeStrict     Mode = "hybrid_strict"
	ModeFlexible   Mode = "hybrid_flexible"
)

// Score constants of the hybrid merge.
const (
	structuredOnlyScore = 0.8
	semanticOnlyPenalty = 0.9
)

// StructuredSource runs exact filter searches.
type StructuredSource interface {
	Search(ctx context.Context, f Filters, limit int) ([]ScoredCandidate, error)
}

// SemanticSource runs similarity searches.
type SemanticSource interface {
	Search(ctx context.Context, query string, limit int) ([]ScoredCandidate, error)
}

// RouterConfig holds router configuration.
type RouterConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// Router is the retrieval merge engine. It picks structured, semantic or
// hybrid retrieval per query and merges hybrid results.
type Router struct {
	structured StructuredSource
	semantic   SemanticSource
	config     RouterConfig
	logger     *observability.Logger
}

// NewRouter creates a new retrieval router.
func NewRouter(structured StructuredSource, semantic SemanticSource, cfg RouterConfig, logger *observability.Logger) *Router {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Router{
		structured: structured,
		semantic:   semantic,
		config:     cfg,
		logger:     logger.WithComponent("retrieval_router"),
	}
}

// SelectMode returns the retrieval path for a query and filters.
func SelectMode(query string, f Filters) Mode {
	hasQuery := strings.TrimSpace(query) != ""
	hasFilters := !f.IsEmpty()
	switch {
	case hasFilters && !hasQuery:
		return ModeStructured
	case hasQuery && !hasFilters:
		return ModeSemantic
	case !hasQuery && !hasFilters:
		return ModeNone
	case f.IsStrict():
		return ModeStrict
	default:
		return ModeFlexible
	}
}

// Retrieve returns at most limit candidates sorted by descending score.
//
// Filters only: structured search. Query only: semantic search. Both: each
// source is asked for 2*limit candidates concurrently and the sets are merged.
// With a category or brand filter the merge is strict (structured items only);
// otherwise it is the union with semantic-only items penalised.
func (r *Router) Retrieve(ctx context.Context, query string, f Filters, limit int) ([]ScoredCandidate, error) {
	start := time.Now()
	limit = r.clampLimit(limit)
	mode := SelectMode(query, f)

	var (
		out []ScoredCandidate
		err error
	)
	switch mode {
	case ModeStructured:
		out, err = r.structured.Search(ctx, f, limit)
	case ModeSemantic:
		out, err = r.semantic.Search(ctx, query, limit)
	case ModeStrict, ModeFlexible:
		out, err = r.hybrid(ctx, query, f, limit, mode == ModeStrict)
	default:
		// an unconstrained listing is a structured search over everything
		out, err = r.structured.Search(ctx, f, limit)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("mode", string(mode)).Msg("Retrieval failed")
		return nil, err
	}
	if len(out) > limit {
		out = out[:limit]
	}

	event := r.logger.WithContext(ctx).Info().
		Str("mode", string(mode)).
		Object("filters", f).
		Int("results", len(out)).
		Dur("duration", time.Since(start))
	if len(out) > 0 {
		event = event.Float64("top_score", out[0].Score)
	}
	event.Msg("Retrieval complete")
	return out, nil
}

func (r *Router) hybrid(ctx context.Context, query string, f Filters, limit int, strict bool) ([]ScoredCandidate, error) {
	var structured, semantic []ScoredCandidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		structured, err = r.structured.Search(gctx, f, 2*limit)
		return err
	})
	g.Go(func() error {
		var err error
		semantic, err = r.semantic.Search(gctx, query, 2*limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug().
		Bool("strict", strict).
		Int("structured", len(structured)).
		Int("semantic", len(semantic)).
		Msg("Merging hybrid candidates")

	return Merge(structured, semantic, strict, limit), nil
}

// Merge combines structured and semantic candidates.
//
// Strict keeps only structured items: (1+s)/2 when the item also has a
// positive semantic score s, else 0.8. Flexible takes the union, semantic
// order first, and scores semantic-only items s*0.9. Output is sorted by
// descending score (stable), truncated to limit, provenance hybrid.
func Merge(structured, semantic []ScoredCandidate, strict bool, limit int) []ScoredCandidate {
	semanticScore := make(map[uuid.UUID]float64, len(semantic))
	for _, c := range semantic {
		if c.Score > 0 {
			semanticScore[c.Product.ID] = c.Score
		}
	}
	inStructured := make(map[uuid.UUID]bool, len(structured))
	for _, c := range structured {
		inStructured[c.Product.ID] = true
	}

	order := structured
	if !strict {
		order = make([]ScoredCandidate, 0, len(semantic)+len(structured))
		order = append(order, semantic...)
		order = append(order, structured...)
	}

	seen := make(map[uuid.UUID]bool, len(order))
	out := make([]ScoredCandidate, 0, len(order))
	for _, c := range order {
		id := c.Product.ID
		if seen[id] {
			continue
		}
		s, hasSemantic := semanticScore[id]

		var score float64
		switch {
		case inStructured[id] && hasSemantic:
			score = (1 + s) / 2
		case inStructured[id]:
			score = structuredOnlyScore
		case hasSemantic:
			score = s * semanticOnlyPenalty
		default:
			continue
		}
		seen[id] = true
		out = append(out, ScoredCandidate{Product: c.Product, Score: roundScore(score), Provenance: ProvenanceHybrid})
	}

	sortByScore(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *Router) clampLimit(limit int) int {
	if limit <= 0 {
		return r.config.DefaultLimit
	}
	if limit > r.config.MaxLimit {
		return r.config.MaxLimit
	}
	return limit
}
