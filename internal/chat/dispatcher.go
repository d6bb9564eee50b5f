package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// Retriever is the retrieval merge engine.
type Retriever interface {
	Retrieve(ctx context.Context, query string, f retrieval.Filters, limit int) ([]retrieval.ScoredCandidate, error)
}

// Counter aggregates catalog counts for a filter set.
type Counter interface {
	Count(ctx context.Context, f retrieval.Filters) (*storage.ProductCounts, error)
}

// Result is the outcome of one dispatched turn.
type Result struct {
	// Strategy is the strategy that ran. A contextual query with nothing to
	// refer to runs as a listing.
	Strategy   QueryType                   `json:"strategy"`
	Candidates []retrieval.ScoredCandidate `json:"candidates,omitempty"`
	Products   []*storage.Product          `json:"products"`
	Counts     *storage.ProductCounts      `json:"counts,omitempty"`
}

type strategyFunc func(ctx context.Context, c Classification, state State) (*Result, error)

// Dispatcher runs the strategy of a classified query.
type Dispatcher struct {
	retriever  Retriever
	counter    Counter
	limit      int
	strategies map[QueryType]strategyFunc
	logger     *observability.Logger
}

// NewDispatcher creates a dispatcher. limit bounds listing retrieval; zero
// lets the retriever apply its default.
func NewDispatcher(retriever Retriever, counter Counter, limit int, logger *observability.Logger) *Dispatcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	d := &Dispatcher{
		retriever: retriever,
		counter:   counter,
		limit:     limit,
		logger:    logger.WithComponent("strategy_dispatcher"),
	}
	d.strategies = map[QueryType]strategyFunc{
		QueryTypeListing:        d.listing,
		QueryTypeCount:          d.count,
		QueryTypeComparison:     d.comparison,
		QueryTypeContextual:     d.contextual,
		QueryTypeConversational: d.conversational,
	}
	return d
}

// Dispatch executes one strategy. Retrieval and store errors are returned
// unchanged in meaning; the caller renders the failure.
func (d *Dispatcher) Dispatch(ctx context.Context, c Classification, state State) (*Result, error) {
	start := time.Now()

	strategy, ok := d.strategies[c.Type]
	if !ok {
		return nil, fmt.Errorf("no strategy for query type %q", c.Type)
	}

	result, err := strategy(ctx, c, state)
	if err != nil {
		d.logger.Error().Err(err).Str("query_type", string(c.Type)).Msg("Strategy failed")
		return nil, err
	}

	d.logger.Info().
		Str("query_type", string(c.Type)).
		Str("strategy", string(result.Strategy)).
		Int("products", len(result.Products)).
		Dur("duration", time.Since(start)).
		Msg("Strategy executed")
	return result, nil
}

func (d *Dispatcher) listing(ctx context.Context, c Classification, _ State) (*Result, error) {
	return d.retrieve(ctx, QueryTypeListing, c)
}

// comparison retrieves like a listing; only the response differs.
func (d *Dispatcher) comparison(ctx context.Context, c Classification, _ State) (*Result, error) {
	return d.retrieve(ctx, QueryTypeComparison, c)
}

func (d *Dispatcher) retrieve(ctx context.Context, strategy QueryType, c Classification) (*Result, error) {
	candidates, err := d.retriever.Retrieve(ctx, c.SearchQuery, c.Filters, d.limit)
	if err != nil {
		return nil, fmt.Errorf("%s retrieval: %w", strategy, err)
	}
	return &Result{
		Strategy:   strategy,
		Candidates: candidates,
		Products:   retrieval.Products(candidates),
	}, nil
}

func (d *Dispatcher) count(ctx context.Context, c Classification, _ State) (*Result, error) {
	counts, err := d.counter.Count(ctx, c.Filters)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	return &Result{Strategy: QueryTypeCount, Products: []*storage.Product{}, Counts: counts}, nil
}

// contextual narrows the previous result set instead of searching again.
func (d *Dispatcher) contextual(ctx context.Context, c Classification, state State) (*Result, error) {
	if !state.HasPrevious() {
		d.logger.Debug().Msg("Nothing shown yet, treating contextual query as a listing")
		return d.retrieve(ctx, QueryTypeListing, c)
	}
	return &Result{
		Strategy: QueryTypeContextual,
		Products: FilterProducts(state.PreviousProducts, c.Filters),
	}, nil
}

func (d *Dispatcher) conversational(context.Context, Classification, State) (*Result, error) {
	return &Result{Strategy: QueryTypeConversational, Products: []*storage.Product{}}, nil
}
