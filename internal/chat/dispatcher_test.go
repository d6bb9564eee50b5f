package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

type retrieveCall struct {
	query   string
	filters retrieval.Filters
	limit   int
}

type fakeRetriever struct {
	results []retrieval.ScoredCandidate
	err     error
	calls   []retrieveCall
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, filters retrieval.Filters, limit int) ([]retrieval.ScoredCandidate, error) {
	f.calls = append(f.calls, retrieveCall{query, filters, limit})
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeCounter struct {
	counts *storage.ProductCounts
	err    error
	calls  []retrieval.Filters
}

func (f *fakeCounter) Count(ctx context.Context, filters retrieval.Filters) (*storage.ProductCounts, error) {
	f.calls = append(f.calls, filters)
	if f.err != nil {
		return nil, f.err
	}
	return f.counts, nil
}

func priced(name, price string, inStock bool) *storage.Product {
	p := &storage.Product{ID: uuid.New(), Name: name, InStock: inStock, Status: storage.ProductStatusActive}
	if price != "" {
		d := decimal.RequireFromString(price)
		p.Price = &d
	}
	return p
}

func candidates(products ...*storage.Product) []retrieval.ScoredCandidate {
	out := make([]retrieval.ScoredCandidate, len(products))
	for i, p := range products {
		out[i] = retrieval.ScoredCandidate{Product: p, Score: 1, Provenance: retrieval.ProvenanceStructured}
	}
	return out
}

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }

func TestDispatcher_HandlesEveryQueryType(t *testing.T) {
	retriever := &fakeRetriever{}
	counter := &fakeCounter{counts: &storage.ProductCounts{}}
	d := NewDispatcher(retriever, counter, 10, nil)

	for _, qt := range QueryTypes {
		t.Run(string(qt), func(t *testing.T) {
			result, err := d.Dispatch(context.Background(), Classification{Type: qt}, State{})
			require.NoError(t, err)
			assert.NotNil(t, result)
			assert.NotNil(t, result.Products)
		})
	}

	_, err := d.Dispatch(context.Background(), Classification{Type: "recommendation"}, State{})
	assert.Error(t, err)
}

func TestDispatcher_ListingAndComparisonRetrieve(t *testing.T) {
	a, b := priced("A", "10", true), priced("B", "20", true)
	filters := retrieval.Filters{Category: "laptops", MaxPrice: fptr(1500)}

	for _, qt := range []QueryType{QueryTypeListing, QueryTypeComparison} {
		t.Run(string(qt), func(t *testing.T) {
			retriever := &fakeRetriever{results: candidates(a, b)}
			d := NewDispatcher(retriever, &fakeCounter{}, 25, nil)

			result, err := d.Dispatch(context.Background(), Classification{Type: qt, Filters: filters, SearchQuery: "gaming"}, State{})
			require.NoError(t, err)
			assert.Equal(t, qt, result.Strategy)
			assert.Equal(t, []*storage.Product{a, b}, result.Products)
			assert.Len(t, result.Candidates, 2)
			require.Len(t, retriever.calls, 1)
			assert.Equal(t, retrieveCall{"gaming", filters, 25}, retriever.calls[0])
		})
	}
}

func TestDispatcher_CountReturnsNoProducts(t *testing.T) {
	counts := &storage.ProductCounts{Total: 7}
	retriever := &fakeRetriever{}
	counter := &fakeCounter{counts: counts}
	d := NewDispatcher(retriever, counter, 10, nil)

	filters := retrieval.Filters{Brand: "acme"}
	result, err := d.Dispatch(context.Background(), Classification{Type: QueryTypeCount, Filters: filters}, State{})
	require.NoError(t, err)
	assert.Equal(t, QueryTypeCount, result.Strategy)
	assert.Empty(t, result.Products)
	assert.Same(t, counts, result.Counts)
	assert.Equal(t, []retrieval.Filters{filters}, counter.calls)
	assert.Empty(t, retriever.calls)
}

func TestDispatcher_ConversationalDoesNotRetrieve(t *testing.T) {
	retriever := &fakeRetriever{}
	counter := &fakeCounter{}
	d := NewDispatcher(retriever, counter, 10, nil)

	result, err := d.Dispatch(context.Background(), Classification{Type: QueryTypeConversational}, State{})
	require.NoError(t, err)
	assert.Empty(t, result.Products)
	assert.Empty(t, retriever.calls)
	assert.Empty(t, counter.calls)
}

func TestDispatcher_Contextual(t *testing.T) {
	cheap, mid, pricey := priced("cheap", "400", true), priced("mid", "900", false), priced("pricey", "2000", true)
	state := State{PreviousProducts: []*storage.Product{cheap, mid, pricey}}

	t.Run("filters the previous set without retrieving", func(t *testing.T) {
		retriever := &fakeRetriever{results: candidates(priced("other", "1", true))}
		d := NewDispatcher(retriever, &fakeCounter{}, 10, nil)

		result, err := d.Dispatch(context.Background(), Classification{
			Type:    QueryTypeContextual,
			Filters: retrieval.Filters{MaxPrice: fptr(1000)},
		}, state)
		require.NoError(t, err)
		assert.Equal(t, QueryTypeContextual, result.Strategy)
		assert.Equal(t, []*storage.Product{cheap, mid}, result.Products)
		assert.Empty(t, retriever.calls)
	})

	t.Run("no filters keeps the whole set", func(t *testing.T) {
		d := NewDispatcher(&fakeRetriever{}, &fakeCounter{}, 10, nil)
		result, err := d.Dispatch(context.Background(), Classification{Type: QueryTypeContextual}, state)
		require.NoError(t, err)
		assert.Equal(t, state.PreviousProducts, result.Products)
	})

	t.Run("nothing shown yet runs a listing", func(t *testing.T) {
		other := priced("other", "1", true)
		retriever := &fakeRetriever{results: candidates(other)}
		d := NewDispatcher(retriever, &fakeCounter{}, 10, nil)

		result, err := d.Dispatch(context.Background(), Classification{Type: QueryTypeContextual, SearchQuery: "cheap"}, State{})
		require.NoError(t, err)
		assert.Equal(t, QueryTypeListing, result.Strategy)
		assert.Equal(t, []*storage.Product{other}, result.Products)
		require.Len(t, retriever.calls, 1)
		assert.Equal(t, "cheap", retriever.calls[0].query)
	})
}

func TestDispatcher_PropagatesErrors(t *testing.T) {
	boom := errors.New("store down")

	d := NewDispatcher(&fakeRetriever{err: boom}, &fakeCounter{err: boom}, 10, nil)
	for _, qt := range []QueryType{QueryTypeListing, QueryTypeComparison, QueryTypeCount} {
		_, err := d.Dispatch(context.Background(), Classification{Type: qt}, State{})
		assert.ErrorIs(t, err, boom, string(qt))
	}
}
