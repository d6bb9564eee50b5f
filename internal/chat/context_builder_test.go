package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

type fakeStats struct {
	stats *storage.CatalogStats
	err   error
	top   int
}

func (f *fakeStats) Stats(ctx context.Context, filters retrieval.Filters, top int) (*storage.CatalogStats, error) {
	f.top = top
	return f.stats, f.err
}

func TestContextBuilder_Build(t *testing.T) {
	cheap := priced("Budget Phone", "199", true)
	cheap.Brand = &storage.Brand{Name: "Zenith"}
	cheap.Specifications = storage.Specs{"ram": "4GB"}
	dear := priced("Pro Laptop", "2499.5", false)
	dear.Category = &storage.Category{Name: "Laptops"}

	lo, hi := decimal.RequireFromString("199"), decimal.RequireFromString("2499.5")
	stats := &fakeStats{stats: &storage.CatalogStats{
		Total: 2, InStock: 1, MinPrice: &lo, MaxPrice: &hi,
		Cheapest: cheap, MostExpensive: dear,
		ByCategory: []storage.NamedCount{{Name: "Laptops", Count: 1}, {Name: "Phones", Count: 1}},
		ByBrand:    []storage.NamedCount{{Name: "Zenith", Count: 1}},
	}}
	retriever := &fakeRetriever{results: candidates(cheap, dear)}

	cc, err := NewContextBuilder(stats, retriever).Build(context.Background(), "cheap", retrieval.Filters{})
	require.NoError(t, err)

	assert.Equal(t, 10, stats.top)
	require.Len(t, retriever.calls, 1)
	assert.Equal(t, 20, retriever.calls[0].limit)
	assert.Equal(t, []*storage.Product{cheap, dear}, cc.Products)

	for _, want := range []string{
		"- Total matching products: 2",
		"- Price range: 199.00 - 2499.50",
		"- Cheapest: Budget Phone (USD 199)",
		"### By Brand (top 1)",
		"## Relevant Products (2)",
		"1. Budget Phone | Zenith | N/A | USD 199 | ✓",
		"   → ram: 4GB",
		"2. Pro Laptop | N/A | Laptops | USD 2499.5 | ✗",
	} {
		assert.Contains(t, cc.Markdown, want)
	}
}

func TestContextBuilder_NoProducts(t *testing.T) {
	b := NewContextBuilder(&fakeStats{stats: &storage.CatalogStats{}}, &fakeRetriever{})
	cc, err := b.Build(context.Background(), "", retrieval.Filters{Category: "drones"})
	require.NoError(t, err)
	assert.Contains(t, cc.Markdown, "## No products found")
	assert.NotContains(t, cc.Markdown, "Price range")
}

func TestContextBuilder_Errors(t *testing.T) {
	boom := errors.New("db down")

	_, err := NewContextBuilder(&fakeStats{err: boom}, &fakeRetriever{}).Build(context.Background(), "", retrieval.Filters{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "catalog statistics")

	_, err = NewContextBuilder(&fakeStats{stats: &storage.CatalogStats{}}, &fakeRetriever{err: boom}).Build(context.Background(), "", retrieval.Filters{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "relevant products")
}
