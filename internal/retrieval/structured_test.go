package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage/storagetest"
)

func newStructuredSearcher(t *testing.T) (*StructuredSearcher, *storagetest.Catalog) {
	t.Helper()
	catalog := storagetest.NewCatalog(t)
	repos := catalog.Repos
	return NewStructuredSearcher(repos.Products, repos.Categories, repos.Brands, nil), catalog
}

func TestStructuredSearcher_Search(t *testing.T) {
	searcher, _ := newStructuredSearcher(t)

	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{"category slug", Filters{Category: "laptops"},
			[]string{"Acme Budget Book", "Acme Ultrabook 14", "Zenith Workstation 16"}},
		{"spanish synonym", Filters{Category: "computadores"},
			[]string{"Acme Budget Book", "Acme Ultrabook 14", "Zenith Workstation 16"}},
		{"category name", Filters{Category: "mobile accessories"}, []string{"Acme Fast Charger"}},
		{"brand is case insensitive", Filters{Brand: "ZENITH"}, []string{"Zenith Slate", "Zenith Workstation 16"}},
		{"price ceiling", Filters{Category: "laptops", MaxPrice: ptr(1500.0)},
			[]string{"Acme Budget Book", "Acme Ultrabook 14"}},
		{"price range", Filters{MinPrice: ptr(400.0), MaxPrice: ptr(1000.0)},
			[]string{"Acme Budget Book", "Acme Ultrabook 14"}},
		{"out of stock", Filters{InStock: ptr(false)}, []string{"Acme Budget Book"}},
		{"text", Filters{Query: "slate"}, []string{"Zenith Slate"}},
		{"spec with unit", Filters{Specifications: map[string]string{"memory": "32GB"}},
			[]string{"Zenith Workstation 16"}},
		{"spec alias", Filters{Specifications: map[string]string{"graphics_card": "rtx"}},
			[]string{"Zenith Workstation 16"}},
		{"specs are and-ed", Filters{Specifications: map[string]string{"ram": "16", "processor": "ryzen"}},
			[]string{}},
		{"unknown category", Filters{Category: "smartwatches"}, []string{}},
		{"unknown brand", Filters{Brand: "globex"}, []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := searcher.Search(context.Background(), tc.filters, 10)
			require.NoError(t, err)
			assert.Equal(t, tc.want, candidateNames(out))
			for _, c := range out {
				assert.Equal(t, 1.0, c.Score)
				assert.Equal(t, ProvenanceStructured, c.Provenance)
			}
		})
	}
}

func TestStructuredSearcher_ExcludesInactive(t *testing.T) {
	searcher, _ := newStructuredSearcher(t)

	out, err := searcher.Search(context.Background(), Filters{Query: "retired"}, 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStructuredSearcher_Limit(t *testing.T) {
	searcher, _ := newStructuredSearcher(t)

	out, err := searcher.Search(context.Background(), Filters{Brand: "acme"}, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestStructuredSearcher_Count(t *testing.T) {
	searcher, _ := newStructuredSearcher(t)
	ctx := context.Background()

	counts, err := searcher.Count(ctx, Filters{Category: "laptops"})
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 2, counts.InStock)
	assert.Equal(t, 3, counts.WithPrice)
	require.Len(t, counts.ByBrand, 2)
	assert.Equal(t, "Acme", counts.ByBrand[0].Name)
	assert.Equal(t, 2, counts.ByBrand[0].Count)

	counts, err = searcher.Count(ctx, Filters{Category: "smartwatches"})
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
	assert.Empty(t, counts.ByCategory)
}

func TestStructuredSearcher_Stats(t *testing.T) {
	searcher, catalog := newStructuredSearcher(t)

	stats, err := searcher.Stats(context.Background(), Filters{}, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	require.NotNil(t, stats.Cheapest)
	assert.Equal(t, catalog.Products["slate"].ID, stats.Cheapest.ID)
	require.NotNil(t, stats.MostExpensive)
	assert.Equal(t, catalog.Products["workstation"].ID, stats.MostExpensive.ID)
	assert.Equal(t, "399", stats.MinPrice.String())
}
