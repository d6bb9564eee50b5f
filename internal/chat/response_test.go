package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/llm"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

func manyProducts(n int) []*storage.Product {
	out := make([]*storage.Product, n)
	for i := range out {
		out[i] = priced(fmt.Sprintf("Product %02d", i+1), "100", true)
	}
	return out
}

func TestResponseBuilder_Listing(t *testing.T) {
	b := NewResponseBuilder(nil, 3, nil)
	products := manyProducts(5)
	products[0].Brand = &storage.Brand{Name: "Acme"}
	products[0].Specifications = storage.Specs{"ram_gb": "16", "cpu": "i7", "gpu": "RTX", "os": "Linux"}
	products[1].Price = nil

	resp, err := b.Build(context.Background(), "laptops", &Result{Strategy: QueryTypeListing, Products: products})
	require.NoError(t, err)

	assert.Equal(t, QueryTypeListing, resp.Type)
	assert.Equal(t, ProductIDs(products[:3]), resp.ProductIDs)
	assert.Contains(t, resp.Content, "Found **5** products")
	assert.Contains(t, resp.Content, "### 1. Product 01\n- **Brand:** Acme\n- **Category:** N/A\n- **Price:** USD 100")
	assert.Contains(t, resp.Content, "- **Specs:** cpu: i7, gpu: RTX, os: Linux\n")
	assert.Contains(t, resp.Content, "- **Price:** Contact for price")
	assert.Contains(t, resp.Content, "*...and 2 more products*")
	assert.NotContains(t, resp.Content, "Product 04")
}

func TestResponseBuilder_EmptyListing(t *testing.T) {
	b := NewResponseBuilder(nil, 0, nil)
	resp, err := b.Build(context.Background(), "unicorns", &Result{Strategy: QueryTypeListing})
	require.NoError(t, err)
	assert.Equal(t, noProductsText, resp.Content)
	assert.NotNil(t, resp.ProductIDs)
	assert.Empty(t, resp.ProductIDs)
}

func TestResponseBuilder_Count(t *testing.T) {
	b := NewResponseBuilder(nil, 0, nil)

	brands := make([]storage.NamedCount, 11)
	for i := range brands {
		brands[i] = storage.NamedCount{Name: fmt.Sprintf("Brand %d", i), Count: 1}
	}

	resp, err := b.Build(context.Background(), "how many", &Result{
		Strategy: QueryTypeCount,
		Counts: &storage.ProductCounts{
			Total:      11,
			ByCategory: []storage.NamedCount{{Name: "Laptops", Count: 11}},
			ByBrand:    brands,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, QueryTypeCount, resp.Type)
	assert.Contains(t, resp.Content, "**Total: 11 products**")
	assert.Contains(t, resp.Content, "### By Category:\n- Laptops: 11\n")
	assert.NotContains(t, resp.Content, "By Brand")
	assert.Empty(t, resp.ProductIDs)
}

func TestResponseBuilder_Comparison(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"| A | B |"}}
	b := NewResponseBuilder(gen, 20, nil)
	products := manyProducts(7)

	resp, err := b.Build(context.Background(), "compare them", &Result{Strategy: QueryTypeComparison, Products: products})
	require.NoError(t, err)

	assert.Equal(t, "| A | B |", resp.Content)
	assert.Equal(t, ProductIDs(products[:5]), resp.ProductIDs)
	require.Len(t, gen.calls, 1)
	assert.Equal(t, 0.7, gen.opts[0].Temperature)
	prompt := gen.calls[0][2].Content
	assert.Contains(t, prompt, "Compare these products based on the user's query: 'compare them'")
	assert.Contains(t, prompt, "Name: Product 05")
	assert.NotContains(t, prompt, "Product 06")
}

func TestResponseBuilder_Contextual(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		gen := &scriptedGenerator{replies: []string{"The cheapest is Product 01."}}
		b := NewResponseBuilder(gen, 20, nil)
		products := manyProducts(2)

		resp, err := b.Build(context.Background(), "which is cheapest", &Result{Strategy: QueryTypeContextual, Products: products})
		require.NoError(t, err)
		assert.Equal(t, "The cheapest is Product 01.", resp.Content)
		assert.Equal(t, ProductIDs(products), resp.ProductIDs)
		assert.Equal(t, 0.5, gen.opts[0].Temperature)
	})

	t.Run("nothing matched", func(t *testing.T) {
		gen := &scriptedGenerator{}
		b := NewResponseBuilder(gen, 20, nil)
		resp, err := b.Build(context.Background(), "under 5", &Result{Strategy: QueryTypeContextual, Products: []*storage.Product{}})
		require.NoError(t, err)
		assert.Equal(t, noContextualMatchText, resp.Content)
		assert.Empty(t, gen.calls)
	})

	t.Run("without a generator lists the products", func(t *testing.T) {
		b := NewResponseBuilder(nil, 20, nil)
		resp, err := b.Build(context.Background(), "which is cheapest", &Result{Strategy: QueryTypeContextual, Products: manyProducts(2)})
		require.NoError(t, err)
		assert.Equal(t, "- Product 01 (USD 100)\n- Product 02 (USD 100)", resp.Content)
	})
}

func TestResponseBuilder_Conversational(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"Hi! Ask me about laptops."}}
	b := NewResponseBuilder(gen, 20, nil)

	resp, err := b.Build(context.Background(), "hello", &Result{Strategy: QueryTypeConversational})
	require.NoError(t, err)
	assert.Equal(t, "Hi! Ask me about laptops.", resp.Content)
	assert.Empty(t, resp.ProductIDs)
	assert.Equal(t, 0.8, gen.opts[0].Temperature)
	assert.Equal(t, "hello", gen.calls[0][2].Content)

	resp, err = NewResponseBuilder(nil, 0, nil).Build(context.Background(), "hello", &Result{Strategy: QueryTypeConversational})
	require.NoError(t, err)
	assert.Equal(t, greetingText, resp.Content)
}

func TestResponseBuilder_GenerationErrorsPropagate(t *testing.T) {
	providerErr := llm.NewError(llm.ErrorTypeUnavailable, "ollama", "connection refused", nil)
	b := NewResponseBuilder(&scriptedGenerator{err: providerErr}, 20, nil)

	_, err := b.Build(context.Background(), "compare", &Result{Strategy: QueryTypeComparison, Products: manyProducts(2)})
	assert.ErrorIs(t, err, providerErr)

	_, err = b.Build(context.Background(), "hello", &Result{Strategy: QueryTypeConversational})
	assert.ErrorIs(t, err, providerErr)
}
