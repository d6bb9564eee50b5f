package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpecNormalizer_NormalizeCategory(t *testing.T) {
	normalizer := NewSpecNormalizer()

	tests := []struct {
		input    string
		expected string
	}{
		{"computadores", "laptops"},
		{"Portátiles", "laptops"},
		{"  NOTEBOOK ", "laptops"},
		{"laptop", "laptops"},
		{"tabletas", "tablets"},
		{"Accesorios Móviles", "mobile-accessories"},
		{"mobile accessories", "mobile-accessories"},
		// unknown tokens pass through for slug/name lookup
		{"Smartwatches", "Smartwatches"},
		{"laptops", "laptops"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, normalizer.NormalizeCategory(tc.input))
		})
	}
}

func TestSpecNormalizer_KeyVariations(t *testing.T) {
	normalizer := NewSpecNormalizer()

	tests := []struct {
		input    string
		expected []string
	}{
		{"graphics_card", []string{"graphics_card", "GRAPHICS_CARD", "gpu"}},
		{"Memory", []string{"Memory", "memory", "MEMORY", "ram_gb", "RAM"}},
		{"ram", []string{"ram", "RAM", "ram_gb"}},
		{"storage", []string{"storage", "STORAGE", "storage_gb"}},
		{"processor", []string{"processor", "PROCESSOR", "cpu"}},
		{"operating_system", []string{"operating_system", "OPERATING_SYSTEM", "os"}},
		{"screen_size", []string{"screen_size", "SCREEN_SIZE"}},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, normalizer.KeyVariations(tc.input))
		})
	}
}

func TestSpecNormalizer_ValueVariations(t *testing.T) {
	normalizer := NewSpecNormalizer()

	assert.Equal(t, []string{"32GB", "32"}, normalizer.ValueVariations("32GB"))
	assert.Equal(t, []string{"15.6 inch", "15.6"}, normalizer.ValueVariations("15.6 inch"))
	assert.Equal(t, []string{"RTX"}, normalizer.ValueVariations("RTX"))
	assert.Equal(t, []string{"16"}, normalizer.ValueVariations("16"))
	assert.Empty(t, normalizer.ValueVariations("  "))
}

func TestFilters_IsEmpty(t *testing.T) {
	price := 500.0
	inStock := false

	tests := []struct {
		name    string
		filters Filters
		empty   bool
		strict  bool
	}{
		{"zero value", Filters{}, true, false},
		{"blank strings", Filters{Category: " ", Brand: "", Query: "\t"}, true, false},
		{"blank spec values", Filters{Specifications: map[string]string{"ram": " "}}, true, false},
		{"category", Filters{Category: "laptops"}, false, true},
		{"brand", Filters{Brand: "acme"}, false, true},
		{"price", Filters{MinPrice: &price}, false, false},
		{"out of stock is a constraint", Filters{InStock: &inStock}, false, false},
		{"text", Filters{Query: "thin"}, false, false},
		{"spec", Filters{Specifications: map[string]string{"ram": "16"}}, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.empty, tc.filters.IsEmpty())
			assert.Equal(t, tc.strict, tc.filters.IsStrict())
		})
	}
}
