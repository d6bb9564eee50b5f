package retrieval

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilters_IsStrict(t *testing.T) {
	assert.True(t, Filters{Category: "laptops"}.IsStrict())
	assert.True(t, Filters{Brand: "acme"}.IsStrict())
	assert.False(t, Filters{Brand: "  "}.IsStrict())
	max := 1000.0
	assert.False(t, Filters{MaxPrice: &max, Query: "gaming"}.IsStrict())
}

func TestFilters_MarshalZerologObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	max, inStock := 1000.0, false
	logger.Info().Object("filters", Filters{
		Category:       "laptops",
		MaxPrice:       &max,
		InStock:        &inStock,
		Specifications: map[string]string{"ram": "16GB", "cpu": "i7"},
	}).Msg("")

	var entry struct {
		Filters map[string]interface{} `json:"filters"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, map[string]interface{}{
		"category":  "laptops",
		"max_price": 1000.0,
		"in_stock":  false,
		"spec_keys": []interface{}{"cpu", "ram"},
	}, entry.Filters)
}
