package storage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_EmbeddingText(t *testing.T) {
	p := &Product{
		Name:           "Acme Ultrabook 14",
		Description:    "Thin and light",
		Brand:          &Brand{Name: "Acme"},
		Category:       &Category{Name: "Laptops"},
		Specifications: Specs{"ram_gb": "16", "cpu": "Core i7"},
	}
	assert.Equal(t, "Acme Ultrabook 14. by Acme. in Laptops. Thin and light. cpu: Core i7, ram_gb: 16", p.EmbeddingText())

	bare := &Product{Name: "Widget"}
	assert.Equal(t, "Widget", bare.EmbeddingText())
}

func TestProduct_FormattedPrice(t *testing.T) {
	price := decimal.RequireFromString("1299.499")
	p := &Product{Price: &price, Currency: CurrencyEUR}
	assert.Equal(t, "EUR 1299.5", p.FormattedPrice())

	v, ok := p.PriceFloat()
	assert.True(t, ok)
	assert.InDelta(t, 1299.499, v, 1e-9)

	assert.Empty(t, (&Product{}).FormattedPrice())
}

func TestSpecs_ScanStringifiesValues(t *testing.T) {
	var s Specs
	require.NoError(t, s.Scan([]byte(`{"ram_gb": 16, "gpu": "RTX 4070", "touch": true, "weight": 1.25}`)))
	assert.Equal(t, Specs{"ram_gb": "16", "gpu": "RTX 4070", "touch": "true", "weight": "1.25"}, s)

	require.NoError(t, s.Scan(nil))
	assert.Empty(t, s)

	assert.Error(t, s.Scan(42))
}

func TestSpecs_Join(t *testing.T) {
	s := Specs{"b": "2", "a": "1", "c": "3"}
	assert.Equal(t, "a: 1, b: 2", s.Join(2))
	assert.Equal(t, "a: 1, b: 2, c: 3", s.Join(0))
}

func TestConversation_DisplayTitle(t *testing.T) {
	assert.Equal(t, "Deals", (&Conversation{Title: "Deals"}).DisplayTitle())
	assert.Equal(t, "New Conversation", (&Conversation{}).DisplayTitle())

	long := "I am looking for a lightweight laptop with a long battery life for travel"
	c := &Conversation{Messages: []*Message{
		{Role: RoleAssistant, Content: "Welcome"},
		{Role: RoleUser, Content: long},
	}}
	title := c.DisplayTitle()
	assert.Len(t, []rune(title), 50)
	assert.True(t, len(title) > 3 && title[len(title)-3:] == "...")
}

func TestProduct_ValidateEmbeddingDimension(t *testing.T) {
	p := &Product{Name: "x", Currency: CurrencyUSD, Status: ProductStatusActive, Embedding: []float32{1, 2, 3}}
	assert.Error(t, p.Validate())

	p.Embedding = make([]float32, EmbeddingDimension)
	assert.NoError(t, p.Validate())
}
