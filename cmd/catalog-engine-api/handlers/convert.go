package handlers

import (
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/catalog-engine/pkg/engine"
)

func toProduct(p *storage.Product) engine.Product {
	dto := engine.Product{
		ID:             p.ID.String(),
		SKU:            p.SKU,
		Name:           p.Name,
		Description:    p.Description,
		Currency:       string(p.Currency),
		InStock:        p.InStock,
		Category:       p.CategoryName(),
		Brand:          p.BrandName(),
		Specifications: p.Specifications,
	}
	if p.Price != nil {
		dto.Price = p.Price.String()
	}
	return dto
}

func toProducts(products []*storage.Product) []engine.Product {
	out := make([]engine.Product, len(products))
	for i, p := range products {
		out[i] = toProduct(p)
	}
	return out
}

func toOptionalProduct(p *storage.Product) *engine.Product {
	if p == nil {
		return nil
	}
	dto := toProduct(p)
	return &dto
}

func toFilters(f retrieval.Filters) engine.Filters {
	return engine.Filters{
		Category:       f.Category,
		Brand:          f.Brand,
		MinPrice:       f.MinPrice,
		MaxPrice:       f.MaxPrice,
		InStock:        f.InStock,
		Query:          f.Query,
		Specifications: f.Specifications,
	}
}

func fromFilters(f engine.Filters) retrieval.Filters {
	return retrieval.Filters{
		Category:       f.Category,
		Brand:          f.Brand,
		MinPrice:       f.MinPrice,
		MaxPrice:       f.MaxPrice,
		InStock:        f.InStock,
		Query:          f.Query,
		Specifications: f.Specifications,
	}
}

func toNamedCounts(in []storage.NamedCount) []engine.NamedCount {
	out := make([]engine.NamedCount, len(in))
	for i, c := range in {
		out[i] = engine.NamedCount{Name: c.Name, Count: c.Count}
	}
	return out
}

func toCounts(c *storage.ProductCounts) *engine.Counts {
	if c == nil {
		return nil
	}
	return &engine.Counts{
		Total:      c.Total,
		ByCategory: toNamedCounts(c.ByCategory),
		ByBrand:    toNamedCounts(c.ByBrand),
		InStock:    c.InStock,
		WithPrice:  c.WithPrice,
	}
}

func toIDStrings(ids storage.IDList) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func toConversation(c *storage.Conversation) engine.Conversation {
	dto := engine.Conversation{
		ID:                  c.ID.String(),
		Title:               c.DisplayTitle(),
		LastShownProductIDs: toIDStrings(c.LastShownProductIDs),
		Messages:            make([]engine.Message, len(c.Messages)),
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
	for i, m := range c.Messages {
		dto.Messages[i] = engine.Message{
			ID:        m.ID.String(),
			Role:      string(m.Role),
			Content:   m.Content,
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
		}
	}
	return dto
}
