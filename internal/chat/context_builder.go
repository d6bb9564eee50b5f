package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

const (
	contextProducts = 20
	contextSpecs    = 5
	contextGroups   = 10
)

// StatsSource computes catalog statistics for a filter set.
type StatsSource interface {
	Stats(ctx context.Context, f retrieval.Filters, top int) (*storage.CatalogStats, error)
}

// CatalogContext is a statistics overview plus the most relevant products.
type CatalogContext struct {
	Statistics *storage.CatalogStats `json:"statistics"`
	Products   []*storage.Product    `json:"products"`
	Markdown   string                `json:"markdown"`
}

// ContextBuilder assembles catalog context for a query.
type ContextBuilder struct {
	stats     StatsSource
	retriever Retriever
}

// NewContextBuilder creates a context builder.
func NewContextBuilder(stats StatsSource, retriever Retriever) *ContextBuilder {
	return &ContextBuilder{stats: stats, retriever: retriever}
}

// Build gathers statistics for f and up to 20 relevant products for query.
func (b *ContextBuilder) Build(ctx context.Context, query string, f retrieval.Filters) (*CatalogContext, error) {
	stats, err := b.stats.Stats(ctx, f, contextGroups)
	if err != nil {
		return nil, fmt.Errorf("catalog statistics: %w", err)
	}

	candidates, err := b.retriever.Retrieve(ctx, query, f, contextProducts)
	if err != nil {
		return nil, fmt.Errorf("relevant products: %w", err)
	}
	products := retrieval.Products(candidates)

	return &CatalogContext{
		Statistics: stats,
		Products:   products,
		Markdown:   FormatStatistics(stats) + formatContextProducts(products),
	}, nil
}

// FormatStatistics renders catalog statistics as a markdown overview.
func FormatStatistics(stats *storage.CatalogStats) string {
	var sb strings.Builder
	sb.WriteString("## Catalog Overview\n")
	fmt.Fprintf(&sb, "- Total matching products: %d\n", stats.Total)
	fmt.Fprintf(&sb, "- In stock: %d\n", stats.InStock)
	if stats.MinPrice != nil && stats.MaxPrice != nil {
		fmt.Fprintf(&sb, "- Price range: %s - %s\n", stats.MinPrice.StringFixed(2), stats.MaxPrice.StringFixed(2))
	}
	if p := stats.Cheapest; p != nil {
		fmt.Fprintf(&sb, "- Cheapest: %s (%s)\n", p.Name, p.FormattedPrice())
	}
	if p := stats.MostExpensive; p != nil {
		fmt.Fprintf(&sb, "- Most expensive: %s (%s)\n", p.Name, p.FormattedPrice())
	}

	if len(stats.ByCategory) > 0 {
		sb.WriteString("\n### By Category\n")
		for _, c := range stats.ByCategory {
			fmt.Fprintf(&sb, "- %s: %d\n", c.Name, c.Count)
		}
	}
	if len(stats.ByBrand) > 0 {
		fmt.Fprintf(&sb, "\n### By Brand (top %d)\n", len(stats.ByBrand))
		for _, c := range stats.ByBrand {
			fmt.Fprintf(&sb, "- %s: %d\n", c.Name, c.Count)
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatContextProducts(products []*storage.Product) string {
	if len(products) == 0 {
		return "## No products found\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Relevant Products (%d)\n", len(products))
	sb.WriteString("Format: [Name | Brand | Category | Price | Stock]\n\n")
	for i, p := range products {
		stock := "✗"
		if p.InStock {
			stock = "✓"
		}
		fmt.Fprintf(&sb, "%d. %s | %s | %s | %s | %s\n",
			i+1, p.Name, orNA(p.BrandName()), orNA(p.CategoryName()), orNA(p.FormattedPrice()), stock)
		if len(p.Specifications) > 0 {
			fmt.Fprintf(&sb, "   → %s\n", p.Specifications.Join(contextSpecs))
		}
	}
	return sb.String()
}
