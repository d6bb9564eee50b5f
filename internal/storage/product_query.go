package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SpecCondition matches when any (key, value) pair is a case-insensitive
// substring match of the stored specification.
type SpecCondition struct {
	Keys   []string
	Values []string
}

// ProductFilter is a resolved set of catalog constraints. Nil or empty fields
// do not constrain. Only active products are ever matched.
type ProductFilter struct {
	CategoryID *uuid.UUID
	BrandID    *uuid.UUID
	MinPrice   *float64
	MaxPrice   *float64
	InStock    *bool
	Text       string
	Specs      []SpecCondition
}

// whereBuilder accumulates predicates with sequential placeholders.
type whereBuilder struct {
	dialect Dialect
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) arg(v interface{}) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *whereBuilder) add(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) sql() string {
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func buildProductWhere(dialect Dialect, f ProductFilter) *whereBuilder {
	w := &whereBuilder{dialect: dialect}
	w.add("p.status = " + w.arg(string(ProductStatusActive)))

	if f.CategoryID != nil {
		w.add("p.category_id = " + w.arg(*f.CategoryID))
	}
	if f.BrandID != nil {
		w.add("p.brand_id = " + w.arg(*f.BrandID))
	}
	if f.MinPrice != nil {
		w.add("p.price >= " + w.arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		w.add("p.price <= " + w.arg(*f.MaxPrice))
	}
	if f.InStock != nil {
		w.add("p.in_stock = " + w.arg(*f.InStock))
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		like := dialect.Like()
		w.add(fmt.Sprintf("(p.name %s %s OR p.description %s %s)",
			like, w.arg("%"+text+"%"), like, w.arg("%"+text+"%")))
	}
	for _, sc := range f.Specs {
		if len(sc.Keys) == 0 || len(sc.Values) == 0 {
			continue
		}
		var ors []string
		for _, k := range sc.Keys {
			for _, v := range sc.Values {
				expr := dialect.SpecExpr("p.specifications", w.arg(k))
				ors = append(ors, fmt.Sprintf("%s %s %s", expr, dialect.Like(), w.arg("%"+v+"%")))
			}
		}
		w.add("(" + strings.Join(ors, " OR ") + ")")
	}
	return w
}

// Search returns active products matching the filter, ordered by name.
func (r *ProductRepository) Search(ctx context.Context, f ProductFilter, limit int) ([]*Product, error) {
	if limit <= 0 {
		limit = 100
	}
	w := buildProductWhere(r.dialect, f)
	query := `SELECT ` + productColumns + productFrom + w.sql() +
		` ORDER BY p.name, p.id LIMIT ` + w.arg(limit)
	return r.queryProducts(ctx, query, w.args...)
}

// NamedCount is a group label with its product count.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ProductCounts aggregates the products matching a filter.
type ProductCounts struct {
	Total      int          `json:"total"`
	ByCategory []NamedCount `json:"by_category"`
	ByBrand    []NamedCount `json:"by_brand"`
	InStock    int          `json:"in_stock"`
	WithPrice  int          `json:"with_price"`
}

// Count aggregates active products matching the filter.
func (r *ProductRepository) Count(ctx context.Context, f ProductFilter) (*ProductCounts, error) {
	w := buildProductWhere(r.dialect, f)
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN p.in_stock THEN 1 ELSE 0 END), 0),
			COUNT(p.price)
		FROM products p` + w.sql()

	counts := &ProductCounts{}
	if err := r.db.QueryRowContext(ctx, query, w.args...).Scan(
		&counts.Total, &counts.InStock, &counts.WithPrice,
	); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	var err error
	if counts.ByCategory, err = r.countBy(ctx, "categories", "category_id", f); err != nil {
		return nil, err
	}
	if counts.ByBrand, err = r.countBy(ctx, "brands", "brand_id", f); err != nil {
		return nil, err
	}
	return counts, nil
}

// countBy groups matching products by the name of the joined table, largest first.
func (r *ProductRepository) countBy(ctx context.Context, table, fk string, f ProductFilter) ([]NamedCount, error) {
	w := buildProductWhere(r.dialect, f)
	query := fmt.Sprintf(`
		SELECT g.name, COUNT(*)
		FROM products p
		JOIN %s g ON g.id = p.%s`, table, fk) + w.sql() + `
		GROUP BY g.name`

	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", table, err)
	}
	defer rows.Close()

	var out []NamedCount
	for rows.Next() {
		var nc NamedCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, err
		}
		out = append(out, nc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// CatalogStats summarises the products matching a filter.
type CatalogStats struct {
	Total         int              `json:"total"`
	InStock       int              `json:"in_stock"`
	MinPrice      *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice      *decimal.Decimal `json:"max_price,omitempty"`
	Cheapest      *Product         `json:"cheapest,omitempty"`
	MostExpensive *Product         `json:"most_expensive,omitempty"`
	ByCategory    []NamedCount     `json:"by_category"`
	ByBrand       []NamedCount     `json:"by_brand"`
}

// Stats computes catalog statistics for the filter. Group counts are capped at top.
func (r *ProductRepository) Stats(ctx context.Context, f ProductFilter, top int) (*CatalogStats, error) {
	counts, err := r.Count(ctx, f)
	if err != nil {
		return nil, err
	}

	stats := &CatalogStats{
		Total:      counts.Total,
		InStock:    counts.InStock,
		ByCategory: capCounts(counts.ByCategory, top),
		ByBrand:    capCounts(counts.ByBrand, top),
	}

	w := buildProductWhere(r.dialect, f)
	var minPrice, maxPrice decimal.NullDecimal
	if err := r.db.QueryRowContext(ctx,
		`SELECT MIN(p.price), MAX(p.price) FROM products p`+w.sql(), w.args...,
	).Scan(&minPrice, &maxPrice); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("price range: %w", err)
	}
	if minPrice.Valid {
		stats.MinPrice = &minPrice.Decimal
	}
	if maxPrice.Valid {
		stats.MaxPrice = &maxPrice.Decimal
	}

	if stats.Cheapest, err = r.priceExtreme(ctx, f, "ASC"); err != nil {
		return nil, err
	}
	if stats.MostExpensive, err = r.priceExtreme(ctx, f, "DESC"); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *ProductRepository) priceExtreme(ctx context.Context, f ProductFilter, dir string) (*Product, error) {
	w := buildProductWhere(r.dialect, f)
	w.add("p.price IS NOT NULL")
	query := `SELECT ` + productColumns + productFrom + w.sql() +
		` ORDER BY p.price ` + dir + `, p.name LIMIT 1`
	products, err := r.queryProducts(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return products[0], nil
}

func capCounts(in []NamedCount, top int) []NamedCount {
	if top > 0 && len(in) > top {
		return in[:top]
	}
	return in
}
