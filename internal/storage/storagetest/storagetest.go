// Package storagetest provides an in-memory SQLite catalog for tests.
package storagetest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// Catalog is a migrated in-memory database with fixture records.
type Catalog struct {
	DB    *sql.DB
	Repos *storage.Repositories

	Laptops     *storage.Category
	Tablets     *storage.Category
	Accessories *storage.Category

	Acme   *storage.Brand
	Zenith *storage.Brand

	// Products by fixture name.
	Products map[string]*storage.Product
}

// NewSQLite opens and migrates an empty in-memory database.
func NewSQLite(t *testing.T) (*sql.DB, *storage.Repositories) {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, storage.DialectSQLite, ":memory:", storage.PoolConfig{MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = storage.NewMigrator(db, storage.DialectSQLite).Up(ctx)
	require.NoError(t, err)

	return db, storage.NewRepositories(db, storage.DialectSQLite)
}

// Price is a convenience constructor for product prices.
func Price(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

// NewCatalog returns a database seeded with a small laptop/tablet catalog:
//
//	ultrabook   laptops  acme    999.00  in stock   ram_gb=16 gpu="Intel Iris"
//	workstation laptops  zenith 1999.00  in stock   ram_gb=32 gpu="RTX 4070"
//	budget-book laptops  acme    499.00  out        ram_gb=8
//	slate       tablets  zenith  399.00  in stock   storage_gb=128
//	charger     accessor acme     no price in stock
//	retired     laptops  acme    299.00  inactive
func NewCatalog(t *testing.T) *Catalog {
	t.Helper()
	ctx := context.Background()
	db, repos := NewSQLite(t)

	c := &Catalog{DB: db, Repos: repos, Products: map[string]*storage.Product{}}

	c.Laptops = &storage.Category{Name: "Laptops", Slug: "laptops"}
	c.Tablets = &storage.Category{Name: "Tablets", Slug: "tablets"}
	c.Accessories = &storage.Category{Name: "Mobile Accessories", Slug: "mobile-accessories"}
	for _, cat := range []*storage.Category{c.Laptops, c.Tablets, c.Accessories} {
		require.NoError(t, repos.Categories.Upsert(ctx, cat))
	}

	c.Acme = &storage.Brand{Name: "Acme", Slug: "acme"}
	c.Zenith = &storage.Brand{Name: "Zenith", Slug: "zenith"}
	for _, b := range []*storage.Brand{c.Acme, c.Zenith} {
		require.NoError(t, repos.Brands.Upsert(ctx, b))
	}

	add := func(key, name string, cat *storage.Category, brand *storage.Brand, price *decimal.Decimal, inStock bool, status storage.ProductStatus, specs storage.Specs) {
		p := &storage.Product{
			SKU:            "SKU-" + key,
			Name:           name,
			Description:    name + " description",
			Price:          price,
			InStock:        inStock,
			Status:         status,
			CategoryID:     &cat.ID,
			BrandID:        &brand.ID,
			Specifications: specs,
		}
		require.NoError(t, repos.Products.Create(ctx, p))
		p.Category = cat
		p.Brand = brand
		c.Products[key] = p
	}

	add("ultrabook", "Acme Ultrabook 14", c.Laptops, c.Acme, Price("999.00"), true, storage.ProductStatusActive,
		storage.Specs{"ram_gb": "16", "gpu": "Intel Iris", "cpu": "Core i7"})
	add("workstation", "Zenith Workstation 16", c.Laptops, c.Zenith, Price("1999.00"), true, storage.ProductStatusActive,
		storage.Specs{"ram_gb": "32", "gpu": "RTX 4070", "cpu": "Ryzen 9"})
	add("budget-book", "Acme Budget Book", c.Laptops, c.Acme, Price("499.00"), false, storage.ProductStatusActive,
		storage.Specs{"ram_gb": "8"})
	add("slate", "Zenith Slate", c.Tablets, c.Zenith, Price("399.00"), true, storage.ProductStatusActive,
		storage.Specs{"storage_gb": "128"})
	add("charger", "Acme Fast Charger", c.Accessories, c.Acme, nil, true, storage.ProductStatusActive, nil)
	add("retired", "Acme Retired Laptop", c.Laptops, c.Acme, Price("299.00"), true, storage.ProductStatusInactive, nil)

	return c
}

// IDs returns the ids of the named fixture products in order.
func (c *Catalog) IDs(keys ...string) []uuid.UUID {
	out := make([]uuid.UUID, len(keys))
	for i, k := range keys {
		out[i] = c.Products[k].ID
	}
	return out
}
