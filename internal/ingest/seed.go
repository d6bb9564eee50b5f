// Package ingest loads catalog records into the store and keeps their
// embeddings current.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// CatalogFile is the YAML document accepted by Seed.
type CatalogFile struct {
	Categories []TaxonomyRecord `yaml:"categories" validate:"dive"`
	Brands     []TaxonomyRecord `yaml:"brands" validate:"dive"`
	Products   []ProductRecord  `yaml:"products" validate:"dive"`
}

// TaxonomyRecord describes a category or a brand. Slug defaults to the
// slugified name.
type TaxonomyRecord struct {
	Name        string `yaml:"name" validate:"required,max=255"`
	Slug        string `yaml:"slug" validate:"omitempty,max=255"`
	Description string `yaml:"description"`
}

// ProductRecord describes one product. Category and Brand are slugs (or
// names) of records in the same file or already in the store.
type ProductRecord struct {
	SKU            string                 `yaml:"sku" validate:"required,max=64"`
	Name           string                 `yaml:"name" validate:"required,max=500"`
	Description    string                 `yaml:"description"`
	Price          string                 `yaml:"price"`
	Currency       string                 `yaml:"currency" validate:"omitempty,oneof=USD EUR GBP"`
	InStock        *bool                  `yaml:"in_stock"`
	Status         string                 `yaml:"status" validate:"omitempty,oneof=active inactive discontinued"`
	Category       string                 `yaml:"category"`
	Brand          string                 `yaml:"brand"`
	Specifications map[string]interface{} `yaml:"specifications"`
}

// CategoryStore persists categories.
type CategoryStore interface {
	Upsert(ctx context.Context, c *storage.Category) error
	FindBySlugOrName(ctx context.Context, token string) (*storage.Category, error)
}

// BrandStore persists brands.
type BrandStore interface {
	Upsert(ctx context.Context, b *storage.Brand) error
	FindBySlugOrName(ctx context.Context, token string) (*storage.Brand, error)
}

// ProductStore persists products keyed by SKU.
type ProductStore interface {
	UpsertBySKU(ctx context.Context, p *storage.Product) error
}

// SeedProgress reports one processed record.
type SeedProgress struct {
	Kind  string // "category", "brand" or "product"
	Name  string
	Done  int
	Total int
	Err   error
}

// SeedResult summarises a seed run.
type SeedResult struct {
	Categories int
	Brands     int
	Products   int
	Failed     int
	Errors     []string

	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Seeder upserts a YAML catalog into the store.
type Seeder struct {
	categories CategoryStore
	brands     BrandStore
	products   ProductStore
	validate   *validator.Validate
	logger     *observability.Logger
}

// NewSeeder creates a seeder.
func NewSeeder(categories CategoryStore, brands BrandStore, products ProductStore, logger *observability.Logger) *Seeder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Seeder{
		categories: categories,
		brands:     brands,
		products:   products,
		validate:   validator.New(),
		logger:     logger.WithComponent("seeder"),
	}
}

// ReadCatalog decodes and validates a catalog document.
func (s *Seeder) ReadCatalog(r io.Reader) (*CatalogFile, error) {
	var file CatalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := s.validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &file, nil
}

// SeedFile reads the catalog at path and seeds it.
func (s *Seeder) SeedFile(ctx context.Context, path string, progress func(SeedProgress)) (*SeedResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return s.Seed(ctx, f, progress)
}

// Seed upserts categories, then brands, then products. A record that fails
// is counted and logged; the run continues. Only decode errors and context
// cancellation abort the run.
func (s *Seeder) Seed(ctx context.Context, r io.Reader, progress func(SeedProgress)) (*SeedResult, error) {
	file, err := s.ReadCatalog(r)
	if err != nil {
		return nil, err
	}

	result := &SeedResult{StartedAt: time.Now()}
	total := len(file.Categories) + len(file.Brands) + len(file.Products)
	done := 0

	report := func(kind, name string, err error) {
		done++
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s %q: %v", kind, name, err))
			s.logger.Warn().Err(err).Str("kind", kind).Str("name", name).Msg("Failed to seed record")
		}
		if progress != nil {
			progress(SeedProgress{Kind: kind, Name: name, Done: done, Total: total, Err: err})
		}
	}

	s.logger.Info().
		Int("categories", len(file.Categories)).
		Int("brands", len(file.Brands)).
		Int("products", len(file.Products)).
		Msg("Starting catalog seed")

	for _, rec := range file.Categories {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		c := &storage.Category{Name: strings.TrimSpace(rec.Name), Slug: slugOrDefault(rec.Slug, rec.Name), Description: rec.Description}
		err := s.categories.Upsert(ctx, c)
		if err == nil {
			result.Categories++
		}
		report("category", rec.Name, err)
	}

	for _, rec := range file.Brands {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		b := &storage.Brand{Name: strings.TrimSpace(rec.Name), Slug: slugOrDefault(rec.Slug, rec.Name), Description: rec.Description}
		err := s.brands.Upsert(ctx, b)
		if err == nil {
			result.Brands++
		}
		report("brand", rec.Name, err)
	}

	for _, rec := range file.Products {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		err := s.seedProduct(ctx, rec)
		if err == nil {
			result.Products++
		}
		report("product", rec.SKU, err)
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	s.logger.Info().
		Int("categories", result.Categories).
		Int("brands", result.Brands).
		Int("products", result.Products).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Catalog seed completed")

	return result, nil
}

func (s *Seeder) seedProduct(ctx context.Context, rec ProductRecord) error {
	p := &storage.Product{
		SKU:         strings.TrimSpace(rec.SKU),
		Name:        strings.TrimSpace(rec.Name),
		Description: strings.TrimSpace(rec.Description),
		Currency:    storage.Currency(strings.ToUpper(rec.Currency)),
		InStock:     rec.InStock == nil || *rec.InStock,
		Status:      storage.ProductStatus(rec.Status),
	}

	if price := strings.TrimSpace(rec.Price); price != "" {
		d, err := decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("invalid price %q", rec.Price)
		}
		p.Price = &d
	}

	if rec.Category != "" {
		c, err := s.categories.FindBySlugOrName(ctx, rec.Category)
		if err != nil {
			return fmt.Errorf("category %q: %w", rec.Category, err)
		}
		p.CategoryID = &c.ID
	}
	if rec.Brand != "" {
		b, err := s.brands.FindBySlugOrName(ctx, rec.Brand)
		if err != nil {
			return fmt.Errorf("brand %q: %w", rec.Brand, err)
		}
		p.BrandID = &b.ID
	}

	if len(rec.Specifications) > 0 {
		p.Specifications = make(storage.Specs, len(rec.Specifications))
		for k, v := range rec.Specifications {
			if value := storage.StringifySpecValue(v); value != "" {
				p.Specifications[k] = value
			}
		}
	}

	return s.products.UpsertBySKU(ctx, p)
}

func slugOrDefault(slug, name string) string {
	if s := strings.TrimSpace(slug); s != "" {
		return s
	}
	return Slugify(name)
}

// Slugify lowercases name and joins its letter and digit runs with "-".
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
