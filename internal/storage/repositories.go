package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TxDB is a DB that can open transactions.
type TxDB interface {
	DB
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// taxonomyRepository backs both categories and brands, which share a shape.
type taxonomyRepository struct {
	db    DB
	table string
}

type taxonomyRow struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Description string
	CreatedAt   time.Time
}

func (r *taxonomyRepository) upsert(ctx context.Context, row *taxonomyRow) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, slug, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slug) DO UPDATE SET name = excluded.name, description = excluded.description
		RETURNING id
	`, r.table)
	return r.db.QueryRowContext(ctx, query,
		row.ID, row.Name, row.Slug, row.Description, row.CreatedAt,
	).Scan(&row.ID)
}

// findBySlugOrName matches the slug exactly or the name case-insensitively.
func (r *taxonomyRepository) findBySlugOrName(ctx context.Context, token string) (*taxonomyRow, error) {
	query := fmt.Sprintf(`
		SELECT id, name, slug, description, created_at
		FROM %s
		WHERE slug = $1 OR LOWER(name) = LOWER($2)
		ORDER BY CASE WHEN slug = $3 THEN 0 ELSE 1 END, name
		LIMIT 1
	`, r.table)
	row := &taxonomyRow{}
	err := r.db.QueryRowContext(ctx, query, token, token, token).Scan(
		&row.ID, &row.Name, &row.Slug, &row.Description, &row.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s %q: %w", r.table, token, err)
	}
	return row, nil
}

func (r *taxonomyRepository) list(ctx context.Context) ([]*taxonomyRow, error) {
	query := fmt.Sprintf(`SELECT id, name, slug, description, created_at FROM %s ORDER BY name`, r.table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	defer rows.Close()

	var out []*taxonomyRow
	for rows.Next() {
		row := &taxonomyRow{}
		if err := rows.Scan(&row.ID, &row.Name, &row.Slug, &row.Description, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CategoryRepository handles category persistence.
type CategoryRepository struct {
	t taxonomyRepository
}

// NewCategoryRepository creates a new category repository.
func NewCategoryRepository(db DB) *CategoryRepository {
	return &CategoryRepository{t: taxonomyRepository{db: db, table: "categories"}}
}

// Upsert inserts the category or updates the one with the same slug.
func (r *CategoryRepository) Upsert(ctx context.Context, c *Category) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid category: %w", err)
	}
	row := taxonomyRow(*c)
	if err := r.t.upsert(ctx, &row); err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}
	*c = Category(row)
	return nil
}

// FindBySlugOrName resolves a category token to exactly one record.
func (r *CategoryRepository) FindBySlugOrName(ctx context.Context, token string) (*Category, error) {
	row, err := r.t.findBySlugOrName(ctx, token)
	if err != nil {
		return nil, err
	}
	c := Category(*row)
	return &c, nil
}

// List returns all categories ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]*Category, error) {
	rows, err := r.t.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Category, len(rows))
	for i, row := range rows {
		c := Category(*row)
		out[i] = &c
	}
	return out, nil
}

// BrandRepository handles brand persistence.
type BrandRepository struct {
	t taxonomyRepository
}

// NewBrandRepository creates a new brand repository.
func NewBrandRepository(db DB) *BrandRepository {
	return &BrandRepository{t: taxonomyRepository{db: db, table: "brands"}}
}

// Upsert inserts the brand or updates the one with the same slug.
func (r *BrandRepository) Upsert(ctx context.Context, b *Brand) error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("invalid brand: %w", err)
	}
	row := taxonomyRow(*b)
	if err := r.t.upsert(ctx, &row); err != nil {
		return fmt.Errorf("upsert brand: %w", err)
	}
	*b = Brand(row)
	return nil
}

// FindBySlugOrName resolves a brand token to exactly one record.
func (r *BrandRepository) FindBySlugOrName(ctx context.Context, token string) (*Brand, error) {
	row, err := r.t.findBySlugOrName(ctx, token)
	if err != nil {
		return nil, err
	}
	b := Brand(*row)
	return &b, nil
}

// List returns all brands ordered by name.
func (r *BrandRepository) List(ctx context.Context) ([]*Brand, error) {
	rows, err := r.t.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Brand, len(rows))
	for i, row := range rows {
		b := Brand(*row)
		out[i] = &b
	}
	return out, nil
}

const productColumns = `
	p.id, p.sku, p.name, p.description, p.price, p.currency, p.in_stock, p.status,
	p.category_id, p.brand_id, p.specifications, p.created_at, p.updated_at,
	c.id, c.name, c.slug, c.description,
	b.id, b.name, b.slug, b.description`

const productFrom = `
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN brands b ON b.id = p.brand_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(s rowScanner) (*Product, error) {
	p := &Product{}
	var (
		sku                      sql.NullString
		price                    decimal.NullDecimal
		categoryID, brandID      uuid.NullUUID
		catID, brID              uuid.NullUUID
		catName, catSlug, catDsc sql.NullString
		brName, brSlug, brDsc    sql.NullString
	)
	err := s.Scan(
		&p.ID, &sku, &p.Name, &p.Description, &price, &p.Currency, &p.InStock, &p.Status,
		&categoryID, &brandID, &p.Specifications, &p.CreatedAt, &p.UpdatedAt,
		&catID, &catName, &catSlug, &catDsc,
		&brID, &brName, &brSlug, &brDsc,
	)
	if err != nil {
		return nil, err
	}
	p.SKU = sku.String
	if price.Valid {
		v := price.Decimal
		p.Price = &v
	}
	if categoryID.Valid {
		id := categoryID.UUID
		p.CategoryID = &id
	}
	if brandID.Valid {
		id := brandID.UUID
		p.BrandID = &id
	}
	if catID.Valid {
		p.Category = &Category{ID: catID.UUID, Name: catName.String, Slug: catSlug.String, Description: catDsc.String}
	}
	if brID.Valid {
		p.Brand = &Brand{ID: brID.UUID, Name: brName.String, Slug: brSlug.String, Description: brDsc.String}
	}
	return p, nil
}

// ProductRepository handles catalog item persistence and filtered queries.
type ProductRepository struct {
	db      DB
	dialect Dialect
}

// NewProductRepository creates a new product repository.
func NewProductRepository(db DB, dialect Dialect) *ProductRepository {
	return &ProductRepository{db: db, dialect: dialect}
}

// Dialect returns the SQL dialect the repository speaks.
func (r *ProductRepository) Dialect() Dialect {
	return r.dialect
}

func applyProductDefaults(p *Product) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Currency == "" {
		p.Currency = CurrencyUSD
	}
	if p.Status == "" {
		p.Status = ProductStatusActive
	}
	if p.Specifications == nil {
		p.Specifications = Specs{}
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

func nullableSKU(sku string) interface{} {
	if strings.TrimSpace(sku) == "" {
		return nil
	}
	return sku
}

func nullablePrice(p *decimal.Decimal) interface{} {
	if p == nil {
		return nil
	}
	return p.String()
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *Product) error {
	applyProductDefaults(p)
	if err := p.Validate(); err != nil {
		return err
	}
	embedding, err := r.dialect.EncodeVector(p.Embedding)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (id, sku, name, description, price, currency, in_stock, status,
			category_id, brand_id, specifications, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.ExecContext(ctx, query,
		p.ID, nullableSKU(p.SKU), p.Name, p.Description, nullablePrice(p.Price), p.Currency,
		p.InStock, p.Status, p.CategoryID, p.BrandID, p.Specifications, embedding,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: product sku %q", ErrConflict, p.SKU)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// UpsertBySKU inserts the product or updates the one with the same SKU.
// The stored embedding is cleared on update so backfill re-embeds changed rows.
func (r *ProductRepository) UpsertBySKU(ctx context.Context, p *Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("upsert product: sku is required")
	}
	applyProductDefaults(p)
	if err := p.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO products (id, sku, name, description, price, currency, in_stock, status,
			category_id, brand_id, specifications, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (sku) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			currency = excluded.currency,
			in_stock = excluded.in_stock,
			status = excluded.status,
			category_id = excluded.category_id,
			brand_id = excluded.brand_id,
			specifications = excluded.specifications,
			embedding = NULL,
			updated_at = excluded.updated_at
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.SKU, p.Name, p.Description, nullablePrice(p.Price), p.Currency,
		p.InStock, p.Status, p.CategoryID, p.BrandID, p.Specifications,
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert product %q: %w", p.SKU, err)
	}
	return nil
}

// GetByID retrieves a product with its category and brand.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `SELECT ` + productColumns + productFrom + ` WHERE p.id = $1`
	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetByIDs loads products in the order of ids. Unknown ids are skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + productColumns + productFrom +
		` WHERE p.id IN (` + placeholders(1, len(ids)) + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get products by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Product, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok && !seen[id] {
			out = append(out, p)
			seen[id] = true
		}
	}
	return out, nil
}

// UpdateEmbedding stores the embedding vector of a product.
func (r *ProductRepository) UpdateEmbedding(ctx context.Context, id uuid.UUID, vec []float32) error {
	if len(vec) != EmbeddingDimension {
		return fmt.Errorf("update embedding: got %d dimensions, want %d", len(vec), EmbeddingDimension)
	}
	value, err := r.dialect.EncodeVector(vec)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET embedding = $1, updated_at = $2 WHERE id = $3`,
		value, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMissingEmbeddings returns active products without an embedding.
func (r *ProductRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*Product, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT ` + productColumns + productFrom + `
		WHERE p.status = 'active' AND p.embedding IS NULL
		ORDER BY p.name, p.id
		LIMIT $1`
	return r.queryProducts(ctx, query, limit)
}

// ProductEmbedding pairs a product id with its stored vector.
type ProductEmbedding struct {
	ID     uuid.UUID
	Vector []float32
}

// ListEmbeddings streams the embeddings of all active products to fn.
func (r *ProductRepository) ListEmbeddings(ctx context.Context, fn func(ProductEmbedding) error) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, embedding FROM products WHERE status = 'active' AND embedding IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  uuid.UUID
			raw interface{}
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := r.dialect.DecodeVector(raw)
		if err != nil {
			return err
		}
		if err := fn(ProductEmbedding{ID: id, Vector: vec}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *ProductRepository) queryProducts(ctx context.Context, query string, args ...interface{}) ([]*Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ConversationRepository persists conversations and their append-only message log.
type ConversationRepository struct {
	db TxDB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db TxDB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts a new conversation.
func (r *ConversationRepository) Create(ctx context.Context, c *Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.LastShownProductIDs == nil {
		c.LastShownProductIDs = IDList{}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, last_shown_product_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Title, c.LastShownProductIDs, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// GetByID loads a conversation with its messages in order.
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	c := &Conversation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, last_shown_product_ids, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.Title, &c.LastShownProductIDs, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	msgs, err := r.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Messages = msgs
	return c, nil
}

// Messages returns the message log of a conversation, oldest first.
func (r *ConversationRepository) Messages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendMessage appends a message. When shown is non-nil the conversation's
// last shown product ids are replaced in the same transaction.
func (r *ConversationRepository) AppendMessage(ctx context.Context, m *Message, shown IDList) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Metadata == nil {
		m.Metadata = Metadata{}
	}
	if err := m.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.ConversationID, m.Role, m.Content, m.Metadata, m.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	var res sql.Result
	if shown != nil {
		res, err = tx.ExecContext(ctx,
			`UPDATE conversations SET last_shown_product_ids = $1, updated_at = $2 WHERE id = $3`,
			shown, m.CreatedAt, m.ConversationID)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
			m.CreatedAt, m.ConversationID)
	}
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// Delete removes a conversation and its messages.
func (r *ConversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete conversation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// Repositories bundles all repositories over one database.
type Repositories struct {
	Categories    *CategoryRepository
	Brands        *BrandRepository
	Products      *ProductRepository
	Conversations *ConversationRepository
}

// NewRepositories creates all repositories.
func NewRepositories(db TxDB, dialect Dialect) *Repositories {
	return &Repositories{
		Categories:    NewCategoryRepository(db),
		Brands:        NewBrandRepository(db),
		Products:      NewProductRepository(db, dialect),
		Conversations: NewConversationRepository(db),
	}
}
