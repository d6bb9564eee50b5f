// Package storage provides database models and repositories for the catalog engine.
package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EmbeddingDimension is the fixed vector length produced by the embedding providers.
const EmbeddingDimension = 768

// ProductStatus represents the lifecycle state of a catalog item.
type ProductStatus string

const (
	ProductStatusActive       ProductStatus = "active"
	ProductStatusInactive     ProductStatus = "inactive"
	ProductStatusDiscontinued ProductStatus = "discontinued"
)

// Currency is an ISO 4217 code accepted by the catalog.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

var validate = validator.New()

// Category groups products, e.g. "laptops".
type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name" validate:"required,max=255"`
	Slug        string    `json:"slug" db:"slug" validate:"required,max=255"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Brand identifies a product manufacturer.
type Brand struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name" validate:"required,max=255"`
	Slug        string    `json:"slug" db:"slug" validate:"required,max=255"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Product is a catalog item.
type Product struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	SKU            string           `json:"sku,omitempty" db:"sku" validate:"max=64"`
	Name           string           `json:"name" db:"name" validate:"required,max=500"`
	Description    string           `json:"description,omitempty" db:"description"`
	Price          *decimal.Decimal `json:"price,omitempty" db:"price"`
	Currency       Currency         `json:"currency" db:"currency" validate:"oneof=USD EUR GBP"`
	InStock        bool             `json:"in_stock" db:"in_stock"`
	Status         ProductStatus    `json:"status" db:"status" validate:"oneof=active inactive discontinued"`
	CategoryID     *uuid.UUID       `json:"category_id,omitempty" db:"category_id"`
	BrandID        *uuid.UUID       `json:"brand_id,omitempty" db:"brand_id"`
	Specifications Specs            `json:"specifications" db:"specifications"`
	Embedding      []float32        `json:"-" db:"embedding"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`

	Category *Category `json:"category,omitempty" db:"-"`
	Brand    *Brand    `json:"brand,omitempty" db:"-"`
}

// Validate checks the product invariants.
func (p *Product) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid product: %w", err)
	}
	if p.Price != nil && p.Price.IsNegative() {
		return fmt.Errorf("invalid product: price must be non-negative")
	}
	if p.Embedding != nil && len(p.Embedding) != EmbeddingDimension {
		return fmt.Errorf("invalid product: embedding has %d dimensions, want %d", len(p.Embedding), EmbeddingDimension)
	}
	return nil
}

// PriceFloat returns the price as a float, and false when the product has none.
func (p *Product) PriceFloat() (float64, bool) {
	if p.Price == nil {
		return 0, false
	}
	return p.Price.InexactFloat64(), true
}

// FormattedPrice renders the price as "USD 999.99", or "" when unpriced.
func (p *Product) FormattedPrice() string {
	if p.Price == nil {
		return ""
	}
	currency := p.Currency
	if currency == "" {
		currency = CurrencyUSD
	}
	return fmt.Sprintf("%s %s", currency, p.Price.Round(2).String())
}

// CategoryName returns the category name or "".
func (p *Product) CategoryName() string {
	if p.Category == nil {
		return ""
	}
	return p.Category.Name
}

// BrandName returns the brand name or "".
func (p *Product) BrandName() string {
	if p.Brand == nil {
		return ""
	}
	return p.Brand.Name
}

// EmbeddingText builds the text sent to the embedding provider for this product.
func (p *Product) EmbeddingText() string {
	parts := []string{p.Name}
	if p.Brand != nil {
		parts = append(parts, "by "+p.Brand.Name)
	}
	if p.Category != nil {
		parts = append(parts, "in "+p.Category.Name)
	}
	if strings.TrimSpace(p.Description) != "" {
		parts = append(parts, p.Description)
	}
	if len(p.Specifications) > 0 {
		parts = append(parts, p.Specifications.Join(0))
	}
	return strings.Join(parts, ". ")
}

// Specs is an open key/value map of product specifications.
type Specs map[string]string

// Keys returns the keys in sorted order.
func (s Specs) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Join renders "k: v, k: v" over the first n keys (all when n <= 0).
func (s Specs) Join(n int) string {
	keys := s.Keys()
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+": "+s[k])
	}
	return strings.Join(pairs, ", ")
}

// Value implements driver.Valuer.
func (s Specs) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner. Non-string JSON values are stringified.
func (s *Specs) Scan(src interface{}) error {
	raw, err := rawJSON(src)
	if err != nil {
		return fmt.Errorf("scan specs: %w", err)
	}
	out := Specs{}
	if len(raw) > 0 {
		var generic map[string]interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("scan specs: %w", err)
		}
		for k, v := range generic {
			out[k] = StringifySpecValue(v)
		}
	}
	*s = out
	return nil
}

// StringifySpecValue renders a decoded JSON scalar as a specification value.
func StringifySpecValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return decimal.NewFromFloat(val).String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		data, _ := json.Marshal(val)
		return string(data)
	}
}

// Metadata is an opaque JSON object attached to messages.
type Metadata map[string]interface{}

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src interface{}) error {
	raw, err := rawJSON(src)
	if err != nil {
		return fmt.Errorf("scan metadata: %w", err)
	}
	out := Metadata{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("scan metadata: %w", err)
		}
	}
	*m = out
	return nil
}

// IDList is an ordered list of product identifiers stored as a JSON array.
type IDList []uuid.UUID

// Value implements driver.Valuer.
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]uuid.UUID(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *IDList) Scan(src interface{}) error {
	raw, err := rawJSON(src)
	if err != nil {
		return fmt.Errorf("scan id list: %w", err)
	}
	var ids []uuid.UUID
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ids); err != nil {
			return fmt.Errorf("scan id list: %w", err)
		}
	}
	*l = ids
	return nil
}

func rawJSON(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", src)
	}
}

// Conversation is the persisted chat session.
type Conversation struct {
	ID                  uuid.UUID `json:"id" db:"id"`
	Title               string    `json:"title,omitempty" db:"title"`
	LastShownProductIDs IDList    `json:"last_shown_product_ids" db:"last_shown_product_ids"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`

	Messages []*Message `json:"messages,omitempty" db:"-"`
}

// DisplayTitle returns the title, else the first user message truncated to 50
// characters, else "New Conversation".
func (c *Conversation) DisplayTitle() string {
	if strings.TrimSpace(c.Title) != "" {
		return c.Title
	}
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			return Truncate(m.Content, 50)
		}
	}
	return "New Conversation"
}

// Message is a single conversation turn.
type Message struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConversationID uuid.UUID `json:"conversation_id" db:"conversation_id"`
	Role           Role      `json:"role" db:"role" validate:"oneof=user assistant system"`
	Content        string    `json:"content" db:"content" validate:"required"`
	Metadata       Metadata  `json:"metadata" db:"metadata"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Validate checks the message invariants.
func (m *Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	return nil
}

// Truncate shortens s to at most n runes, ending with "..." when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}
