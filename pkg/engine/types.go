package engine

import "time"

// Filters constrains a catalog search. Unset fields constrain nothing.
type Filters struct {
	Category       string            `json:"category,omitempty" validate:"max=255"`
	Brand          string            `json:"brand,omitempty" validate:"max=255"`
	MinPrice       *float64          `json:"min_price,omitempty" validate:"omitempty,gte=0"`
	MaxPrice       *float64          `json:"max_price,omitempty" validate:"omitempty,gte=0"`
	InStock        *bool             `json:"in_stock,omitempty"`
	Query          string            `json:"query,omitempty" validate:"max=500"`
	Specifications map[string]string `json:"specifications,omitempty"`
}

// Product is a catalog item as returned by the API.
type Product struct {
	ID             string            `json:"id"`
	SKU            string            `json:"sku,omitempty"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Price          string            `json:"price,omitempty"`
	Currency       string            `json:"currency"`
	InStock        bool              `json:"in_stock"`
	Category       string            `json:"category,omitempty"`
	Brand          string            `json:"brand,omitempty"`
	Specifications map[string]string `json:"specifications,omitempty"`
}

// ScoredProduct is a search hit.
type ScoredProduct struct {
	Product Product `json:"product"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
}

// NamedCount is a group label with its product count.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Counts is the answer to a count query.
type Counts struct {
	Total      int          `json:"total"`
	ByCategory []NamedCount `json:"by_category"`
	ByBrand    []NamedCount `json:"by_brand"`
	InStock    int          `json:"in_stock"`
	WithPrice  int          `json:"with_price"`
}

// ChatRequest sends one user message. An empty ConversationID starts a new
// conversation.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty" validate:"omitempty,uuid"`
	Message        string `json:"message" validate:"required,max=2000"`
}

// ChatResponse is the assistant's answer to one message.
type ChatResponse struct {
	ConversationID     string    `json:"conversation_id"`
	Content            string    `json:"content"`
	QueryType          string    `json:"query_type"`
	ResponseType       string    `json:"response_type"`
	ClassifierFallback bool      `json:"classifier_fallback"`
	Filters            Filters   `json:"filters"`
	ProductIDs         []string  `json:"product_ids"`
	Products           []Product `json:"products"`
	Counts             *Counts   `json:"counts,omitempty"`
	DurationMs         int64     `json:"duration_ms"`
}

// SearchRequest runs the hybrid retrieval engine directly.
type SearchRequest struct {
	Query   string  `json:"query" validate:"max=500"`
	Filters Filters `json:"filters"`
	Limit   int     `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
}

// SearchResponse lists ranked products.
type SearchResponse struct {
	Mode       string          `json:"mode"`
	Results    []ScoredProduct `json:"results"`
	DurationMs int64           `json:"duration_ms"`
}

// ClassifyRequest classifies a message without answering it.
type ClassifyRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// ClassifyResponse is the classification of a message.
type ClassifyResponse struct {
	QueryType   string  `json:"query_type"`
	Filters     Filters `json:"filters"`
	SearchQuery string  `json:"search_query"`
	Fallback    bool    `json:"fallback"`
}

// StatsRequest selects the products summarised by Stats.
type StatsRequest struct {
	Query   string
	Filters Filters
}

// StatsResponse summarises the catalog for a filter set.
type StatsResponse struct {
	Total         int          `json:"total"`
	InStock       int          `json:"in_stock"`
	MinPrice      string       `json:"min_price,omitempty"`
	MaxPrice      string       `json:"max_price,omitempty"`
	Cheapest      *Product     `json:"cheapest,omitempty"`
	MostExpensive *Product     `json:"most_expensive,omitempty"`
	ByCategory    []NamedCount `json:"by_category"`
	ByBrand       []NamedCount `json:"by_brand"`
	Products      []Product    `json:"products"`
	Markdown      string       `json:"markdown"`
}

// Message is one stored conversation turn.
type Message struct {
	ID        string                 `json:"id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Conversation is a stored chat session with its messages.
type Conversation struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	LastShownProductIDs []string  `json:"last_shown_product_ids"`
	Messages            []Message `json:"messages"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Taxonomy is a category or a brand.
type Taxonomy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
}

// HealthResponse represents a health or readiness check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
