package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/llm"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

const assistantPrompt = `You are a helpful product catalog assistant. Format responses clearly and professionally.

Guidelines:
- Be concise but informative
- Use bullet points for lists
- Include relevant product details (name, price, key specs)
- For comparisons, create clear side-by-side analysis
- If no products found, suggest alternatives or clarify the search
- Always be helpful and professional`

const greetingPrompt = "You are a friendly product catalog assistant. The catalog contains various products with categories, brands, prices, and specifications. Help users find what they need."

const (
	maxComparedProducts = 5
	maxListedSpecs      = 3
	maxCountedBrands    = 10
	descriptionChars    = 200

	comparisonTemperature     = 0.7
	contextualTemperature     = 0.5
	conversationalTemperature = 0.8
)

const (
	noProductsText        = "No products found matching your criteria. Try broadening your search or using different keywords."
	noComparisonText      = "I couldn't find products to compare. Try being more specific about what you'd like to compare."
	noContextualMatchText = "None of the products I just showed match that. Try relaxing the criteria or start a new search."
	greetingText          = "Hello! I can help you find products. Try asking about specific categories, brands, or price ranges."
)

// Response is the rendered answer of one turn.
type Response struct {
	Type    QueryType `json:"response_type"`
	Content string    `json:"content"`
	// ProductIDs are the products the answer shows, in order.
	ProductIDs storage.IDList `json:"product_ids"`
}

// ResponseBuilder renders dispatch results as markdown, asking the LLM for
// comparison, contextual and conversational answers.
type ResponseBuilder struct {
	generator llm.Generator
	maxListed int
	logger    *observability.Logger
}

// NewResponseBuilder creates a response builder. Without a generator every
// answer is rendered from templates.
func NewResponseBuilder(generator llm.Generator, maxListed int, logger *observability.Logger) *ResponseBuilder {
	if maxListed <= 0 {
		maxListed = 20
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ResponseBuilder{
		generator: generator,
		maxListed: maxListed,
		logger:    logger.WithComponent("response_builder"),
	}
}

// Build renders result for the user's query. Generation errors are returned.
func (b *ResponseBuilder) Build(ctx context.Context, query string, result *Result) (*Response, error) {
	b.logger.Debug().
		Str("strategy", string(result.Strategy)).
		Int("products", len(result.Products)).
		Msg("Building response")

	switch result.Strategy {
	case QueryTypeCount:
		return b.count(result), nil
	case QueryTypeComparison:
		return b.comparison(ctx, query, result.Products)
	case QueryTypeContextual:
		return b.contextual(ctx, query, result.Products)
	case QueryTypeConversational:
		return b.conversational(ctx, query)
	default:
		return b.listing(result.Products), nil
	}
}

func (b *ResponseBuilder) listing(products []*storage.Product) *Response {
	if len(products) == 0 {
		return emptyResponse(QueryTypeListing, noProductsText)
	}

	shown := capProducts(products, b.maxListed)
	var sb strings.Builder
	sb.WriteString("## Products Found\n\n")
	fmt.Fprintf(&sb, "Found **%d** products matching your search.\n\n", len(products))
	for i, p := range shown {
		writeProductSection(&sb, i+1, p)
	}
	if extra := len(products) - len(shown); extra > 0 {
		fmt.Fprintf(&sb, "\n*...and %d more products*\n", extra)
	}

	return &Response{Type: QueryTypeListing, Content: sb.String(), ProductIDs: ProductIDs(shown)}
}

func (b *ResponseBuilder) count(result *Result) *Response {
	counts := result.Counts
	if counts == nil {
		counts = &storage.ProductCounts{Total: len(result.Products)}
	}

	var sb strings.Builder
	sb.WriteString("## Product Count\n\n")
	fmt.Fprintf(&sb, "**Total: %d products**\n\n", counts.Total)
	if len(counts.ByCategory) > 0 {
		sb.WriteString("### By Category:\n")
		for _, c := range counts.ByCategory {
			fmt.Fprintf(&sb, "- %s: %d\n", c.Name, c.Count)
		}
		sb.WriteString("\n")
	}
	if n := len(counts.ByBrand); n > 0 && n <= maxCountedBrands {
		sb.WriteString("### By Brand:\n")
		for _, c := range counts.ByBrand {
			fmt.Fprintf(&sb, "- %s: %d\n", c.Name, c.Count)
		}
	}

	return emptyResponse(QueryTypeCount, sb.String())
}

func (b *ResponseBuilder) comparison(ctx context.Context, query string, products []*storage.Product) (*Response, error) {
	if len(products) == 0 {
		return emptyResponse(QueryTypeComparison, noComparisonText), nil
	}
	compared := capProducts(products, maxComparedProducts)

	prompt := fmt.Sprintf("Compare these products based on the user's query: '%s'\n\nProducts:\n%s",
		query, describeProducts(compared))
	content, err := b.generate(ctx, []llm.Message{
		llm.UserMessage(assistantPrompt),
		llm.AssistantMessage("Understood. I will format responses clearly."),
		llm.UserMessage(prompt),
	}, comparisonTemperature)
	if err != nil {
		return nil, fmt.Errorf("generate comparison: %w", err)
	}
	if content == "" {
		content = productBullets(compared)
	}

	return &Response{Type: QueryTypeComparison, Content: content, ProductIDs: ProductIDs(compared)}, nil
}

func (b *ResponseBuilder) contextual(ctx context.Context, query string, products []*storage.Product) (*Response, error) {
	if len(products) == 0 {
		return emptyResponse(QueryTypeContextual, noContextualMatchText), nil
	}
	shown := capProducts(products, b.maxListed)

	prompt := fmt.Sprintf("Based on these products, answer: '%s'\n\nProducts:\n%s", query, describeProducts(shown))
	content, err := b.generate(ctx, []llm.Message{
		llm.UserMessage(assistantPrompt),
		llm.AssistantMessage("Understood."),
		llm.UserMessage(prompt),
	}, contextualTemperature)
	if err != nil {
		return nil, fmt.Errorf("generate contextual answer: %w", err)
	}
	if content == "" {
		content = productBullets(shown)
	}

	return &Response{Type: QueryTypeContextual, Content: content, ProductIDs: ProductIDs(shown)}, nil
}

func (b *ResponseBuilder) conversational(ctx context.Context, query string) (*Response, error) {
	content, err := b.generate(ctx, []llm.Message{
		llm.UserMessage(greetingPrompt),
		llm.AssistantMessage("Hello! I'm here to help you find products."),
		llm.UserMessage(query),
	}, conversationalTemperature)
	if err != nil {
		return nil, fmt.Errorf("generate conversational answer: %w", err)
	}
	if content == "" {
		content = greetingText
	}
	return emptyResponse(QueryTypeConversational, content), nil
}

// generate returns "" when no generator is configured.
func (b *ResponseBuilder) generate(ctx context.Context, messages []llm.Message, temperature float64) (string, error) {
	if b.generator == nil {
		return "", nil
	}
	resp, err := b.generator.Generate(ctx, messages, llm.Options{Temperature: temperature})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func emptyResponse(t QueryType, content string) *Response {
	return &Response{Type: t, Content: content, ProductIDs: storage.IDList{}}
}

func capProducts(products []*storage.Product, n int) []*storage.Product {
	if len(products) > n {
		return products[:n]
	}
	return products
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func writeProductSection(sb *strings.Builder, index int, p *storage.Product) {
	price := p.FormattedPrice()
	if price == "" {
		price = "Contact for price"
	}
	stock := "No"
	if p.InStock {
		stock = "Yes"
	}

	fmt.Fprintf(sb, "### %d. %s\n", index, p.Name)
	fmt.Fprintf(sb, "- **Brand:** %s\n", orNA(p.BrandName()))
	fmt.Fprintf(sb, "- **Category:** %s\n", orNA(p.CategoryName()))
	fmt.Fprintf(sb, "- **Price:** %s\n", price)
	if len(p.Specifications) > 0 {
		fmt.Fprintf(sb, "- **Specs:** %s\n", p.Specifications.Join(maxListedSpecs))
	}
	fmt.Fprintf(sb, "- **In Stock:** %s\n\n", stock)
}

// describeProducts renders products as plain blocks for a prompt.
func describeProducts(products []*storage.Product) string {
	blocks := make([]string, len(products))
	for i, p := range products {
		blocks[i] = fmt.Sprintf("Name: %s\nBrand: %s\nCategory: %s\nPrice: %s\nSpecifications: %s\nDescription: %s\n",
			p.Name,
			orNA(p.BrandName()),
			orNA(p.CategoryName()),
			orNA(p.FormattedPrice()),
			orNA(p.Specifications.Join(0)),
			orNA(storage.Truncate(p.Description, descriptionChars)),
		)
	}
	return strings.Join(blocks, "\n")
}

func productBullets(products []*storage.Product) string {
	lines := make([]string, len(products))
	for i, p := range products {
		lines[i] = fmt.Sprintf("- %s (%s)", p.Name, orNA(p.FormattedPrice()))
	}
	return strings.Join(lines, "\n")
}
