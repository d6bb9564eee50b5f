package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/llm"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

const classifierPrompt = `You are a query classifier for a product catalog system. Analyze the user's query and extract:

1. Query type (exactly one):
   - listing: User wants to see products (e.g., "show me laptops", "what phones do you have")
   - count: User wants to know quantities (e.g., "how many", "count of")
   - comparison: User wants to compare products (e.g., "compare X vs Y", "difference between")
   - contextual: Query references previous results (e.g., "from those", "which of these", "the cheaper one")
   - conversational: Greetings or general questions (e.g., "hello", "what can you do")

2. Filters (extract if present):
   - category: Product category mentioned
   - brand: Brand name mentioned
   - min_price: Minimum price (number only)
   - max_price: Maximum price (number only)
   - in_stock: true if user wants only in-stock items
   - specifications: Key-value pairs for technical specs

3. Search query: The semantic search terms (clean, relevant keywords)

Return JSON with this exact structure:
{
  "query_type": "listing|count|comparison|contextual|conversational",
  "filters": {
    "category": null or string,
    "brand": null or string,
    "min_price": null or number,
    "max_price": null or number,
    "in_stock": null or boolean,
    "specifications": {} or {key: value}
  },
  "search_query": "extracted search terms"
}`

const (
	classifierAck         = "Understood. I will classify the query and return JSON."
	classifierInstruction = "Classify this query and respond ONLY with valid JSON:\n\n"
)

// ClassifierConfig tunes the LLM call.
type ClassifierConfig struct {
	Timeout     time.Duration
	Temperature float64
	// ContextProducts is how many previous product names go into the prompt.
	ContextProducts int
}

// DefaultClassifierConfig returns the default classifier settings.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Timeout:         30 * time.Second,
		Temperature:     0.1,
		ContextProducts: 5,
	}
}

// ClassifyContext carries what the classifier may know about earlier turns.
type ClassifyContext struct {
	PreviousProducts []*storage.Product
}

// Classifier turns free text into a Classification. The LLM does the
// reading; a keyword classifier takes over whenever it cannot.
type Classifier struct {
	generator llm.Generator
	config    ClassifierConfig
	logger    *observability.Logger
}

// NewClassifier creates a classifier. A nil generator always uses the keyword path.
func NewClassifier(generator llm.Generator, cfg ClassifierConfig, logger *observability.Logger) *Classifier {
	defaults := DefaultClassifierConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ContextProducts <= 0 {
		cfg.ContextProducts = defaults.ContextProducts
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Classifier{
		generator: generator,
		config:    cfg,
		logger:    logger.WithComponent("query_classifier"),
	}
}

// Classify never fails: provider errors, unusable output and panics all end
// in the keyword classifier.
func (c *Classifier) Classify(ctx context.Context, query string, cc ClassifyContext) (result Classification) {
	if strings.TrimSpace(query) == "" {
		return DefaultClassification()
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("Classifier panicked, using keyword fallback")
			result = FallbackClassification(query)
		}
	}()

	if c.generator == nil {
		return FallbackClassification(query)
	}

	c.logger.Info().Str("query", storage.Truncate(query, 80)).Msg("Classifying query")

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.generator.Generate(callCtx, c.messages(query, cc), llm.Options{
		Temperature: c.config.Temperature,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Classifier provider failed, using keyword fallback")
		return FallbackClassification(query)
	}

	classification, err := ParseClassification(resp.Text)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("content", storage.Truncate(resp.Text, 200)).
			Msg("Unusable classifier output, using keyword fallback")
		return FallbackClassification(query)
	}

	c.logger.Info().
		Str("query_type", string(classification.Type)).
		Bool("strict", classification.Filters.IsStrict()).
		Msg("Query classified")
	return classification
}

func (c *Classifier) messages(query string, cc ClassifyContext) []llm.Message {
	instruction := classifierPrompt
	if n := len(cc.PreviousProducts); n > 0 {
		names := make([]string, 0, c.config.ContextProducts)
		for _, p := range cc.PreviousProducts {
			if len(names) == c.config.ContextProducts {
				break
			}
			names = append(names, p.Name)
		}
		instruction += fmt.Sprintf("\n\nPrevious results included %d products: %s...", n, strings.Join(names, ", "))
	}

	return []llm.Message{
		llm.UserMessage(instruction),
		llm.AssistantMessage(classifierAck),
		llm.UserMessage(classifierInstruction + query),
	}
}

// ParseClassification reads the JSON object in an LLM reply. The object may
// be wrapped in a markdown fence or surrounded by prose.
func ParseClassification(content string) (Classification, error) {
	raw := extractJSON(content)
	if raw == "" {
		return Classification{}, fmt.Errorf("no JSON object in classifier output")
	}

	var parsed struct {
		QueryType   interface{} `json:"query_type"`
		Filters     interface{} `json:"filters"`
		SearchQuery interface{} `json:"search_query"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Classification{}, fmt.Errorf("decode classifier output: %w", err)
	}

	label, _ := parsed.QueryType.(string)
	query, _ := parsed.SearchQuery.(string)
	return Classification{
		Type:        ParseQueryType(label),
		Filters:     normalizeFilters(parsed.Filters),
		SearchQuery: strings.TrimSpace(query),
	}, nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?```")

// extractJSON returns the classification object from content: a fenced
// block, the whole reply, or the object enclosing "query_type".
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(content, "{") {
		return content
	}

	key := strings.Index(content, `"query_type"`)
	if key < 0 {
		return ""
	}
	start := strings.LastIndex(content[:key], "{")
	if start < 0 {
		return ""
	}
	if end := matchingBrace(content, start); end > start {
		return content[start : end+1]
	}
	return ""
}

// matchingBrace returns the index of the brace closing the one at start, or -1.
func matchingBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// normalizeFilters keeps the filter fields that have usable values.
// Numbers that do not parse are dropped rather than read as zero.
func normalizeFilters(raw interface{}) retrieval.Filters {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return retrieval.Filters{}
	}

	f := retrieval.Filters{
		Category: textValue(m["category"]),
		Brand:    textValue(m["brand"]),
		MinPrice: numberValue(m["min_price"]),
		MaxPrice: numberValue(m["max_price"]),
		InStock:  boolValue(m["in_stock"]),
	}

	if specs, ok := m["specifications"].(map[string]interface{}); ok {
		for k, v := range specs {
			key := strings.TrimSpace(k)
			value := strings.TrimSpace(storage.StringifySpecValue(v))
			if key == "" || value == "" {
				continue
			}
			if f.Specifications == nil {
				f.Specifications = map[string]string{}
			}
			f.Specifications[key] = value
		}
	}
	return f
}

func textValue(v interface{}) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	return s
}

func numberValue(v interface{}) *float64 {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	return &n
}

func boolValue(v interface{}) *bool {
	switch t := v.(type) {
	case bool:
		return &t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		return &b
	}
	return nil
}

// fallbackRules are checked in order; the first match wins.
var fallbackRules = []struct {
	queryType QueryType
	pattern   *regexp.Regexp
}{
	{QueryTypeCount, regexp.MustCompile(`(?i)\bhow many\b|\bcount\b|\bcu[aá]nt`)},
	{QueryTypeComparison, regexp.MustCompile(`(?i)\bcompar|\bvs\b|\bversus\b|\bdifference\b`)},
	{QueryTypeConversational, regexp.MustCompile(`(?i)\b(hello|hi|hey|hola|help)\b`)},
	{QueryTypeContextual, regexp.MustCompile(`(?i)\bfrom those\b|\bthese\b|\bthose\b|\bwhich one\b|\bthat one\b|\bthis one\b`)},
}

// FallbackClassification classifies by keywords alone. The raw text becomes
// the search query and no filters are extracted.
func FallbackClassification(query string) Classification {
	t := QueryTypeListing
	for _, rule := range fallbackRules {
		if rule.pattern.MatchString(query) {
			t = rule.queryType
			break
		}
	}
	return Classification{
		Type:        t,
		SearchQuery: strings.TrimSpace(query),
		Fallback:    true,
	}
}
