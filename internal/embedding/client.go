// Package embedding provides embedding generation services.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/llm"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// DefaultMaxInputChars bounds the text sent to the provider.
const DefaultMaxInputChars = 10000

// Embedder defines the interface for embedding generation.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}

// Config holds embedding client configuration.
type Config struct {
	Provider      string
	BaseURL       string
	APIKey        string
	Model         string
	Dimension     int
	MaxInputChars int
	BatchSize     int
	Timeout       time.Duration
	// Retry applies to each Embed call. The zero value makes one attempt.
	Retry llm.RetryConfig
}

// Client generates embeddings through an OpenAI-compatible endpoint.
type Client struct {
	embedder  embeddings.Embedder
	provider  string
	model     string
	dimension int
	maxChars  int
	timeout   time.Duration
	retry     llm.RetryConfig
	logger    *observability.Logger
}

// NewClient creates a new embedding client.
func NewClient(cfg Config, logger *observability.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s embedding client: %w", cfg.Provider, err)
	}
	return NewClientWithEmbedder(client, cfg, logger)
}

// NewClientWithEmbedder wraps any langchaingo embedder client.
func NewClientWithEmbedder(client embeddings.EmbedderClient, cfg Config, logger *observability.Logger) (*Client, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}

	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &Client{
		embedder:  embedder,
		provider:  cfg.Provider,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		maxChars:  cfg.MaxInputChars,
		timeout:   cfg.Timeout,
		retry:     cfg.Retry,
		logger:    logger.WithComponent("embedding").WithField("provider", cfg.Provider),
	}, nil
}

// NewFromConfig builds the embedder for the configured provider, cached
// through store when one is given.
func NewFromConfig(cfg *config.Config, store cache.Client, logger *observability.Logger) (Embedder, error) {
	p := cfg.ActiveProvider()
	retry := llm.DefaultRetryConfig()
	retry.MaxRetries = p.MaxRetries
	client, err := NewClient(Config{
		Provider:      cfg.AI.Provider,
		BaseURL:       p.BaseURL,
		APIKey:        p.APIKey,
		Model:         p.EmbeddingModel,
		Dimension:     cfg.Embedding.Dimension,
		MaxInputChars: cfg.Embedding.MaxInputChars,
		BatchSize:     cfg.Embedding.BatchSize,
		Timeout:       p.Timeout,
		Retry:         retry,
	}, logger)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return client, nil
	}
	return NewCachedEmbedder(client, store, cfg.Embedding.CacheTTL, logger), nil
}

// Sanitize collapses whitespace and truncates to maxChars runes.
func Sanitize(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		text = string([]rune(text)[:maxChars])
	}
	return text
}

// Embed generates embeddings for the given texts, in order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	clean := make([]string, len(texts))
	for i, t := range texts {
		clean[i] = Sanitize(t, c.maxChars)
		if clean[i] == "" {
			return nil, llm.NewError(llm.ErrorTypeValidation, c.provider, fmt.Sprintf("text %d is empty", i), nil)
		}
	}

	start := time.Now()
	var vectors [][]float32
	err := llm.WithRetry(ctx, c.retry, c.logger, func() error {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		v, err := c.embedder.EmbedDocuments(callCtx, clean)
		if err != nil {
			return llm.WrapProviderError(c.provider, err)
		}
		vectors = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, llm.NewError(llm.ErrorTypeUnknown, c.provider,
			fmt.Sprintf("got %d embeddings for %d texts", len(vectors), len(texts)), nil)
	}
	for i, v := range vectors {
		if len(v) != c.dimension {
			return nil, llm.NewError(llm.ErrorTypeValidation, c.provider,
				fmt.Sprintf("embedding %d has %d dimensions, want %d", i, len(v), c.dimension), nil)
		}
	}

	c.logger.Debug().
		Int("texts", len(texts)).
		Dur("duration", time.Since(start)).
		Msg("Embeddings generated")
	return vectors, nil
}

// EmbedSingle generates an embedding for a single text.
func (c *Client) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Model returns the model being used.
func (c *Client) Model() string {
	return c.model
}

// Dimension returns the embedding dimension.
func (c *Client) Dimension() int {
	return c.dimension
}
