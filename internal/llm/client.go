package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// ClientConfig configures a chat client against an OpenAI-compatible endpoint.
type ClientConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Retry    RetryConfig
}

// Client generates completions through langchaingo.
type Client struct {
	model    llms.Model
	provider string
	name     string
	timeout  time.Duration
	retry    RetryConfig
	logger   *observability.Logger
}

// NewClient creates a client for an OpenAI-compatible chat endpoint. Ollama
// and Gemini both expose one.
func NewClient(cfg ClientConfig, logger *observability.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, NewError(ErrorTypeValidation, cfg.Provider, "base url is required", nil)
	}
	if cfg.Model == "" {
		return nil, NewError(ErrorTypeValidation, cfg.Provider, "chat model is required", nil)
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	model, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s chat client: %w", cfg.Provider, err)
	}
	return NewClientWithModel(model, cfg, logger), nil
}

// NewClientWithModel wraps an existing langchaingo model.
func NewClientWithModel(model llms.Model, cfg ClientConfig, logger *observability.Logger) *Client {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Client{
		model:    model,
		provider: cfg.Provider,
		name:     cfg.Model,
		timeout:  cfg.Timeout,
		retry:    cfg.Retry,
		logger:   logger.WithComponent("llm").WithField("provider", cfg.Provider),
	}
}

// NewFromConfig builds the client for the configured provider.
func NewFromConfig(cfg *config.Config, logger *observability.Logger) (*Client, error) {
	p := cfg.ActiveProvider()
	retry := DefaultRetryConfig()
	retry.MaxRetries = p.MaxRetries
	return NewClient(ClientConfig{
		Provider: cfg.AI.Provider,
		BaseURL:  p.BaseURL,
		APIKey:   p.APIKey,
		Model:    p.ChatModel,
		Timeout:  p.Timeout,
		Retry:    retry,
	}, logger)
}

// Provider returns the backend name.
func (c *Client) Provider() string {
	return c.provider
}

// Generate sends the messages and returns the first choice.
func (c *Client) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewError(ErrorTypeValidation, c.provider, "at least one message is required", nil)
	}

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	start := time.Now()
	var resp *llms.ContentResponse
	err := WithRetry(ctx, c.retry, c.logger, func() error {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		r, err := c.model.GenerateContent(callCtx, content, callOpts...)
		if err != nil {
			return WrapProviderError(c.provider, err)
		}
		resp = r
		return nil
	})
	if err != nil {
		c.logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Generation failed")
		return nil, err
	}

	if resp == nil || len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeUnknown, c.provider, "empty response", nil)
	}
	choice := resp.Choices[0]

	c.logger.Debug().
		Str("model", c.name).
		Int("messages", len(messages)).
		Int("response_chars", len(choice.Content)).
		Dur("duration", time.Since(start)).
		Msg("Generation completed")

	return &Response{
		Text:         strings.TrimSpace(choice.Content),
		FinishReason: choice.StopReason,
	}, nil
}

func chatMessageType(r Role) schema.ChatMessageType {
	switch r {
	case RoleSystem:
		return schema.ChatMessageTypeSystem
	case RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}

var _ Generator = (*Client)(nil)
