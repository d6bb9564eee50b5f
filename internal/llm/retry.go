package llm

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// WithRetry runs fn until it succeeds, fails with a non-retryable error, or
// the attempts are exhausted. Waits double from InitialBackoff up to
// MaxBackoff.
func WithRetry(ctx context.Context, cfg RetryConfig, logger *observability.Logger, fn func() error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(uint(cfg.MaxRetries)+1),
		retry.Delay(cfg.InitialBackoff),
		retry.MaxDelay(cfg.MaxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().
				Int("attempt", int(n)+1).
				Int("max_retries", cfg.MaxRetries).
				Err(err).
				Msg("Provider call failed, retrying")
		}),
	)
}
