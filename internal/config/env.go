package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type lookupFunc func(key string) (string, bool)

// envBinding copies one environment variable into the config.
type envBinding struct {
	key   string
	apply func(cfg *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

var envBindings = []envBinding{
	{"SERVER_HOST", str(func(c *Config) *string { return &c.Server.Host })},
	{"SERVER_PORT", func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Server.Port = port
		return nil
	}},
	{"DATABASE_URL", func(c *Config, v string) error {
		switch {
		case strings.HasPrefix(v, "sqlite:"):
			c.Database.Driver = "sqlite"
			c.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		case strings.HasPrefix(v, "postgres://"), strings.HasPrefix(v, "postgresql://"):
			c.Database.Driver = "postgres"
			c.Database.Postgres.DSN = v
		default:
			return fmt.Errorf("unsupported scheme")
		}
		return nil
	}},
	{"REDIS_URL", func(c *Config, v string) error {
		c.Cache.Driver = "redis"
		c.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
		return nil
	}},
	{"VECTOR_ADAPTER", str(func(c *Config) *string { return &c.Vector.Adapter })},
	{"AI_PROVIDER", func(c *Config, v string) error {
		c.AI.Provider = strings.ToLower(strings.TrimSpace(v))
		return nil
	}},
	{"OLLAMA_BASE_URL", str(func(c *Config) *string { return &c.AI.Ollama.BaseURL })},
	{"OLLAMA_MODEL", str(func(c *Config) *string { return &c.AI.Ollama.ChatModel })},
	{"OLLAMA_EMBEDDING_MODEL", str(func(c *Config) *string { return &c.AI.Ollama.EmbeddingModel })},
	{"OLLAMA_TIMEOUT", seconds(func(c *Config) *time.Duration { return &c.AI.Ollama.Timeout })},
	{"GEMINI_API_KEY", str(func(c *Config) *string { return &c.AI.Gemini.APIKey })},
	{"GEMINI_MODEL", str(func(c *Config) *string { return &c.AI.Gemini.ChatModel })},
	{"GEMINI_EMBEDDING_MODEL", str(func(c *Config) *string { return &c.AI.Gemini.EmbeddingModel })},
	{"GEMINI_TIMEOUT", seconds(func(c *Config) *time.Duration { return &c.AI.Gemini.Timeout })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Observability.LogLevel })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Observability.LogFormat })},
	{"AUTH_ENABLED", func(c *Config, v string) error {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Auth.Enabled = enabled
		return nil
	}},
	{"API_KEYS", func(c *Config, v string) error {
		c.Auth.APIKeys = splitList(v)
		return nil
	}},
	{"CORS_ALLOWED_ORIGINS", func(c *Config, v string) error {
		c.Server.AllowedOrigins = splitList(v)
		return nil
	}},
}

// seconds parses a whole number of seconds; a Go duration string also works.
func seconds(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		if n, err := strconv.Atoi(v); err == nil {
			if n <= 0 {
				return fmt.Errorf("must be positive")
			}
			*dst(cfg) = time.Duration(n) * time.Second
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("want seconds or a positive duration")
		}
		*dst(cfg) = d
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// applyEnv applies every set, non-empty variable. A malformed value is an
// error rather than silently ignored.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	for _, b := range envBindings {
		v, ok := lookup(b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("env %s=%q: %w", b.key, v, err)
		}
	}
	return nil
}
