// Package config loads catalog engine settings. Values come from the
// defaults, then an optional YAML file, then the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported AI providers.
const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// Config is the full engine configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Vector        VectorConfig        `yaml:"vector"`
	Cache         CacheConfig         `yaml:"cache"`
	AI            AIConfig            `yaml:"ai"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Chat          ChatConfig          `yaml:"chat"`
	Observability ObservabilityConfig `yaml:"observability"`
	Auth          AuthConfig          `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver" validate:"oneof=sqlite postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig is used when the driver is sqlite.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig is used when the driver is postgres.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// VectorConfig selects where product embeddings are searched.
type VectorConfig struct {
	Adapter   string `yaml:"adapter" validate:"oneof=memory pgvector"`
	Dimension int    `yaml:"dimension" validate:"min=1"`
}

// CacheConfig configures the query embedding cache.
type CacheConfig struct {
	Driver     string      `yaml:"driver" validate:"oneof=memory redis"`
	MaxEntries int         `yaml:"max_entries" validate:"min=0"`
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// AIConfig selects the language model and embedding backend.
type AIConfig struct {
	Provider string         `yaml:"provider" validate:"oneof=ollama gemini"`
	Ollama   ProviderConfig `yaml:"ollama"`
	Gemini   ProviderConfig `yaml:"gemini"`
}

// ProviderConfig holds the endpoint settings of one AI provider.
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	ChatModel      string        `yaml:"chat_model" validate:"required"`
	EmbeddingModel string        `yaml:"embedding_model" validate:"required"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries" validate:"min=0"`
}

// EmbeddingConfig tunes embedding generation and the backfill.
type EmbeddingConfig struct {
	Dimension     int           `yaml:"dimension" validate:"min=1"`
	MaxInputChars int           `yaml:"max_input_chars" validate:"min=1"`
	BatchSize     int           `yaml:"batch_size" validate:"min=1"`
	Workers       int           `yaml:"workers" validate:"min=1"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// RetrievalConfig bounds result set sizes.
type RetrievalConfig struct {
	DefaultLimit int `yaml:"default_limit" validate:"min=1,ltefield=MaxLimit"`
	MaxLimit     int `yaml:"max_limit" validate:"min=1"`
}

// ChatConfig tunes the classifier and response rendering.
type ChatConfig struct {
	ClassifierTimeout     time.Duration `yaml:"classifier_timeout"`
	ClassifierTemperature float64       `yaml:"classifier_temperature"`
	ContextProducts       int           `yaml:"context_products" validate:"min=0"`
	MaxListedProducts     int           `yaml:"max_listed_products" validate:"min=1"`
}

// ObservabilityConfig configures the zerolog logger.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format" validate:"oneof=json console"`
	ServiceName string `yaml:"service_name"`
}

// AuthConfig guards the /api/v1 routes with static API keys.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKeys []string `yaml:"api_keys"`
}

// Load builds a Config from the defaults, the YAML file at path (optional)
// and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// DefaultConfig is a local development setup: SQLite, in-process vectors and
// cache, Ollama on localhost.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8085,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   90 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/catalog-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Vector: VectorConfig{
			Adapter:   "memory",
			Dimension: 768,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
				Prefix:   "ce:",
			},
		},
		AI: AIConfig{
			Provider: ProviderOllama,
			Ollama: ProviderConfig{
				BaseURL:        "http://localhost:11434/v1",
				APIKey:         "none",
				ChatModel:      "llama3.2",
				EmbeddingModel: "nomic-embed-text",
				Timeout:        300 * time.Second,
				MaxRetries:     3,
			},
			Gemini: ProviderConfig{
				BaseURL:        "https://generativelanguage.googleapis.com/v1beta/openai/",
				ChatModel:      "gemini-1.5-flash",
				EmbeddingModel: "text-embedding-004",
				Timeout:        60 * time.Second,
				MaxRetries:     3,
			},
		},
		Embedding: EmbeddingConfig{
			Dimension:     768,
			MaxInputChars: 10000,
			BatchSize:     32,
			Workers:       4,
			CacheTTL:      24 * time.Hour,
		},
		Retrieval: RetrievalConfig{
			DefaultLimit: 50,
			MaxLimit:     100,
		},
		Chat: ChatConfig{
			ClassifierTimeout:     30 * time.Second,
			ClassifierTemperature: 0.1,
			ContextProducts:       5,
			MaxListedProducts:     20,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "catalog-engine",
		},
	}
}

// ActiveProvider returns the settings of the selected AI provider.
func (c *Config) ActiveProvider() ProviderConfig {
	if c.AI.Provider == ProviderGemini {
		return c.AI.Gemini
	}
	return c.AI.Ollama
}

// DatabaseDSN is the connection string for the selected driver.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}
