// Package app assembles the catalog engine from configuration. Both the API
// server and the CLI build their components through New.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/chat"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/llm"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// Options adjusts how New builds the application.
type Options struct {
	// SkipMigrations leaves the schema untouched. The migrate command sets it.
	SkipMigrations bool
	// SkipIndexLoad starts the memory index empty.
	SkipIndexLoad bool
	// Generator and Embedder replace the configured providers when set.
	Generator llm.Generator
	Embedder  embedding.Embedder
}

// App holds the wired components.
type App struct {
	Config *config.Config
	Logger *observability.Logger

	DB      *sql.DB
	Dialect storage.Dialect
	Repos   *storage.Repositories
	Cache   cache.Client

	Generator llm.Generator
	Embedder  embedding.Embedder
	Index     retrieval.VectorIndex

	Structured   *retrieval.StructuredSearcher
	Semantic     *retrieval.SemanticSearcher
	Router       *retrieval.Router
	Classifier   *chat.Classifier
	Dispatcher   *chat.Dispatcher
	Responses    *chat.ResponseBuilder
	Context      *chat.ContextBuilder
	Orchestrator *chat.Orchestrator
}

// New opens the database, applies migrations, connects the cache and the AI
// providers and builds the retrieval and chat components.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	a := &App{Config: cfg, Logger: logger}

	if err := a.openStorage(ctx, opts); err != nil {
		return nil, err
	}

	store, err := openCache(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Cache = store

	a.Generator = opts.Generator
	if a.Generator == nil {
		client, err := llm.NewFromConfig(cfg, logger)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("create llm client: %w", err)
		}
		a.Generator = client
	}

	a.Embedder = opts.Embedder
	if a.Embedder == nil {
		embedder, err := embedding.NewFromConfig(cfg, a.Cache, logger)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		a.Embedder = embedder
	}

	if err := a.openIndex(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.build()

	logger.Info().
		Str("database", string(a.Dialect)).
		Str("vector", cfg.Vector.Adapter).
		Str("cache", cfg.Cache.Driver).
		Str("ai_provider", cfg.AI.Provider).
		Msg("Catalog engine initialised")

	return a, nil
}

func (a *App) openStorage(ctx context.Context, opts Options) error {
	dialect, err := storage.ParseDialect(a.Config.Database.Driver)
	if err != nil {
		return err
	}

	pool := storage.PoolConfig{
		MaxOpenConns:    a.Config.Database.Postgres.MaxOpenConns,
		MaxIdleConns:    a.Config.Database.Postgres.MaxIdleConns,
		ConnMaxLifetime: a.Config.Database.Postgres.ConnMaxLifetime,
	}
	if dialect == storage.DialectSQLite {
		pool = storage.PoolConfig{
			MaxOpenConns: a.Config.Database.SQLite.MaxOpenConns,
			JournalMode:  a.Config.Database.SQLite.JournalMode,
		}
	}

	db, err := storage.Open(ctx, dialect, a.Config.DatabaseDSN(), pool)
	if err != nil {
		return err
	}
	a.DB = db
	a.Dialect = dialect
	a.Repos = storage.NewRepositories(db, dialect)

	if opts.SkipMigrations {
		return nil
	}
	applied, err := storage.NewMigrator(db, dialect).Up(ctx)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		a.Logger.Info().Strs("migrations", applied).Msg("Applied schema migrations")
	}
	return nil
}

func openCache(cfg *config.Config) (cache.Client, error) {
	if cfg.Cache.Driver != "redis" {
		return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
	}
	client, err := cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		PoolSize: cfg.Cache.Redis.PoolSize,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func (a *App) openIndex(ctx context.Context, opts Options) error {
	if a.Config.Vector.Adapter == "pgvector" {
		a.Index = retrieval.NewPGVectorIndex(a.DB, a.Config.Vector.Dimension)
		return nil
	}

	index := retrieval.NewMemoryIndex(a.Config.Vector.Dimension)
	a.Index = index
	if opts.SkipIndexLoad || opts.SkipMigrations {
		return nil
	}
	n, err := retrieval.LoadIndex(ctx, a.Repos.Products, index)
	if err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}
	a.Logger.Info().Int("vectors", n).Msg("Loaded vector index")
	return nil
}

func (a *App) build() {
	cfg, logger := a.Config, a.Logger

	a.Structured = retrieval.NewStructuredSearcher(a.Repos.Products, a.Repos.Categories, a.Repos.Brands, logger)
	a.Semantic = retrieval.NewSemanticSearcher(a.Embedder, a.Index, a.Repos.Products, logger)
	a.Router = retrieval.NewRouter(a.Structured, a.Semantic, retrieval.RouterConfig{
		DefaultLimit: cfg.Retrieval.DefaultLimit,
		MaxLimit:     cfg.Retrieval.MaxLimit,
	}, logger)

	a.Classifier = chat.NewClassifier(a.Generator, chat.ClassifierConfig{
		Timeout:         cfg.Chat.ClassifierTimeout,
		Temperature:     cfg.Chat.ClassifierTemperature,
		ContextProducts: cfg.Chat.ContextProducts,
	}, logger)
	a.Dispatcher = chat.NewDispatcher(a.Router, a.Structured, cfg.Retrieval.DefaultLimit, logger)
	a.Responses = chat.NewResponseBuilder(a.Generator, cfg.Chat.MaxListedProducts, logger)
	a.Context = chat.NewContextBuilder(a.Structured, a.Router)
	a.Orchestrator = chat.NewOrchestrator(a.Repos.Conversations, a.Repos.Products, a.Classifier, a.Dispatcher, a.Responses, logger)
}

// Seeder returns a catalog seeder over the repositories.
func (a *App) Seeder() *ingest.Seeder {
	return ingest.NewSeeder(a.Repos.Categories, a.Repos.Brands, a.Repos.Products, a.Logger)
}

// Backfiller returns an embedding backfiller writing to the store and index.
func (a *App) Backfiller(workers int) *ingest.Backfiller {
	if workers <= 0 {
		workers = a.Config.Embedding.Workers
	}
	return ingest.NewBackfiller(a.Repos.Products, a.Embedder, a.Index, ingest.BackfillConfig{
		Workers:   workers,
		BatchSize: a.Config.Embedding.BatchSize,
	}, a.Logger)
}

// Migrator returns the schema migrator for the open database.
func (a *App) Migrator() *storage.Migrator {
	return storage.NewMigrator(a.DB, a.Dialect)
}

// Ready checks that the database and the cache answer.
func (a *App) Ready(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.Cache != nil {
		if err := a.Cache.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

// Close releases the index, the cache and the database.
func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
