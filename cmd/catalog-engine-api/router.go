// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/catalog-engine/cmd/catalog-engine-api/handlers"
	"github.com/spherical-ai/spherical/libs/catalog-engine/cmd/catalog-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/app"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(a *app.App) http.Handler {
	cfg, logger := a.Config, a.Logger.WithComponent("api")

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.TraceID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))

	healthHandler := handlers.NewHealthHandler(logger, a)
	chatHandler := handlers.NewChatHandler(logger, a.Orchestrator)
	searchHandler := handlers.NewSearchHandler(logger, a.Router, a.Classifier)
	catalogHandler := handlers.NewCatalogHandler(logger, a.Context, a.Repos.Categories, a.Repos.Brands)
	conversationHandler := handlers.NewConversationHandler(logger, a.Repos.Conversations)

	// Unauthenticated probes
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(middleware.AuthConfig{
			Enabled: cfg.Auth.Enabled,
			APIKeys: cfg.Auth.APIKeys,
		}))

		r.Post("/chat", chatHandler.Chat)
		r.Post("/search", searchHandler.Search)
		r.Post("/classify", searchHandler.Classify)

		r.Get("/stats", catalogHandler.Stats)
		r.Get("/categories", catalogHandler.Categories)
		r.Get("/brands", catalogHandler.Brands)

		r.Get("/conversations/{conversationId}", conversationHandler.Get)
		r.Delete("/conversations/{conversationId}", conversationHandler.Delete)
	})

	return r
}
