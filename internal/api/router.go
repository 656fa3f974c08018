package api

import (
	"encoding/json"
	"net/http"

	"github.com/agentoven/aigateway/internal/api/handlers"
	"github.com/agentoven/aigateway/internal/api/middleware"
	"github.com/agentoven/aigateway/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5, "application/json"))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "X-Execution-Id", "Content-Disposition"},
		MaxAge:         300,
	}))

	// Health & info
	r.Get("/health", h.Health)
	r.Get("/version", versionHandler(cfg))

	r.Route("/ai/v1", func(r chi.Router) {
		r.Get("/ping", h.Ping)

		// Runs
		r.Post("/run", h.Run)
		r.Post("/run/stream", h.RunStream)

		// Local model server
		r.Post("/ollama/pull/stream", h.PullModelStream)

		// Catalog
		r.Get("/agents", h.ListAgents)
		r.Get("/presets", h.ListPresets)
		r.Get("/providers", h.ListProviders)

		// Execution log
		r.Route("/executions", func(r chi.Router) {
			r.Get("/", h.ListExecutions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetExecution)
				r.Get("/download", h.DownloadExecution)
			})
		})
	})

	return r
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "aigateway",
		})
	}
}
