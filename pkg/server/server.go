// Package server provides the public entry point for initializing the AI
// gateway.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	go srv.Janitor.Start(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/agentoven/aigateway/internal/api"
	"github.com/agentoven/aigateway/internal/api/handlers"
	"github.com/agentoven/aigateway/internal/config"
	"github.com/agentoven/aigateway/internal/executions"
	"github.com/agentoven/aigateway/internal/executor"
	"github.com/agentoven/aigateway/internal/options"
	"github.com/agentoven/aigateway/internal/postproc"
	"github.com/agentoven/aigateway/internal/relay"
	"github.com/agentoven/aigateway/internal/retention"
	"github.com/agentoven/aigateway/internal/router"
	"github.com/agentoven/aigateway/internal/secrets"
	"github.com/agentoven/aigateway/internal/store"
	"github.com/agentoven/aigateway/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized AI gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Executions is the audit store. Close it on shutdown.
	Executions store.ExecutionStore

	// Janitor purges expired execution records. Run Start in a goroutine.
	Janitor *retention.Janitor

	// Config is the server configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all gateway components from the environment.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the gateway with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	agents, err := config.LoadAgents(cfg.AgentsFile)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	agentStore := store.NewMemoryStore(agents...)
	log.Info().Int("agents", len(agents)).Msg("Agent store initialized")

	execStore, err := openExecutionStore(ctx, cfg.Database, agentStore)
	if err != nil {
		return nil, err
	}

	resolver, err := newResolver(cfg.Sampling)
	if err != nil {
		execStore.Close()
		return nil, err
	}

	registry := router.NewRegistry(cfg.Providers)
	rl := relay.New(router.NewInvoker(), postproc.New(cfg.PostProcessTimeout))
	logger := executions.NewLogger(execStore)
	exec := executor.NewExecutor(
		agentStore,
		registry,
		resolver,
		secrets.EnvStore{Prefix: cfg.SecretPrefix},
		rl,
		logger,
	)
	log.Info().
		Str("default_provider", string(cfg.Providers.DefaultProvider)).
		Str("ollama_url", registry.OllamaURL()).
		Str("preset", resolver.PresetID("")).
		Msg("Provider registry initialized")

	janitor := retention.NewJanitor(execStore, logger, cfg.Retention.Interval, cfg.Retention.Days)
	if cfg.Retention.ArchiveDir != "" {
		archiver := retention.NewLocalFileArchiver(cfg.Retention.ArchiveDir, cfg.Retention.Compress)
		if err := archiver.HealthCheck(ctx); err != nil {
			log.Warn().Err(err).Msg("Archive directory unusable, expired executions will be purged without archiving")
		} else {
			janitor.SetArchiver(archiver)
		}
	}

	h := handlers.New(exec, agentStore, execStore, rl, registry, resolver)

	return &Server{
		Handler:      api.NewRouter(cfg, h),
		Executions:   execStore,
		Janitor:      janitor,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// openExecutionStore selects the audit sink. The memory driver shares the
// agent store instance.
func openExecutionStore(ctx context.Context, cfg config.DatabaseConfig, mem *store.MemoryStore) (store.ExecutionStore, error) {
	switch cfg.Driver {
	case "memory":
		log.Info().Msg("In-memory execution store initialized")
		return mem, nil
	case "", "sqlite":
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := store.NewPostgresStore(ctx, cfg.URL, cfg.MaxConnections)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	}
	return nil, errors.New("unknown database driver " + cfg.Driver)
}

// newResolver merges the presets file over the built-ins and picks the global
// preset: the configured id, else the file's default, else the built-in.
func newResolver(cfg config.SamplingConfig) (*options.Resolver, error) {
	pf, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	global := cfg.PresetID
	if global == "" {
		global = pf.Default
	}
	presets := options.MergePresets(pf.Presets)
	if _, ok := presets[global]; global != "" && !ok {
		log.Warn().Str("preset", global).Msg("Unknown global preset, using default")
	}
	return options.NewResolver(presets, global, cfg.Overrides), nil
}
