// AI Gateway dispatches agent runs to local and remote text-generation
// backends.
//
// It provides:
//   - Run endpoints (JSON and server-sent events)
//   - Local model server streaming and model pulls
//   - Remote providers (OpenAI-style, Anthropic, Azure, generic compatible)
//   - Optional post-processor webhook
//   - Redacted execution audit log with scheduled retention

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentoven/aigateway/pkg/server"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("AI gateway starting...")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	srv, err := server.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}
	defer srv.Executions.Close()
	defer srv.ShutdownFunc(context.Background())

	level, err := zerolog.ParseLevel(srv.Config.LogLevel)
	if err != nil {
		log.Warn().Str("level", srv.Config.LogLevel).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	go srv.Janitor.Start(ctx)

	// WriteTimeout stays 0: run streams last as long as the model keeps
	// producing tokens.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", srv.Port),
		Handler:           srv.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down gracefully...")
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Int("port", srv.Port).
		Msg("AI gateway listening")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
