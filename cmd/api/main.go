package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schilling3003/Perplexica/internal/api"
	"github.com/schilling3003/Perplexica/internal/setup"
	setuplogger "github.com/schilling3003/Perplexica/internal/setup/logger"
	"github.com/schilling3003/Perplexica/internal/ws"
)

const version = "1.0.0"

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load env
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	cfg := setup.LoadConfig()
	log.Logger = setuplogger.FromEnv(cfg.LogFormat, cfg.LogLevel)
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := setup.Wire(ctx, cfg, &logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to load dependencies")
	}
	defer deps.Close()

	apiLogger := logger.With().Str("component", "api").Logger()
	wsLogger := logger.With().Str("component", "ws").Logger()

	opts := api.Options{
		Search:  deps.Service,
		Modes:   deps.Registry,
		Chats:   deps.Chats,
		Cache:   deps.Cache,
		Version: version,
		Logger:  &apiLogger,
	}
	if deps.Pipeline != nil {
		opts.Uploads = deps.Pipeline
	}

	container := api.NewContainer(api.NewHandler(opts), version, map[string]http.Handler{
		"/ws": ws.NewHandler(deps.Service, deps.Chats, &wsLogger),
	})

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info().Str("address", addr).Str("version", version).Msg("Starting Perplexica API")

	// No write timeout: answers are streamed for as long as the model runs.
	server := &http.Server{
		Addr:        addr,
		Handler:     corsHandler.Handler(container),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Perplexica API stopped")
}
