package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schilling3003/Perplexica/internal/setup"
	setuplogger "github.com/schilling3003/Perplexica/internal/setup/logger"
	"github.com/schilling3003/Perplexica/internal/stream"
	"github.com/schilling3003/Perplexica/internal/stream/redis"
)

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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, err := setup.Wire(ctx, cfg, &logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to load dependencies")
	}
	defer deps.Close()

	if deps.Redis == nil {
		log.Fatal().Msg("Redis is required to run the search worker")
	}

	streamCfg := stream.Config{
		Provider: cfg.StreamProvider,
		Redis: redis.Config{
			Stream:       cfg.StreamName,
			Group:        cfg.StreamGroup,
			Consumer:     cfg.ConsumerName,
			ResultStream: cfg.ResultStream,
			Concurrency:  cfg.WorkerConcurrency,
			ClaimIdle:    cfg.ClaimIdle,
		},
	}

	consumer, err := stream.NewConsumer(streamCfg, deps.Redis, deps.Worker, &logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create stream consumer")
	}

	if err := consumer.Setup(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to setup consumer")
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Consumer stopped with error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")
	<-stopped

	if err := consumer.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Failed to stop consumer")
	}

	log.Info().Msg("Search worker stopped")
}
