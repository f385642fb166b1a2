package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	red "github.com/schilling3003/Perplexica/internal/redis"
	"github.com/schilling3003/Perplexica/internal/search"
	"github.com/schilling3003/Perplexica/internal/stream/redis"
)

type options struct {
	data         string
	stream       string
	resultStream string
	wait         time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.data, "d", "", "Inline JSON search job, e.g. '{\"focusMode\":\"webSearch\",\"query\":\"...\"}'")
	flag.StringVar(&opts.stream, "stream", redis.DefaultStream, "Stream name")
	flag.StringVar(&opts.resultStream, "results", redis.DefaultResultStream, "Result stream name")
	flag.DurationVar(&opts.wait, "wait", 0, "Wait up to this long for the job outcome (0 returns immediately)")
	flag.Parse()

	if opts.data == "" {
		fmt.Fprintln(os.Stderr, "Usage: producer -d '<json>' [-wait 2m]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := run(opts); err != nil {
		log.Error().Err(err).Msg("producer failed")
		os.Exit(1)
	}
}

func run(opts options) error {
	_ = godotenv.Load()

	var job search.Job
	if err := json.Unmarshal([]byte(opts.data), &job); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx := context.Background()
	client, err := red.Connect(ctx, red.Options{
		Addr:       addr,
		Password:   os.Getenv("REDIS_PASSWORD"),
		MaxRetries: 3,
	}, &log.Logger)
	if err != nil {
		return err
	}
	defer client.Close()

	producer := redis.NewProducer(client, opts.stream)
	published := time.Now()
	id, err := producer.Publish(ctx, job)
	if err != nil {
		return err
	}

	log.Info().Str("stream", opts.stream).Str("id", id).Str("job_id", job.ID).Msg("Published successfully!")

	if opts.wait <= 0 {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.wait)
	defer cancel()

	out, err := producer.Await(waitCtx, opts.resultStream, job.ID, published)
	if err != nil {
		return fmt.Errorf("no outcome for job %s: %w", job.ID, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
