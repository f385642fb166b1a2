package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/ingestion"
	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/schilling3003/Perplexica/internal/models"
	"github.com/schilling3003/Perplexica/internal/restaurant"
	"github.com/schilling3003/Perplexica/internal/search"
	"github.com/schilling3003/Perplexica/internal/setup"
	"github.com/urfave/cli/v2"
)

func wire(ctx context.Context) (*setup.Dependencies, error) {
	logger := log.Logger
	return setup.Wire(ctx, setup.LoadConfig(), &logger)
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := wire(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	_, stream, err := deps.Service.Stream(ctx, search.Request{
		FocusMode:        c.String("focus-mode"),
		Query:            query,
		OptimizationMode: c.String("optimization-mode"),
		Files:            c.StringSlice("file"),
	})
	if err != nil {
		return err
	}

	return printStream(c, stream)
}

func restaurantCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := restaurant.Record{RestaurantName: c.String("name"), Address: c.String("address")}.Validate()
	if err != nil {
		return err
	}

	deps, err := wire(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	stream, err := deps.Service.EvaluateRestaurant(ctx, rec, nil, c.String("optimization-mode"), llm.ModelSpec{})
	if err != nil {
		return err
	}

	res := events.Collect(stream)
	if res.Err != nil {
		return res.Err
	}

	out := c.App.Writer
	fmt.Fprintln(out, res.Answer)
	if verdict, err := restaurant.ParseVerdict(res.Answer); err == nil {
		fmt.Fprintf(out, "\nScore: %d/10\n", verdict.Score)
	}
	printSources(c, res.Sources)
	return nil
}

func ingestCommand(c *cli.Context) error {
	paths := c.Args().Slice()
	watchDir := c.String("watch")
	if len(paths) == 0 && watchDir == "" {
		return fmt.Errorf("at least one file or --watch is required")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := wire(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	if deps.Pipeline == nil {
		return fmt.Errorf("file store is not configured: set USE_DATABASE=true")
	}

	for _, path := range paths {
		res, err := deps.Pipeline.IngestFile(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		printIngested(c, res)
	}

	if watchDir == "" {
		return nil
	}

	logger := log.Logger
	watcher, err := ingestion.NewWatcher(deps.Pipeline, c.Duration("settle"), &logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Watching %s for new files (Ctrl+C to stop)\n", watchDir)
	err = watcher.Watch(ctx, watchDir, func(res *ingestion.Result) {
		printIngested(c, res)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printStream writes answer increments as they arrive; status lines go to
// stderr so stdout carries only the answer and its sources.
func printStream(c *cli.Context, stream events.Stream) error {
	var sources []models.Document
	for ev := range stream {
		switch ev.Type {
		case events.TypeStatus:
			fmt.Fprintf(c.App.ErrWriter, "[%s]\n", ev.Text)
		case events.TypeResponse:
			fmt.Fprint(c.App.Writer, ev.Text)
		case events.TypeSources:
			sources = ev.Sources
		case events.TypeError:
			fmt.Fprintln(c.App.Writer)
			return ev.Err()
		case events.TypeMessageEnd:
			fmt.Fprintln(c.App.Writer)
			printSources(c, sources)
			return nil
		}
	}
	return fmt.Errorf("stream ended before completion")
}

func printSources(c *cli.Context, sources []models.Document) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(c.App.Writer, "\nSources:")
	for i, doc := range sources {
		title := doc.Metadata.Title
		if title == "" {
			title = doc.Metadata.URL
		}
		fmt.Fprintf(c.App.Writer, "  [%d] %s %s\n", i+1, title, doc.Metadata.URL)
	}
}

func printIngested(c *cli.Context, res *ingestion.Result) {
	fmt.Fprintf(c.App.Writer, "Ingested %q as %s (%d chunks)\n", res.Title, res.FileID, res.Chunks)
}
