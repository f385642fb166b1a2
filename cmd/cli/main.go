package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "perplexica",
		Usage: "Search assistant with focus modes, restaurant evaluation and a local file store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Answer a query and stream the response",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "focus-mode",
						Aliases: []string{"f"},
						Usage:   "Focus mode (webSearch, academicSearch, redditSearch, youtubeSearch, wolframAlphaSearch, writingAssistant, restaurantSearch)",
						Value:   "webSearch",
					},
					&cli.StringFlag{
						Name:    "optimization-mode",
						Aliases: []string{"o"},
						Usage:   "speed, balanced or quality",
						Value:   "balanced",
					},
					&cli.StringSliceFlag{
						Name:  "file",
						Usage: "Uploaded file id to search (repeatable)",
					},
				},
			},
			{
				Name:   "restaurant",
				Usage:  "Research and score a restaurant",
				Action: restaurantCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Restaurant name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "address",
						Aliases:  []string{"a"},
						Usage:    "Restaurant address",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "optimization-mode",
						Aliases: []string{"o"},
						Usage:   "speed, balanced or quality",
						Value:   "balanced",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest .txt, .md and .html files into the file store",
				ArgsUsage: "[files...]",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "watch",
						Aliases: []string{"w"},
						Usage:   "Keep running and ingest files created in this directory",
					},
					&cli.DurationFlag{
						Name:  "settle",
						Usage: "Quiet period before a new file is ingested",
						Value: 500 * time.Millisecond,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	log.Logger = log.Logger.Level(level)
	return nil
}
