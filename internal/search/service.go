package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/agent"
	"github.com/schilling3003/Perplexica/internal/embedding"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/schilling3003/Perplexica/internal/models"
	"github.com/schilling3003/Perplexica/internal/restaurant"
)

var (
	ErrMissingInput            = errors.New("Missing focus mode or query")
	ErrInvalidFocusMode        = errors.New("Invalid focus mode")
	ErrInvalidOptimizationMode = errors.New("Invalid optimization mode")
)

// Handlers resolves focus mode names to handlers.
type Handlers interface {
	Lookup(name string) (focus.Mode, agent.Handler, error)
}

// RestaurantEvaluator runs the restaurant evaluation for a structured record.
type RestaurantEvaluator interface {
	SearchAndEvaluateRestaurant(ctx context.Context, rec restaurant.Record, history []models.ChatTurn, mode focus.OptimizationMode, model llm.LLMClient, embedder embedding.Embedder) events.Stream
}

type Request struct {
	FocusMode        string            `json:"focusMode"`
	Query            string            `json:"query"`
	History          []models.ChatTurn `json:"history"`
	OptimizationMode string            `json:"optimizationMode"`
	Files            []string          `json:"files"`
	ChatModel        llm.ModelSpec     `json:"chatModel"`
}

// Service validates transport requests and runs them through the focus mode
// registry. Every transport goes through it.
type Service struct {
	handlers   Handlers
	restaurant RestaurantEvaluator
	models     llm.Resolver
	embedder   embedding.Embedder
	logger     *zerolog.Logger
}

func NewService(handlers Handlers, restaurant RestaurantEvaluator, models llm.Resolver, embedder embedding.Embedder, logger *zerolog.Logger) *Service {
	return &Service{
		handlers:   handlers,
		restaurant: restaurant,
		models:     models,
		embedder:   embedder,
		logger:     logger,
	}
}

// Stream validates req and starts the pipeline. Validation failures are
// returned as errors; pipeline failures arrive on the stream.
func (s *Service) Stream(ctx context.Context, req Request) (focus.Mode, events.Stream, error) {
	if strings.TrimSpace(req.FocusMode) == "" || strings.TrimSpace(req.Query) == "" {
		return "", nil, ErrMissingInput
	}

	mode, handler, err := s.handlers.Lookup(req.FocusMode)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidFocusMode, err)
	}

	optimization, err := focus.ParseOptimizationMode(req.OptimizationMode)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidOptimizationMode, err)
	}

	model, err := s.resolveModel(ctx, req.ChatModel)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info().
		Str("focus_mode", string(mode)).
		Str("optimization_mode", string(optimization)).
		Int("history", len(req.History)).
		Int("files", len(req.Files)).
		Msg("Search started")

	stream := handler.SearchAndAnswer(ctx, agent.Request{
		Query:            req.Query,
		History:          req.History,
		OptimizationMode: optimization,
		Files:            req.Files,
	}, model, s.embedder)
	return mode, stream, nil
}

// Search runs req to completion. The returned error covers validation only;
// pipeline failures are reported in Result.Err.
func (s *Service) Search(ctx context.Context, req Request) (events.Result, error) {
	_, stream, err := s.Stream(ctx, req)
	if err != nil {
		return events.Result{}, err
	}
	return events.Collect(stream), nil
}

// EvaluateRestaurant starts a restaurant evaluation.
func (s *Service) EvaluateRestaurant(ctx context.Context, rec restaurant.Record, history []models.ChatTurn, optimizationMode string, spec llm.ModelSpec) (events.Stream, error) {
	if s.restaurant == nil {
		return nil, fmt.Errorf("%w: restaurant evaluation is not configured", ErrInvalidFocusMode)
	}

	rec, err := rec.Validate()
	if err != nil {
		return nil, err
	}

	optimization, err := focus.ParseOptimizationMode(optimizationMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptimizationMode, err)
	}

	model, err := s.resolveModel(ctx, spec)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("restaurant", rec.RestaurantName).Msg("Restaurant evaluation started")
	return s.restaurant.SearchAndEvaluateRestaurant(ctx, rec, history, optimization, model, s.embedder), nil
}

func (s *Service) resolveModel(ctx context.Context, spec llm.ModelSpec) (llm.LLMClient, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	model, err := s.models.Resolve(ctx, spec)
	if err != nil {
		return nil, models.NewError(models.KindModelError, "failed to load chat model", err)
	}
	return model, nil
}

// IsValidationError reports whether err means the caller sent a bad request.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingInput) ||
		errors.Is(err, ErrInvalidFocusMode) ||
		errors.Is(err, ErrInvalidOptimizationMode) ||
		errors.Is(err, llm.ErrMissingCustomEndpoint) ||
		errors.Is(err, models.ErrInvalidQueryFormat)
}
