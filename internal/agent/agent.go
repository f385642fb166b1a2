package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/embedding"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/history"
	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/schilling3003/Perplexica/internal/models"
	"github.com/schilling3003/Perplexica/internal/provider"
	"github.com/schilling3003/Perplexica/internal/rerank"
)

const (
	StatusGeneratingQuery = "Generating search query..."
	StatusSearching       = "Searching the web..."
	StatusReadingLinks    = "Reading linked pages..."
	StatusRanking         = "Ranking sources..."
)

var errStreamClosed = errors.New("event stream closed")

// EngineResolver maps engine identifiers to providers.
type EngineResolver interface {
	Resolve(engines []string) []provider.Provider
}

type Options struct {
	Mode       focus.Mode
	Config     focus.SearchConfig
	Profiles   map[focus.OptimizationMode]focus.Profile
	Engines    EngineResolver
	Runner     *provider.Runner
	Files      provider.ChunkSearcher
	Summarizer SummarizerOptions
	Logger     *zerolog.Logger
	// Now is the clock used for the prompt date; defaults to time.Now.
	Now func() time.Time
}

// Agent is the meta search pipeline for one focus mode: formulate a query,
// fan out to engines, rerank, then stream a grounded answer.
type Agent struct {
	mode       focus.Mode
	config     focus.SearchConfig
	profiles   map[focus.OptimizationMode]focus.Profile
	engines    EngineResolver
	runner     *provider.Runner
	files      provider.ChunkSearcher
	formulator *formulator
	summarizer *summarizer
	response   *template.Template
	now        func() time.Time
	logger     *zerolog.Logger
}

func New(opts Options) (*Agent, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Config.SearchWeb && (opts.Engines == nil || opts.Runner == nil) {
		return nil, fmt.Errorf("%s: engine resolver and runner are required for web search", opts.Mode)
	}

	response, err := parseTemplate("response", opts.Config.ResponsePrompt)
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, fmt.Errorf("%s: response prompt is required", opts.Mode)
	}

	a := &Agent{
		mode:     opts.Mode,
		config:   opts.Config,
		profiles: opts.Profiles,
		engines:  opts.Engines,
		runner:   opts.Runner,
		files:    opts.Files,
		response: response,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.profiles == nil {
		a.profiles = focus.DefaultProfiles
	}

	if opts.Config.SearchWeb {
		tmpl, err := parseTemplate("query_generator", opts.Config.QueryGeneratorPrompt)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			return nil, fmt.Errorf("%s: query generator prompt is required for web search", opts.Mode)
		}
		a.formulator = &formulator{tmpl: tmpl, logger: opts.Logger}
	}

	if opts.Config.Summarizer && opts.Summarizer.Fetcher != nil && opts.Summarizer.Prompt != "" {
		tmpl, err := parseTemplate("summarizer", opts.Summarizer.Prompt)
		if err != nil {
			return nil, err
		}
		a.summarizer = &summarizer{
			fetcher:         opts.Summarizer.Fetcher,
			tmpl:            tmpl,
			maxLinks:        opts.Summarizer.MaxLinks,
			maxContentChars: opts.Summarizer.MaxContentChars,
			logger:          opts.Logger,
		}
	}

	return a, nil
}

func (a *Agent) Mode() focus.Mode {
	return a.mode
}

func (a *Agent) Config() focus.SearchConfig {
	return a.config
}

func (a *Agent) SearchAndAnswer(ctx context.Context, req Request, model llm.LLMClient, embedder embedding.Embedder) events.Stream {
	return events.Run(ctx, func(ctx context.Context, em *events.Emitter) error {
		return a.Run(ctx, em, req, model, embedder)
	})
}

// Run executes the pipeline against an existing emitter without terminating
// it, so other agents can compose it.
func (a *Agent) Run(ctx context.Context, em *events.Emitter, req Request, model llm.LLMClient, embedder embedding.Embedder) error {
	started := time.Now()
	profile := a.Profile(req.OptimizationMode)
	chatHistory := history.Format(req.History)

	logger := a.logger.With().
		Str("focus_mode", string(a.mode)).
		Str("optimization_mode", string(req.OptimizationMode)).
		Logger()

	var docs []models.Document
	if a.config.SearchWeb {
		var err error
		docs, err = a.searchDocuments(ctx, em, req, chatHistory, profile, model, embedder, &logger)
		if err != nil {
			return err
		}
		em.Sources(docs)
	}

	prompt, err := render(a.response, promptData{
		Query:       req.Query,
		ChatHistory: chatHistory,
		Context:     FormatContext(docs),
		Date:        a.now().Format(time.RFC1123),
	})
	if err != nil {
		return models.NewError(models.KindProcessingError, "failed to build answer prompt", err)
	}

	_, err = model.InvokeModelStream(ctx, llm.LLMRequest{
		Prompt:      prompt,
		MaxTokens:   profile.MaxTokens,
		Temperature: profile.Temperature,
	}, func(chunk string) error {
		if !em.Response(chunk) {
			return errStreamClosed
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, errStreamClosed) {
			return err
		}
		logger.Error().Err(err).Msg("Answer generation failed")
		return models.NewError(models.KindModelError, "failed to generate answer", err)
	}

	logger.Info().
		Int("sources", len(docs)).
		Dur("duration", time.Since(started)).
		Msg("Search completed")
	return nil
}

func (a *Agent) searchDocuments(ctx context.Context, em *events.Emitter, req Request, chatHistory string, profile focus.Profile, model llm.LLMClient, embedder embedding.Embedder, logger *zerolog.Logger) ([]models.Document, error) {
	em.Status(StatusGeneratingQuery)

	f, err := a.formulator.formulate(ctx, model, req.Query, chatHistory)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Error().Err(err).Msg("Query formulation failed")
		return nil, models.NewError(models.KindModelError, "failed to generate search query", err)
	}
	if f.Skip {
		logger.Info().Str("reason", f.Reason).Msg("Search not needed")
		return []models.Document{}, nil
	}

	if len(f.Links) > 0 && a.summarizer != nil {
		em.Status(StatusReadingLinks)
		return a.summarizer.summarize(ctx, model, f.Links, f.Question), nil
	}

	providers := a.engines.Resolve(profile.LimitEngines(a.config.ActiveEngines))
	if len(req.Files) > 0 && a.files != nil && embedder != nil {
		providers = append(providers, provider.NewFiles(a.files, embedder, req.Files, profile.MaxDocuments))
	}
	if len(providers) == 0 {
		return nil, models.NewError(models.KindProviderFailure, "no search engines available", fmt.Errorf("focus mode %s resolved no providers", a.mode))
	}

	em.Status(StatusSearching)
	results := a.runner.Run(ctx, f.Query, providers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs := provider.Merge(results)
	logger.Debug().
		Str("query", f.Query).
		Int("providers", len(providers)).
		Int("failed", provider.Failed(results)).
		Int("documents", len(docs)).
		Msg("Fan-out completed")

	if !a.config.Rerank {
		return docs, nil
	}

	em.Status(StatusRanking)
	if embedder == nil {
		return nil, models.NewError(models.KindEmbeddingError, "no embedding model configured", nil)
	}

	ranked, err := rerank.New(embedder).Rerank(ctx, dropEmpty(docs), f.Query, a.config.RerankThreshold, true)
	if err != nil {
		logger.Error().Err(err).Msg("Reranking failed")
		return nil, err
	}

	if profile.MaxDocuments > 0 && len(ranked) > profile.MaxDocuments {
		ranked = ranked[:profile.MaxDocuments]
	}
	return ranked, nil
}

// Profile resolves the generation limits for an optimization mode.
func (a *Agent) Profile(mode focus.OptimizationMode) focus.Profile {
	if p, ok := a.profiles[mode.Normalize()]; ok {
		return p
	}
	return focus.DefaultProfiles[focus.Balanced]
}

func dropEmpty(docs []models.Document) []models.Document {
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			out = append(out, d)
		}
	}
	return out
}
