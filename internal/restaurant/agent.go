package restaurant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/agent"
	"github.com/schilling3003/Perplexica/internal/embedding"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/history"
	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/schilling3003/Perplexica/internal/models"
)

const (
	StatusSearching  = "Searching for restaurant information..."
	StatusAnalyzing  = "Analyzing restaurant information..."
	StatusEvaluating = "Evaluating restaurant fit..."
)

var errStreamClosed = errors.New("event stream closed")

type Options struct {
	// Search runs the web research for the restaurant.
	Search           *agent.Agent
	ExtractionPrompt string
	EvaluationPrompt string
	Logger           *zerolog.Logger
}

// Agent researches a restaurant, extracts a profile and scores its fit for a
// specialty cheese program.
type Agent struct {
	search     *agent.Agent
	extraction *template.Template
	evaluation *template.Template
	logger     *zerolog.Logger
}

type extractionData struct {
	RestaurantName string
	Address        string
	ChatHistory    string
	RawInfo        string
}

type evaluationData struct {
	Context string
}

func New(opts Options) (*Agent, error) {
	if opts.Search == nil {
		return nil, fmt.Errorf("restaurant agent requires a search agent")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	extraction, err := parse("extraction", opts.ExtractionPrompt)
	if err != nil {
		return nil, err
	}
	evaluation, err := parse("evaluation", opts.EvaluationPrompt)
	if err != nil {
		return nil, err
	}

	return &Agent{
		search:     opts.Search,
		extraction: extraction,
		evaluation: evaluation,
		logger:     opts.Logger,
	}, nil
}

func parse(name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s prompt is required", name)
	}
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	return tmpl, nil
}

func (a *Agent) Mode() focus.Mode {
	return focus.RestaurantSearch
}

// SearchAndAnswer parses the query as a restaurant record and evaluates it.
func (a *Agent) SearchAndAnswer(ctx context.Context, req agent.Request, model llm.LLMClient, embedder embedding.Embedder) events.Stream {
	return events.Run(ctx, func(ctx context.Context, em *events.Emitter) error {
		rec, err := ParseQuery(req.Query)
		if err != nil {
			return err
		}
		return a.run(ctx, em, rec, req, model, embedder)
	})
}

func (a *Agent) SearchAndEvaluateRestaurant(ctx context.Context, rec Record, chatHistory []models.ChatTurn, mode focus.OptimizationMode, model llm.LLMClient, embedder embedding.Embedder) events.Stream {
	return events.Run(ctx, func(ctx context.Context, em *events.Emitter) error {
		rec, err := rec.Validate()
		if err != nil {
			return err
		}
		return a.run(ctx, em, rec, agent.Request{History: chatHistory, OptimizationMode: mode}, model, embedder)
	})
}

func (a *Agent) run(ctx context.Context, em *events.Emitter, rec Record, req agent.Request, model llm.LLMClient, embedder embedding.Embedder) error {
	started := time.Now()
	logger := a.logger.With().
		Str("restaurant", rec.RestaurantName).
		Str("address", rec.Address).
		Logger()

	em.Status(StatusSearching)
	research, err := a.research(ctx, em, rec, req, model, embedder)
	if err != nil {
		logger.Error().Err(err).Msg("Restaurant search failed")
		return err
	}

	em.Status(StatusAnalyzing)
	profile := a.search.Profile(req.OptimizationMode)
	chatHistory := history.Format(req.History)

	prompt, err := render(a.extraction, extractionData{
		RestaurantName: rec.RestaurantName,
		Address:        rec.Address,
		ChatHistory:    chatHistory,
		RawInfo:        research,
	})
	if err != nil {
		return models.NewError(models.KindProcessingError, "failed to build extraction prompt", err)
	}

	extracted, err := model.InvokeModel(ctx, llm.LLMRequest{
		Prompt:      prompt,
		MaxTokens:   profile.MaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return modelError(ctx, "failed to extract restaurant information", err)
	}
	if _, ok := ParseProfile(extracted.Content); !ok {
		logger.Warn().Msg("Extraction did not contain tagged sections")
	}

	em.Status(StatusEvaluating)
	prompt, err = render(a.evaluation, evaluationData{Context: extracted.Content})
	if err != nil {
		return models.NewError(models.KindProcessingError, "failed to build evaluation prompt", err)
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
		if errors.Is(err, errStreamClosed) {
			return err
		}
		return modelError(ctx, "failed to evaluate restaurant", err)
	}

	logger.Info().Dur("duration", time.Since(started)).Msg("Restaurant evaluated")
	return nil
}

// research runs the web search pipeline and returns its concatenated answer.
// Status and sources events are forwarded to em.
func (a *Agent) research(ctx context.Context, em *events.Emitter, rec Record, req agent.Request, model llm.LLMClient, embedder embedding.Embedder) (string, error) {
	sub := agent.Request{
		Query:            SearchQuery(rec),
		History:          req.History,
		OptimizationMode: req.OptimizationMode,
		Files:            req.Files,
	}

	var info strings.Builder
	for ev := range a.search.SearchAndAnswer(ctx, sub, model, embedder) {
		switch ev.Type {
		case events.TypeStatus:
			em.Status(ev.Text)
		case events.TypeSources:
			em.Sources(ev.Sources)
		case events.TypeResponse:
			info.WriteString(ev.Text)
		case events.TypeError:
			return "", ev.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if strings.TrimSpace(info.String()) == "" {
		return "", models.NewError(models.KindNoInformationFound, "No information found for the restaurant", nil)
	}
	return info.String(), nil
}

// SearchQuery is the research question sent to the web search pipeline.
func SearchQuery(rec Record) string {
	return fmt.Sprintf("Find detailed information about %s restaurant at %s. Include details about their menu, cuisine style, atmosphere, and customer reviews.",
		rec.RestaurantName, rec.Address)
}

func render(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func modelError(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return models.NewError(models.KindModelError, msg, err)
}
