package registry

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/agent"
	"github.com/schilling3003/Perplexica/internal/config"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/provider"
	"github.com/schilling3003/Perplexica/internal/restaurant"
)

// Deps are the shared collaborators handed to every focus mode handler.
type Deps struct {
	Engines agent.EngineResolver
	Runner  *provider.Runner
	// Files may be nil when no upload store is configured.
	Files   provider.ChunkSearcher
	Fetcher agent.LinkFetcher
	Logger  *zerolog.Logger
}

// ModeInfo describes a registered focus mode.
type ModeInfo struct {
	Mode   focus.Mode         `json:"mode"`
	Config focus.SearchConfig `json:"config"`
}

// Registry maps every focus mode to its handler. It is built once at startup
// and read concurrently afterwards.
type Registry struct {
	handlers   map[focus.Mode]agent.Handler
	configs    map[focus.Mode]focus.SearchConfig
	profiles   map[focus.OptimizationMode]focus.Profile
	restaurant *restaurant.Agent
}

func Build(cfg *config.FocusConfig, deps Deps) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("focus configuration is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	r := &Registry{
		handlers: make(map[focus.Mode]agent.Handler, len(focus.Modes)),
		configs:  make(map[focus.Mode]focus.SearchConfig, len(focus.Modes)),
		profiles: cfg.ProfileSet(),
	}

	summarizer := agent.SummarizerOptions{
		Fetcher:         deps.Fetcher,
		Prompt:          cfg.Summarizer.Prompt,
		MaxLinks:        cfg.Summarizer.MaxLinks,
		MaxContentChars: cfg.Summarizer.MaxContentChars,
	}

	for _, mode := range focus.Modes {
		sc, err := cfg.SearchConfig(mode)
		if err != nil {
			return nil, err
		}

		logger := deps.Logger.With().Str("component", "agent").Str("focus_mode", string(mode)).Logger()
		a, err := agent.New(agent.Options{
			Mode:       mode,
			Config:     sc,
			Profiles:   r.profiles,
			Engines:    deps.Engines,
			Runner:     deps.Runner,
			Files:      deps.Files,
			Summarizer: summarizer,
			Logger:     &logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build %s handler: %w", mode, err)
		}

		r.configs[mode] = sc
		if mode != focus.RestaurantSearch {
			r.handlers[mode] = a
			continue
		}

		ra, err := restaurant.New(restaurant.Options{
			Search:           a,
			ExtractionPrompt: cfg.Restaurant.ExtractionPrompt,
			EvaluationPrompt: cfg.Restaurant.EvaluationPrompt,
			Logger:           &logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build %s handler: %w", mode, err)
		}
		r.restaurant = ra
		r.handlers[mode] = ra
	}

	return r, nil
}

// Handler returns the handler for mode. The second value is false for modes
// that are not registered.
func (r *Registry) Handler(mode focus.Mode) (agent.Handler, bool) {
	h, ok := r.handlers[mode]
	return h, ok
}

// Lookup parses a raw focus mode name and returns its handler.
func (r *Registry) Lookup(name string) (focus.Mode, agent.Handler, error) {
	mode, err := focus.ParseMode(name)
	if err != nil {
		return "", nil, err
	}
	h, ok := r.handlers[mode]
	if !ok {
		return "", nil, fmt.Errorf("focus mode %s is not registered", mode)
	}
	return mode, h, nil
}

func (r *Registry) Restaurant() *restaurant.Agent {
	return r.restaurant
}

// Modes lists registered modes in declaration order.
func (r *Registry) Modes() []ModeInfo {
	out := make([]ModeInfo, 0, len(r.handlers))
	for _, mode := range focus.Modes {
		if _, ok := r.handlers[mode]; ok {
			out = append(out, ModeInfo{Mode: mode, Config: r.configs[mode]})
		}
	}
	return out
}

func (r *Registry) Profiles() map[focus.OptimizationMode]focus.Profile {
	return r.profiles
}
