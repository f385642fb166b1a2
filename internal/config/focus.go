package config

import (
	"fmt"
	"os"
	"text/template"

	"github.com/schilling3003/Perplexica/internal/focus"
	"go.yaml.in/yaml/v3"
)

func LoadFocusConfig() (*FocusConfig, error) {
	path := os.Getenv("FOCUS_CONFIG_PATH")
	if path == "" {
		path = "configs/focus_modes.yaml"
	}

	return LoadFocusConfigFromFile(path)
}

func LoadFocusConfigFromFile(path string) (*FocusConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg FocusConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse focus config %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *FocusConfig) {
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]ProfileConfig)
	}
	for mode, def := range focus.DefaultProfiles {
		p, ok := cfg.Profiles[string(mode)]
		if !ok {
			cfg.Profiles[string(mode)] = ProfileConfig{
				MaxEngines:   def.MaxEngines,
				MaxDocuments: def.MaxDocuments,
				MaxTokens:    def.MaxTokens,
				Temperature:  def.Temperature,
			}
			continue
		}
		if p.MaxDocuments == 0 {
			p.MaxDocuments = def.MaxDocuments
		}
		if p.MaxTokens == 0 {
			p.MaxTokens = def.MaxTokens
		}
		cfg.Profiles[string(mode)] = p
	}

	if cfg.Summarizer.MaxLinks == 0 {
		cfg.Summarizer.MaxLinks = 5
	}
	if cfg.Summarizer.MaxContentChars == 0 {
		cfg.Summarizer.MaxContentChars = 12000
	}
}

func (c *FocusConfig) Validate() error {
	for name := range c.Modes {
		if _, err := focus.ParseMode(name); err != nil {
			return fmt.Errorf("focus_modes: %w", err)
		}
	}
	for name := range c.Profiles {
		if _, err := focus.ParseOptimizationMode(name); err != nil || name == "" {
			return fmt.Errorf("profiles: invalid optimization mode %q", name)
		}
	}

	for _, mode := range focus.Modes {
		m, ok := c.Modes[string(mode)]
		if !ok {
			return fmt.Errorf("focus_modes: missing configuration for %s", mode)
		}
		if m.RerankThreshold < 0 || m.RerankThreshold > 1 {
			return fmt.Errorf("focus_modes.%s: rerank_threshold must be within [0, 1]", mode)
		}
		if m.ResponsePrompt == "" {
			return fmt.Errorf("focus_modes.%s: response_prompt is required", mode)
		}
		if m.SearchWeb && m.QueryGeneratorPrompt == "" {
			return fmt.Errorf("focus_modes.%s: query_generator_prompt is required when search_web is enabled", mode)
		}
		if err := checkTemplates(string(mode), m.QueryGeneratorPrompt, m.ResponsePrompt); err != nil {
			return err
		}
	}

	if c.Restaurant.ExtractionPrompt == "" || c.Restaurant.EvaluationPrompt == "" {
		return fmt.Errorf("restaurant: extraction_prompt and evaluation_prompt are required")
	}
	if err := checkTemplates("restaurant", c.Restaurant.ExtractionPrompt, c.Restaurant.EvaluationPrompt, c.Summarizer.Prompt); err != nil {
		return err
	}

	return nil
}

// SearchConfig converts a mode entry into the runtime config.
func (c *FocusConfig) SearchConfig(mode focus.Mode) (focus.SearchConfig, error) {
	m, ok := c.Modes[string(mode)]
	if !ok {
		return focus.SearchConfig{}, fmt.Errorf("no configuration for focus mode %s", mode)
	}

	engines := make([]string, len(m.ActiveEngines))
	copy(engines, m.ActiveEngines)

	return focus.SearchConfig{
		ActiveEngines:        engines,
		QueryGeneratorPrompt: m.QueryGeneratorPrompt,
		ResponsePrompt:       m.ResponsePrompt,
		Rerank:               m.Rerank,
		RerankThreshold:      m.RerankThreshold,
		SearchWeb:            m.SearchWeb,
		Summarizer:           m.Summarizer,
	}, nil
}

// ProfileSet returns the optimization profiles keyed by mode.
func (c *FocusConfig) ProfileSet() map[focus.OptimizationMode]focus.Profile {
	out := make(map[focus.OptimizationMode]focus.Profile, len(c.Profiles))
	for name, p := range c.Profiles {
		out[focus.OptimizationMode(name)] = focus.Profile{
			MaxEngines:   p.MaxEngines,
			MaxDocuments: p.MaxDocuments,
			MaxTokens:    p.MaxTokens,
			Temperature:  p.Temperature,
		}
	}
	return out
}

func checkTemplates(scope string, prompts ...string) error {
	for _, p := range prompts {
		if p == "" {
			continue
		}
		if _, err := template.New(scope).Parse(p); err != nil {
			return fmt.Errorf("%s: invalid prompt template: %w", scope, err)
		}
	}
	return nil
}
