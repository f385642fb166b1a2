package config

// FocusConfig is the complete focus mode configuration loaded from YAML.
type FocusConfig struct {
	Profiles   map[string]ProfileConfig `yaml:"profiles"`
	Summarizer SummarizerConfig         `yaml:"summarizer"`
	Restaurant RestaurantConfig         `yaml:"restaurant"`
	Modes      map[string]ModeConfig    `yaml:"focus_modes"`
}

// ModeConfig describes one focus mode
type ModeConfig struct {
	ActiveEngines        []string `yaml:"active_engines"`
	Rerank               bool     `yaml:"rerank"`
	RerankThreshold      float64  `yaml:"rerank_threshold"`
	SearchWeb            bool     `yaml:"search_web"`
	Summarizer           bool     `yaml:"summarizer"`
	QueryGeneratorPrompt string   `yaml:"query_generator_prompt"`
	ResponsePrompt       string   `yaml:"response_prompt"`
}

type ProfileConfig struct {
	MaxEngines   int     `yaml:"max_engines"`
	MaxDocuments int     `yaml:"max_documents"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
}

// SummarizerConfig drives the link summarizer used when a query names URLs
type SummarizerConfig struct {
	Prompt          string `yaml:"prompt"`
	MaxLinks        int    `yaml:"max_links"`
	MaxContentChars int    `yaml:"max_content_chars"`
}

// RestaurantConfig holds the restaurant evaluation prompts
type RestaurantConfig struct {
	ExtractionPrompt string `yaml:"extraction_prompt"`
	EvaluationPrompt string `yaml:"evaluation_prompt"`
}
