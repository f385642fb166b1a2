package llm

import "errors"

type LLMRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type LLMResponse struct {
	Content    string
	StopReason string
}

type StreamCallback func(chunk string) error

const (
	ProviderBedrock      = "bedrock"
	ProviderOpenAI       = "openai"
	ProviderCustomOpenAI = "custom_openai"
	ProviderOllama       = "ollama"
)

// ModelSpec identifies a chat model chosen by the caller.
type ModelSpec struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	BaseURL  string `json:"customOpenAIBaseURL,omitempty"`
	APIKey   string `json:"customOpenAIKey,omitempty"`
}

var ErrMissingCustomEndpoint = errors.New("Missing custom OpenAI base URL or key")

func (s ModelSpec) IsZero() bool {
	return s.Provider == "" && s.Model == ""
}

func (s ModelSpec) Validate() error {
	switch s.Provider {
	case "", ProviderBedrock, ProviderOpenAI, ProviderOllama:
		return nil
	case ProviderCustomOpenAI:
		if s.BaseURL == "" || s.APIKey == "" {
			return ErrMissingCustomEndpoint
		}
		return nil
	default:
		return errors.New("unsupported chat model provider: " + s.Provider)
	}
}
