package gpt

import (
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Client struct {
	Client  openai.Client
	ModelID string
}

func NewClient(apiKey string, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return newClient(model, option.WithAPIKey(apiKey))
}

// NewCustomClient targets any OpenAI compatible endpoint.
func NewCustomClient(baseURL string, apiKey string, model string) (*Client, error) {
	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("custom OpenAI base URL and key are required")
	}
	return newClient(model, option.WithBaseURL(baseURL), option.WithAPIKey(apiKey))
}

func newClient(model string, opts ...option.RequestOption) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("OpenAI model ID is required")
	}

	opts = append(opts, option.WithMaxRetries(3))

	return &Client{
		Client:  openai.NewClient(opts...),
		ModelID: model,
	}, nil
}
