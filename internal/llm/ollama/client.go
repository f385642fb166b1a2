package ollama

import (
	"context"
	"fmt"

	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

type Client struct {
	Model   llms.Model
	ModelID string
	Retry   llm.RetryPolicy
}

func NewClient(serverURL string, model string) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}

	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}

	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	return &Client{Model: client, ModelID: model, Retry: llm.DefaultRetryPolicy}, nil
}

func callOptions(request llm.LLMRequest) []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(request.Temperature)}
	if request.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(request.MaxTokens))
	}
	return opts
}

func (c *Client) InvokeModel(ctx context.Context, request llm.LLMRequest) (*llm.LLMResponse, error) {
	content, err := llms.GenerateFromSinglePrompt(ctx, c.Model, request.Prompt, callOptions(request)...)
	if err != nil {
		return nil, fmt.Errorf("unable to invoke ollama model %s: %w", c.ModelID, err)
	}

	return &llm.LLMResponse{Content: content, StopReason: "stop"}, nil
}

func (c *Client) InvokeModelWithRetry(ctx context.Context, request llm.LLMRequest) (*llm.LLMResponse, error) {
	return llm.Retry(ctx, c.Retry, func(ctx context.Context) (*llm.LLMResponse, error) {
		return c.InvokeModel(ctx, request)
	})
}

func (c *Client) InvokeModelStream(ctx context.Context, request llm.LLMRequest, callback llm.StreamCallback) (*llm.LLMResponse, error) {
	opts := append(callOptions(request), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 || callback == nil {
			return nil
		}
		return callback(string(chunk))
	}))

	content, err := llms.GenerateFromSinglePrompt(ctx, c.Model, request.Prompt, opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama stream error: %w", err)
	}

	return &llm.LLMResponse{Content: content, StopReason: "stop"}, nil
}
