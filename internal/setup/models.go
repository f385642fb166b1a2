package setup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/schilling3003/Perplexica/internal/bedrock"
	"github.com/schilling3003/Perplexica/internal/embedding"
	"github.com/schilling3003/Perplexica/internal/llm"
	llmbedrock "github.com/schilling3003/Perplexica/internal/llm/bedrock"
	"github.com/schilling3003/Perplexica/internal/llm/gpt"
	"github.com/schilling3003/Perplexica/internal/llm/ollama"
)

// ModelResolver builds chat model clients on demand and reuses them per
// provider, model and endpoint.
type ModelResolver struct {
	cfg *Config

	mu      sync.Mutex
	runtime *bedrockruntime.Client
	clients map[string]llm.LLMClient
}

func NewModelResolver(cfg *Config) *ModelResolver {
	return &ModelResolver{cfg: cfg, clients: make(map[string]llm.LLMClient)}
}

// Resolve returns the client for spec. Empty fields fall back to the
// configured default provider and its default model.
func (r *ModelResolver) Resolve(ctx context.Context, spec llm.ModelSpec) (llm.LLMClient, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	provider := spec.Provider
	if provider == "" {
		provider = r.cfg.DefaultProvider
	}
	model := spec.Model
	if model == "" {
		model = r.defaultModel(provider)
	}

	key := cacheKey(provider, model, spec.BaseURL, spec.APIKey)

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	client, err := r.create(ctx, provider, model, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	r.clients[key] = client
	return client, nil
}

func (r *ModelResolver) create(ctx context.Context, provider, model string, spec llm.ModelSpec) (llm.LLMClient, error) {
	switch provider {
	case llm.ProviderBedrock:
		runtime, err := r.bedrockRuntime(ctx)
		if err != nil {
			return nil, err
		}
		return llmbedrock.NewClient(runtime, model)
	case llm.ProviderOpenAI:
		if r.cfg.OpenAIBaseURL != "" {
			return gpt.NewCustomClient(r.cfg.OpenAIBaseURL, r.cfg.OpenAIKey, model)
		}
		return gpt.NewClient(r.cfg.OpenAIKey, model)
	case llm.ProviderCustomOpenAI:
		return gpt.NewCustomClient(spec.BaseURL, spec.APIKey, model)
	case llm.ProviderOllama:
		return ollama.NewClient(r.cfg.OllamaURL, model)
	default:
		return nil, fmt.Errorf("unsupported chat model provider: %s", provider)
	}
}

func (r *ModelResolver) defaultModel(provider string) string {
	switch provider {
	case llm.ProviderBedrock:
		return r.cfg.ClaudeModelID
	case llm.ProviderOpenAI, llm.ProviderCustomOpenAI:
		return r.cfg.OpenAIModelID
	case llm.ProviderOllama:
		return r.cfg.OllamaModel
	default:
		return ""
	}
}

// bedrockRuntime is called with r.mu held.
func (r *ModelResolver) bedrockRuntime(ctx context.Context) (*bedrockruntime.Client, error) {
	if r.runtime != nil {
		return r.runtime, nil
	}
	runtime, err := bedrock.NewRuntimeClient(ctx, bedrock.Options{
		Region:      r.cfg.AWSRegion,
		Endpoint:    r.cfg.BedrockEndpoint,
		MaxAttempts: r.cfg.AWSMaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	r.runtime = runtime
	return runtime, nil
}

// Embedder builds the configured embedding backend. Bedrock reuses the
// resolver's runtime client.
func (r *ModelResolver) Embedder(ctx context.Context) (embedding.Embedder, error) {
	switch r.cfg.EmbeddingProvider {
	case llm.ProviderBedrock:
		r.mu.Lock()
		runtime, err := r.bedrockRuntime(ctx)
		r.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return embedding.NewTitan(runtime, r.cfg.EmbeddingModelID, r.cfg.EmbeddingDimensions), nil
	case llm.ProviderOpenAI:
		return embedding.NewOpenAI(r.cfg.OpenAIBaseURL, r.cfg.OpenAIKey, r.cfg.EmbeddingModelID)
	case llm.ProviderOllama:
		return embedding.NewOllama(r.cfg.OllamaURL, r.cfg.EmbeddingModelID)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", r.cfg.EmbeddingProvider)
	}
}

// cacheKey identifies a client; the API key is hashed.
func cacheKey(provider, model, baseURL, apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return provider + "|" + model + "|" + baseURL + "|" + hex.EncodeToString(sum[:8])
}
