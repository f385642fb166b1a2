package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChain adapts a langchaingo embedder (OpenAI compatible or Ollama).
type LangChain struct {
	embedder embeddings.Embedder
}

func NewLangChain(embedder embeddings.Embedder) *LangChain {
	return &LangChain{embedder: embedder}
}

func NewOpenAI(baseURL, apiKey, model string) (*LangChain, error) {
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithEmbeddingModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai embedding client: %w", err)
	}
	return wrap(client)
}

func NewOllama(serverURL, model string) (*LangChain, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}

	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama embedding client: %w", err)
	}
	return wrap(client)
}

func wrap(client embeddings.EmbedderClient) (*LangChain, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewLangChain(embedder), nil
}

func (l *LangChain) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return l.embedder.EmbedQuery(ctx, text)
}

func (l *LangChain) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return l.embedder.EmbedDocuments(ctx, texts)
}
