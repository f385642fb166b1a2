package setup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/schilling3003/Perplexica/internal/llm"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CHAT_STORE", "")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	t.Setenv("WORKER_CONCURRENCY", "")
	t.Setenv("CLAIM_IDLE", "")
	t.Setenv("RESULT_STREAM", "")

	cfg := LoadConfig()

	if cfg.ChatStore != "redis" {
		t.Errorf("expected redis chat store, got %s", cfg.ChatStore)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("expected 1h cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.EmbeddingDimensions != 1024 {
		t.Errorf("expected 1024 dimensions, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.WorkerConcurrency != 4 || cfg.ClaimIdle != 5*time.Minute || cfg.ResultStream != "search-results" {
		t.Errorf("unexpected queue defaults %d %s %s", cfg.WorkerConcurrency, cfg.ClaimIdle, cfg.ResultStream)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("CHAT_STORE", "postgres")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("UPLOAD_WORKERS", "8")
	t.Setenv("USE_DATABASE", "not-a-bool")
	t.Setenv("DB_NAME", "search")

	cfg := LoadConfig()

	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("expected 5m, got %s", cfg.CacheTTL)
	}
	if cfg.UploadWorkers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.UploadWorkers)
	}
	if cfg.UseDatabase {
		t.Error("invalid bool should fall back to false")
	}
	if !cfg.NeedsDatabase() {
		t.Error("postgres chat store needs the database")
	}
	if db := cfg.DatabaseConfig(); db.Database != "search" || db.Dimensions != cfg.EmbeddingDimensions {
		t.Errorf("unexpected database config %+v", db)
	}
}

func TestModelResolver(t *testing.T) {
	cfg := &Config{
		DefaultProvider: llm.ProviderOllama,
		OllamaURL:       "http://localhost:11434",
		OllamaModel:     "llama3.1",
		OpenAIModelID:   "gpt-4o-mini",
	}
	resolver := NewModelResolver(cfg)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, llm.ModelSpec{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := resolver.Resolve(ctx, llm.ModelSpec{Provider: llm.ProviderOllama, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected the default spec to reuse the cached client")
	}

	other, err := resolver.Resolve(ctx, llm.ModelSpec{Provider: llm.ProviderOllama, Model: "mistral"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other == first {
		t.Error("different models must not share a client")
	}

	custom, err := resolver.Resolve(ctx, llm.ModelSpec{Provider: llm.ProviderCustomOpenAI, BaseURL: "http://localhost:9000/v1", APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if custom == nil {
		t.Fatal("expected a custom client")
	}
}

func TestModelResolver_Errors(t *testing.T) {
	resolver := NewModelResolver(&Config{DefaultProvider: llm.ProviderOllama, OllamaModel: "llama3.1"})
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, llm.ModelSpec{Provider: llm.ProviderCustomOpenAI})
	if !errors.Is(err, llm.ErrMissingCustomEndpoint) {
		t.Errorf("expected missing endpoint error, got %v", err)
	}

	if _, err := resolver.Resolve(ctx, llm.ModelSpec{Provider: "gemini"}); err == nil {
		t.Error("expected unsupported provider error")
	}

	// OpenAI without a key fails at construction.
	if _, err := resolver.Resolve(ctx, llm.ModelSpec{Provider: llm.ProviderOpenAI, Model: "gpt-4o"}); err == nil {
		t.Error("expected missing key error")
	}
}

func TestNewChatStore(t *testing.T) {
	tests := []struct {
		store   string
		wantNil bool
		wantErr bool
	}{
		{store: "none", wantNil: true},
		{store: "redis", wantNil: true}, // no Redis connection
		{store: "mysql", wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			store, err := newChatStore(&Config{ChatStore: tt.store}, &Dependencies{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if (store == nil) != tt.wantNil {
				t.Errorf("unexpected store %v", store)
			}
		})
	}
}
