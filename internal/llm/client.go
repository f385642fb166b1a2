package llm

import (
	"context"
)

//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks

// LLMClient is an interface for invoking LLM models
// This allows mocking in tests without making real API calls
type LLMClient interface {
	InvokeModel(ctx context.Context, request LLMRequest) (*LLMResponse, error)
	InvokeModelWithRetry(ctx context.Context, request LLMRequest) (*LLMResponse, error)
	// InvokeModelStream calls callback once per generated increment and returns
	// the full response once the model stops.
	InvokeModelStream(ctx context.Context, request LLMRequest, callback StreamCallback) (*LLMResponse, error)
}

// Resolver picks the model for a request. A zero ModelSpec selects the
// process default.
type Resolver interface {
	Resolve(ctx context.Context, spec ModelSpec) (LLMClient, error)
}
