package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/schilling3003/Perplexica/internal/llm"
)

// RuntimeAPI is the subset of the Bedrock runtime client used here.
type RuntimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

type Client struct {
	Runtime RuntimeAPI
	ModelID string
	Retry   llm.RetryPolicy
}

func NewClient(runtime RuntimeAPI, modelID string) (*Client, error) {
	if runtime == nil {
		return nil, fmt.Errorf("bedrock runtime client is required")
	}
	if modelID == "" {
		return nil, fmt.Errorf("bedrock model ID is required")
	}

	return &Client{
		Runtime: runtime,
		ModelID: modelID,
		Retry:   llm.DefaultRetryPolicy,
	}, nil
}
