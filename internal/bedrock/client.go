package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type Options struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. a VPC interface endpoint.
	Endpoint string
	// MaxAttempts bounds SDK level retries; zero keeps the SDK default.
	MaxAttempts int
}

// NewRuntimeClient builds a Bedrock runtime client from the default AWS
// credential chain. Chat and embedding clients share it.
func NewRuntimeClient(ctx context.Context, opts Options) (*bedrockruntime.Client, error) {
	load := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.MaxAttempts > 0 {
		load = append(load, config.WithRetryMaxAttempts(opts.MaxAttempts))
	}

	cfg, err := config.LoadDefaultConfig(ctx, load...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}
