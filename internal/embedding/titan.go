package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/panjf2000/ants/v2"
)

const (
	DefaultTitanModel = "amazon.titan-embed-text-v2:0"

	defaultTitanConcurrency = 8
)

type invokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Titan embeds text with Amazon Titan on Bedrock. The model takes a single
// input per call, so batches fan out over at most Concurrency calls.
type Titan struct {
	runtime     invokeAPI
	modelID     string
	dimensions  int
	Concurrency int
}

func NewTitan(runtime invokeAPI, modelID string, dimensions int) *Titan {
	if modelID == "" {
		modelID = DefaultTitanModel
	}
	return &Titan{
		runtime:     runtime,
		modelID:     modelID,
		dimensions:  dimensions,
		Concurrency: defaultTitanConcurrency,
	}
}

func (t *Titan) EmbedText(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanRequest{InputText: text, Dimensions: t.dimensions, Normalize: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal titan request: %w", err)
	}

	output, err := t.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(t.modelID),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke titan embeddings: %w", err)
	}

	var response titanResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal titan response: %w", err)
	}
	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("titan returned an empty embedding")
	}

	return response.Embedding, nil
}

// EmbedTexts returns vectors in input order. The first failure cancels the
// calls not yet started.
func (t *Titan) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	pool, err := ants.NewPool(min(max(t.Concurrency, 1), len(texts)))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, text := range texts {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vector, err := t.EmbedText(ctx, text)
			if err != nil {
				fail(fmt.Errorf("text %d: %w", i, err))
				return
			}
			vectors[i] = vector
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("failed to schedule text %d: %w", i, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}
