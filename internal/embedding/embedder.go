package embedding

import "context"

//go:generate mockgen -source=embedder.go -destination=mocks/mock_embedder.go -package=mocks

// Embedder maps text to vectors. EmbedTexts returns one vector per input, in
// input order.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
