package agent

import (
	"context"

	"github.com/schilling3003/Perplexica/internal/embedding"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/schilling3003/Perplexica/internal/models"
)

// Handler answers one query as a stream of events. Every focus mode is served
// by a Handler.
type Handler interface {
	SearchAndAnswer(ctx context.Context, req Request, model llm.LLMClient, embedder embedding.Embedder) events.Stream
}

type Request struct {
	Query            string
	History          []models.ChatTurn
	OptimizationMode focus.OptimizationMode
	// Files are upload IDs whose chunks join the search.
	Files []string
}
