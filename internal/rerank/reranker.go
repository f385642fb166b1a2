package rerank

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/schilling3003/Perplexica/internal/embedding"
	"github.com/schilling3003/Perplexica/internal/models"
)

type Reranker struct {
	embedder embedding.Embedder
}

func New(embedder embedding.Embedder) *Reranker {
	return &Reranker{embedder: embedder}
}

// Rerank orders documents by cosine similarity to the query and keeps those
// scoring strictly above threshold. When disabled it returns documents as is.
func (r *Reranker) Rerank(ctx context.Context, documents []models.Document, query string, threshold float64, enabled bool) ([]models.Document, error) {
	if !enabled {
		return documents, nil
	}
	if len(documents) == 0 {
		return []models.Document{}, nil
	}

	contents := make([]string, len(documents))
	for i, doc := range documents {
		contents[i] = doc.Content
	}

	docVectors, err := r.embedder.EmbedTexts(ctx, contents)
	if err != nil {
		return nil, models.NewError(models.KindEmbeddingError, "failed to embed documents", err)
	}
	if len(docVectors) != len(documents) {
		return nil, models.NewError(models.KindEmbeddingError, "failed to embed documents",
			fmt.Errorf("expected %d vectors, got %d", len(documents), len(docVectors)))
	}

	queryVector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, models.NewError(models.KindEmbeddingError, "failed to embed query", err)
	}

	type scored struct {
		doc   models.Document
		score float64
	}

	kept := make([]scored, 0, len(documents))
	for i, vector := range docVectors {
		score, err := CosineSimilarity(queryVector, vector)
		if err != nil {
			return nil, models.NewError(models.KindEmbeddingError, "failed to score documents", err)
		}
		if score > threshold {
			kept = append(kept, scored{doc: documents[i], score: score})
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})

	result := make([]models.Document, len(kept))
	for i, s := range kept {
		result[i] = s.doc.WithScore(s.score)
	}
	return result, nil
}

// CosineSimilarity returns 0 when either vector has zero norm.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions differ: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
