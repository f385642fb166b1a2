package provider

import (
	"context"
	"fmt"

	"github.com/schilling3003/Perplexica/internal/embedding"
	"github.com/schilling3003/Perplexica/internal/models"
)

const FilesEngine = "file"

// ChunkSearcher runs a vector similarity search over uploaded file chunks.
type ChunkSearcher interface {
	SearchUploads(ctx context.Context, vector []float32, fileIDs []string, limit int) ([]models.Document, error)
}

// Files searches the chunks of the files attached to one request.
type Files struct {
	searcher ChunkSearcher
	embedder embedding.Embedder
	fileIDs  []string
	limit    int
}

func NewFiles(searcher ChunkSearcher, embedder embedding.Embedder, fileIDs []string, limit int) *Files {
	if limit <= 0 {
		limit = 10
	}
	return &Files{searcher: searcher, embedder: embedder, fileIDs: fileIDs, limit: limit}
}

func (f *Files) Name() string {
	return FilesEngine
}

func (f *Files) Fetch(ctx context.Context, query string) ([]models.Document, error) {
	if len(f.fileIDs) == 0 {
		return []models.Document{}, nil
	}

	vector, err := f.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return f.searcher.SearchUploads(ctx, vector, f.fileIDs, f.limit)
}
