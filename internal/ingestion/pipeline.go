package ingestion

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/database"
	"github.com/schilling3003/Perplexica/internal/embedding"
)

const BatchSize = 25

// UploadStore persists an upload with its embedded chunks atomically.
type UploadStore interface {
	CreateUpload(ctx context.Context, upload *database.Upload, chunks []database.UploadChunk) error
}

type Result struct {
	FileID string `json:"fileId"`
	Title  string `json:"title"`
	Chunks int    `json:"chunks"`
}

type Pipeline struct {
	parser   *Parser
	chunker  *Chunker
	embedder embedding.Embedder
	store    UploadStore
	pool     *ants.Pool
	logger   *zerolog.Logger
}

// NewPipeline embeds batches on a pool of workers goroutines. Call Release
// when done.
func NewPipeline(parser *Parser, chunker *Chunker, embedder embedding.Embedder, store UploadStore, workers int, logger *zerolog.Logger) (*Pipeline, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}

	return &Pipeline{
		parser:   parser,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		pool:     pool,
		logger:   logger,
	}, nil
}

func (p *Pipeline) Release() {
	p.pool.Release()
}

func (p *Pipeline) IngestFile(ctx context.Context, path string) (*Result, error) {
	doc, err := p.parser.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	return p.ingest(ctx, doc)
}

// IngestBytes ingests an uploaded file held in memory.
func (p *Pipeline) IngestBytes(ctx context.Context, filename string, data []byte) (*Result, error) {
	doc, err := p.parser.Parse(filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	return p.ingest(ctx, doc)
}

func (p *Pipeline) ingest(ctx context.Context, doc *Document) (*Result, error) {
	p.logger.Info().Str("file_id", doc.ID).Str("title", doc.Title).Msg("Document parsed")

	chunks := p.chunker.ChunkText(doc.Content)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s produced no chunks", doc.Filename)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := p.embedBatches(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	stored := make([]database.UploadChunk, len(chunks))
	for i, c := range chunks {
		stored[i] = database.UploadChunk{Index: c.Index, Content: c.Content, Embedding: vectors[i]}
	}

	upload := &database.Upload{ID: doc.ID, Title: doc.Title, Filename: doc.Filename, Content: doc.Content}
	if err := p.store.CreateUpload(ctx, upload, stored); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	p.logger.Info().
		Str("file_id", doc.ID).
		Int("chunks", len(chunks)).
		Msg("Ingestion complete")

	return &Result{FileID: doc.ID, Title: doc.Title, Chunks: len(chunks)}, nil
}

// embedBatches embeds texts in batches of BatchSize concurrently and returns
// vectors in input order. The first failure wins.
func (p *Pipeline) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for start := 0; start < len(texts); start += BatchSize {
		end := start + BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, batch := start, texts[start:end]

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			out, err := p.embedder.EmbedTexts(ctx, batch)
			if err != nil {
				setErr(err)
				return
			}
			if len(out) != len(batch) {
				setErr(fmt.Errorf("expected %d vectors, got %d", len(batch), len(out)))
				return
			}
			copy(vectors[start:], out)
			p.logger.Debug().Int("batch", start/BatchSize+1).Int("chunks", len(batch)).Msg("Batch embedded")
		})
		if err != nil {
			wg.Done()
			setErr(fmt.Errorf("failed to submit embedding batch: %w", err))
			break
		}
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}
