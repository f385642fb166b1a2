package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/schilling3003/Perplexica/internal/models"
)

// CreateUpload stores an upload and all of its chunks in one transaction.
func (db *DB) CreateUpload(ctx context.Context, upload *Upload, chunks []UploadChunk) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO uploads (id, title, filename, content, created_at) VALUES ($1, $2, $3, $4, NOW())`,
		upload.ID, upload.Title, upload.Filename, upload.Content)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(
			`INSERT INTO upload_chunks (upload_id, chunk_index, content, embedding) VALUES ($1, $2, $3, $4)`,
			upload.ID, chunk.Index, chunk.Content, pgvector.NewVector(chunk.Embedding))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.logger.Info().
		Str("file_id", upload.ID).
		Int("chunks", len(chunks)).
		Msg("Upload stored")
	return nil
}

func (db *DB) GetUploads(ctx context.Context) ([]Upload, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, title, filename, created_at FROM uploads ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch uploads: %w", err)
	}
	defer rows.Close()

	uploads := []Upload{}
	for rows.Next() {
		var u Upload
		if err := rows.Scan(&u.ID, &u.Title, &u.Filename, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return uploads, nil
}

func (db *DB) DeleteUpload(ctx context.Context, id string) error {
	result, err := db.Pool.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload %s: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		db.logger.Warn().Str("file_id", id).Msg("Upload not found")
	} else {
		db.logger.Info().Str("file_id", id).Msg("Upload deleted")
	}
	return nil
}

// SearchUploads returns the chunks of the given uploads closest to vector by
// cosine distance.
func (db *DB) SearchUploads(ctx context.Context, vector []float32, fileIDs []string, limit int) ([]models.Document, error) {
	query := `
	SELECT
	  c.content,
	  u.id,
	  u.title,
	  c.embedding <=> $1 AS distance
	FROM upload_chunks c
	JOIN uploads u ON u.id = c.upload_id
	WHERE c.upload_id = ANY($2)
	ORDER BY distance ASC
	LIMIT $3`

	rows, err := db.Pool.Query(ctx, query, pgvector.NewVector(vector), fileIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query upload chunks: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var (
			content, id, title string
			distance           float64
		)
		if err := rows.Scan(&content, &id, &title, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		docs = append(docs, models.Document{
			Content:  content,
			Metadata: models.Metadata{Title: title, URL: "file://" + id},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}
