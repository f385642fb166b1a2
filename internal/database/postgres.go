package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	// Dimensions is the embedding size of upload_chunks.embedding.
	Dimensions int
}

type DB struct {
	Pool       *pgxpool.Pool
	dimensions int
	logger     *zerolog.Logger
}

func New(ctx context.Context, config Config, logger *zerolog.Logger) (*DB, error) {
	pgPool, err := pgxpool.New(ctx, config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	dims := config.Dimensions
	if dims <= 0 {
		dims = 1024
	}

	return &DB{Pool: pgPool, dimensions: dims, logger: logger}, nil
}

// NewWithBackoff connects and pings, retrying with exponential backoff.
func NewWithBackoff(ctx context.Context, config Config, maxRetries int, logger *zerolog.Logger) (*DB, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			logger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("Retrying database connection")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		db, err := New(ctx, config, logger)
		if err != nil {
			lastErr = err
			continue
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			lastErr = err
			continue
		}
		return db, nil
	}

	return nil, fmt.Errorf("failed to connect to database after %d retries: %w", maxRetries, lastErr)
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func (db *DB) Close() {
	db.Pool.Close()
}
