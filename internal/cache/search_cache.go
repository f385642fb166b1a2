package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/schilling3003/Perplexica/internal/models"
)

// SearchCache stores provider results keyed by engine and query.
type SearchCache interface {
	Get(ctx context.Context, engine, query string) ([]models.Document, bool, error)
	Set(ctx context.Context, engine, query string, docs []models.Document) error
	Clear(ctx context.Context) (int, error)
}

type RedisSearchCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSearchCache(client *redis.Client, prefix string, ttl time.Duration) *RedisSearchCache {
	return &RedisSearchCache{client: client, prefix: prefix, ttl: ttl}
}

// Key normalizes the query so trivially different spellings share an entry.
func Key(prefix, engine, query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(normalized))
	if engine == "" {
		engine = "all"
	}
	return prefix + engine + ":" + hex.EncodeToString(sum[:16])
}

func (c *RedisSearchCache) Get(ctx context.Context, engine, query string) ([]models.Document, bool, error) {
	data, err := c.client.Get(ctx, Key(c.prefix, engine, query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read search cache: %w", err)
	}

	var docs []models.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached results: %w", err)
	}
	return docs, true, nil
}

func (c *RedisSearchCache) Set(ctx context.Context, engine, query string, docs []models.Document) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	if err := c.client.Set(ctx, Key(c.prefix, engine, query), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write search cache: %w", err)
	}
	return nil
}

// Clear deletes every key under the prefix and reports how many were removed.
func (c *RedisSearchCache) Clear(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan search cache: %w", err)
		}

		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete cache keys: %w", err)
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
