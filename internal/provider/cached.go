package provider

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/cache"
	"github.com/schilling3003/Perplexica/internal/models"
)

// Cached serves repeated queries from the search cache. Cache failures fall
// through to the wrapped provider.
type Cached struct {
	next   Provider
	cache  cache.SearchCache
	logger *zerolog.Logger
}

func NewCached(next Provider, c cache.SearchCache, logger *zerolog.Logger) *Cached {
	return &Cached{next: next, cache: c, logger: logger}
}

func (c *Cached) Name() string {
	return c.next.Name()
}

func (c *Cached) Fetch(ctx context.Context, query string) ([]models.Document, error) {
	docs, hit, err := c.cache.Get(ctx, c.Name(), query)
	if err != nil {
		c.logger.Warn().Err(err).Str("engine", c.Name()).Msg("Search cache read failed")
	}
	if hit {
		c.logger.Debug().Str("engine", c.Name()).Int("documents", len(docs)).Msg("Search cache hit")
		return docs, nil
	}

	docs, err = c.next.Fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, c.Name(), query, docs); err != nil {
		c.logger.Warn().Err(err).Str("engine", c.Name()).Msg("Search cache write failed")
	}
	return docs, nil
}
