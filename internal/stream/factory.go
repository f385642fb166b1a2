package stream

import (
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/stream/redis"
)

type Config struct {
	// Provider selects the queue backend; only redis is supported.
	Provider string
	Redis    redis.Config
}

// NewConsumer builds the consumer for cfg.Provider on top of an already
// connected client.
func NewConsumer(cfg Config, client *goredis.Client, handler redis.JobHandler, logger *zerolog.Logger) (Consumer, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "redis"
	}

	switch provider {
	case "redis":
		if client == nil {
			return nil, errors.New("redis client required")
		}
		consumer, err := redis.NewConsumer(client, cfg.Redis, handler, logger)
		if err != nil {
			return nil, err
		}
		return consumer, nil

	default:
		return nil, fmt.Errorf("unsupported stream provider: %s", cfg.Provider)
	}
}
