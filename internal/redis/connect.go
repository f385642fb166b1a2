package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const maxBackoff = 16 * time.Second

type Options struct {
	Addr     string
	Password string
	DB       int
	// MaxRetries is the number of ping attempts; values below one mean one.
	MaxRetries int
}

// Connect returns a client once Redis answers a ping. The wait between
// attempts doubles from one second up to maxBackoff.
func Connect(ctx context.Context, opts Options, logger *zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})

	attempts := max(opts.MaxRetries, 1)
	var err error
	for i := range attempts {
		if i > 0 {
			wait := backoff(i)
			logger.Info().Dur("backoff", wait).Msg("Waiting before Redis retry")
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		if err = client.Ping(ctx).Err(); err == nil {
			logger.Info().Str("addr", opts.Addr).Int("attempts", i+1).Msg("Redis connected")
			return client, nil
		}

		logger.Warn().Err(err).Str("addr", opts.Addr).Int("attempt", i+1).Int("max_attempts", attempts).Msg("Redis ping failed")
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to Redis at %s after %d attempts: %w", opts.Addr, attempts, err)
}

func backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	wait := time.Second << uint(attempt-1)
	if wait <= 0 || wait > maxBackoff {
		return maxBackoff
	}
	return wait
}
