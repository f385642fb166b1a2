package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/schilling3003/Perplexica/internal/search"
)

type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	if stream == "" {
		stream = DefaultStream
	}
	return &Producer{client: client, stream: stream}
}

// Publish appends job to the stream and returns the entry id.
func (p *Producer) Publish(ctx context.Context, job search.Job) (string, error) {
	values, err := encode(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish job: %w", err)
	}
	return id, nil
}

// Await blocks until the outcome of jobID shows up on resultStream or ctx
// ends. Only entries added after since (less a second of clock skew) are
// scanned, so call it with a time taken before Publish.
func (p *Producer) Await(ctx context.Context, resultStream, jobID string, since time.Time) (Outcome, error) {
	last := fmt.Sprintf("%d-0", since.Add(-time.Second).UnixMilli())

	for {
		streams, err := p.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{resultStream, last},
			Count:   50,
			Block:   defaultBlock,
		}).Result()
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return Outcome{}, fmt.Errorf("failed to read outcomes: %w", err)
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				last = msg.ID
				out, err := DecodeOutcome(msg.Values)
				if err != nil {
					continue
				}
				if out.JobID == jobID {
					return out, nil
				}
			}
		}
	}
}
