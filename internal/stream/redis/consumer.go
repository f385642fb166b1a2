package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/search"
)

const resultStreamMaxLen = 10000

// JobHandler runs one decoded search job.
type JobHandler interface {
	Handle(ctx context.Context, job search.Job) (events.Result, error)
}

// Consumer reads search jobs from a stream as part of a consumer group and
// runs them on a bounded pool. The client is owned by the caller.
type Consumer struct {
	client  *redis.Client
	cfg     Config
	handler JobHandler
	pool    *ants.Pool
	wg      sync.WaitGroup
	logger  *zerolog.Logger

	// inflight holds entry ids running on this consumer; reclaim returns
	// them too once they outlive ClaimIdle.
	inflight sync.Map
}

func NewConsumer(client *redis.Client, cfg Config, handler JobHandler, logger *zerolog.Logger) (*Consumer, error) {
	cfg = cfg.withDefaults()
	if cfg.Consumer == "" {
		return nil, errors.New("consumer name is required")
	}

	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		pool:    pool,
		logger:  logger,
	}, nil
}

func (c *Consumer) Setup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Start blocks until ctx ends. Entries left pending by a dead consumer for
// longer than ClaimIdle are taken over before new ones are read, and again
// every ClaimIdle.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().
		Str("stream", c.cfg.Stream).
		Str("group", c.cfg.Group).
		Str("consumer", c.cfg.Consumer).
		Int("concurrency", c.cfg.Concurrency).
		Msg("Consumer started")

	var lastClaim time.Time
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if c.cfg.ClaimIdle > 0 && time.Since(lastClaim) >= c.cfg.ClaimIdle {
			lastClaim = time.Now()
			claimed, err := c.reclaim(ctx)
			if err != nil && ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("Failed to reclaim pending entries")
			}
			if len(claimed) > 0 {
				c.logger.Info().Int("entries", len(claimed)).Msg("Reclaimed pending entries")
			}
			c.dispatch(ctx, claimed)
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    int64(c.cfg.Concurrency),
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			c.logger.Error().Err(err).Msg("Failed to read from stream")
			continue
		}

		for _, s := range streams {
			c.dispatch(ctx, s.Messages)
		}
	}
}

// Stop waits for in-flight jobs and releases the pool. Call it after Start
// has returned.
func (c *Consumer) Stop() error {
	c.wg.Wait()
	c.pool.Release()
	return nil
}

// dispatch blocks while the pool is saturated. Entries already running here
// are skipped.
func (c *Consumer) dispatch(ctx context.Context, msgs []redis.XMessage) {
	for _, msg := range msgs {
		if _, running := c.inflight.LoadOrStore(msg.ID, struct{}{}); running {
			c.logger.Debug().Str("entry_id", msg.ID).Msg("Entry still running, skipping")
			continue
		}

		c.wg.Add(1)
		err := c.pool.Submit(func() {
			defer c.wg.Done()
			defer c.inflight.Delete(msg.ID)
			c.process(ctx, msg)
		})
		if err != nil {
			c.inflight.Delete(msg.ID)
			c.wg.Done()
			c.logger.Error().Err(err).Str("entry_id", msg.ID).Msg("Failed to schedule job")
		}
	}
}

func (c *Consumer) reclaim(ctx context.Context) ([]redis.XMessage, error) {
	var claimed []redis.XMessage
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.ClaimIdle,
			Start:    start,
			Count:    100,
		}).Result()
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, msgs...)
		if next == "0-0" || next == "" || len(msgs) == 0 {
			return claimed, nil
		}
		start = next
	}
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	started := time.Now()
	logger := c.logger.With().Str("entry_id", msg.ID).Logger()

	job, err := DecodeJob(msg.Values)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to decode job")
		c.finish(ctx, Outcome{EntryID: msg.ID, Status: StatusInvalid, Error: err.Error()})
		return
	}
	if job.ID == "" {
		job.ID = msg.ID
	}

	res, err := c.handler.Handle(ctx, job)
	if ctx.Err() != nil {
		// Left pending for another consumer to reclaim.
		logger.Warn().Str("job_id", job.ID).Msg("Job interrupted by shutdown")
		return
	}

	out := NewOutcome(job.ID, msg.ID, res, err, time.Since(started))
	if err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Str("status", string(out.Status)).Msg("Job finished with error")
	}
	c.finish(ctx, out)
}

// finish publishes the outcome and acks the entry. Jobs are acked whatever
// the outcome; failed searches are not retried.
func (c *Consumer) finish(ctx context.Context, out Outcome) {
	ctx = context.WithoutCancel(ctx)

	if c.cfg.ResultStream != "" {
		if err := c.publish(ctx, out); err != nil {
			c.logger.Error().Err(err).Str("entry_id", out.EntryID).Msg("Failed to publish outcome")
		}
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, out.EntryID).Err(); err != nil {
		c.logger.Error().Err(err).Str("entry_id", out.EntryID).Msg("Failed to ACK message")
	}
}

func (c *Consumer) publish(ctx context.Context, out Outcome) error {
	values, err := encode(out)
	if err != nil {
		return err
	}
	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.ResultStream,
		MaxLen: resultStreamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
}
