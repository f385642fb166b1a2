package redis

import "time"

const (
	DefaultStream       = "search-requests"
	DefaultGroup        = "search-workers"
	DefaultResultStream = "search-results"

	defaultConcurrency = 4
	defaultBlock       = 2 * time.Second
)

// Config describes one consumer in a search worker group.
type Config struct {
	Stream   string
	Group    string
	Consumer string
	// ResultStream receives one Outcome per finished job. Empty disables
	// publishing.
	ResultStream string
	// Concurrency bounds the number of jobs running at once.
	Concurrency int
	// ClaimIdle is how long an entry may stay pending on another consumer
	// before it is taken over. Zero disables reclaiming.
	ClaimIdle time.Duration
	Block     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Block <= 0 {
		c.Block = defaultBlock
	}
	return c
}
