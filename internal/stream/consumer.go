package stream

import "context"

// Consumer pulls queued search jobs and hands them to a handler until the
// context passed to Start ends.
type Consumer interface {
	Setup(ctx context.Context) error
	Start(ctx context.Context) error
	// Stop waits for jobs already running.
	Stop() error
}
