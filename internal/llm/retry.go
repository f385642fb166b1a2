package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"
)

type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:   3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     12 * time.Second,
}

// Retry runs invoke until it succeeds, fails with a non-retryable error, or
// the policy is exhausted.
func Retry(ctx context.Context, policy RetryPolicy, invoke func(ctx context.Context) (*LLMResponse, error)) (*LLMResponse, error) {
	var lastErr error

	attempts := policy.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		response, err := invoke(ctx)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt == attempts-1 {
			break
		}

		delay := Backoff(attempt, policy.InitialDelay, policy.MaxDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries %d exceeded: %w", attempts, lastErr)
}

// apiError is satisfied by AWS SDK (smithy) errors.
type apiError interface {
	ErrorCode() string
}

var retryableCodes = map[string]bool{
	"ThrottlingException":         true,
	"TooManyRequestsException":    true,
	"ServiceUnavailableException": true,
	"InternalServerException":     true,
	"ModelNotReadyException":      true,
}

// Fallback markers for clients that only surface text, e.g. openai-go
// status lines.
var retryableMarkers = []string{
	"ThrottlingException",
	"ServiceUnavailableException",
	"Rate exceeded",
	"429 Too Many Requests",
	"500 Internal Server Error",
	"502 Bad Gateway",
	"503 Service Unavailable",
	"connection reset",
}

// IsRetryableError reports throttling, transient server faults and network
// timeouts. Cancellation never retries.
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var api apiError
	if errors.As(err, &api) {
		return retryableCodes[api.ErrorCode()]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := err.Error()
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Backoff is exponential in attempt, capped at maxDelay, with +/-20% jitter.
func Backoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	backoff := float64(initialDelay) * math.Pow(2, float64(attempt))

	if backoff > float64(maxDelay) {
		backoff = float64(maxDelay)
	}

	jitter := backoff * 0.2 * (2*rand.Float64() - 1)
	backoff += jitter

	return time.Duration(backoff)
}
