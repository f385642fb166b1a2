package redis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/models"
	"github.com/schilling3003/Perplexica/internal/search"
)

const payloadField = "payload"

type Status string

const (
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
	StatusDuplicate Status = "duplicate"
	StatusInvalid   Status = "invalid"
)

// Outcome reports how a queued job ended.
type Outcome struct {
	JobID      string           `json:"jobId"`
	EntryID    string           `json:"entryId"`
	Status     Status           `json:"status"`
	Kind       models.ErrorKind `json:"kind,omitempty"`
	Error      string           `json:"error,omitempty"`
	Answer     string           `json:"answer,omitempty"`
	Sources    int              `json:"sources"`
	DurationMS int64            `json:"durationMs"`
}

func NewOutcome(jobID, entryID string, res events.Result, err error, took time.Duration) Outcome {
	out := Outcome{
		JobID:      jobID,
		EntryID:    entryID,
		Status:     StatusDone,
		Answer:     res.Answer,
		Sources:    len(res.Sources),
		DurationMS: took.Milliseconds(),
	}

	switch {
	case err == nil:
	case errors.Is(err, search.ErrDuplicateJob):
		out.Status = StatusDuplicate
	case search.IsValidationError(err):
		out.Status = StatusRejected
		out.Kind = models.KindOf(err)
		out.Error = err.Error()
	default:
		out.Status = StatusFailed
		out.Kind = models.KindOf(err)
		out.Error = models.Summary(err)
	}
	return out
}

// DecodeJob reads the JSON job from a stream entry's payload field.
func DecodeJob(values map[string]any) (search.Job, error) {
	var job search.Job
	err := decode(values, &job)
	return job, err
}

func DecodeOutcome(values map[string]any) (Outcome, error) {
	var out Outcome
	err := decode(values, &out)
	return out, err
}

func encode(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return map[string]any{payloadField: string(data)}, nil
}

func decode(values map[string]any, v any) error {
	payload, ok := values[payloadField].(string)
	if !ok {
		return errors.New("missing payload field")
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
