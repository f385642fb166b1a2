package search

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/schilling3003/Perplexica/internal/chat"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/models"
)

var ErrDuplicateJob = errors.New("job was already processed")

// Job is a search request queued for background processing.
type Job struct {
	ID string `json:"id"`
	Request
}

// Worker runs queued jobs and stores each answer as a completed chat whose id
// is the job id.
type Worker struct {
	service *Service
	// store may be nil; results are then only logged.
	store chat.Store
}

func NewWorker(service *Service, store chat.Store) *Worker {
	return &Worker{service: service, store: store}
}

// Handle runs one job. Validation failures, pipeline errors and duplicates
// are returned so the caller can log them; none of them should be retried.
func (w *Worker) Handle(ctx context.Context, job Job) (events.Result, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	logger := w.service.logger.With().Str("job_id", job.ID).Logger()

	if w.store != nil {
		// The user message id is the job id, so a redelivered job is detected here.
		done, err := w.store.MessageExists(ctx, job.ID, job.ID)
		if err != nil {
			return events.Result{}, err
		}
		if done {
			return events.Result{}, ErrDuplicateJob
		}
	}

	started := time.Now()
	res, err := w.service.Search(ctx, job.Request)
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected search job")
		return events.Result{}, err
	}
	if res.Err != nil {
		logger.Error().Err(res.Err).Msg("Search job failed")
		return res, res.Err
	}

	if w.store != nil {
		if err := w.save(ctx, job, res); err != nil {
			logger.Error().Err(err).Msg("Failed to store job result")
			return res, err
		}
	}

	logger.Info().
		Int("sources", len(res.Sources)).
		Int("answer_chars", len(res.Answer)).
		Dur("duration", time.Since(started)).
		Msg("Search job complete")
	return res, nil
}

func (w *Worker) save(ctx context.Context, job Job, res events.Result) error {
	err := w.store.CreateChat(ctx, chat.Chat{
		ID:        job.ID,
		Title:     job.Query,
		FocusMode: focus.Mode(job.FocusMode),
		Files:     job.Files,
	})
	if err != nil {
		return err
	}

	if err := w.store.AddMessage(ctx, chat.Message{
		MessageID: job.ID,
		ChatID:    job.ID,
		Role:      models.RoleHuman,
		Content:   job.Query,
		Metadata:  models.MessageMetadata{CreatedAt: time.Now().UTC()},
	}); err != nil {
		return err
	}

	return w.store.AddMessage(ctx, chat.Message{
		MessageID: uuid.NewString(),
		ChatID:    job.ID,
		Role:      models.RoleAssistant,
		Content:   res.Answer,
		Metadata:  models.MessageMetadata{CreatedAt: time.Now().UTC(), Sources: res.Sources},
	})
}
