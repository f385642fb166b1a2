package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const DefaultSettleDelay = 500 * time.Millisecond

// Ingester is the part of Pipeline the watcher needs.
type Ingester interface {
	IngestFile(ctx context.Context, path string) (*Result, error)
}

// Watcher ingests supported files created or written in a directory. A file
// is ingested once it has seen no writes for the settle delay.
type Watcher struct {
	watcher  *fsnotify.Watcher
	ingester Ingester
	settle   time.Duration
	logger   *zerolog.Logger
}

func NewWatcher(ingester Ingester, settle time.Duration, logger *zerolog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Watcher{watcher: w, ingester: ingester, settle: settle, logger: logger}, nil
}

// Watch blocks until ctx is cancelled. onIngest, when set, is called after
// each successful ingestion.
func (w *Watcher) Watch(ctx context.Context, dir string, onIngest func(*Result)) error {
	defer w.watcher.Close()

	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Info().Str("dir", dir).Msg("Watching for new files")

	pending := make(map[string]*time.Timer)
	ready := make(chan string, 16)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !Supported(event.Name) {
				continue
			}

			name := event.Name
			if t, ok := pending[name]; ok {
				t.Reset(w.settle)
				continue
			}
			pending[name] = time.AfterFunc(w.settle, func() {
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(pending, path)
			res, err := w.ingester.IngestFile(ctx, path)
			if err != nil {
				w.logger.Error().Err(err).Str("file", path).Msg("Ingestion failed")
				continue
			}
			if onIngest != nil {
				onIngest(res)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}
