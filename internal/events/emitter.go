package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/schilling3003/Perplexica/internal/models"
)

// Stream is the consumer side of a search. It is closed after the terminal
// event, or early when the request context is cancelled.
type Stream <-chan Event

// Emitter is the producer side of a Stream. It guarantees at most one sources
// event and exactly one terminal event; anything emitted after the terminal
// event is dropped.
type Emitter struct {
	ctx context.Context
	ch  chan Event

	mu          sync.Mutex
	closed      bool
	sourcesSent bool
}

const defaultBuffer = 16

func NewEmitter(ctx context.Context) (*Emitter, Stream) {
	ch := make(chan Event, defaultBuffer)
	return &Emitter{ctx: ctx, ch: ch}, ch
}

// Run starts fn in its own goroutine and terminates the stream with
// messageEnd when fn returns nil, or with a single error event otherwise.
func Run(ctx context.Context, fn func(ctx context.Context, em *Emitter) error) Stream {
	em, stream := NewEmitter(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				em.Fail(models.NewError(models.KindProcessingError, "An error occurred while processing the request", fmt.Errorf("panic: %v", r)))
			}
		}()

		if err := fn(ctx, em); err != nil {
			em.Fail(err)
			return
		}
		em.End()
	}()

	return stream
}

func (em *Emitter) Status(text string) bool {
	return em.send(Event{Type: TypeStatus, Text: text}, false)
}

// Response emits one answer increment. Empty increments are skipped.
func (em *Emitter) Response(text string) bool {
	if text == "" {
		return em.Active()
	}
	return em.send(Event{Type: TypeResponse, Text: text}, false)
}

// Sources emits the document list once per stream.
func (em *Emitter) Sources(docs []models.Document) bool {
	em.mu.Lock()
	if em.sourcesSent {
		em.mu.Unlock()
		return !em.isClosed()
	}
	em.sourcesSent = true
	em.mu.Unlock()

	if docs == nil {
		docs = []models.Document{}
	}
	return em.send(Event{Type: TypeSources, Sources: docs}, false)
}

func (em *Emitter) End() {
	em.send(Event{Type: TypeMessageEnd}, true)
}

func (em *Emitter) Fail(err error) {
	em.send(Event{Type: TypeError, Text: models.Summary(err), Code: models.KindOf(err)}, true)
}

// Active reports whether the stream still accepts events.
func (em *Emitter) Active() bool {
	return !em.isClosed()
}

func (em *Emitter) isClosed() bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.closed
}

func (em *Emitter) send(ev Event, terminal bool) bool {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.closed {
		return false
	}

	select {
	case em.ch <- ev:
	case <-em.ctx.Done():
		em.closed = true
		close(em.ch)
		return false
	}

	if terminal {
		em.closed = true
		close(em.ch)
	}
	return true
}
