package audit

import (
	"context"
	"log/slog"
	"time"
)

// Sink persists or forwards audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// drainTimeout bounds how long Run keeps flushing buffered events after shutdown.
const drainTimeout = 5 * time.Second

// Worker consumes audit events from the publisher's inbox and hands them to the sink.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run blocks until ctx is cancelled, then flushes what is already buffered.
// Sink failures are logged and the event is dropped; they never stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case event := <-w.inbox:
			if ctx.Err() != nil {
				w.drain(event)
				return nil
			}
			w.append(ctx, event)
		}
	}
}

func (w *Worker) drain(pending ...Event) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for _, event := range pending {
		w.append(ctx, event)
	}
	for {
		select {
		case event := <-w.inbox:
			w.append(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, event Event) {
	if err := w.sink.Append(ctx, event); err != nil && w.logger != nil {
		w.logger.ErrorContext(ctx, "failed to append audit event",
			"event_id", event.ID,
			"action", event.Action,
			"country", event.Country,
			"error", err,
		)
	}
}
