package audit

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"countries/pkg/requestcontext"
)

// ErrBufferFull is returned by Emit when the worker has fallen behind.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher hands events to the Worker through a bounded buffer so request
// latency never depends on the sink.
type Publisher struct {
	events  chan Event
	dropped atomic.Int64
	drops   prometheus.Counter
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithDropCounter counts events dropped because the buffer was full.
func WithDropCounter(c prometheus.Counter) Option {
	return func(p *Publisher) {
		p.drops = c
	}
}

func NewPublisher(buffer int, opts ...Option) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	p := &Publisher{events: make(chan Event, buffer)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit fills in ID, timestamp and request id, then enqueues without blocking.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	select {
	case p.events <- event:
		return nil
	default:
		p.dropped.Add(1)
		if p.drops != nil {
			p.drops.Inc()
		}
		return ErrBufferFull
	}
}

// Events is the inbox consumed by the Worker.
func (p *Publisher) Events() <-chan Event {
	return p.events
}

// Dropped returns how many events were discarded.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}
