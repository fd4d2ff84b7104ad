package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps every event in process without bound. Tests use it to
// inspect what the worker delivered.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByCountry returns events whose current or previous key is country, oldest first.
func (s *MemoryStore) ListByCountry(_ context.Context, country string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Country == country || e.PreviousCountry == country {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns a copy of every stored event.
func (s *MemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}
