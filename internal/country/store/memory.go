package store

import (
	"context"
	"sync"

	"countries/internal/country/models"
)

// InMemory is a process-local store. Rows are listed in insertion order,
// which stands in for a column store's token order.
type InMemory struct {
	mu    sync.RWMutex
	rows  map[string]models.Country
	order []string
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[string]models.Country)}
}

func (s *InMemory) Upsert(_ context.Context, c models.Country) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[c.Country]; !ok {
		s.order = append(s.order, c.Country)
	}
	s.rows[c.Country] = c
	return nil
}

func (s *InMemory) FindByName(_ context.Context, name string) (*models.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rows[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *InMemory) List(_ context.Context, offset, limit int) ([]models.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Country, 0)
	if offset < 0 || limit <= 0 || offset >= len(s.order) {
		return out, nil
	}
	end := len(s.order)
	if limit < end-offset {
		end = offset + limit
	}
	for _, name := range s.order[offset:end] {
		out = append(out, s.rows[name])
	}
	return out, nil
}

func (s *InMemory) Update(_ context.Context, current string, c models.Country) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[current]; !ok {
		return ErrNotFound
	}
	if c.Country == current {
		s.rows[current] = c
		return nil
	}
	if _, taken := s.rows[c.Country]; taken {
		return ErrConflict
	}
	delete(s.rows, current)
	s.rows[c.Country] = c
	for i, name := range s.order {
		if name == current {
			s.order[i] = c.Country
			break
		}
	}
	return nil
}

func (s *InMemory) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[name]; !ok {
		return ErrNotFound
	}
	delete(s.rows, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemory) Ping(context.Context) error {
	return nil
}
