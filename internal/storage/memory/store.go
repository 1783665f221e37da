// Package memory keeps the most recent observations in memory.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/fidde/agripredict/pkg/models"
)

// DefaultCapacity is the number of observations retained when none is given.
const DefaultCapacity = 1000

// StoreName identifies the in-memory mirror in logs and errors.
const StoreName = "memory"

// Store is a bounded ring of observations. Oldest entries are evicted first.
type Store struct {
	mu       sync.RWMutex
	ring     []*models.Observation
	next     int
	count    int
	appended int64
}

// New creates a store holding up to capacity observations.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{ring: make([]*models.Observation, capacity)}
}

// Append stores a copy of obs.
func (s *Store) Append(ctx context.Context, obs *models.Observation) error {
	if obs == nil {
		return &models.PersistenceError{Store: StoreName, Err: errors.New("observation cannot be nil")}
	}
	if err := ctx.Err(); err != nil {
		return &models.PersistenceError{Store: StoreName, Err: err}
	}

	cp := *obs

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring[s.next] = &cp
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
	s.appended++
	return nil
}

// ListObservations returns up to limit observations, newest first.
func (s *Store) ListObservations(ctx context.Context, limit int) ([]*models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.count {
		limit = s.count
	}

	out := make([]*models.Observation, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.ring)) % len(s.ring)
		cp := *s.ring[idx]
		out = append(out, &cp)
	}
	return out, nil
}

// Len returns the number of retained observations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Appended returns the total number of observations ever appended.
func (s *Store) Appended() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appended
}

// Name implements storage.Sink.
func (s *Store) Name() string {
	return StoreName
}

// Close implements storage.Sink.
func (s *Store) Close() error {
	return nil
}
