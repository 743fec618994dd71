package memory

import (
	"context"
	"sync"
	"time"

	"pkt.systems/stockd/internal/storage"
)

// Store implements storage.Backend in-memory; intended for tests and local dev.
type Store struct {
	mu      sync.RWMutex
	payload []byte
	present bool
	updated time.Time
	saves   int
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{}
}

// NewWithSnapshot returns a store pre-populated with data.
func NewWithSnapshot(data []byte) *Store {
	s := New()
	s.payload = append([]byte(nil), data...)
	s.present = true
	s.updated = time.Now().UTC()
	return s
}

// Load returns a copy of the stored snapshot.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), s.payload...), nil
}

// Save replaces the stored snapshot.
func (s *Store) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.payload = append([]byte(nil), data...)
	s.present = true
	s.updated = time.Now().UTC()
	s.saves++
	s.mu.Unlock()
	return nil
}

// Saves reports how many times Save has succeeded.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// UpdatedAt returns the time of the last successful Save.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// Describe identifies the backend.
func (s *Store) Describe() string { return "mem://" }

// Close is a no-op.
func (s *Store) Close() error { return nil }
