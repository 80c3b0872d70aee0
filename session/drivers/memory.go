package drivers

import (
	"context"
	"sync"
	"time"

	"github.com/creastat/receipts"
	"github.com/creastat/receipts/session"
)

// InMemoryStore implements session.Store using an in-memory map with
// optimistic locking. Sessions live for the lifetime of the process.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewInMemoryStore creates a new in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*session.Session),
	}
}

// Create implements session.Store.
// Creates a new session with Version set to 1.
func (s *InMemoryStore) Create(ctx context.Context, data *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions == nil {
		return receipts.ErrStoreClosed
	}
	if _, exists := s.sessions[data.CustomerKey]; exists {
		return receipts.ErrAlreadyExists
	}

	now := time.Now()
	data.CreatedAt = now
	data.UpdatedAt = now
	data.Version = 1

	s.sessions[data.CustomerKey] = data.Clone()
	return nil
}

// Get implements session.Store.
// Returns nil if the session is not found (not an error).
func (s *InMemoryStore) Get(ctx context.Context, customerKey string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.sessions == nil {
		return nil, receipts.ErrStoreClosed
	}
	data, exists := s.sessions[customerKey]
	if !exists {
		return nil, nil // Not found
	}
	return data.Clone(), nil
}

// Update implements session.Store.
// Verifies Version matches, increments it, updates UpdatedAt, and persists a
// copy of the session.
func (s *InMemoryStore) Update(ctx context.Context, data *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions == nil {
		return receipts.ErrStoreClosed
	}
	stored, exists := s.sessions[data.CustomerKey]
	if !exists {
		return receipts.ErrNotFound
	}

	// Check version for optimistic locking
	if stored.Version != data.Version {
		return receipts.ErrVersionConflict
	}

	data.Version++
	data.UpdatedAt = time.Now()

	s.sessions[data.CustomerKey] = data.Clone()
	return nil
}

// Delete implements session.Store.
func (s *InMemoryStore) Delete(ctx context.Context, customerKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, customerKey)
	return nil
}

// Close implements session.Store.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return nil
}

// Len returns the number of stored sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ session.Store = (*InMemoryStore)(nil)
