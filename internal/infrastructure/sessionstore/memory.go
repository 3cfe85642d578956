// Package sessionstore persists the identity provider's current session.
package sessionstore

import (
	"context"
	"sync"

	"gym-session/internal/domain"
)

// MemoryStore keeps the session for the lifetime of the process.
// Implements domain.SessionStore.
type MemoryStore struct {
	mu      sync.RWMutex
	session *domain.StoredSession
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored session, or nil.
func (s *MemoryStore) Load(_ context.Context) (*domain.StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil, nil
	}
	cp := *s.session
	return &cp, nil
}

// Save replaces the stored session.
func (s *MemoryStore) Save(_ context.Context, session *domain.StoredSession) error {
	cp := *session

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &cp
	return nil
}

// Delete removes the stored session.
func (s *MemoryStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}
