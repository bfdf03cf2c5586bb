// Package hidden records which requests a user has dismissed from their feed.
package hidden

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInvalidInput is returned when a user or request ID is empty.
var ErrInvalidInput = errors.New("user id and request id are required")

// Store defines persistence for per-user hidden requests.
type Store interface {
	// Hide marks requestID as hidden for userID. Hiding twice is a no-op.
	Hide(ctx context.Context, userID, requestID string) error

	// Unhide reverses Hide. Unhiding a visible request is not an error.
	Unhide(ctx context.Context, userID, requestID string) error

	// List returns the set of request IDs hidden by userID.
	List(ctx context.Context, userID string) (map[string]struct{}, error)
}

func validate(userID, requestID string) error {
	if userID == "" || requestID == "" {
		return ErrInvalidInput
	}
	return nil
}

// InMemoryStore is an in-memory implementation of Store.
// Thread-safe via RWMutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	hidden map[string]map[string]time.Time
}

// NewInMemoryStore creates a new in-memory hidden-request store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		hidden: make(map[string]map[string]time.Time),
	}
}

// Hide marks a request as hidden.
func (s *InMemoryStore) Hide(_ context.Context, userID, requestID string) error {
	if err := validate(userID, requestID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hidden[userID] == nil {
		s.hidden[userID] = make(map[string]time.Time)
	}
	if _, ok := s.hidden[userID][requestID]; !ok {
		s.hidden[userID][requestID] = time.Now()
	}
	return nil
}

// Unhide removes a hidden mark.
func (s *InMemoryStore) Unhide(_ context.Context, userID, requestID string) error {
	if err := validate(userID, requestID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.hidden[userID], requestID)
	if len(s.hidden[userID]) == 0 {
		delete(s.hidden, userID)
	}
	return nil
}

// List returns a copy of the user's hidden set.
func (s *InMemoryStore) List(_ context.Context, userID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{}, len(s.hidden[userID]))
	for id := range s.hidden[userID] {
		out[id] = struct{}{}
	}
	return out, nil
}
