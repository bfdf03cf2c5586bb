// Package preference stores each user's category weights: how strongly a
// user follows a category. Weights feed the personalized ranking directly.
package preference

import (
	"context"
	"errors"
	"math"
	"sync"
)

// Common errors for preference operations.
var (
	ErrInvalidWeight   = errors.New("weight must be a positive finite number")
	ErrInvalidCategory = errors.New("category id is required")
	ErrInvalidUser     = errors.New("user id is required")
)

// DefaultWeight is applied when a user follows a category without choosing a weight.
const DefaultWeight = 1.0

// Store defines persistence for category weights.
type Store interface {
	// Get returns the user's weights keyed by category ID. The map is empty,
	// never nil, when the user follows nothing.
	Get(ctx context.Context, userID string) (map[string]float64, error)

	// Set creates or replaces one weight.
	Set(ctx context.Context, userID, categoryID string, weight float64) error

	// Remove deletes one weight. Removing an absent weight is not an error.
	Remove(ctx context.Context, userID, categoryID string) error
}

// ValidateWeight rejects zero, negative, NaN and infinite weights.
func ValidateWeight(weight float64) error {
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight <= 0 {
		return ErrInvalidWeight
	}
	return nil
}

func validateKeys(userID, categoryID string) error {
	if userID == "" {
		return ErrInvalidUser
	}
	if categoryID == "" {
		return ErrInvalidCategory
	}
	return nil
}

// InMemoryStore is an in-memory implementation of Store.
// Thread-safe via RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	weights map[string]map[string]float64
}

// NewInMemoryStore creates a new in-memory preference store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		weights: make(map[string]map[string]float64),
	}
}

// Get returns a copy of the user's weights.
func (s *InMemoryStore) Get(_ context.Context, userID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.weights[userID]))
	for id, w := range s.weights[userID] {
		out[id] = w
	}
	return out, nil
}

// Set creates or replaces one weight.
func (s *InMemoryStore) Set(_ context.Context, userID, categoryID string, weight float64) error {
	if err := validateKeys(userID, categoryID); err != nil {
		return err
	}
	if err := ValidateWeight(weight); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.weights[userID] == nil {
		s.weights[userID] = make(map[string]float64)
	}
	s.weights[userID][categoryID] = weight
	return nil
}

// Remove deletes one weight.
func (s *InMemoryStore) Remove(_ context.Context, userID, categoryID string) error {
	if err := validateKeys(userID, categoryID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.weights[userID], categoryID)
	if len(s.weights[userID]) == 0 {
		delete(s.weights, userID)
	}
	return nil
}
