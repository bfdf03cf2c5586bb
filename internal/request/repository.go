package request

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the data-fetch operations the feed depends on.
type Repository interface {
	// ListOpen returns up to limit open requests with categories and submission
	// counts joined, ordered by created_at DESC, id ASC.
	ListOpen(ctx context.Context, limit int) ([]Request, error)

	// GetByID retrieves a request by ID. Returns ErrRequestNotFound if absent.
	GetByID(ctx context.Context, id string) (*Request, error)

	// ListCategories returns all categories ordered by name.
	ListCategories(ctx context.Context) ([]Category, error)

	// Create inserts a new request with a generated UUID and timestamps.
	// A zero CreatedAt is set to the current time.
	Create(ctx context.Context, req *Request) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu         sync.RWMutex
	requests   map[string]*Request
	categories map[string]Category
}

// NewInMemoryRepository creates a new in-memory request repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		requests:   make(map[string]*Request),
		categories: make(map[string]Category),
	}
}

// AddCategory registers a category. Existing categories with the same ID are replaced.
func (r *InMemoryRepository) AddCategory(c Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[c.ID] = c
}

// SetSubmissionCount overwrites the submission count of a stored request.
func (r *InMemoryRepository) SetSubmissionCount(id string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	req.SubmissionCount = count
	req.UpdatedAt = time.Now()
	return nil
}

// Create inserts a new request with a generated UUID.
func (r *InMemoryRepository) Create(_ context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	resolved := make([]Category, 0, len(req.Categories))
	for _, c := range req.Categories {
		registered, ok := r.categories[c.ID]
		if !ok {
			return ErrCategoryNotFound
		}
		resolved = append(resolved, registered)
	}
	if len(resolved) > 0 {
		req.Categories = resolved
	}

	now := time.Now()
	req.ID = uuid.New().String()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = StatusOpen
	}

	stored := req.clone()
	r.requests[req.ID] = &stored
	return nil
}

// GetByID retrieves a request by ID.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	c := req.clone()
	return &c, nil
}

// ListOpen returns up to limit open requests, newest first.
func (r *InMemoryRepository) ListOpen(_ context.Context, limit int) ([]Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]*Request, 0, len(r.requests))
	for _, req := range r.requests {
		if !req.IsOpen() {
			continue
		}
		candidates = append(candidates, req)
	}

	sortByCreatedDesc(candidates)

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	// Return copies to prevent external mutation
	results := make([]Request, len(candidates))
	for i, req := range candidates {
		results[i] = req.clone()
	}
	return results, nil
}

// ListCategories returns all categories ordered by name.
func (r *InMemoryRepository) ListCategories(_ context.Context) ([]Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	categories := make([]Category, 0, len(r.categories))
	for _, c := range r.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Name != categories[j].Name {
			return categories[i].Name < categories[j].Name
		}
		return categories[i].ID < categories[j].ID
	})
	return categories, nil
}

// sortByCreatedDesc sorts requests by created_at DESC, then by ID ASC for tie-breaking.
func sortByCreatedDesc(requests []*Request) {
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt.After(requests[j].CreatedAt) {
			return true
		}
		if requests[i].CreatedAt.Before(requests[j].CreatedAt) {
			return false
		}
		return requests[i].ID < requests[j].ID
	})
}
