package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/onnwee/wantlist/internal/ranking"
)

// ErrSnapshotNotFound is returned when no unexpired trending snapshot exists.
var ErrSnapshotNotFound = errors.New("trending snapshot not found")

// Snapshot is a precomputed trending order over the open candidate pool.
// It is shared by all users; per-user hidden filtering happens on read.
type Snapshot struct {
	Items       []ranking.TrendingRequest `cbor:"items"`
	GeneratedAt time.Time                 `cbor:"generated_at"`
}

// SnapshotStore persists the current trending snapshot.
type SnapshotStore interface {
	// Load returns the current snapshot or ErrSnapshotNotFound.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the current snapshot.
	Save(ctx context.Context, snapshot *Snapshot) error
}

// InMemorySnapshotStore keeps the snapshot in process memory.
// Thread-safe via RWMutex.
type InMemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshot  *Snapshot
	expiresAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewInMemorySnapshotStore creates a store whose snapshot expires ttl after
// Save. A ttl <= 0 never expires.
func NewInMemorySnapshotStore(ttl time.Duration) *InMemorySnapshotStore {
	return &InMemorySnapshotStore{ttl: ttl, now: time.Now}
}

// Load returns a copy of the stored snapshot.
func (s *InMemorySnapshotStore) Load(_ context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return nil, ErrSnapshotNotFound
	}
	if s.ttl > 0 && !s.now().Before(s.expiresAt) {
		return nil, ErrSnapshotNotFound
	}
	return s.snapshot.clone(), nil
}

// Save stores a copy of snapshot.
func (s *InMemorySnapshotStore) Save(_ context.Context, snapshot *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = snapshot.clone()
	s.expiresAt = s.now().Add(s.ttl)
	return nil
}

func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{GeneratedAt: s.GeneratedAt}
	c.Items = append(make([]ranking.TrendingRequest, 0, len(s.Items)), s.Items...)
	return c
}
