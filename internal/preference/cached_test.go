package preference

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/wantlist/internal/cache"
)

// countingStore records how often the backing store is read.
type countingStore struct {
	*InMemoryStore
	gets atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, userID string) (map[string]float64, error) {
	s.gets.Add(1)
	return s.InMemoryStore.Get(ctx, userID)
}

type failingStore struct{ InMemoryStore }

var errBackingDown = errors.New("backing store down")

func (s *failingStore) Get(context.Context, string) (map[string]float64, error) {
	return nil, errBackingDown
}

func newCachedTestStore(t *testing.T) (*CachedStore, *countingStore, *miniredis.Miniredis, *cache.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backing := &countingStore{InMemoryStore: NewInMemoryStore()}
	metrics := cache.NewMetrics()
	store := NewCachedStore(backing, client, CachedStoreConfig{TTL: time.Minute, Metrics: metrics})
	return store, backing, mr, metrics
}

func TestCachedStore_ReadThrough(t *testing.T) {
	store, backing, mr, metrics := newCachedTestStore(t)
	ctx := context.Background()

	if err := backing.Set(ctx, "user-1", "cat-audio", 1.5); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	first, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if first["cat-audio"] != 1.5 || second["cat-audio"] != 1.5 {
		t.Errorf("unexpected weights: %v / %v", first, second)
	}
	if got := backing.gets.Load(); got != 1 {
		t.Errorf("expected 1 backing read, got %d", got)
	}
	if !mr.Exists("prefs:user-1") {
		t.Error("expected cache entry to be written")
	}
	if ttl := mr.TTL("prefs:user-1"); ttl != time.Minute {
		t.Errorf("expected 1m TTL, got %s", ttl)
	}

	if got := testutil.ToFloat64(metrics.Counter(cacheName, cache.ResultMiss)); got != 1 {
		t.Errorf("expected 1 miss, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Counter(cacheName, cache.ResultHit)); got != 1 {
		t.Errorf("expected 1 hit, got %f", got)
	}
}

func TestCachedStore_EmptyPreferencesAreCached(t *testing.T) {
	store, backing, _, _ := newCachedTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		weights, err := store.Get(ctx, "lurker")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if weights == nil || len(weights) != 0 {
			t.Fatalf("expected empty map, got %v", weights)
		}
	}
	if got := backing.gets.Load(); got != 1 {
		t.Errorf("expected 1 backing read, got %d", got)
	}
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	store, backing, mr, _ := newCachedTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "user-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if err := store.Set(ctx, "user-1", "cat-bikes", 2.0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if mr.Exists("prefs:user-1") {
		t.Error("expected Set to invalidate the cache entry")
	}

	weights, _ := store.Get(ctx, "user-1")
	if weights["cat-bikes"] != 2.0 {
		t.Errorf("expected fresh weights after Set, got %v", weights)
	}

	if err := store.Remove(ctx, "user-1", "cat-bikes"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	weights, _ = store.Get(ctx, "user-1")
	if len(weights) != 0 {
		t.Errorf("expected no weights after Remove, got %v", weights)
	}
	if got := backing.gets.Load(); got != 3 {
		t.Errorf("expected 3 backing reads, got %d", got)
	}
}

func TestCachedStore_InvalidWriteKeepsCache(t *testing.T) {
	store, _, mr, _ := newCachedTestStore(t)
	ctx := context.Background()

	_, _ = store.Get(ctx, "user-1")
	if err := store.Set(ctx, "user-1", "cat-audio", -1); !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight, got %v", err)
	}
	if !mr.Exists("prefs:user-1") {
		t.Error("a rejected write must not invalidate the cache")
	}
}

func TestCachedStore_ExpiresAfterTTL(t *testing.T) {
	store, backing, mr, _ := newCachedTestStore(t)
	ctx := context.Background()

	_, _ = store.Get(ctx, "user-1")
	mr.FastForward(2 * time.Minute)
	_, _ = store.Get(ctx, "user-1")

	if got := backing.gets.Load(); got != 2 {
		t.Errorf("expected entry to expire, backing reads = %d", got)
	}
}

func TestCachedStore_CorruptEntryFallsThrough(t *testing.T) {
	store, backing, mr, _ := newCachedTestStore(t)
	ctx := context.Background()

	_ = backing.Set(ctx, "user-1", "cat-audio", 1.0)
	if err := mr.Set("prefs:user-1", "{not json"); err != nil {
		t.Fatalf("failed to seed corrupt entry: %v", err)
	}

	weights, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if weights["cat-audio"] != 1.0 {
		t.Errorf("expected backing weights, got %v", weights)
	}
}

func TestCachedStore_FailsOpenWhenRedisDown(t *testing.T) {
	store, backing, mr, metrics := newCachedTestStore(t)
	ctx := context.Background()

	_ = backing.Set(ctx, "user-1", "cat-audio", 1.0)
	mr.Close()

	for i := 0; i < 10; i++ {
		weights, err := store.Get(ctx, "user-1")
		if err != nil {
			t.Fatalf("Get %d failed with Redis down: %v", i, err)
		}
		if weights["cat-audio"] != 1.0 {
			t.Fatalf("unexpected weights: %v", weights)
		}
	}
	if err := store.Set(ctx, "user-1", "cat-bikes", 1.0); err != nil {
		t.Errorf("Set should succeed with Redis down, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.Counter(cacheName, cache.ResultBypass)); got == 0 {
		t.Error("expected the breaker to open and bypass Redis")
	}
}

// racingStore runs onGet after reading the backing weights, simulating a
// write that lands between a cache miss and the cache fill.
type racingStore struct {
	*InMemoryStore
	onGet func()
}

func (s *racingStore) Get(ctx context.Context, userID string) (map[string]float64, error) {
	weights, err := s.InMemoryStore.Get(ctx, userID)
	if s.onGet != nil {
		hook := s.onGet
		s.onGet = nil
		hook()
	}
	return weights, err
}

func TestCachedStore_ConcurrentWriteDoesNotRefillStale(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backing := &racingStore{InMemoryStore: NewInMemoryStore()}
	store := NewCachedStore(backing, client, CachedStoreConfig{TTL: time.Minute})
	ctx := context.Background()

	_ = backing.Set(ctx, "user-1", "cat-audio", 1.0)
	backing.onGet = func() {
		if err := store.Set(ctx, "user-1", "cat-audio", 3.0); err != nil {
			t.Errorf("concurrent Set failed: %v", err)
		}
	}

	first, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if first["cat-audio"] != 1.0 {
		t.Fatalf("expected the racing read to see the old weight, got %v", first)
	}
	if mr.Exists("prefs:user-1") {
		t.Error("stale weights were written to the cache")
	}

	second, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if second["cat-audio"] != 3.0 {
		t.Errorf("expected the new weight after the race, got %v", second)
	}
	if !mr.Exists("prefs:user-1") {
		t.Error("expected the fresh weights to be cached")
	}
}

func TestCachedStore_FailedInvalidationIsRetried(t *testing.T) {
	store, backing, mr, _ := newCachedTestStore(t)
	ctx := context.Background()

	_ = backing.Set(ctx, "user-1", "cat-audio", 1.0)
	if _, err := store.Get(ctx, "user-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !mr.Exists("prefs:user-1") {
		t.Fatal("expected cache entry to be written")
	}

	mr.SetError("ERR redis is unavailable")
	if err := store.Set(ctx, "user-1", "cat-audio", 2.5); err != nil {
		t.Fatalf("Set should succeed with Redis failing, got %v", err)
	}
	mr.SetError("")

	weights, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if weights["cat-audio"] != 2.5 {
		t.Errorf("expected new weight once Redis recovered, got %v", weights)
	}

	// The retried invalidation succeeded, so the next read is cached again.
	before := backing.gets.Load()
	if _, err := store.Get(ctx, "user-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := backing.gets.Load(); got != before {
		t.Errorf("expected a cache hit after recovery, backing reads went %d -> %d", before, got)
	}
}

func TestCachedStore_BackingErrorPropagates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewCachedStore(&failingStore{}, client, CachedStoreConfig{})
	if _, err := store.Get(context.Background(), "user-1"); !errors.Is(err, errBackingDown) {
		t.Errorf("expected backing error, got %v", err)
	}
	if mr.Exists("prefs:user-1") {
		t.Error("errors must not be cached")
	}
}
