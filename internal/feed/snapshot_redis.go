package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/wantlist/internal/cache"
	"github.com/onnwee/wantlist/internal/tracing"
)

const (
	snapshotCacheName = "trending"

	// DefaultSnapshotKey is the Redis key holding the trending snapshot.
	DefaultSnapshotKey = "feed:trending:snapshot"

	// DefaultSnapshotTTL keeps a snapshot alive across a few missed refreshes.
	DefaultSnapshotTTL = 5 * time.Minute
)

// snapshotEncMode keeps nanosecond timestamps so a decoded snapshot compares
// equal to the one that was saved.
var snapshotEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// RedisSnapshotStoreConfig configures a RedisSnapshotStore.
type RedisSnapshotStoreConfig struct {
	Key     string
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics *cache.Metrics
	Breaker *cache.Breaker
}

// RedisSnapshotStore shares the trending snapshot across API replicas. The
// payload is CBOR-encoded.
type RedisSnapshotStore struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	logger  *slog.Logger
	metrics *cache.Metrics
	breaker *cache.Breaker
}

// NewRedisSnapshotStore creates a snapshot store backed by client.
func NewRedisSnapshotStore(client *redis.Client, cfg RedisSnapshotStoreConfig) *RedisSnapshotStore {
	if cfg.Key == "" {
		cfg.Key = DefaultSnapshotKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSnapshotTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = cache.NewBreaker(cache.DefaultBreakerConfig(snapshotCacheName), cfg.Logger, cfg.Metrics)
	}

	return &RedisSnapshotStore{
		client:  client,
		key:     cfg.Key,
		ttl:     cfg.TTL,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		breaker: cfg.Breaker,
	}
}

// Load fetches and decodes the snapshot. A missing key returns
// ErrSnapshotNotFound; an open breaker or Redis failure returns the error.
func (s *RedisSnapshotStore) Load(ctx context.Context) (snapshot *Snapshot, err error) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, snapshotCacheName, tracing.CacheOperationGet)
	defer func() {
		if errors.Is(err, ErrSnapshotNotFound) {
			endSpan(nil)
			return
		}
		endSpan(err)
	}()

	data, err := s.breaker.Execute(func() ([]byte, error) {
		return s.client.Get(ctx, s.key).Bytes()
	})
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		s.metrics.ObserveResult(snapshotCacheName, cache.ResultMiss)
		return nil, ErrSnapshotNotFound
	case cache.IsOpen(err):
		s.metrics.ObserveResult(snapshotCacheName, cache.ResultBypass)
		return nil, fmt.Errorf("trending snapshot cache unavailable: %w", err)
	default:
		s.metrics.ObserveResult(snapshotCacheName, cache.ResultError)
		return nil, fmt.Errorf("failed to read trending snapshot: %w", err)
	}

	snapshot = &Snapshot{}
	if err := cbor.Unmarshal(data, snapshot); err != nil {
		s.metrics.ObserveResult(snapshotCacheName, cache.ResultError)
		return nil, fmt.Errorf("failed to decode trending snapshot: %w", err)
	}

	s.metrics.ObserveResult(snapshotCacheName, cache.ResultHit)
	return snapshot, nil
}

// Save encodes and stores the snapshot with the configured TTL.
func (s *RedisSnapshotStore) Save(ctx context.Context, snapshot *Snapshot) (err error) {
	data, err := snapshotEncMode.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode trending snapshot: %w", err)
	}

	ctx, endSpan := tracing.StartCacheSpan(ctx, snapshotCacheName, tracing.CacheOperationSet)
	defer func() { endSpan(err) }()

	_, err = s.breaker.Execute(func() ([]byte, error) {
		return nil, s.client.Set(ctx, s.key, data, s.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to write trending snapshot: %w", err)
	}

	s.logger.DebugContext(ctx, "trending snapshot stored",
		"items", len(snapshot.Items),
		"bytes", len(data))
	return nil
}
