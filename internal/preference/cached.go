package preference

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/wantlist/internal/cache"
	"github.com/onnwee/wantlist/internal/tracing"
)

const (
	cacheName        = "preferences"
	cacheKeyPrefix   = "prefs:"
	versionKeyPrefix = "prefs:ver:"

	// DefaultCacheTTL bounds staleness when an invalidation is lost.
	DefaultCacheTTL = 5 * time.Minute
)

// CachedStoreConfig configures a CachedStore.
type CachedStoreConfig struct {
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics *cache.Metrics
	Breaker *cache.Breaker
}

// CachedStore is a cache-aside wrapper around another Store. Reads are served
// from Redis when present; writes go to the backing store first and then
// invalidate the cached entry. Redis failures are logged and bypassed.
//
// Each user has a version counter that every invalidation bumps. A fill
// after a miss only lands if the version is unchanged since the backing
// read, so a read racing a write cannot put the old weights back.
// Invalidations that fail are retried before the user's next cached read.
type CachedStore struct {
	next    Store
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *cache.Metrics
	breaker *cache.Breaker

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewCachedStore wraps next with a Redis cache.
func NewCachedStore(next Store, client *redis.Client, cfg CachedStoreConfig) *CachedStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = cache.NewBreaker(cache.DefaultBreakerConfig(cacheName), cfg.Logger, cfg.Metrics)
	}

	return &CachedStore{
		next:    next,
		client:  client,
		ttl:     cfg.TTL,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		breaker: cfg.Breaker,
		pending: make(map[string]struct{}),
	}
}

func cacheKey(userID string) string {
	return cacheKeyPrefix + userID
}

func versionKey(userID string) string {
	return versionKeyPrefix + userID
}

// Get returns cached weights or loads and caches them from the backing store.
func (s *CachedStore) Get(ctx context.Context, userID string) (map[string]float64, error) {
	if !s.retryInvalidation(ctx, userID) {
		s.metrics.ObserveResult(cacheName, cache.ResultBypass)
		return s.next.Get(ctx, userID)
	}

	if weights, ok := s.lookup(ctx, userID); ok {
		return weights, nil
	}

	version, versionOK := s.version(ctx, userID)

	weights, err := s.next.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if versionOK {
		s.store(ctx, userID, weights, version)
	}
	return weights, nil
}

// Set writes through to the backing store and invalidates the cache entry.
func (s *CachedStore) Set(ctx context.Context, userID, categoryID string, weight float64) error {
	if err := s.next.Set(ctx, userID, categoryID, weight); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// Remove deletes from the backing store and invalidates the cache entry.
func (s *CachedStore) Remove(ctx context.Context, userID, categoryID string) error {
	if err := s.next.Remove(ctx, userID, categoryID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *CachedStore) lookup(ctx context.Context, userID string) (map[string]float64, bool) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, cacheName, tracing.CacheOperationGet)

	data, err := s.breaker.Execute(func() ([]byte, error) {
		return s.client.Get(ctx, cacheKey(userID)).Bytes()
	})
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		endSpan(nil)
		s.metrics.ObserveResult(cacheName, cache.ResultMiss)
		return nil, false
	case cache.IsOpen(err):
		endSpan(nil)
		s.metrics.ObserveResult(cacheName, cache.ResultBypass)
		return nil, false
	default:
		endSpan(err)
		s.metrics.ObserveResult(cacheName, cache.ResultError)
		s.logger.WarnContext(ctx, "preference cache read failed, using backing store",
			"user_id", userID,
			"error", err)
		return nil, false
	}

	var weights map[string]float64
	if err := json.Unmarshal(data, &weights); err != nil {
		endSpan(err)
		s.metrics.ObserveResult(cacheName, cache.ResultError)
		s.logger.WarnContext(ctx, "discarding undecodable preference cache entry",
			"user_id", userID,
			"error", err)
		return nil, false
	}
	endSpan(nil)

	if weights == nil {
		weights = make(map[string]float64)
	}
	s.metrics.ObserveResult(cacheName, cache.ResultHit)
	return weights, true
}

// version reads the user's invalidation counter. A missing counter is 0.
func (s *CachedStore) version(ctx context.Context, userID string) (int64, bool) {
	data, err := s.breaker.Execute(func() ([]byte, error) {
		return s.client.Get(ctx, versionKey(userID)).Bytes()
	})
	switch {
	case err == nil:
		v, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	case errors.Is(err, redis.Nil):
		return 0, true
	default:
		return 0, false
	}
}

// store fills the cache unless an invalidation bumped the version since it
// was read.
func (s *CachedStore) store(ctx context.Context, userID string, weights map[string]float64, version int64) {
	data, err := json.Marshal(weights)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to encode preferences for cache", "user_id", userID, "error", err)
		return
	}

	ctx, endSpan := tracing.StartCacheSpan(ctx, cacheName, tracing.CacheOperationSet)
	verKey := versionKey(userID)
	stale := false
	_, err = s.breaker.Execute(func() ([]byte, error) {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, verKey).Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if current != version {
				stale = true
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, cacheKey(userID), data, s.ttl)
				return nil
			})
			return err
		}, verKey)
		if errors.Is(err, redis.TxFailedErr) {
			stale = true
			return nil, nil
		}
		return nil, err
	})
	endSpan(err)
	if stale {
		s.logger.DebugContext(ctx, "skipped stale preference cache fill", "user_id", userID)
		return
	}
	if err != nil && !cache.IsOpen(err) {
		s.logger.WarnContext(ctx, "preference cache write failed", "user_id", userID, "error", err)
	}
}

// invalidate deletes the cached entry and bumps the version. On failure the
// user is marked pending so the next Get retries before trusting Redis.
func (s *CachedStore) invalidate(ctx context.Context, userID string) bool {
	ctx, endSpan := tracing.StartCacheSpan(ctx, cacheName, tracing.CacheOperationDelete)
	verKey := versionKey(userID)
	_, err := s.breaker.Execute(func() ([]byte, error) {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, cacheKey(userID))
			pipe.Incr(ctx, verKey)
			pipe.PExpire(ctx, verKey, 2*s.ttl)
			return nil
		})
		return nil, err
	})
	endSpan(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.pending[userID] = struct{}{}
		s.logger.WarnContext(ctx, "preference cache invalidation failed, will retry",
			"user_id", userID,
			"error", err)
		return false
	}
	delete(s.pending, userID)
	return true
}

// retryInvalidation reports whether Redis can be trusted for userID, retrying
// a previously failed invalidation first.
func (s *CachedStore) retryInvalidation(ctx context.Context, userID string) bool {
	s.mu.Lock()
	_, ok := s.pending[userID]
	s.mu.Unlock()
	if !ok {
		return true
	}
	return s.invalidate(ctx, userID)
}
