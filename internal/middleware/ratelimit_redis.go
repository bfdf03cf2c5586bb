package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:"

// RedisRateLimitStore implements RateLimitStore with a fixed window counter in
// Redis (INCR plus PEXPIRE on the first hit), so limits hold across API
// replicas. Redis errors fail open.
type RedisRateLimitStore struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *Metrics
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store. metrics may
// be nil.
func NewRedisRateLimitStore(client *redis.Client, logger *slog.Logger, metrics *Metrics) *RedisRateLimitStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRateLimitStore{client: client, logger: logger, metrics: metrics}
}

// Allow implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	redisKey := rateLimitKeyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return s.failOpen(ctx, key, config, err)
	}

	count := int(incr.Val())
	window := ttl.Val()

	// A key without expiry is a new window (or one whose PEXPIRE was lost).
	if window < 0 {
		if err := s.client.PExpire(ctx, redisKey, config.WindowDuration).Err(); err != nil {
			return s.failOpen(ctx, key, config, err)
		}
		window = config.WindowDuration
	}

	if count > config.RequestsPerWindow {
		return false, 0, retryAfterSeconds(window)
	}
	return true, config.RequestsPerWindow - count, 0
}

func (s *RedisRateLimitStore) failOpen(ctx context.Context, key string, config RateLimitConfig, err error) (bool, int, int) {
	if s.metrics != nil {
		s.metrics.IncRateLimitStoreErrors()
	}
	s.logger.WarnContext(ctx, "rate limit check failed, allowing request",
		"key_type", keyType(key),
		"error", err)
	return true, config.RequestsPerWindow, 0
}

// Window reports the remaining lifetime of key's current window. Exposed for
// diagnostics.
func (s *RedisRateLimitStore) Window(ctx context.Context, key string) (time.Duration, error) {
	return s.client.PTTL(ctx, rateLimitKeyPrefix+key).Result()
}
