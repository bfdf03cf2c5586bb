// Package cache holds the shared plumbing for Redis-backed caches: a circuit
// breaker that lets callers fail open when Redis is unhealthy, and cache
// metrics.
package cache

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig configures a cache circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Probes allowed while half-open
	Interval         time.Duration // Closed-state counter reset period
	Timeout          time.Duration // Open duration before probing
	FailureThreshold uint32        // Consecutive failures that trip the breaker
}

// DefaultBreakerConfig returns settings suited to a local Redis: trip after 5
// consecutive failures, probe again after 30 seconds.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker guards Redis round trips. A cache miss (redis.Nil) counts as success.
type Breaker = gobreaker.CircuitBreaker[[]byte]

// NewBreaker creates a circuit breaker. State transitions are logged and,
// when metrics is non-nil, exported as a gauge.
func NewBreaker(cfg BreakerConfig, logger *slog.Logger, metrics *Metrics) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
			if metrics != nil {
				metrics.SetBreakerState(name, to)
			}
		},
	}

	if metrics != nil {
		metrics.SetBreakerState(cfg.Name, gobreaker.StateClosed)
	}
	return gobreaker.NewCircuitBreaker[[]byte](settings)
}

// IsOpen reports whether err was returned because the breaker rejected the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
