package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
)

func TestNewBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	metrics := NewMetrics()
	cfg := DefaultBreakerConfig("prefs")
	cfg.FailureThreshold = 3
	cfg.Timeout = time.Hour
	cb := NewBreaker(cfg, nil, metrics)

	redisDown := errors.New("dial tcp: connection refused")
	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(func() ([]byte, error) { return nil, redisDown }); !errors.Is(err, redisDown) {
			t.Fatalf("attempt %d: expected underlying error, got %v", i, err)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected breaker to be open, got %s", cb.State())
	}

	_, err := cb.Execute(func() ([]byte, error) {
		t.Fatal("call should be rejected while open")
		return nil, nil
	})
	if !IsOpen(err) {
		t.Errorf("expected open-state error, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.breakerState.WithLabelValues("prefs")); got != float64(gobreaker.StateOpen) {
		t.Errorf("expected breaker gauge %d, got %f", gobreaker.StateOpen, got)
	}
}

func TestNewBreaker_CacheMissIsSuccess(t *testing.T) {
	cfg := DefaultBreakerConfig("snapshot")
	cfg.FailureThreshold = 1
	cb := NewBreaker(cfg, nil, nil)

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(func() ([]byte, error) { return nil, redis.Nil })
		if !errors.Is(err, redis.Nil) {
			t.Fatalf("expected redis.Nil, got %v", err)
		}
	}

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("cache misses must not trip the breaker, state=%s", cb.State())
	}
}

func TestIsOpen(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{gobreaker.ErrOpenState, true},
		{gobreaker.ErrTooManyRequests, true},
		{redis.Nil, false},
		{errors.New("other"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsOpen(tt.err); got != tt.want {
			t.Errorf("IsOpen(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	m.ObserveResult("prefs", ResultHit)
	m.ObserveResult("prefs", ResultHit)
	m.ObserveResult("prefs", ResultMiss)

	if got := testutil.ToFloat64(m.Counter("prefs", ResultHit)); got != 2 {
		t.Errorf("expected 2 hits, got %f", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveResult("prefs", ResultHit)
	m.SetBreakerState("prefs", gobreaker.StateOpen)
}
