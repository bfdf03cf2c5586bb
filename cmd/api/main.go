// Package main is the entry point for the API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/wantlist/internal/api"
	"github.com/onnwee/wantlist/internal/auth"
	"github.com/onnwee/wantlist/internal/cache"
	"github.com/onnwee/wantlist/internal/config"
	"github.com/onnwee/wantlist/internal/db"
	"github.com/onnwee/wantlist/internal/feed"
	"github.com/onnwee/wantlist/internal/health"
	"github.com/onnwee/wantlist/internal/hidden"
	"github.com/onnwee/wantlist/internal/jobs"
	"github.com/onnwee/wantlist/internal/middleware"
	"github.com/onnwee/wantlist/internal/preference"
	"github.com/onnwee/wantlist/internal/ranking"
	"github.com/onnwee/wantlist/internal/request"
	"github.com/onnwee/wantlist/internal/tracing"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout          = 10 * time.Second
	startupPingTimeout       = 5 * time.Second
	rateLimitCleanupInterval = time.Minute
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", os.Getenv("WANTLIST_CONFIG"), "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Wantlist API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// run starts the server and blocks until SIGINT or SIGTERM.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:    api.ServiceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.TracingInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	backends, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := newServer(cfg, backends, reg, logger)
	if err != nil {
		backends.Close()
		return err
	}

	if err := srv.refreshJob.Start(ctx); err != nil {
		backends.Close()
		return fmt.Errorf("failed to start trending refresh: %w", err)
	}
	if srv.rateLimitStore != nil {
		srv.rateLimitStore.StartCleanup(ctx, rateLimitCleanupInterval)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	srv.refreshJob.Stop()
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", "error", err)
	}
	backends.Close()

	logger.Info("server stopped")
	return runErr
}

// backends holds the optional external connections. A nil field means the
// corresponding feature runs in-process.
type backends struct {
	db     *sql.DB
	redis  *redis.Client
	logger *slog.Logger
}

func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{logger: logger}

	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		b.db = conn
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		b.redis = redis.NewClient(opts)

		// Redis is an accelerator; an unreachable instance is served around.
		pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
		if err := b.redis.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, caches will fail open", "error", err)
		}
		cancel()
	} else {
		logger.Warn("REDIS_URL not set, caching and shared rate limits disabled")
	}

	return b, nil
}

// Close releases every open connection.
func (b *backends) Close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			b.logger.Error("failed to close redis client", "error", err)
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			b.logger.Error("failed to close database", "error", err)
		}
	}
}

// server is the assembled application: the HTTP handler plus the background
// work that has to be started and stopped with it.
type server struct {
	handler        http.Handler
	requests       request.Repository
	refreshJob     *feed.RefreshJob
	rateLimitStore *middleware.InMemoryRateLimitStore
}

// newServer wires stores, services, handlers and middleware. All metrics are
// registered on reg, which also backs GET /metrics.
func newServer(cfg *config.Config, b *backends, reg *prometheus.Registry, logger *slog.Logger) (*server, error) {
	httpMetrics := middleware.NewMetrics()
	feedMetrics := feed.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	cacheMetrics := cache.NewMetrics()
	for _, r := range []interface {
		Register(prometheus.Registerer) error
	}{httpMetrics, feedMetrics, jobMetrics, cacheMetrics} {
		if err := r.Register(reg); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	weights, err := ranking.LoadCalibration(cfg.RankingCalibrationPath)
	if err != nil {
		// LoadCalibration returns defaults alongside the error.
		logger.Warn("using default ranking weights", "error", err)
	}

	var (
		requests    request.Repository
		preferences preference.Store
		hiddenStore hidden.Store
		snapshots   feed.SnapshotStore
		checkers    api.HealthHandlersConfig
	)

	if b.db != nil {
		if cfg.SeedPath != "" {
			logger.Warn("SEED_PATH is ignored when DATABASE_URL is set", "path", cfg.SeedPath)
		}
		requests = request.NewPostgresRepository(b.db)
		preferences = preference.NewPostgresStore(b.db)
		hiddenStore = hidden.NewPostgresStore(b.db)
		checkers.DBChecker = health.NewDBChecker(b.db)
	} else {
		repo := request.NewInMemoryRepository()
		if cfg.SeedPath != "" {
			n, err := repo.LoadFixture(context.Background(), cfg.SeedPath, time.Now())
			if err != nil {
				return nil, fmt.Errorf("failed to load seed fixture: %w", err)
			}
			logger.Info("loaded seed fixture", "path", cfg.SeedPath, "requests", n)
		} else {
			logger.Warn("in-memory request store is empty; set SEED_PATH to load categories and requests (local development only)")
		}
		requests = repo
		preferences = preference.NewInMemoryStore()
		hiddenStore = hidden.NewInMemoryStore()
	}

	if b.redis != nil {
		preferences = preference.NewCachedStore(preferences, b.redis, preference.CachedStoreConfig{
			TTL:     cfg.PreferenceCacheTTL,
			Logger:  logger,
			Metrics: cacheMetrics,
		})
		snapshots = feed.NewRedisSnapshotStore(b.redis, feed.RedisSnapshotStoreConfig{
			TTL:     cfg.TrendingCacheTTL,
			Logger:  logger,
			Metrics: cacheMetrics,
		})
		checkers.RedisChecker = health.NewRedisChecker(b.redis)
	} else {
		snapshots = feed.NewInMemorySnapshotStore(cfg.TrendingCacheTTL)
	}

	feeds := feed.NewService(feed.ServiceConfig{
		CandidateLimit: cfg.FeedCandidateLimit,
		Logger:         logger,
		Metrics:        feedMetrics,
	}, ranking.NewRanker(weights), requests, preferences, hiddenStore, snapshots)

	refreshJob := feed.NewRefreshJob(feed.RefreshJobConfig{
		Interval:   cfg.TrendingRefreshInterval,
		Logger:     logger,
		JobMetrics: jobMetrics,
	}, feeds)

	var (
		limitStore  middleware.RateLimitStore
		memoryStore *middleware.InMemoryRateLimitStore
	)
	if b.redis != nil {
		limitStore = middleware.NewRedisRateLimitStore(b.redis, logger, httpMetrics)
	} else {
		memoryStore = middleware.NewInMemoryRateLimitStore()
		limitStore = memoryStore
	}
	readLimit, writeLimit := rateLimits(cfg)

	router := api.NewRouter(api.RouterConfig{
		Feed:        api.NewFeedHandlers(feeds),
		Categories:  api.NewCategoryHandlers(requests),
		Preferences: api.NewPreferenceHandlers(preferences, requests),
		Hidden:      api.NewHiddenHandlers(hiddenStore, requests),
		Health:      api.NewHealthHandlers(checkers),
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadLimit:   middleware.RateLimiter(limitStore, readLimit, middleware.ScopedKeyFunc("read", middleware.UserKeyFunc()), httpMetrics),
		WriteLimit:  middleware.RateLimiter(limitStore, writeLimit, middleware.ScopedKeyFunc("write", middleware.UserKeyFunc()), httpMetrics),
		Version:     version,
	})

	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)

	return &server{
		handler:        newServerHandler(router, jwtService, httpMetrics, logger),
		requests:       requests,
		refreshJob:     refreshJob,
		rateLimitStore: memoryStore,
	}, nil
}

// rateLimits derives the read and write budgets. Writes get the configured
// budget; feed and category reads get twice that.
func rateLimits(cfg *config.Config) (read, write middleware.RateLimitConfig) {
	write = middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitRequests,
		WindowDuration:    cfg.RateLimitWindow,
	}
	if write.Validate() != nil {
		write = middleware.DefaultWriteLimit()
	}
	read = middleware.RateLimitConfig{
		RequestsPerWindow: write.RequestsPerWindow * 2,
		WindowDuration:    write.WindowDuration,
	}
	return read, write
}

// newServerHandler applies the global middleware chain:
// RequestID -> Tracing -> Logging -> HTTPMetrics -> Auth -> router.
// Logging wraps Auth so the authenticated user ID reaches the access log.
func newServerHandler(router http.Handler, validator middleware.TokenValidator, metrics *middleware.Metrics, logger *slog.Logger) http.Handler {
	var handler http.Handler = router
	handler = middleware.Auth(validator)(handler)
	handler = middleware.HTTPMetrics(metrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(api.ServiceName)(handler)
	handler = middleware.RequestID(handler)
	return handler
}
