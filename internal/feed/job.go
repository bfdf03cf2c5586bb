package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/wantlist/internal/jobs"
)

// DefaultRefreshInterval is the default interval between trending refreshes.
const DefaultRefreshInterval = time.Minute

// DefaultRefreshTimeout bounds a single refresh cycle.
const DefaultRefreshTimeout = 30 * time.Second

// Refresher recomputes and stores the trending snapshot.
type Refresher interface {
	RefreshTrending(ctx context.Context) (*Snapshot, error)
}

// RefreshJobConfig configures the trending refresh job.
type RefreshJobConfig struct {
	// Interval is the duration between refresh cycles.
	Interval time.Duration
	// Timeout for each refresh cycle.
	Timeout time.Duration
	Logger  *slog.Logger
	// JobMetrics for centralized background job tracking.
	JobMetrics jobs.Reporter
}

// RefreshJob periodically recomputes the trending snapshot so feed reads
// rarely pay for ranking.
type RefreshJob struct {
	config    RefreshJobConfig
	refresher Refresher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRefreshJob creates a new trending refresh job.
func NewRefreshJob(config RefreshJobConfig, refresher Refresher) *RefreshJob {
	if config.Interval <= 0 {
		config.Interval = DefaultRefreshInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRefreshTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &RefreshJob{
		config:    config,
		refresher: refresher,
	}
}

// Start refreshes once and then begins the periodic loop.
// Returns immediately; the job runs in a background goroutine.
func (j *RefreshJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the job to stop and waits for it to finish.
func (j *RefreshJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *RefreshJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// RefreshNow runs one refresh cycle synchronously.
func (j *RefreshJob) RefreshNow(ctx context.Context) error {
	return j.refresh(ctx)
}

func (j *RefreshJob) run(ctx context.Context) {
	defer close(j.doneCh)

	_ = j.refresh(ctx)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("trending refresh job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("trending refresh job stopping due to stop signal")
			return
		case <-ticker.C:
			_ = j.refresh(ctx)
		}
	}
}

func (j *RefreshJob) refresh(parentCtx context.Context) error {
	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	startTime := time.Now()
	snapshot, err := j.refresher.RefreshTrending(ctx)
	duration := time.Since(startTime).Seconds()

	status := jobs.StatusSuccess
	if err != nil {
		status = jobs.StatusFailure
		errorType := jobs.ErrorTypeSource
		if errors.Is(err, context.DeadlineExceeded) {
			errorType = jobs.ErrorTypeTimeout
		}
		if j.config.JobMetrics != nil {
			j.config.JobMetrics.IncJobErrors(jobs.JobTypeTrendingRefresh, errorType)
		}
		j.config.Logger.Error("trending refresh failed",
			"error", err,
			"error_type", errorType,
			"timeout", j.config.Timeout)
	}

	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobsTotal(jobs.JobTypeTrendingRefresh, status)
		j.config.JobMetrics.ObserveJobDuration(jobs.JobTypeTrendingRefresh, duration)
	}

	if err != nil {
		return err
	}

	j.config.Logger.Info("trending refresh completed",
		"duration_seconds", duration,
		"requests_ranked", len(snapshot.Items))
	return nil
}
