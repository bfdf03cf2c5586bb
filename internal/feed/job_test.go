package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/wantlist/internal/jobs"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
	block bool
}

func (r *fakeRefresher) RefreshTrending(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	r.calls++
	err, block := r.err, r.block
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &Snapshot{GeneratedAt: testNow}, nil
}

func (r *fakeRefresher) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordingReporter struct {
	mu     sync.Mutex
	totals map[string]int
	errors map[string]int
	runs   int
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{totals: map[string]int{}, errors: map[string]int{}}
}

func (r *recordingReporter) IncJobsTotal(jobType, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[jobType+"/"+status]++
}

func (r *recordingReporter) ObserveJobDuration(jobType string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
}

func (r *recordingReporter) IncJobErrors(jobType, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[jobType+"/"+errorType]++
}

func TestRefreshJob_StartStop(t *testing.T) {
	refresher := &fakeRefresher{}
	job := NewRefreshJob(RefreshJobConfig{Interval: 20 * time.Millisecond, Logger: testLogger()}, refresher)

	if job.IsRunning() {
		t.Error("job should not be running before Start")
	}

	ctx := context.Background()
	if err := job.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !job.IsRunning() {
		t.Error("job should be running after Start")
	}

	// Starting again should be safe
	if err := job.Start(ctx); err != nil {
		t.Fatalf("Start() second call error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for refresher.Calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if refresher.Calls() < 2 {
		t.Errorf("expected an initial refresh and at least one tick, got %d calls", refresher.Calls())
	}

	job.Stop()
	if job.IsRunning() {
		t.Error("job should not be running after Stop")
	}

	// Stopping again should be safe
	job.Stop()
}

func TestRefreshJob_StopsOnContextCancel(t *testing.T) {
	job := NewRefreshJob(RefreshJobConfig{Interval: time.Hour, Logger: testLogger()}, &fakeRefresher{})

	ctx, cancel := context.WithCancel(context.Background())
	_ = job.Start(ctx)
	cancel()

	select {
	case <-job.doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not exit after context cancellation")
	}
}

func TestRefreshJob_RefreshNow(t *testing.T) {
	tests := []struct {
		name          string
		refresher     *fakeRefresher
		timeout       time.Duration
		wantErr       bool
		wantStatus    string
		wantErrorType string
	}{
		{
			name:       "success",
			refresher:  &fakeRefresher{},
			wantStatus: jobs.StatusSuccess,
		},
		{
			name:          "source error",
			refresher:     &fakeRefresher{err: errors.New("connection refused")},
			wantErr:       true,
			wantStatus:    jobs.StatusFailure,
			wantErrorType: jobs.ErrorTypeSource,
		},
		{
			name:          "timeout",
			refresher:     &fakeRefresher{block: true},
			timeout:       10 * time.Millisecond,
			wantErr:       true,
			wantStatus:    jobs.StatusFailure,
			wantErrorType: jobs.ErrorTypeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := newRecordingReporter()
			job := NewRefreshJob(RefreshJobConfig{
				Timeout:    tt.timeout,
				Logger:     testLogger(),
				JobMetrics: reporter,
			}, tt.refresher)

			err := job.RefreshNow(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("RefreshNow() error = %v, wantErr %v", err, tt.wantErr)
			}

			if got := reporter.totals[jobs.JobTypeTrendingRefresh+"/"+tt.wantStatus]; got != 1 {
				t.Errorf("jobs total for %s = %d, want 1", tt.wantStatus, got)
			}
			if reporter.runs != 1 {
				t.Errorf("duration observations = %d, want 1", reporter.runs)
			}
			if tt.wantErrorType != "" {
				if got := reporter.errors[jobs.JobTypeTrendingRefresh+"/"+tt.wantErrorType]; got != 1 {
					t.Errorf("errors for %s = %d, want 1", tt.wantErrorType, got)
				}
			}
		})
	}
}

func TestRefreshJob_RefreshesServiceSnapshot(t *testing.T) {
	f := newFixture(t)
	f.addRequest(t, "busy", time.Hour, 6)

	job := NewRefreshJob(RefreshJobConfig{Logger: testLogger()}, f.service)
	if err := job.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}

	snapshot, err := f.snapshots.Load(context.Background())
	if err != nil {
		t.Fatalf("expected a stored snapshot, got %v", err)
	}
	if len(snapshot.Items) != 1 || snapshot.Items[0].Title != "busy" {
		t.Errorf("unexpected snapshot items: %+v", snapshot.Items)
	}
}
