package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/feedsync/internal/connectivity"
	"github.com/charlesng35/feedsync/internal/monitoring"
	"github.com/charlesng35/feedsync/internal/state"
	"github.com/charlesng35/feedsync/pkg/logger"
	"github.com/charlesng35/feedsync/pkg/metrics"
)

const (
	defaultSchedule  = "@every 5m"
	defaultStaleness = 30 * time.Minute
)

// Sync run outcomes recorded in Status.LastResult and the sync_runs metric.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// StateRefresher is the subset of the state container the sync loop drives.
type StateRefresher interface {
	RefreshProfile(ctx context.Context) (state.SessionState, error)
	RefreshFeed(ctx context.Context) (state.FeedState, error)
}

// AuthProbe reports whether stored credentials exist.
type AuthProbe interface {
	IsAuthenticated(ctx context.Context) bool
}

// Status reports the sync loop's most recent outcome.
type Status struct {
	LastRunAt           time.Time `json:"lastRunAt"`
	LastSyncAt          time.Time `json:"lastSyncAt"`
	NextRunAt           time.Time `json:"nextRunAt"`
	LastResult          string    `json:"lastResult,omitempty"`
	LastError           string    `json:"lastError,omitempty"`
	TotalRuns           uint64    `json:"totalRuns"`
	ConsecutiveFailures uint64    `json:"consecutiveFailures"`
}

// Syncer periodically refreshes the cached profile and feed mirror while the
// agent is online and authenticated. Runs while offline or logged out are
// skipped, not failed.
type Syncer struct {
	refresher StateRefresher
	auth      AuthProbe
	checker   connectivity.Checker
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	schedule  string

	mu     sync.Mutex
	entry  cron.EntryID
	status Status
}

// Option customises the Syncer.
type Option func(*Syncer)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Syncer) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for status bookkeeping.
func WithNow(now func() time.Time) Option {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSchedule overrides the cron expression for the sync job.
func WithSchedule(spec string) Option {
	return func(s *Syncer) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// New constructs a Syncer.
func New(refresher StateRefresher, auth AuthProbe, checker connectivity.Checker, opts ...Option) (*Syncer, error) {
	if refresher == nil {
		return nil, errors.New("syncer: state refresher is required")
	}
	if auth == nil {
		return nil, errors.New("syncer: auth probe is required")
	}
	if checker == nil {
		return nil, errors.New("syncer: connectivity checker is required")
	}

	s := &Syncer{
		refresher: refresher,
		auth:      auth,
		checker:   checker,
		now:       time.Now,
		schedule:  defaultSchedule,
		log:       logger.WithModule("syncer"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s, nil
}

// Start registers the sync job and launches the scheduler.
func (s *Syncer) Start() error {
	entry, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("background sync failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entry = entry
	s.mu.Unlock()

	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running sync to complete.
func (s *Syncer) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes a single sync cycle.
func (s *Syncer) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	started := s.now()

	if !s.checker.IsConnected(ctx) {
		s.recordSkip(started, "offline")
		return nil
	}
	if !s.auth.IsAuthenticated(ctx) {
		s.recordSkip(started, "not authenticated")
		return nil
	}

	var errs error
	if _, err := s.refresher.RefreshProfile(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("refresh profile: %w", err))
	}
	if _, err := s.refresher.RefreshFeed(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("refresh feed: %w", err))
	}

	if errs != nil {
		s.recordFailure(started, errs)
		return errs
	}

	s.recordSuccess(started)
	return nil
}

// Status returns a snapshot of the loop's bookkeeping, including the next
// scheduled run when the scheduler is active.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.status
	if s.entry != 0 {
		if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
			status.NextRunAt = next
		}
	}
	return status
}

func (s *Syncer) recordSkip(at time.Time, reason string) {
	metrics.SyncRuns.WithLabelValues(ResultSkipped).Inc()
	s.log.Debug("sync skipped", zap.String("reason", reason))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastRunAt = at
	s.status.LastResult = ResultSkipped
	s.status.LastError = ""
	s.status.TotalRuns++
}

func (s *Syncer) recordSuccess(at time.Time) {
	metrics.SyncRuns.WithLabelValues(ResultSuccess).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastRunAt = at
	s.status.LastSyncAt = at
	s.status.LastResult = ResultSuccess
	s.status.LastError = ""
	s.status.TotalRuns++
	s.status.ConsecutiveFailures = 0
}

func (s *Syncer) recordFailure(at time.Time, err error) {
	metrics.SyncRuns.WithLabelValues(ResultFailure).Inc()
	s.log.Warn("sync cycle failed", zap.Error(err))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastRunAt = at
	s.status.LastResult = ResultFailure
	s.status.LastError = err.Error()
	s.status.TotalRuns++
	s.status.ConsecutiveFailures++
}

// HealthCheck reports scheduler staleness and repeated failures for the
// readiness probe. maxAge bounds the time since the last attempt; zero picks
// a default window.
func (s *Syncer) HealthCheck(maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultStaleness
	}

	return monitoring.NewCheck("sync", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		status := s.Status()

		if status.TotalRuns == 0 {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "pending first run",
				Duration: time.Since(start),
			}
		}

		if status.ConsecutiveFailures >= 3 {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  fmt.Sprintf("%d consecutive failures: %s", status.ConsecutiveFailures, status.LastError),
				Duration: time.Since(start),
			}
		}
		if status.ConsecutiveFailures > 0 {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  status.LastError,
				Duration: time.Since(start),
			}
		}

		if s.now().Sub(status.LastRunAt) > maxAge {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "stale: last run " + status.LastRunAt.UTC().Format(time.RFC3339),
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
		}
	})
}
