// Package scheduler drives periodic feed refreshes.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"notioncal/internal/ics"
	appLog "notioncal/internal/log"
)

// Refresher runs one refresh pass.
type Refresher interface {
	Refresh(ctx context.Context) (ics.Document, error)
}

// Feed reports whether a rendered document is already available.
type Feed interface {
	Exists() bool
}

// Scheduler owns the cron engine that triggers refreshes.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	feed      Feed
	spec      string
	timeout   time.Duration
}

// New builds a Scheduler. spec is a standard cron expression or descriptor
// such as "@every 30m". Each pass runs under a context with the given
// timeout; zero means no deadline.
func New(refresher Refresher, feed Feed, spec string, timeout time.Duration, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		refresher: refresher,
		feed:      feed,
		spec:      spec,
		timeout:   timeout,
	}
}

// EnsureFeed refreshes synchronously when no document has been written yet,
// so the first request after startup does not hit an empty cache.
func (s *Scheduler) EnsureFeed(ctx context.Context) error {
	if s.feed.Exists() {
		appLog.Info("cached calendar found; waiting for next scheduled refresh")
		return nil
	}
	appLog.Info("no cached calendar; refreshing now")
	return s.RunOnce(ctx)
}

// RunOnce performs a single refresh. The error is returned for callers that
// care; scheduled runs only log it.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if _, err := s.refresher.Refresh(ctx); err != nil {
		appLog.Error("calendar refresh failed; keeping previous feed", err)
		return err
	}
	return nil
}

// Start registers the refresh job and starts the cron engine in its own
// goroutine.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		_ = s.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule refresh %q: %w", s.spec, err)
	}

	s.cron.Start()
	appLog.Info("refresh scheduler started", "schedule", s.spec)
	return nil
}

// Stop stops scheduling and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	appLog.Info("stopping refresh scheduler")
	<-s.cron.Stop().Done()
	appLog.Info("refresh scheduler stopped")
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
