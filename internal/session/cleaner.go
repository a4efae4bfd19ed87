package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultCleanupSchedule sweeps idle sessions once an hour.
const DefaultCleanupSchedule = "@hourly"

// CleanupCallback is called for every session removed by the cleaner.
type CleanupCallback func(sessionID string)

// Cleaner periodically removes sessions idle for longer than a TTL. The
// current session is never removed.
type Cleaner struct {
	mgr       *Manager
	ttl       time.Duration
	schedule  string
	onCleanup CleanupCallback
	cron      *cron.Cron
}

// NewCleaner builds a cleaner running on a standard cron schedule
// ("@hourly", "*/15 * * * *", ...).
func NewCleaner(mgr *Manager, ttl time.Duration, schedule string, onCleanup CleanupCallback) *Cleaner {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	return &Cleaner{
		mgr:       mgr,
		ttl:       ttl,
		schedule:  schedule,
		onCleanup: onCleanup,
	}
}

// Run schedules the sweep and blocks until ctx is done.
func (c *Cleaner) Run(ctx context.Context) error {
	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.schedule, func() { c.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule session cleanup %q: %w", c.schedule, err)
	}
	c.cron.Start()
	slog.Info("Session cleaner started", "schedule", c.schedule, "ttl", c.ttl)

	<-ctx.Done()
	stopped := c.cron.Stop()
	<-stopped.Done()
	slog.Info("Session cleaner shutting down", "reason", ctx.Err())
	return nil
}

// Sweep removes expired sessions once and returns how many were removed.
func (c *Cleaner) Sweep(ctx context.Context) int {
	if c.ttl <= 0 {
		return 0
	}
	expired, err := c.mgr.repo.GetExpiredSessions(ctx, c.ttl)
	if err != nil {
		slog.Error("Session cleaner failed to get expired sessions", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	current := c.mgr.CurrentID()
	removed := 0
	for _, sess := range expired {
		if sess.ID == current {
			continue
		}
		if err := c.mgr.Delete(ctx, sess.ID); err != nil {
			slog.Warn("Session cleaner failed to delete session",
				"error", err,
				"session_id", sess.ID)
			continue
		}
		removed++
		if c.onCleanup != nil {
			c.onCleanup(sess.ID)
		}
	}

	slog.Info("Session cleanup completed", "expired", len(expired), "removed", removed)
	return removed
}
