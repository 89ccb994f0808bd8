package authcore

import (
	"context"
	"time"

	"github.com/lockplane/authcore/ratelimit"
	"github.com/lockplane/authcore/schedule"
)

// MaintenanceTasks returns the engine's periodic sweeps as schedule tasks:
// daily expired-session, code, and challenge sweeps, a weekly purge of
// sessions revoked longer ago than the audit retention window, and eviction
// of idle rate-limit buckets. All idempotent; zero rows is not an error.
// Feed them to a [schedule.Runner] or an external scheduler.
func (e *Engine) MaintenanceTasks() []schedule.Task {
	if e == nil {
		return nil
	}

	tasks := []schedule.Task{
		{
			Name:  "sessions_expired",
			Every: 24 * time.Hour,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				n, err := e.sessions.SweepExpired(ctx, now)
				e.metricAdd(MetricSweepDeleted, uint64(n))
				return n, err
			},
		},
		{
			Name:  "sessions_revoked_purge",
			Every: 7 * 24 * time.Hour,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				n, err := e.sessions.SweepRevokedBefore(ctx, now.Add(-e.config.Session.RevokedRetention))
				e.metricAdd(MetricSweepDeleted, uint64(n))
				return n, err
			},
		},
	}

	if e.codes != nil {
		tasks = append(tasks, schedule.Task{
			Name:  "oauth_codes_expired",
			Every: 24 * time.Hour,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				n, err := e.codes.SweepExpired(ctx, now)
				e.metricAdd(MetricSweepDeleted, uint64(n))
				return n, err
			},
		})
	}
	if e.challenges != nil {
		tasks = append(tasks, schedule.Task{
			Name:  "challenges_expired",
			Every: 24 * time.Hour,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				n, err := e.challenges.SweepExpired(ctx, now)
				e.metricAdd(MetricSweepDeleted, uint64(n))
				return n, err
			},
		})
	}
	if e.rules != nil {
		tasks = append(tasks, schedule.Task{
			Name:  "ratelimit_idle_buckets",
			Every: ratelimit.DefaultSweepInterval,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				return e.rules.Sweep(), nil
			},
		})
	}

	return tasks
}
