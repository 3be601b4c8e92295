// Package sweep implements the scheduled overdue-task detection job. It
// reads task state and appends activity log entries; it never mutates
// tasks. Overdue is computed, not stored.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskdesk.org/internal/audit"
	"taskdesk.org/internal/obs"
	"taskdesk.org/internal/task"
)

const defaultInterval = 5 * time.Minute

// TaskSource supplies the tasks to examine. The task store satisfies it.
type TaskSource interface {
	OverdueTasks(ctx context.Context, now time.Time) ([]*task.Task, error)
}

// Sweeper finds tasks past their due date and not done, and journals each
// into the activity log. By default every run re-logs every still-overdue
// task; with dedup enabled a task already logged since its due date is
// skipped.
type Sweeper struct {
	tasks    TaskSource
	log      audit.Store
	interval time.Duration
	dedup    bool
	now      func() time.Time
}

// Option configures the sweeper.
type Option func(*Sweeper)

// WithInterval sets the delay between scheduled runs.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithDedup suppresses a second overdue entry for a task that already has
// one logged at or after its due date.
func WithDedup(enabled bool) Option {
	return func(s *Sweeper) { s.dedup = enabled }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func New(tasks TaskSource, log audit.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		tasks:    tasks,
		log:      log,
		interval: defaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one sweep and returns how many entries were logged. A failed
// append does not abort the run: remaining tasks are still processed and
// the collected errors are returned joined.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	now := s.now().UTC()
	overdue, err := s.tasks.OverdueTasks(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("select overdue tasks: %w", err)
	}

	logged := 0
	var errs []error
	for _, t := range overdue {
		description := fmt.Sprintf("Task overdue: %s via scheduler", t.ID)
		if s.dedup {
			seen, err := s.log.SeenSince(ctx, audit.ActionTaskOverdue, description, t.DueDate)
			if err != nil {
				errs = append(errs, fmt.Errorf("task %s: %w", t.ID, err))
				continue
			}
			if seen {
				continue
			}
		}
		entry := audit.NewEntry(t.AssignedTo, audit.ActionTaskOverdue, description, now)
		if err := s.log.Append(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", t.ID, err))
			continue
		}
		logged++
	}

	obs.ObserveSweep(logged)
	obs.LogRequest(map[string]any{
		"ts":      now.Format(time.RFC3339),
		"msg":     "overdue sweep completed",
		"checked": len(overdue),
		"logged":  logged,
		"failed":  len(errs),
	})
	return logged, errors.Join(errs...)
}

// Start runs the sweep on its interval until the context is canceled. It
// shares no lock with interactive traffic; each run only reads tasks and
// appends log entries.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				obs.LogRequest(map[string]any{
					"ts":    s.now().UTC().Format(time.RFC3339),
					"level": "error",
					"msg":   "overdue sweep errors",
					"error": err.Error(),
				})
			}
		case <-ctx.Done():
			return
		}
	}
}
