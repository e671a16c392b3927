package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultCleanupSchedule runs cleanup every five minutes.
const DefaultCleanupSchedule = "*/5 * * * *"

// IdleCleanup is a Job that prunes Target of everything idle longer than
// MaxIdle. A non-positive MaxIdle makes Run a no-op.
type IdleCleanup struct {
	JobName string
	Target  Pruner
	MaxIdle time.Duration
	Logger  *slog.Logger

	// Expr is the cron expression. Empty means DefaultCleanupSchedule.
	Expr string

	// OnPruned, when set, receives the count removed by each run.
	OnPruned func(n int)
}

var _ Job = (*IdleCleanup)(nil)

// Name implements Job.
func (c *IdleCleanup) Name() string { return c.JobName }

// Schedule implements Job.
func (c *IdleCleanup) Schedule() string {
	if c.Expr == "" {
		return DefaultCleanupSchedule
	}
	return c.Expr
}

// Run implements Job.
func (c *IdleCleanup) Run(ctx context.Context) error {
	if c.MaxIdle <= 0 {
		return nil
	}
	n, err := c.Target.Prune(ctx, c.MaxIdle)
	if err != nil {
		return fmt.Errorf("%s: %w", c.JobName, err)
	}
	if n == 0 {
		return nil
	}
	if c.Logger != nil {
		c.Logger.Info("pruned idle entries", "job", c.JobName, "count", n, "max_idle", c.MaxIdle)
	}
	if c.OnPruned != nil {
		c.OnPruned(n)
	}
	return nil
}
