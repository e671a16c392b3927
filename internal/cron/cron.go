// Package cron runs periodic background jobs such as idle-session cleanup
// on top of robfig/cron.
package cron

import (
	"context"
	"time"
)

// Job is a periodic background task.
type Job interface {
	// Name identifies the job in logs. Names are unique per Scheduler.
	Name() string

	// Schedule is a 5-field cron expression, e.g. "*/5 * * * *".
	Schedule() string

	// Run does one pass. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

// Pruner forgets state idle for longer than maxIdle and reports how many
// entries it removed. session.Store satisfies it.
type Pruner interface {
	Prune(ctx context.Context, maxIdle time.Duration) (int, error)
}

// PrunerFunc adapts a function to Pruner.
type PrunerFunc func(ctx context.Context, maxIdle time.Duration) (int, error)

// Prune calls f.
func (f PrunerFunc) Prune(ctx context.Context, maxIdle time.Duration) (int, error) {
	return f(ctx, maxIdle)
}
