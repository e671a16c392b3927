package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/flemzord/aamo/internal/core"
)

// Scheduler runs Jobs on their cron schedules. It joins the app lifecycle
// as the cron.scheduler module. A tick that fires while the previous run
// of the same job is still going is skipped, and a panicking job is
// logged instead of taking the process down.
type Scheduler struct {
	logger *slog.Logger
	parser cron.Parser
	chain  cron.Chain

	mu     sync.Mutex
	jobs   []scheduled
	runner *cron.Cron
	cancel context.CancelFunc
}

type scheduled struct {
	job      Job
	schedule cron.Schedule
}

// NewScheduler returns an empty scheduler. A nil logger means
// slog.Default.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	l := cronLogger{logger}
	return &Scheduler{
		logger: logger,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		chain:  cron.NewChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	}
}

// ModuleInfo implements core.Module.
func (s *Scheduler) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron.scheduler",
		New: func() core.Module { return s },
	}
}

// Add registers j. It fails on a duplicate name or an unparsable
// schedule. Jobs added after Start are not run.
func (s *Scheduler) Add(j Job) error {
	schedule, err := s.parser.Parse(j.Schedule())
	if err != nil {
		return fmt.Errorf("cron: job %q: %w", j.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sj := range s.jobs {
		if sj.job.Name() == j.Name() {
			return fmt.Errorf("cron: duplicate job %q", j.Name())
		}
	}
	s.jobs = append(s.jobs, scheduled{job: j, schedule: schedule})
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Start implements core.Starter. Without jobs it starts nothing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 || s.runner != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.runner = cron.New(cron.WithParser(s.parser), cron.WithLogger(cronLogger{s.logger}))
	for _, sj := range s.jobs {
		s.runner.Schedule(sj.schedule, s.wrap(ctx, sj.job))
	}
	s.runner.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop implements core.Stopper. It cancels running jobs and waits for
// them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	runner, cancel := s.runner, s.cancel
	s.runner, s.cancel = nil, nil
	s.mu.Unlock()

	if runner == nil {
		return nil
	}
	cancel()
	select {
	case <-runner.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: waiting for running jobs: %w", ctx.Err())
	}
}

// wrap turns j into a robfig job guarded by the scheduler's chain.
func (s *Scheduler) wrap(ctx context.Context, j Job) cron.Job {
	return s.chain.Then(cron.FuncJob(func() {
		if err := j.Run(ctx); err != nil {
			s.logger.Error("cron: job failed", "job", j.Name(), "error", err)
			return
		}
		s.logger.Debug("cron: job done", "job", j.Name())
	}))
}

// cronLogger routes robfig/cron's logging to slog. Its chatty Info output
// goes to Debug.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

var (
	_ core.Module  = (*Scheduler)(nil)
	_ core.Starter = (*Scheduler)(nil)
	_ core.Stopper = (*Scheduler)(nil)
	_ cron.Logger  = cronLogger{}
)
