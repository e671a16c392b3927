package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/aamo/internal/config"
	"github.com/flemzord/aamo/internal/core"
	"github.com/flemzord/aamo/internal/cron"
	"github.com/flemzord/aamo/internal/gateway"
	"github.com/flemzord/aamo/internal/guard"
	"github.com/flemzord/aamo/internal/ingest"
	"github.com/flemzord/aamo/internal/persona"
	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/relay"
	"github.com/flemzord/aamo/internal/security"
	"github.com/flemzord/aamo/internal/session"
)

const relayTracerName = "github.com/flemzord/aamo/internal/relay"

// wireRelay builds the relay from the services modules registered during
// provisioning and publishes it for the gateway. Must be called after
// LoadModules and before Start.
func wireRelay(
	appCtx *core.AppContext,
	cfg config.RelayConfig,
	limiter *security.RateLimiter,
	tracer trace.Tracer,
	logger *slog.Logger,
) (*relay.Relay, error) {
	rc := relay.Config{
		Sanitizer: guard.New(cfg.Guard),
		Persona:   persona.New(cfg.Persona),
		Logger:    logger.With("component", "relay"),
		Tracer:    tracer,
		Ingest: ingest.Options{
			DefaultSessionID: cfg.DefaultSession,
			Placeholder:      cfg.Placeholder,
		},
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
	}
	if cfg.MaxMessageRunes != nil {
		rc.Ingest.MaxMessageRunes = *cfg.MaxMessageRunes
	}
	if cfg.Temperature != nil {
		rc.Temperature = *cfg.Temperature
	}
	if limiter.Enabled() {
		rc.Limiter = limiter
	}

	if svc, ok := appCtx.Service(provider.ServiceName); ok {
		u, ok := svc.(*provider.Upstream)
		if !ok {
			return nil, fmt.Errorf("service %s has type %T, want *provider.Upstream", provider.ServiceName, svc)
		}
		rc.Completer = u
	}

	rc.Store = session.NewMemoryStore(cfg.Window)
	if svc, ok := appCtx.Service("session.store"); ok {
		store, ok := svc.(session.Store)
		if !ok {
			return nil, fmt.Errorf("service session.store has type %T, want session.Store", svc)
		}
		rc.Store = store
	}

	if svc, ok := appCtx.Service(gateway.ServiceMetrics); ok {
		if rec, ok := svc.(relay.Recorder); ok {
			rc.Recorder = rec
		}
	}

	r, err := relay.New(rc)
	if err != nil {
		return nil, err
	}
	appCtx.RegisterService(gateway.ServiceRelay, r)
	return r, nil
}

// limiterPruner forgets the rate limiter buckets of idle sessions.
func limiterPruner(l *security.RateLimiter) func(context.Context, time.Duration) (int, error) {
	return func(_ context.Context, maxIdle time.Duration) (int, error) {
		return l.Prune(maxIdle), nil
	}
}

// newCleanupScheduler returns a scheduler pruning idle sessions, or nil
// when idle_ttl is not set. A bad prune_schedule is an error.
func newCleanupScheduler(
	cfg config.RelayConfig,
	store session.Store,
	limiter *security.RateLimiter,
	logger *slog.Logger,
) (*cron.Scheduler, error) {
	if cfg.IdleTTL <= 0 {
		return nil, nil
	}

	sched := cron.NewScheduler(logger.With("component", "cron"))
	jobs := []cron.Job{&cron.IdleCleanup{
		JobName: "session_cleanup",
		Target:  store,
		MaxIdle: cfg.IdleTTL,
		Logger:  logger,
		Expr:    cfg.PruneSchedule,
	}}
	if limiter.Enabled() {
		jobs = append(jobs, &cron.IdleCleanup{
			JobName: "ratelimit_cleanup",
			Target:  cron.PrunerFunc(limiterPruner(limiter)),
			MaxIdle: cfg.IdleTTL,
			Expr:    cfg.PruneSchedule,
		})
	}
	for _, j := range jobs {
		if err := sched.Add(j); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
