package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Option configures an Upstream.
type Option func(*Upstream)

// WithKeyring rotates k to the next key whenever the backend reports a
// rate limit. The provider is expected to read the key from k.
func WithKeyring(k *Keyring) Option {
	return func(u *Upstream) { u.keys = k }
}

// WithHealth sets the breaker configuration.
func WithHealth(cfg HealthConfig) Option {
	return func(u *Upstream) { u.health = cfg }
}

// WithLogger sets the logger for breaker and key events. Without it they
// are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(u *Upstream) { u.logger = l }
}

// Upstream is the relay's completion backend: one Provider behind a
// health breaker, with optional key rotation. Each Complete makes at
// most one call to the provider.
type Upstream struct {
	name     string
	provider Provider
	keys     *Keyring
	health   HealthConfig
	logger   *slog.Logger
	breaker  *breaker

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewUpstream wraps p under name.
func NewUpstream(name string, p Provider, opts ...Option) (*Upstream, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: upstream %q has no provider", ErrNoProvider, name)
	}
	u := &Upstream{name: name, provider: p}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = slog.New(slog.DiscardHandler)
	}
	u.breaker = newBreaker(u.health)
	u.breaker.onChange = u.logTransition
	return u, nil
}

func (u *Upstream) logTransition(from, to State) {
	state, failures, backoff := u.breaker.snapshot()
	switch to {
	case StateCooldown:
		u.logger.Warn("provider cooling down", "provider", u.name, "backoff", backoff, "failures", failures)
	case StateDead:
		u.logger.Error("provider marked dead", "provider", u.name, "failures", failures)
	case StateHealthy:
		u.logger.Info("provider recovered", "provider", u.name, "previous_state", string(from), "state", string(state))
	}
}

// Name returns the upstream's name.
func (u *Upstream) Name() string { return u.name }

// Complete sends req to the provider unless the breaker is open.
// Transient failures trip the breaker; a rate limit also rotates the key
// for the next request.
func (u *Upstream) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if !u.breaker.allow() {
		return CompletionResponse{}, fmt.Errorf("%w: %s", ErrCoolingDown, u.name)
	}

	resp, err := u.provider.Complete(ctx, req)
	switch {
	case err == nil:
		u.breaker.success()
		return resp, nil
	case ctx.Err() != nil:
		return CompletionResponse{}, err
	case IsTransient(err):
		if errors.Is(err, ErrRateLimit) && u.keys != nil && u.keys.Rotate() {
			u.logger.Info("api key rotated", "provider", u.name, "key_index", u.keys.Index())
		}
		u.breaker.failure()
	}
	return CompletionResponse{}, err
}

// Start probes a tripped provider every CheckInterval until ctx is
// cancelled or Stop is called. Starting twice is a no-op.
func (u *Upstream) Start(ctx context.Context) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		return
	}
	checker, ok := u.provider.(HealthChecker)
	if !ok {
		return
	}

	ctx, u.cancel = context.WithCancel(ctx)
	u.done = make(chan struct{})
	go u.probe(ctx, checker)
}

// Stop ends background probing and waits for it to finish.
func (u *Upstream) Stop() {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.cancel, u.done = nil, nil
	u.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (u *Upstream) probe(ctx context.Context, checker HealthChecker) {
	defer close(u.done)

	ticker := time.NewTicker(u.breaker.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !u.breaker.needsProbe() {
				continue
			}
			if err := checker.HealthCheck(ctx); err != nil {
				u.logger.Debug("health probe failed", "provider", u.name, "error", err)
				continue
			}
			u.breaker.success()
		}
	}
}

// Status is a point-in-time view of an Upstream.
type Status struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	State    State  `json:"state"`
	Failures int    `json:"failures"`
	Keys     int    `json:"keys"`
	KeyIndex int    `json:"key_index"`
}

// Status reports the upstream's health and key position.
func (u *Upstream) Status() Status {
	state, failures, _ := u.breaker.snapshot()
	st := Status{
		Name:     u.name,
		Model:    u.provider.ModelName(),
		State:    state,
		Failures: failures,
	}
	if u.keys != nil {
		st.Keys = u.keys.Len()
		st.KeyIndex = u.keys.Index()
	}
	return st
}
