package provider

import (
	"sync"
	"time"
)

// State is the availability of a backend as seen by its breaker.
type State string

// Breaker states.
const (
	StateHealthy  State = "healthy"
	StateCooldown State = "cooldown"
	StateDead     State = "dead"
)

// HealthConfig tunes the breaker. Zero fields take the defaults.
type HealthConfig struct {
	// InitialBackoff is the first cooldown. Default 1s, doubled on each
	// consecutive failure.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the cooldown. Default 60s.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxFailures consecutive failures mark the backend dead for
	// MaxBackoff, or until a probe succeeds. Default 5.
	MaxFailures int `yaml:"max_failures"`

	// CheckInterval is how often a tripped backend is probed. Default 10s.
	CheckInterval time.Duration `yaml:"check_interval"`
}

func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10 * time.Second
	}
}

// breaker counts consecutive transient failures. After one it holds the
// backend in cooldown for an exponentially growing backoff; after
// MaxFailures it marks it dead for MaxBackoff. A success from a request
// or a probe closes it again.
type breaker struct {
	cfg      HealthConfig
	onChange func(from, to State)
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	backoff  time.Duration
	until    time.Time
}

func newBreaker(cfg HealthConfig) *breaker {
	cfg.defaults()
	return &breaker{cfg: cfg, state: StateHealthy, now: time.Now}
}

// allow reports whether a request may go through.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateHealthy || !b.now().Before(b.until)
}

// needsProbe reports whether the backend is tripped and due for a probe.
func (b *breaker) needsProbe() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateDead || (b.state == StateCooldown && !b.now().Before(b.until))
}

func (b *breaker) success() {
	b.mu.Lock()
	prev := b.state
	b.state, b.failures, b.backoff = StateHealthy, 0, 0
	b.mu.Unlock()
	b.notify(prev, StateHealthy)
}

func (b *breaker) failure() {
	b.mu.Lock()
	prev := b.state
	b.failures++
	if b.failures >= b.cfg.MaxFailures {
		b.state = StateDead
		b.backoff = b.cfg.MaxBackoff
		b.until = b.now().Add(b.backoff)
	} else {
		b.state = StateCooldown
		b.backoff = min(max(b.backoff*2, b.cfg.InitialBackoff), b.cfg.MaxBackoff)
		b.until = b.now().Add(b.backoff)
	}
	next := b.state
	b.mu.Unlock()
	b.notify(prev, next)
}

func (b *breaker) notify(from, to State) {
	if from != to && b.onChange != nil {
		b.onChange(from, to)
	}
}

func (b *breaker) snapshot() (State, int, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failures, b.backoff
}
