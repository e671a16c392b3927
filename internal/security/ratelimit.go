package security

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds configurable rate limits.
type RateLimitConfig struct {
	// MessagesPerMin is the sustained message rate allowed per key.
	// Zero disables limiting.
	MessagesPerMin int `yaml:"messages_per_min"`

	// Burst is the number of messages a key may send at once.
	// Defaults to MessagesPerMin.
	Burst int `yaml:"burst"`

	// MaxKeys caps the number of tracked keys. When full, the key idle
	// for the longest time is forgotten. Default: 10000.
	MaxKeys int `yaml:"max_keys"`
}

func (c *RateLimitConfig) defaults() {
	if c.Burst <= 0 {
		c.Burst = c.MessagesPerMin
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = 10000
	}
}

// RateLimiter is a keyed token-bucket limiter. Each key (a session
// identifier) gets its own bucket refilled at MessagesPerMin.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*keyBucket
	config  RateLimitConfig
	now     func() time.Time
}

type keyBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg.defaults()
	return &RateLimiter{
		buckets: make(map[string]*keyBucket),
		config:  cfg,
		now:     time.Now,
	}
}

// Enabled reports whether any limit is configured.
func (rl *RateLimiter) Enabled() bool {
	return rl != nil && rl.config.MessagesPerMin > 0
}

// Allow consumes one token from key's bucket.
// Returns nil if allowed, ErrRateLimited if the bucket is empty.
func (rl *RateLimiter) Allow(key string) error {
	if !rl.Enabled() {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= rl.config.MaxKeys {
			rl.evictOldest()
		}
		b = &keyBucket{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.config.MessagesPerMin)), rl.config.Burst),
		}
		rl.buckets[key] = b
	}
	b.lastSeen = now

	if !b.limiter.AllowN(now, 1) {
		return ErrRateLimited
	}
	return nil
}

// Forget drops the bucket for key.
func (rl *RateLimiter) Forget(key string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// Prune drops buckets not used for longer than maxIdle and returns how
// many were dropped.
func (rl *RateLimiter) Prune(maxIdle time.Duration) int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	n := 0
	for k, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// evictOldest removes the least recently seen bucket. Caller holds mu.
func (rl *RateLimiter) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, b := range rl.buckets {
		if !found || b.lastSeen.Before(oldest) {
			oldestKey, oldest, found = k, b.lastSeen, true
		}
	}
	if found {
		delete(rl.buckets, oldestKey)
	}
}
