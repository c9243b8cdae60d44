package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when an action exceeds its rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds configurable per-minute limits for engine actions.
type RateLimitConfig struct {
	DispatchesPerMin   int `yaml:"dispatches_per_min"`
	RemoteCallsPerMin  int `yaml:"remote_calls_per_min"`
	AuthAttemptsPerMin int `yaml:"auth_attempts_per_min"`
}

// rateLimitConfigDefaults returns a config with sensible defaults.
func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		DispatchesPerMin:   300,
		RemoteCallsPerMin:  120,
		AuthAttemptsPerMin: 30,
	}
}

// RateLimiter implements sliding-window rate limiting. Each bucket tracks
// timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// Bucket kinds accepted by Allow.
const (
	RateDispatch = "dispatch"
	RateRemote   = "remote_invoke"
	RateAuth     = "auth"
)

// NewRateLimiter creates a rate limiter with the given config. Zero-value
// fields are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.DispatchesPerMin <= 0 {
		cfg.DispatchesPerMin = defaults.DispatchesPerMin
	}
	if cfg.RemoteCallsPerMin <= 0 {
		cfg.RemoteCallsPerMin = defaults.RemoteCallsPerMin
	}
	if cfg.AuthAttemptsPerMin <= 0 {
		cfg.AuthAttemptsPerMin = defaults.AuthAttemptsPerMin
	}

	return &RateLimiter{
		now: time.Now,
		buckets: map[string]*bucket{
			RateDispatch: {window: time.Minute, limit: cfg.DispatchesPerMin},
			RateRemote:   {window: time.Minute, limit: cfg.RemoteCallsPerMin},
			RateAuth:     {window: time.Minute, limit: cfg.AuthAttemptsPerMin},
		},
	}
}

// Allow checks whether an event of the given kind is allowed. Returns nil
// if allowed, ErrRateLimited when the limit is exceeded. Unknown kinds are
// unlimited.
func (rl *RateLimiter) Allow(kind string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events) >= b.limit {
		return ErrRateLimited
	}
	b.events = append(b.events, now)
	return nil
}

// evict removes events outside the sliding window. Events are appended
// chronologically, so eviction stops at the first in-window entry.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
