// Package ratelimit implements a token bucket limiter keyed by collector id.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/contact-harvester/internal/metrics"
)

// Limiter manages one token bucket per key.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	overrides    map[string]Config
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// PerKey overrides the defaults for specific collectors.
	PerKey map[string]Config
}

// New creates a new Limiter. A non-positive rate means unlimited.
func New(cfg Config) *Limiter {
	r, burst := limits(cfg)
	overrides := make(map[string]Config, len(cfg.PerKey))
	for k, v := range cfg.PerKey {
		overrides[k] = v
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		overrides:    overrides,
	}
}

func limits(cfg Config) (rate.Limit, int) {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return r, burst
}

// Wait blocks until a token is available for key, respecting the context.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	limiter := l.limiterFor(key)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not interesting delays.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(key, d)
	}
	return nil
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if ok {
		return limiter
	}
	r, burst := l.defaultRate, l.defaultBurst
	if o, ok := l.overrides[key]; ok {
		r, burst = limits(o)
	}
	limiter = rate.NewLimiter(r, burst)
	l.limiters[key] = limiter
	return limiter
}
