// Package retry implements a generic retry combinator with exponential
// backoff and jitter, shared by every collector invocation.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"
)

// ErrExhausted wraps the last failure once every attempt has been used.
var ErrExhausted = errors.New("retry attempts exhausted")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Policy describes how many attempts to make and how long to wait between them.
// The wait after a failed attempt n (zero based) is BaseDelay*2^n, capped at
// MaxDelay, plus a random jitter in [0, MaxJitter).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns three attempts with 1s/2s base waits and up to 1s jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxJitter:   time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.MaxJitter < 0 {
		p.MaxJitter = 0
	}
	return p
}

// Backoff returns the wait that follows failed attempt n (zero based).
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay) + randomJitter(p.MaxJitter)
}

// Do calls fn until it succeeds or the policy's attempts are used up. There is
// no wait after the final attempt. A context that ends stops further attempts.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, fmt.Errorf("retry stopped after %d attempt(s): %w", attempt+1, lastErr)
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("retry stopped after %d attempt(s): %w", attempt+1, lastErr)
		}
	}
	return zero, fmt.Errorf("%w after %d attempt(s): %w", ErrExhausted, p.MaxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
