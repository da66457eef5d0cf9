package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()
	l := New(Config{
		DefaultRPS:   10, // 100ms interval
		DefaultBurst: 1,
	})
	ctx := context.Background()

	// Consume initial token.
	require.NoError(t, l.Wait(ctx, "yellow-pages"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "yellow-pages"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_DifferentKeys(t *testing.T) {
	t.Parallel()
	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "b"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "key b blocked by key a")
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(ctx, "any"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_PerKeyOverride(t *testing.T) {
	t.Parallel()
	l := New(Config{
		DefaultRPS:   0.1,
		DefaultBurst: 1,
		PerKey: map[string]Config{
			"fast": {DefaultRPS: 0},
		},
	})
	ctx := context.Background()
	start := time.Now()
	for range 10 {
		require.NoError(t, l.Wait(ctx, "fast"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_ContextCanceled(t *testing.T) {
	t.Parallel()
	l := New(Config{DefaultRPS: 0.01, DefaultBurst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "slow"))
	require.Error(t, l.Wait(ctx, "slow"))
}
