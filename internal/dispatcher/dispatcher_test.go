// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/queue"
	"github.com/JakeFAU/contact-harvester/internal/queue/memory"
)

// TestDispatcherDrainsQueue ensures every task is handled before Run returns.
func TestDispatcherDrainsQueue(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(8)
	var mu sync.Mutex
	seen := map[string]bool{}
	dispatch := New(q, 3, func(_ context.Context, task queue.Task) {
		mu.Lock()
		seen[task.Platform] = true
		mu.Unlock()
	}, zap.NewNop())

	for i, p := range []string{"a", "b", "c", "d", "e"} {
		if err := dispatch.Enqueue(context.Background(), queue.Task{Platform: p, Index: i}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	dispatch.Close()

	if err := dispatch.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 handled tasks, got %v", seen)
	}
}

// TestDispatcherBoundsConcurrency verifies no more than the configured
// number of handlers run at once.
func TestDispatcherBoundsConcurrency(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(10)
	var active, peak atomic.Int32
	dispatch := New(q, 2, func(context.Context, queue.Task) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
	}, nil)
	for i := range 10 {
		if err := dispatch.Enqueue(context.Background(), queue.Task{Index: i}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	dispatch.Close()
	if err := dispatch.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent handlers, saw %d", got)
	}
}

// TestDispatcherRunStopsOnCancel ensures workers stop when the context ends.
func TestDispatcherRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := &blockingQueue{started: make(chan struct{}, 1)}
	dispatch := New(q, 1, func(context.Context, queue.Task) {}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- dispatch.Run(ctx)
	}()

	select {
	case <-q.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	q := &errorQueue{err: errors.New("boom")}
	dispatch := New(q, 1, nil, nil)

	err := dispatch.Enqueue(context.Background(), queue.Task{Platform: "a"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

// TestDispatcherDequeueFailure verifies a broken queue surfaces from Run.
func TestDispatcherDequeueFailure(t *testing.T) {
	t.Parallel()

	q := &errorQueue{err: errors.New("boom")}
	dispatch := New(q, 2, func(context.Context, queue.Task) {}, nil)
	if err := dispatch.Run(context.Background()); err == nil {
		t.Fatal("expected dequeue failure to surface")
	}
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(context.Context, queue.Task) error {
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (queue.Task, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return queue.Task{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

func (q *blockingQueue) Close() {}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, queue.Task) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (queue.Task, error) {
	return queue.Task{}, q.err
}

func (q *errorQueue) Close() {}
