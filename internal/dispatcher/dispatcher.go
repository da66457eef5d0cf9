// Package dispatcher manages worker fan-out over the task queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/contact-harvester/internal/queue"
)

// Handler processes one task. It owns its own error handling.
type Handler func(ctx context.Context, task queue.Task)

// Dispatcher fans out queue work to a fixed pool of workers.
type Dispatcher struct {
	queue   queue.Queue
	workers int
	handle  Handler
	logger  *zap.Logger
}

// New creates a Dispatcher. workers below one is treated as one.
func New(q queue.Queue, workers int, handle Handler, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   q,
		workers: workers,
		handle:  handle,
		logger:  logger,
	}
}

// Run starts the workers and blocks until the queue is closed and drained.
// A dequeue failure stops every worker and is returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range d.workers {
		g.Go(func() error {
			return d.work(ctx, gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	return nil
}

// work pulls with the group context so a failing sibling stops it, but hands
// tasks the caller's context so running handlers are never interrupted by
// another worker's failure.
func (d *Dispatcher) work(ctx, gctx context.Context, id int) error {
	for {
		task, err := d.queue.Dequeue(gctx)
		if errors.Is(err, queue.ErrClosed) {
			return nil
		}
		if err != nil {
			d.logger.Error("queue dequeue failed", zap.Int("worker", id), zap.Error(err))
			return fmt.Errorf("worker %d dequeue: %w", id, err)
		}
		d.logger.Debug("dequeued task",
			zap.Int("worker", id),
			zap.String("session_id", task.SessionID),
			zap.String("platform", task.Platform),
		)
		d.handle(ctx, task)
	}
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task queue.Task) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Close stops accepting tasks. Workers exit once the backlog drains.
func (d *Dispatcher) Close() {
	d.queue.Close()
}
