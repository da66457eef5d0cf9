// Package queue defines the task queue that feeds the collector worker pool.
// This abstraction lets the coordinator stay independent of the queue
// implementation and lets tests inject scheduling failures.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned once a queue has been closed and drained.
var ErrClosed = errors.New("queue closed")

// Task schedules one platform invocation for a session.
type Task struct {
	SessionID string
	Platform  string
	// Index is the platform's position in the caller's list.
	Index int
}

// Queue is a bounded FIFO of tasks.
type Queue interface {
	// Enqueue adds a task, blocking while the queue is full.
	Enqueue(ctx context.Context, task Task) error
	// Dequeue returns the next task or ErrClosed once closed and empty.
	Dequeue(ctx context.Context) (Task, error)
	// Close stops accepting tasks. Buffered tasks remain readable.
	Close()
}
