// Package feed fans progress events out to live subscribers such as websocket
// clients. Subscribers come and go freely; a subscriber that cannot keep up
// loses events instead of slowing the hub.
package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/progress"
)

// DefaultBuffer is the per-subscriber channel size.
const DefaultBuffer = 64

// Feed is a progress.Sink broadcasting every event to its subscribers.
type Feed struct {
	buffer int
	logger *zap.Logger

	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]chan progress.Event
	closed  bool
	dropped atomic.Int64
}

// New constructs a Feed. buffer <= 0 selects DefaultBuffer.
func New(buffer int, logger *zap.Logger) *Feed {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{buffer: buffer, logger: logger, subs: make(map[uint64]chan progress.Event)}
}

// Name identifies the sink in hub logs.
func (f *Feed) Name() string { return "feed" }

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once. Subscribing to a
// closed feed yields an already-closed channel.
func (f *Feed) Subscribe() (<-chan progress.Event, func()) {
	ch := make(chan progress.Event, f.buffer)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() { f.remove(id) })
	}
}

func (f *Feed) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
}

// Subscribers reports the current subscriber count.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// Consume delivers the batch to every subscriber without blocking.
func (f *Feed) Consume(_ context.Context, batch []progress.Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, evt := range batch {
		for id, ch := range f.subs {
			select {
			case ch <- evt:
			default:
				f.dropped.Add(1)
				f.logger.Debug("feed subscriber lagging",
					zap.Uint64("subscriber", id),
					zap.String("session_id", evt.SessionID),
					zap.String("stage", string(evt.Stage)),
				)
			}
		}
	}
	return nil
}

// Close disconnects every subscriber.
func (f *Feed) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
	return nil
}
