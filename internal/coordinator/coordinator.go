// Package coordinator runs extraction sessions: it enforces the single active
// session rule, fans platform invocations out to a bounded worker pool,
// merges their results and drives the session to a terminal status.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/clock/system"
	"github.com/JakeFAU/contact-harvester/internal/dedup"
	"github.com/JakeFAU/contact-harvester/internal/dispatcher"
	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/progress"
	"github.com/JakeFAU/contact-harvester/internal/queue"
	"github.com/JakeFAU/contact-harvester/internal/queue/memory"
	"github.com/JakeFAU/contact-harvester/internal/session"
)

// Runner executes one platform invocation. It never fails; failures surface
// as an empty result.
type Runner interface {
	Run(ctx context.Context, collectorID, keywords, location string) []extract.Record
}

// Catalog validates platform ids before any work is scheduled.
type Catalog interface {
	Validate(ids []string) error
}

// QueueFactory builds the task queue for one session.
type QueueFactory func(capacity int) queue.Queue

// Config controls Coordinator behavior.
type Config struct {
	// Concurrency is the worker pool size (default 5).
	Concurrency int
	// QueueDepth bounds the task queue (default: one slot per platform).
	QueueDepth   int
	MaxPlatforms int
	MaxKeywords  int
	MaxLocation  int
	// BaseContext is the parent of every collector invocation. Sessions
	// outlive the request that started them.
	BaseContext context.Context
}

const (
	defaultConcurrency  = 5
	defaultMaxPlatforms = 10
	defaultMaxKeywords  = 500
	defaultMaxLocation  = 200
)

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.MaxPlatforms <= 0 {
		c.MaxPlatforms = defaultMaxPlatforms
	}
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = defaultMaxKeywords
	}
	if c.MaxLocation <= 0 {
		c.MaxLocation = defaultMaxLocation
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	return c
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithEmitter sends progress events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(c *Coordinator) {
		if e != nil {
			c.emitter = e
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock extract.Clock) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithQueueFactory overrides the per-session task queue.
func WithQueueFactory(f QueueFactory) Option {
	return func(c *Coordinator) {
		if f != nil {
			c.newQueue = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// Coordinator owns the active session. All session mutation happens under mu.
type Coordinator struct {
	runner   Runner
	catalog  Catalog
	ids      extract.IDGenerator
	clock    extract.Clock
	emitter  progress.Emitter
	newQueue QueueFactory
	cfg      Config
	logger   *zap.Logger

	mu     sync.Mutex
	active *run
	last   *run
}

// run is the mutable state of one session.
type run struct {
	machine *session.Machine
	records *dedup.Set
	query   extract.Query
	stopped atomic.Bool
	fault   bool
	done    chan struct{}
}

type outcome struct {
	platform string
	records  []extract.Record
	dur      time.Duration
	skipped  bool
}

// New constructs a Coordinator.
func New(runner Runner, catalog Catalog, ids extract.IDGenerator, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		runner:  runner,
		catalog: catalog,
		ids:     ids,
		clock:   system.New(),
		emitter: progress.NopEmitter{},
		newQueue: func(capacity int) queue.Queue {
			return memory.NewQueue(capacity)
		},
		cfg:    cfg.withDefaults(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start validates q and launches a session. It returns
// extract.ErrAlreadyRunning while another session runs and an error wrapping
// extract.ErrInvalidQuery for malformed input. Neither has side effects.
func (c *Coordinator) Start(ctx context.Context, q extract.Query) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return "", extract.ErrAlreadyRunning
	}
	if err := c.validate(q); err != nil {
		return "", err
	}
	id, err := c.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}

	r := &run{
		machine: session.New(id, q, c.clock.Now()),
		records: dedup.NewSet(),
		query:   q.Clone(),
		done:    make(chan struct{}),
	}
	c.active = r
	c.last = r
	snap := r.machine.Snapshot()

	c.logger.Info("session started",
		zap.String("session_id", id),
		zap.String("keywords", q.Keywords),
		zap.String("location", q.Location),
		zap.Strings("platforms", q.Platforms),
	)
	c.emitter.Emit(progress.Event{
		SessionID: id,
		TS:        snap.StartedAt,
		Stage:     progress.StageSessionStart,
		Status:    snap.Status,
		Session:   &snap,
	})

	go c.execute(r)
	return id, nil
}

func (c *Coordinator) validate(q extract.Query) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", extract.ErrInvalidQuery, fmt.Sprintf(format, args...))
	}
	if strings.TrimSpace(q.Keywords) == "" && strings.TrimSpace(q.Location) == "" {
		return invalid("keywords or location is required")
	}
	if n := utf8.RuneCountInString(q.Keywords); n > c.cfg.MaxKeywords {
		return invalid("keywords exceed %d characters", c.cfg.MaxKeywords)
	}
	if n := utf8.RuneCountInString(q.Location); n > c.cfg.MaxLocation {
		return invalid("location exceeds %d characters", c.cfg.MaxLocation)
	}
	switch n := len(q.Platforms); {
	case n == 0:
		return invalid("at least one platform is required")
	case n > c.cfg.MaxPlatforms:
		return invalid("at most %d platforms allowed, got %d", c.cfg.MaxPlatforms, n)
	}
	seen := make(map[string]struct{}, len(q.Platforms))
	for _, p := range q.Platforms {
		if p == "" {
			return invalid("empty platform id")
		}
		if _, dup := seen[p]; dup {
			return invalid("duplicate platform %q", p)
		}
		seen[p] = struct{}{}
	}
	if err := c.catalog.Validate(q.Platforms); err != nil {
		return fmt.Errorf("%w: %w", extract.ErrInvalidQuery, err)
	}
	return nil
}

// execute is the session's control goroutine.
func (c *Coordinator) execute(r *run) {
	ctx := c.cfg.BaseContext
	id := r.machine.ID()
	logger := c.logger.With(zap.String("session_id", id))

	depth := c.cfg.QueueDepth
	if depth <= 0 {
		depth = len(r.query.Platforms)
	}
	results := make(chan outcome, len(r.query.Platforms))
	pool := dispatcher.New(c.newQueue(depth), c.cfg.Concurrency, func(ctx context.Context, task queue.Task) {
		if r.stopped.Load() {
			results <- outcome{platform: task.Platform, skipped: true}
			return
		}
		start := c.clock.Now()
		records := c.runner.Run(ctx, task.Platform, r.query.Keywords, r.query.Location)
		results <- outcome{platform: task.Platform, records: records, dur: max(c.clock.Now().Sub(start), 0)}
	}, logger)

	poolErr := make(chan error, 1)
	go func() {
		poolErr <- pool.Run(ctx)
		// Release the producer if the pool died with the queue still full.
		pool.Close()
		close(results)
	}()

	for i, platform := range r.query.Platforms {
		if r.stopped.Load() {
			logger.Info("stop observed, not scheduling remaining platforms",
				zap.Strings("unscheduled", r.query.Platforms[i:]))
			break
		}
		task := queue.Task{SessionID: id, Platform: platform, Index: i}
		if err := pool.Enqueue(ctx, task); err != nil {
			logger.Error("failed to schedule platform",
				zap.String("platform", platform),
				zap.String("keywords", r.query.Keywords),
				zap.String("location", r.query.Location),
				zap.Error(err),
			)
			c.markFault(r)
			break
		}
	}
	pool.Close()

	for o := range results {
		c.merge(r, o)
	}
	if err := <-poolErr; err != nil {
		logger.Error("worker pool failed",
			zap.String("keywords", r.query.Keywords),
			zap.String("location", r.query.Location),
			zap.Error(err),
		)
		c.markFault(r)
	}
	c.finish(r)
}

func (c *Coordinator) markFault(r *run) {
	c.mu.Lock()
	r.fault = true
	c.mu.Unlock()
}

// merge folds one invocation into the session. Only the control goroutine
// calls it, and only before the terminal transition.
func (c *Coordinator) merge(r *run, o outcome) {
	now := c.clock.Now()
	c.mu.Lock()
	added := r.records.Merge(o.records)
	r.machine.AddResults(len(added))
	total := r.machine.ResultCount()
	status := r.machine.Status()
	c.mu.Unlock()

	id := r.machine.ID()
	if len(added) > 0 {
		c.emitter.Emit(progress.Event{
			SessionID: id,
			TS:        now,
			Stage:     progress.StageSessionProgress,
			Platform:  o.platform,
			Status:    status,
			Added:     added,
			Total:     total,
		})
	}
	evt := progress.Event{
		SessionID: id,
		TS:        now,
		Stage:     progress.StagePlatformDone,
		Platform:  o.platform,
		Status:    status,
		Total:     total,
		Returned:  len(o.records),
		Dur:       o.dur,
	}
	if o.skipped {
		evt.Note = "skipped"
	}
	c.emitter.Emit(evt)
}

// finish performs the terminal transition: stopped wins over failed, which
// wins over completed.
func (c *Coordinator) finish(r *run) {
	now := c.clock.Now()
	c.mu.Lock()
	status := extract.StatusCompleted
	switch {
	case r.stopped.Load():
		status = extract.StatusStopped
	case r.fault:
		status = extract.StatusFailed
	}
	err := r.machine.Finish(status, now)
	snap := r.machine.Snapshot()
	if c.active == r {
		c.active = nil
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("session transition rejected", zap.String("session_id", snap.ID), zap.Error(err))
	}
	c.logger.Info("session finished",
		zap.String("session_id", snap.ID),
		zap.String("status", string(snap.Status)),
		zap.Int("results", snap.ResultCount),
	)
	c.emitter.Emit(progress.Event{
		SessionID: snap.ID,
		TS:        now,
		Stage:     progress.StageSessionDone,
		Status:    snap.Status,
		Total:     snap.ResultCount,
		Session:   &snap,
		Dur:       max(now.Sub(snap.StartedAt), 0),
	})
	close(r.done)
}

// Stop asks the running session to stop. It reports whether a running
// session observed the request; repeated or late calls are no-ops.
func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.active
	if r == nil || r.machine.Status().Terminal() {
		return false
	}
	if r.stopped.Swap(true) {
		return false
	}
	c.logger.Info("stop requested", zap.String("session_id", r.machine.ID()))
	return true
}

// Running reports whether a session is active.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Progress returns the result count and status of the most recent session.
// ok is false if no session was ever started.
func (c *Coordinator) Progress() (count int, status extract.Status, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return 0, "", false
	}
	return c.last.machine.ResultCount(), c.last.machine.Status(), true
}

// Snapshot returns the most recent session and a copy of its records.
func (c *Coordinator) Snapshot() (extract.Session, []extract.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return extract.Session{}, nil, false
	}
	return c.last.machine.Snapshot(), c.last.records.Records(), true
}

// Wait blocks until the most recent session is terminal or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	r := c.last
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for session: %w", ctx.Err())
	}
}

// Shutdown stops the active session and waits for it to drain.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.Stop()
	return c.Wait(ctx)
}
