package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/cache/memory"
	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/progress"
	"github.com/JakeFAU/contact-harvester/internal/queue"
	qmemory "github.com/JakeFAU/contact-harvester/internal/queue/memory"
	"github.com/JakeFAU/contact-harvester/internal/registry"
	"github.com/JakeFAU/contact-harvester/internal/retry"
	"github.com/JakeFAU/contact-harvester/internal/runner"
)

type seqIDs struct{ n atomic.Int32 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("session-%d", s.n.Add(1)), nil
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
	hook   func(progress.Event)
}

func (r *recorder) Emit(evt progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(evt)
	}
}

func (r *recorder) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

// gatedRunner returns canned records. Platforms with a gate block until the
// gate is closed.
type gatedRunner struct {
	mu      sync.Mutex
	calls   []string
	gates   map[string]chan struct{}
	results map[string][]extract.Record
	started chan string
	active  atomic.Int32
	peak    atomic.Int32
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{
		gates:   map[string]chan struct{}{},
		results: map[string][]extract.Record{},
		started: make(chan string, 32),
	}
}

func (g *gatedRunner) Run(_ context.Context, id, _, _ string) []extract.Record {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	g.mu.Lock()
	g.calls = append(g.calls, id)
	gate := g.gates[id]
	out := g.results[id]
	g.mu.Unlock()
	g.started <- id
	if gate != nil {
		<-gate
	}
	return out
}

func (g *gatedRunner) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func newRegistry(t *testing.T, ids ...string) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, id := range ids {
		require.NoError(t, reg.Register(id, extract.CollectorFunc(
			func(context.Context, string, string) ([]extract.RawRecord, error) { return nil, nil },
		)))
	}
	return reg
}

func waitDone(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func rec(phone, name, source string) extract.Record {
	return extract.Record{Phone: phone, Name: name, Address: extract.NotAvailable, Source: source}
}

// TestPizzaScenario runs the full runner stack: two platforms report the same
// number in different formats and the first arrival wins.
func TestPizzaScenario(t *testing.T) {
	t.Parallel()

	aDone := make(chan struct{})
	reg := registry.New()
	require.NoError(t, reg.Register("a", extract.CollectorFunc(
		func(context.Context, string, string) ([]extract.RawRecord, error) {
			return []extract.RawRecord{{Phone: "(212) 555-0100", Name: "Joe's"}}, nil
		})))
	require.NoError(t, reg.Register("b", extract.CollectorFunc(
		func(ctx context.Context, _, _ string) ([]extract.RawRecord, error) {
			select {
			case <-aDone:
			case <-ctx.Done():
			}
			return []extract.RawRecord{{Phone: "2125550100", Name: "Joe's Pizza"}}, nil
		})))
	run := runner.New(reg, memory.New(), nil, nil, runner.Config{Retry: retry.Policy{MaxAttempts: 1}}, zap.NewNop())

	var once sync.Once
	events := &recorder{hook: func(e progress.Event) {
		if e.Stage == progress.StagePlatformDone && e.Platform == "a" {
			once.Do(func() { close(aDone) })
		}
	}}
	c := New(run, reg, &seqIDs{}, Config{}, WithEmitter(events))

	id, err := c.Start(context.Background(), extract.Query{Keywords: "pizza", Location: "New York", Platforms: []string{"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, "session-1", id)
	waitDone(t, c)

	snap, records, ok := c.Snapshot()
	require.True(t, ok)
	require.Equal(t, extract.StatusCompleted, snap.Status)
	require.Equal(t, 1, snap.ResultCount)
	require.NotNil(t, snap.FinishedAt)
	require.Len(t, records, 1)
	require.Equal(t, "(212) 555-0100", records[0].Phone)
	require.Equal(t, "Joe's", records[0].Name)
	require.Equal(t, "a", records[0].Source)

	count, status, ok := c.Progress()
	require.True(t, ok)
	require.Equal(t, 1, count)
	require.Equal(t, extract.StatusCompleted, status)
	require.False(t, c.Running())
}

func TestStartRejectsWhileRunning(t *testing.T) {
	t.Parallel()

	g := newGatedRunner()
	gate := make(chan struct{})
	g.gates["a"] = gate
	ids := &seqIDs{}
	c := New(g, newRegistry(t, "a"), ids, Config{})

	q := extract.Query{Keywords: "plumber", Platforms: []string{"a"}}
	_, err := c.Start(context.Background(), q)
	require.NoError(t, err)
	<-g.started

	for range 3 {
		_, err = c.Start(context.Background(), q)
		require.ErrorIs(t, err, extract.ErrAlreadyRunning)
	}
	require.EqualValues(t, 1, ids.n.Load(), "rejected starts must not create sessions")

	close(gate)
	waitDone(t, c)

	id, err := c.Start(context.Background(), q)
	require.NoError(t, err, "guard must clear after the terminal transition")
	require.Equal(t, "session-2", id)
	waitDone(t, c)
}

func TestStartInvalidQuery(t *testing.T) {
	t.Parallel()

	eleven := make([]string, 11)
	for i := range eleven {
		eleven[i] = fmt.Sprintf("p%d", i)
	}
	reg := newRegistry(t, append([]string{"a", "b"}, eleven...)...)

	cases := []struct {
		name string
		q    extract.Query
	}{
		{"empty query", extract.Query{Platforms: []string{"a"}}},
		{"blank query", extract.Query{Keywords: "  ", Location: "\t", Platforms: []string{"a"}}},
		{"no platforms", extract.Query{Keywords: "pizza"}},
		{"too many platforms", extract.Query{Keywords: "pizza", Platforms: eleven}},
		{"duplicate platform", extract.Query{Keywords: "pizza", Platforms: []string{"a", "a"}}},
		{"unknown platform", extract.Query{Keywords: "pizza", Platforms: []string{"a", "zzz"}}},
		{"empty platform", extract.Query{Keywords: "pizza", Platforms: []string{""}}},
		{"long keywords", extract.Query{Keywords: strings.Repeat("k", 501), Platforms: []string{"a"}}},
		{"long location", extract.Query{Location: strings.Repeat("l", 201), Platforms: []string{"a"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := newGatedRunner()
			ids := &seqIDs{}
			c := New(g, reg, ids, Config{})
			_, err := c.Start(context.Background(), tc.q)
			require.ErrorIs(t, err, extract.ErrInvalidQuery)
			require.False(t, c.Running())
			require.Zero(t, ids.n.Load())
			_, _, ok := c.Progress()
			require.False(t, ok)
		})
	}
}

func TestStartAcceptsSingleField(t *testing.T) {
	t.Parallel()

	c := New(newGatedRunner(), newRegistry(t, "a"), &seqIDs{}, Config{})
	_, err := c.Start(context.Background(), extract.Query{Location: "Austin", Platforms: []string{"a"}})
	require.NoError(t, err)
	waitDone(t, c)
}

// TestStopSemantics: two invocations done, one in flight, stop requested.
// The in-flight result is merged and the fourth platform never runs.
func TestStopSemantics(t *testing.T) {
	t.Parallel()

	g := newGatedRunner()
	g.results["a"] = []extract.Record{rec("(212) 555-0001", "A", "a")}
	g.results["b"] = []extract.Record{rec("(212) 555-0002", "B", "b")}
	g.results["c"] = []extract.Record{rec("(212) 555-0003", "C", "c")}
	g.results["d"] = []extract.Record{rec("(212) 555-0004", "D", "d")}
	gate := make(chan struct{})
	g.gates["c"] = gate

	events := &recorder{}
	c := New(g, newRegistry(t, "a", "b", "c", "d"), &seqIDs{}, Config{Concurrency: 1}, WithEmitter(events))
	_, err := c.Start(context.Background(), extract.Query{Keywords: "dentist", Platforms: []string{"a", "b", "c", "d"}})
	require.NoError(t, err)

	for _, want := range []string{"a", "b", "c"} {
		require.Equal(t, want, <-g.started)
	}
	require.True(t, c.Stop())
	require.False(t, c.Stop(), "second stop is a no-op")
	close(gate)
	waitDone(t, c)

	require.Equal(t, []string{"a", "b", "c"}, g.Calls())
	snap, records, _ := c.Snapshot()
	require.Equal(t, extract.StatusStopped, snap.Status)
	require.Equal(t, 3, snap.ResultCount, "straggler records are merged before the transition")
	require.Len(t, records, 3)

	stages := events.Stages()
	require.Equal(t, progress.StageSessionDone, stages[len(stages)-1])
	require.False(t, c.Stop(), "stop after terminal is a no-op")
}

func TestStopWhenIdle(t *testing.T) {
	t.Parallel()

	c := New(newGatedRunner(), newRegistry(t, "a"), &seqIDs{}, Config{})
	require.False(t, c.Stop())
	require.NoError(t, c.Wait(context.Background()))
}

func TestCollectorFailuresStillComplete(t *testing.T) {
	t.Parallel()

	g := newGatedRunner()
	c := New(g, newRegistry(t, "a", "b"), &seqIDs{}, Config{})
	_, err := c.Start(context.Background(), extract.Query{Keywords: "x", Platforms: []string{"a", "b"}})
	require.NoError(t, err)
	waitDone(t, c)

	count, status, _ := c.Progress()
	require.Equal(t, extract.StatusCompleted, status)
	require.Zero(t, count)
}

// faultyQueue fails the nth enqueue.
type faultyQueue struct {
	queue.Queue
	failAt  int32
	calls   atomic.Int32
	onFault func()
}

func (f *faultyQueue) Enqueue(ctx context.Context, task queue.Task) error {
	if f.calls.Add(1) == f.failAt {
		if f.onFault != nil {
			f.onFault()
		}
		return errors.New("scheduler unavailable")
	}
	return f.Queue.Enqueue(ctx, task)
}

func TestEnqueueFaultFailsSession(t *testing.T) {
	t.Parallel()

	g := newGatedRunner()
	g.results["a"] = []extract.Record{rec("(212) 555-0001", "A", "a")}
	factory := func(capacity int) queue.Queue {
		return &faultyQueue{Queue: qmemory.NewQueue(capacity), failAt: 2}
	}
	c := New(g, newRegistry(t, "a", "b", "c"), &seqIDs{}, Config{}, WithQueueFactory(factory))
	_, err := c.Start(context.Background(), extract.Query{Keywords: "x", Platforms: []string{"a", "b", "c"}})
	require.NoError(t, err)
	waitDone(t, c)

	snap, _, _ := c.Snapshot()
	require.Equal(t, extract.StatusFailed, snap.Status)
	require.Equal(t, 1, snap.ResultCount, "work scheduled before the fault still counts")
	require.Equal(t, []string{"a"}, g.Calls())
	require.False(t, c.Running())
}

func TestStopTakesPrecedenceOverFault(t *testing.T) {
	t.Parallel()

	g := newGatedRunner()
	var c *Coordinator
	factory := func(capacity int) queue.Queue {
		return &faultyQueue{Queue: qmemory.NewQueue(capacity), failAt: 2, onFault: func() { c.Stop() }}
	}
	c = New(g, newRegistry(t, "a", "b"), &seqIDs{}, Config{}, WithQueueFactory(factory))
	_, err := c.Start(context.Background(), extract.Query{Keywords: "x", Platforms: []string{"a", "b"}})
	require.NoError(t, err)
	waitDone(t, c)

	_, status, _ := c.Progress()
	require.Equal(t, extract.StatusStopped, status)
}

func TestWorkerPoolIsBounded(t *testing.T) {
	t.Parallel()

	g := newGatedRunner()
	gate := make(chan struct{})
	platforms := []string{"a", "b", "c", "d", "e", "f"}
	for _, p := range platforms {
		g.gates[p] = gate
	}
	c := New(g, newRegistry(t, platforms...), &seqIDs{}, Config{Concurrency: 2})
	_, err := c.Start(context.Background(), extract.Query{Keywords: "x", Platforms: platforms})
	require.NoError(t, err)

	<-g.started
	<-g.started
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 2, g.active.Load())
	close(gate)
	waitDone(t, c)

	require.LessOrEqual(t, g.peak.Load(), int32(2))
	require.Len(t, g.Calls(), len(platforms))
}

func TestEventsDescribeSession(t *testing.T) {
	t.Parallel()

	g := newGatedRunner()
	g.results["a"] = []extract.Record{rec("(212) 555-0001", "A", "a"), rec("(212) 555-0002", "B", "a")}
	g.results["b"] = []extract.Record{rec("(212) 555-0001", "A2", "b")}
	events := &recorder{}
	c := New(g, newRegistry(t, "a", "b"), &seqIDs{}, Config{Concurrency: 1}, WithEmitter(events))
	_, err := c.Start(context.Background(), extract.Query{Keywords: "x", Platforms: []string{"a", "b"}})
	require.NoError(t, err)
	waitDone(t, c)

	require.Equal(t, []progress.Stage{
		progress.StageSessionStart,
		progress.StageSessionProgress,
		progress.StagePlatformDone,
		progress.StagePlatformDone,
		progress.StageSessionDone,
	}, events.Stages())

	events.mu.Lock()
	defer events.mu.Unlock()
	for _, e := range events.events {
		require.NoError(t, e.Validate())
	}
	require.Len(t, events.events[1].Added, 2)
	require.Equal(t, 1, events.events[3].Returned)
	done := events.events[4]
	require.Equal(t, extract.StatusCompleted, done.Status)
	require.Equal(t, 2, done.Total)
}

func TestTerminalSnapshotIsFrozen(t *testing.T) {
	t.Parallel()

	c := New(newGatedRunner(), newRegistry(t, "a"), &seqIDs{}, Config{})
	_, err := c.Start(context.Background(), extract.Query{Keywords: "x", Platforms: []string{"a"}})
	require.NoError(t, err)
	waitDone(t, c)

	first, _, _ := c.Snapshot()
	require.False(t, c.Stop())
	second, _, _ := c.Snapshot()
	require.Equal(t, first, second)
}

func TestStartCanceledContext(t *testing.T) {
	t.Parallel()

	c := New(newGatedRunner(), newRegistry(t, "a"), &seqIDs{}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Start(ctx, extract.Query{Keywords: "x", Platforms: []string{"a"}})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, c.Running())
}
