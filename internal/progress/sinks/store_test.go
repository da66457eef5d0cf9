package sinks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/progress"
	"github.com/JakeFAU/contact-harvester/internal/storage/memory"
	"github.com/JakeFAU/contact-harvester/internal/store"
)

// TestStoreSinkPersistsEvents ensures a full event sequence lands in the repository.
func TestStoreSinkPersistsEvents(t *testing.T) {
	t.Parallel()

	repo := memory.NewSessionStore()
	sink := NewStoreSink(repo, nil)
	ctx := context.Background()

	require.NoError(t, sink.Consume(ctx, sessionEvents("s-1", extract.StatusStopped)))

	sess, err := repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, extract.StatusStopped, sess.Status)
	require.Equal(t, 2, sess.ResultCount)
	require.NotNil(t, sess.FinishedAt)

	records, err := repo.ListRecords(ctx, "s-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "(212) 555-0100", records[0].Phone)
}

// TestStoreSinkSplitBatches handles a session whose events arrive across flushes.
func TestStoreSinkSplitBatches(t *testing.T) {
	t.Parallel()

	repo := memory.NewSessionStore()
	sink := NewStoreSink(repo, nil)
	ctx := context.Background()
	events := sessionEvents("s-2", extract.StatusCompleted)

	for _, evt := range events {
		require.NoError(t, sink.Consume(ctx, []progress.Event{evt}))
	}
	sess, err := repo.GetSession(ctx, "s-2")
	require.NoError(t, err)
	require.Equal(t, extract.StatusCompleted, sess.Status)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &failingRepo{SessionStore: memory.NewSessionStore(), err: errors.New("db down")}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), sessionEvents("s-3", extract.StatusCompleted))
	require.ErrorContains(t, err, "append records")
	require.ErrorIs(t, err, repo.err)
}

func TestStoreSinkRecordsBeforeUnknownSession(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(memory.NewSessionStore(), nil)
	events := sessionEvents("s-4", extract.StatusCompleted)
	err := sink.Consume(context.Background(), events[1:2])
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStoreSinkNilRepo(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(nil, nil)
	require.NoError(t, sink.Consume(context.Background(), sessionEvents("s-5", extract.StatusFailed)))
	require.NoError(t, sink.Close(context.Background()))
}

type failingRepo struct {
	*memory.SessionStore
	err error
}

func (r *failingRepo) AppendRecords(context.Context, string, []extract.Record) error {
	return r.err
}
