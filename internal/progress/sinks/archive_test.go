package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/progress"
	"github.com/JakeFAU/contact-harvester/internal/storage/memory"
)

func TestArchiveSinkWritesFinishedSession(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	sink := NewArchiveSink(blobs, "sessions", nil)
	require.NoError(t, sink.Consume(context.Background(), sessionEvents("s-1", extract.StatusCompleted)))

	obj, ok := blobs.Object("sessions/s-1.json")
	require.True(t, ok)
	require.Equal(t, "application/json", obj.ContentType)

	var archive Archive
	require.NoError(t, json.Unmarshal(obj.Data, &archive))
	require.Equal(t, "s-1", archive.Session.ID)
	require.Equal(t, extract.StatusCompleted, archive.Session.Status)
	require.Len(t, archive.Records, 2)
	require.Equal(t, "a", archive.Records[1].Source)
}

func TestArchiveSinkEmptySession(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	sink := NewArchiveSink(blobs, "", nil)
	events := sessionEvents("s-2", extract.StatusStopped)
	batch := []progress.Event{events[0], events[len(events)-1]}
	require.NoError(t, sink.Consume(context.Background(), batch))

	obj, ok := blobs.Object("s-2.json")
	require.True(t, ok)
	require.Contains(t, string(obj.Data), `"records":[]`)
}

func TestArchiveSinkPropagatesWriteErrors(t *testing.T) {
	t.Parallel()

	sink := NewArchiveSink(brokenBlobs{}, "sessions", nil)
	err := sink.Consume(context.Background(), sessionEvents("s-3", extract.StatusCompleted))
	require.ErrorContains(t, err, "write archive for s-3")
}

func TestArchiveSinkCloseDropsPending(t *testing.T) {
	t.Parallel()

	sink := NewArchiveSink(memory.NewBlobStore(), "sessions", nil)
	events := sessionEvents("s-4", extract.StatusCompleted)
	require.NoError(t, sink.Consume(context.Background(), events[:2]))
	require.NoError(t, sink.Close(context.Background()))
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Empty(t, sink.pending)
}

type brokenBlobs struct{}

func (brokenBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}
