package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/progress"
)

func platformDone(id, platform string) progress.Event {
	return progress.Event{
		SessionID: id,
		TS:        time.Unix(1700000000, 0).UTC(),
		Stage:     progress.StagePlatformDone,
		Platform:  platform,
		Status:    extract.StatusRunning,
	}
}

func TestFeedBroadcasts(t *testing.T) {
	t.Parallel()

	f := New(4, nil)
	a, cancelA := f.Subscribe()
	defer cancelA()
	b, cancelB := f.Subscribe()
	defer cancelB()
	require.Equal(t, 2, f.Subscribers())

	require.NoError(t, f.Consume(context.Background(), []progress.Event{platformDone("s", "x"), platformDone("s", "y")}))
	for _, ch := range []<-chan progress.Event{a, b} {
		require.Equal(t, "x", (<-ch).Platform)
		require.Equal(t, "y", (<-ch).Platform)
	}
}

func TestFeedDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	f := New(1, nil)
	ch, cancel := f.Subscribe()
	defer cancel()

	batch := []progress.Event{platformDone("s", "x"), platformDone("s", "y"), platformDone("s", "z")}
	require.NoError(t, f.Consume(context.Background(), batch))
	require.Equal(t, int64(2), f.Dropped())
	require.Equal(t, "x", (<-ch).Platform)
}

func TestFeedCancelUnsubscribes(t *testing.T) {
	t.Parallel()

	f := New(1, nil)
	ch, cancel := f.Subscribe()
	cancel()
	cancel()
	_, ok := <-ch
	require.False(t, ok)
	require.Zero(t, f.Subscribers())
	require.NoError(t, f.Consume(context.Background(), []progress.Event{platformDone("s", "x")}))
}

func TestFeedCloseDisconnects(t *testing.T) {
	t.Parallel()

	f := New(1, nil)
	ch, cancel := f.Subscribe()
	require.NoError(t, f.Close(context.Background()))
	require.NoError(t, f.Close(context.Background()))
	_, ok := <-ch
	require.False(t, ok)
	cancel()

	late, _ := f.Subscribe()
	_, ok = <-late
	require.False(t, ok)
}
