package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/progress"
	"github.com/JakeFAU/contact-harvester/internal/progress/feed"
)

func TestLiveSessions_StreamsFilteredEvents(t *testing.T) {
	t.Parallel()

	f := feed.New(8, zap.NewNop())
	server := NewServer(Options{Controller: &fakeController{}, Feed: f, Logger: zap.NewNop()})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	conn := dialLive(t, ts.URL+"/v1/sessions/live?session_id=s-1")
	require.Eventually(t, func() bool { return f.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	now := time.Now().UTC()
	require.NoError(t, f.Consume(context.Background(), []progress.Event{
		{SessionID: "s-2", TS: now, Stage: progress.StagePlatformDone, Platform: "manta", Status: extract.StatusRunning},
		{SessionID: "s-1", TS: now, Stage: progress.StagePlatformDone, Platform: "yellowpages", Status: extract.StatusRunning, Total: 3},
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got progress.Event
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "s-1", got.SessionID)
	require.Equal(t, "yellowpages", got.Platform)
	require.Equal(t, 3, got.Total)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestLiveSessions_ClosesWhenFeedCloses(t *testing.T) {
	t.Parallel()

	f := feed.New(8, zap.NewNop())
	server := NewServer(Options{Controller: &fakeController{}, Feed: f, Logger: zap.NewNop()})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	conn := dialLive(t, ts.URL+"/v1/sessions/live")
	require.Eventually(t, func() bool { return f.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.Close(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

func TestLiveSessions_UnavailableWithoutFeed(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(&fakeController{}, nil), http.MethodGet, "/v1/sessions/live", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func dialLive(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
