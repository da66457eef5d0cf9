package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/publisher/memory"
)

func TestPublisherSinkPublishesOnDone(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublisherSink(pub, "sessions-finished", nil)
	require.NoError(t, sink.Consume(context.Background(), sessionEvents("s-1", extract.StatusCompleted)))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "sessions-finished", msgs[0].Topic)

	notice, ok := msgs[0].Payload.(SessionNotice)
	require.True(t, ok)
	require.Equal(t, "s-1", notice.SessionID)
	require.Equal(t, extract.StatusCompleted, notice.Status)
	require.Equal(t, 2, notice.ResultCount)
	require.Equal(t, map[string]string{"session_id": "s-1", "status": "completed"}, notice.Attributes())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	require.Equal(t, "pizza", decoded["keywords"])
	require.Equal(t, "New York", decoded["location"])
}

func TestPublisherSinkReturnsPublishErrors(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(errors.New("topic missing"))
	sink := NewPublisherSink(pub, "t", nil)
	err := sink.Consume(context.Background(), sessionEvents("s-2", extract.StatusFailed))
	require.ErrorContains(t, err, "topic missing")
	require.Empty(t, pub.Messages())
}
