package sinks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/contact-harvester/internal/extract"
)

func TestLogSinkWritesOneEntryPerEvent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	batch := sessionEvents("s-1", extract.StatusCompleted)
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, len(batch), logs.Len())

	skipped := logs.FilterField(zap.String("note", "skipped")).All()
	require.Len(t, skipped, 1)
	require.Equal(t, "s-1", skipped[0].ContextMap()["session_id"])
}
