package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/progress"
)

// SessionNotice is the message published when a session reaches a terminal
// state.
type SessionNotice struct {
	SessionID   string         `json:"session_id"`
	Status      extract.Status `json:"status"`
	Keywords    string         `json:"keywords"`
	Location    string         `json:"location"`
	Platforms   []string       `json:"platforms"`
	ResultCount int            `json:"result_count"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

// Attributes exposes routing attributes so subscribers can filter by status.
func (n SessionNotice) Attributes() map[string]string {
	return map[string]string{
		"session_id": n.SessionID,
		"status":     string(n.Status),
	}
}

// PublisherSink announces finished sessions on a topic.
type PublisherSink struct {
	pub    extract.Publisher
	topic  string
	logger *zap.Logger
}

// NewPublisherSink returns a sink publishing SessionNotice messages to topic.
func NewPublisherSink(pub extract.Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{pub: pub, topic: topic, logger: logger}
}

// Name identifies the sink in hub logs.
func (s *PublisherSink) Name() string { return "publisher" }

// Consume publishes one notice per SESSION_DONE event in the batch.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageSessionDone || evt.Session == nil {
			continue
		}
		notice := noticeFor(*evt.Session)
		msgID, err := s.pub.Publish(ctx, s.topic, notice)
		if err != nil {
			return fmt.Errorf("publish session %s: %w", evt.SessionID, err)
		}
		s.logger.Info("session notice published",
			zap.String("session_id", evt.SessionID),
			zap.String("message_id", msgID),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}

func noticeFor(sess extract.Session) SessionNotice {
	return SessionNotice{
		SessionID:   sess.ID,
		Status:      sess.Status,
		Keywords:    sess.Query.Keywords,
		Location:    sess.Query.Location,
		Platforms:   append([]string(nil), sess.Query.Platforms...),
		ResultCount: sess.ResultCount,
		StartedAt:   sess.StartedAt,
		FinishedAt:  sess.FinishedAt,
	}
}
