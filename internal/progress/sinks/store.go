package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/progress"
	"github.com/JakeFAU/contact-harvester/internal/store"
)

// StoreSink persists session rows and merged records via a
// store.SessionRepository. Records for the same session inside one batch are
// written in a single call to reduce round trips.
type StoreSink struct {
	repo   store.SessionRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.SessionRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Name identifies the sink in hub logs.
func (s *StoreSink) Name() string { return "store" }

// Consume applies the batch in order. Pending records are flushed before any
// session-level write so the finish row never precedes its records.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var (
		pendingID string
		pending   []extract.Record
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := s.repo.AppendRecords(ctx, pendingID, pending); err != nil {
			return fmt.Errorf("append records: %w", err)
		}
		pending = nil
		return nil
	}

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageSessionStart:
			if err := flush(); err != nil {
				return err
			}
			if err := s.repo.CreateSession(ctx, *evt.Session); err != nil {
				return fmt.Errorf("create session: %w", err)
			}
		case progress.StageSessionProgress:
			if evt.SessionID != pendingID {
				if err := flush(); err != nil {
					return err
				}
				pendingID = evt.SessionID
			}
			pending = append(pending, evt.Added...)
		case progress.StageSessionDone:
			if err := flush(); err != nil {
				return err
			}
			if err := s.repo.FinishSession(ctx, *evt.Session); err != nil {
				return fmt.Errorf("finish session: %w", err)
			}
			s.logger.Debug("session persisted",
				zap.String("session_id", evt.SessionID),
				zap.String("status", string(evt.Status)),
				zap.Int("result_count", evt.Session.ResultCount),
			)
		}
	}
	return flush()
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
