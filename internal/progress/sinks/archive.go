package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/progress"
)

// Archive is the document written for a finished session.
type Archive struct {
	Session extract.Session  `json:"session"`
	Records []extract.Record `json:"records"`
}

// ArchiveSink accumulates merged records per session and writes them to a
// blob store as JSON once the session is terminal.
type ArchiveSink struct {
	blobs  extract.BlobStore
	prefix string
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string][]extract.Record
}

// NewArchiveSink returns a sink writing archives under prefix.
func NewArchiveSink(blobs extract.BlobStore, prefix string, logger *zap.Logger) *ArchiveSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{
		blobs:   blobs,
		prefix:  prefix,
		logger:  logger,
		pending: make(map[string][]extract.Record),
	}
}

// Name identifies the sink in hub logs.
func (s *ArchiveSink) Name() string { return "archive" }

// ObjectPath returns where the archive for sessionID is written.
func (s *ArchiveSink) ObjectPath(sessionID string) string {
	return path.Join(s.prefix, sessionID+".json")
}

// Consume buffers records and uploads an archive for each finished session.
func (s *ArchiveSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.blobs == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageSessionStart:
			s.mu.Lock()
			if _, ok := s.pending[evt.SessionID]; !ok {
				s.pending[evt.SessionID] = []extract.Record{}
			}
			s.mu.Unlock()
		case progress.StageSessionProgress:
			s.mu.Lock()
			s.pending[evt.SessionID] = append(s.pending[evt.SessionID], evt.Added...)
			s.mu.Unlock()
		case progress.StageSessionDone:
			if err := s.write(ctx, evt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ArchiveSink) write(ctx context.Context, evt progress.Event) error {
	s.mu.Lock()
	records := s.pending[evt.SessionID]
	delete(s.pending, evt.SessionID)
	s.mu.Unlock()
	if records == nil {
		records = []extract.Record{}
	}

	body, err := json.Marshal(Archive{Session: *evt.Session, Records: records})
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	uri, err := s.blobs.PutObject(ctx, s.ObjectPath(evt.SessionID), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("write archive for %s: %w", evt.SessionID, err)
	}
	s.logger.Info("session archived",
		zap.String("session_id", evt.SessionID),
		zap.String("uri", uri),
		zap.Int("records", len(records)),
	)
	return nil
}

// Close drops buffered records of sessions that never finished.
func (s *ArchiveSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.pending); n > 0 {
		s.logger.Warn("discarding unfinished session archives", zap.Int("sessions", n))
	}
	clear(s.pending)
	return nil
}
