package store

import (
	"context"
	"errors"

	"github.com/JakeFAU/contact-harvester/internal/extract"
)

// ErrNotFound signals that the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// SessionRepository persists sessions and their records.
type SessionRepository interface {
	// CreateSession inserts the session row. Repeated calls are no-ops.
	CreateSession(ctx context.Context, s extract.Session) error
	// AppendRecords stores records for a session. A phone already stored for
	// the session is skipped.
	AppendRecords(ctx context.Context, sessionID string, records []extract.Record) error
	// FinishSession writes the terminal status, finish time and result count.
	FinishSession(ctx context.Context, s extract.Session) error

	// GetSession loads a single session or returns ErrNotFound.
	GetSession(ctx context.Context, sessionID string) (extract.Session, error)
	// ListSessions returns sessions newest first, filtered by optional status.
	ListSessions(ctx context.Context, status *extract.Status, limit, offset int) ([]extract.Session, error)
	// ListRecords returns a session's records in extraction order.
	ListRecords(ctx context.Context, sessionID string, limit, offset int) ([]extract.Record, error)
}

// Page limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ClampPage normalizes limit/offset query parameters.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
