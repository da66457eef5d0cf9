// Package memory provides in-process persistence for development and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/store"
)

// SessionStore implements store.SessionRepository in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]extract.Session
	order    []string
	records  map[string][]extract.Record
	phones   map[string]map[string]struct{}
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]extract.Session),
		records:  make(map[string][]extract.Record),
		phones:   make(map[string]map[string]struct{}),
	}
}

// CreateSession stores the session unless it already exists.
func (s *SessionStore) CreateSession(_ context.Context, sess extract.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return nil
	}
	s.sessions[sess.ID] = copySession(sess)
	s.order = append(s.order, sess.ID)
	s.phones[sess.ID] = make(map[string]struct{})
	return nil
}

// AppendRecords adds records whose phone is new for the session.
func (s *SessionStore) AppendRecords(_ context.Context, sessionID string, records []extract.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return store.ErrNotFound
	}
	seen := s.phones[sessionID]
	for _, r := range records {
		if _, dup := seen[r.Phone]; dup {
			continue
		}
		seen[r.Phone] = struct{}{}
		s.records[sessionID] = append(s.records[sessionID], r)
	}
	return nil
}

// FinishSession applies the terminal state to a running session.
func (s *SessionStore) FinishSession(_ context.Context, sess extract.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[sess.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Status.Terminal() {
		return nil
	}
	cur.Status = sess.Status
	cur.ResultCount = sess.ResultCount
	if sess.FinishedAt != nil {
		t := *sess.FinishedAt
		cur.FinishedAt = &t
	}
	s.sessions[sess.ID] = cur
	return nil
}

// GetSession fetches a session by ID.
func (s *SessionStore) GetSession(_ context.Context, sessionID string) (extract.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return extract.Session{}, store.ErrNotFound
	}
	return copySession(sess), nil
}

// ListSessions returns sessions newest first.
func (s *SessionStore) ListSessions(
	_ context.Context,
	status *extract.Status,
	limit,
	offset int,
) ([]extract.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]extract.Session, 0, len(s.order))
	for _, id := range slices.Backward(s.order) {
		sess := s.sessions[id]
		if status != nil && sess.Status != *status {
			continue
		}
		out = append(out, copySession(sess))
	}
	return page(out, limit, offset), nil
}

// ListRecords returns a session's records in insertion order.
func (s *SessionStore) ListRecords(_ context.Context, sessionID string, limit, offset int) ([]extract.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, store.ErrNotFound
	}
	return page(slices.Clone(s.records[sessionID]), limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func copySession(sess extract.Session) extract.Session {
	cp := sess
	cp.Query = sess.Query.Clone()
	if sess.FinishedAt != nil {
		t := *sess.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}

var _ store.SessionRepository = (*SessionStore)(nil)
