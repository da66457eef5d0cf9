// Package session tracks the lifecycle of one extraction session.
//
// A Machine starts in running and moves exactly once to completed, failed or
// stopped. Machines are not safe for concurrent use; the coordinator guards
// them with its own mutex.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/contact-harvester/internal/extract"
)

// ErrTerminal is returned when a transition is attempted on a finished session.
var ErrTerminal = errors.New("session already finished")

// Machine owns the mutable state of a session.
type Machine struct {
	s extract.Session
}

// New returns a running session.
func New(id string, q extract.Query, startedAt time.Time) *Machine {
	return &Machine{s: extract.Session{
		ID:        id,
		Query:     q.Clone(),
		Status:    extract.StatusRunning,
		StartedAt: startedAt,
	}}
}

// ID returns the session id.
func (m *Machine) ID() string { return m.s.ID }

// Status returns the current status.
func (m *Machine) Status() extract.Status { return m.s.Status }

// ResultCount returns the number of unique records merged so far.
func (m *Machine) ResultCount() int { return m.s.ResultCount }

// AddResults grows the result count. It is ignored once the session is
// terminal so the count freezes at the transition.
func (m *Machine) AddResults(n int) bool {
	if n <= 0 || m.s.Status.Terminal() {
		return false
	}
	m.s.ResultCount += n
	return true
}

// Finish moves the session to a terminal status.
func (m *Machine) Finish(status extract.Status, at time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("invalid transition %s -> %s", m.s.Status, status)
	}
	if m.s.Status.Terminal() {
		return fmt.Errorf("finish as %s: %w", status, ErrTerminal)
	}
	if at.Before(m.s.StartedAt) {
		at = m.s.StartedAt
	}
	m.s.Status = status
	m.s.FinishedAt = &at
	return nil
}

// Snapshot returns a copy that does not alias the machine's state.
func (m *Machine) Snapshot() extract.Session {
	cp := m.s
	cp.Query = m.s.Query.Clone()
	if m.s.FinishedAt != nil {
		t := *m.s.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}
