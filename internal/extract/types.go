package extract

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of an extraction session.
type Status string

// Session status values.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusRunning || s.Terminal()
}

// Sentinel errors returned by the coordinator.
var (
	// ErrAlreadyRunning rejects a start while another session is running.
	ErrAlreadyRunning = errors.New("an extraction session is already running")
	// ErrInvalidQuery rejects malformed start requests. Wrapped errors carry the reason.
	ErrInvalidQuery = errors.New("invalid extraction query")
)

// NotAvailable is the placeholder stored for missing names and addresses.
const NotAvailable = "N/A"

// Query is the logical request fanned out to every selected platform.
type Query struct {
	Keywords  string   `json:"keywords"`
	Location  string   `json:"location"`
	Platforms []string `json:"platforms"`
}

// Clone returns a deep copy of q.
func (q Query) Clone() Query {
	cp := q
	if q.Platforms != nil {
		cp.Platforms = append([]string(nil), q.Platforms...)
	}
	return cp
}

// RawRecord is a single candidate returned by a collector, before
// canonicalization. Collectors never set the source.
type RawRecord struct {
	Phone   string `json:"phone"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Record is a canonicalized data point kept in a session.
type Record struct {
	Phone       string    `json:"number"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Source      string    `json:"source"`
	ExtractedAt time.Time `json:"timestamp"`
}

// Session is an immutable snapshot of one extraction run.
type Session struct {
	ID          string     `json:"id"`
	Query       Query      `json:"query"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ResultCount int        `json:"result_count"`
}
