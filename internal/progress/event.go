package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/contact-harvester/internal/extract"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	// StageSessionStart carries the snapshot of a newly created session.
	StageSessionStart Stage = "SESSION_START"
	// StageSessionProgress carries records newly merged into the session.
	StageSessionProgress Stage = "SESSION_PROGRESS"
	// StagePlatformDone marks the end of one platform invocation.
	StagePlatformDone Stage = "PLATFORM_DONE"
	// StageSessionDone carries the terminal snapshot.
	StageSessionDone Stage = "SESSION_DONE"
)

// Event captures one step of a session.
type Event struct {
	SessionID string    `json:"session_id"`
	TS        time.Time `json:"ts"`
	Stage     Stage     `json:"stage"`
	// Platform scopes platform and progress events to one collector.
	Platform string `json:"platform,omitempty"`
	// Status is the session status after the step.
	Status extract.Status `json:"status"`
	// Added holds the records this step contributed, already deduplicated.
	Added []extract.Record `json:"added,omitempty"`
	// Total is the session result count after the step.
	Total int `json:"total"`
	// Returned is how many canonical records the platform produced before dedup.
	Returned int `json:"returned,omitempty"`
	// Session is set on start and done events.
	Session *extract.Session `json:"session,omitempty"`
	// Dur is the invocation latency for platform events and the session
	// duration for done events.
	Dur time.Duration `json:"duration_ns,omitempty"`
	// Note lets emitters attach low-volume context (e.g. "skipped").
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == "" {
		return errors.New("session id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSessionStart:
		if e.Session == nil {
			return errors.New("session start requires snapshot")
		}
	case StageSessionProgress, StagePlatformDone:
		if e.Platform == "" {
			return fmt.Errorf("%s requires platform", e.Stage)
		}
	case StageSessionDone:
		if !e.Status.Terminal() {
			return fmt.Errorf("session done requires terminal status, got %q", e.Status)
		}
		if e.Session == nil {
			return errors.New("session done requires snapshot")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Total < 0 {
		return errors.New("total must be >= 0")
	}
	return nil
}
