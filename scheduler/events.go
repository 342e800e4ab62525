package scheduler

import (
	"time"

	"ai_backend/core"
)

// Event is one job state transition, published to every registered Notifier.
// It carries identifiers and policy outcomes only: no image bytes, no
// prompt text.
type Event struct {
	JobID      string    `json:"job_id"`
	ClientID   string    `json:"client_id"`
	StyleID    string    `json:"style_id"`
	From       string    `json:"from,omitempty"`
	State      string    `json:"state"`
	Resolution string    `json:"resolution"`
	Downgraded bool      `json:"downgraded"`
	QueueDepth int       `json:"queue_depth"`
	ErrorCode  string    `json:"error_code,omitempty"`
	// Terminal marks the event that ends the job's lifecycle.
	Terminal bool `json:"terminal"`
	// DurationMs is submit-to-terminal wall time; zero for non-terminal events.
	DurationMs int64     `json:"duration_ms,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier receives job transition events. Implementations must not block:
// the scheduler publishes from its dispatch path. The WebSocket hub and the
// Prometheus exporter are the shipped notifiers.
type Notifier interface {
	JobTransition(Event)
}

// Journal records one row per job that reaches a terminal state. Implemented
// by the db package's async writer; a slow journal must never block dispatch,
// which is why the interface is fire-and-forget.
type Journal interface {
	Record(rec core.TransformationRecord)
}

// nopJournal is the default when no journal is wired (tests, dev).
type nopJournal struct{}

func (nopJournal) Record(core.TransformationRecord) {}
