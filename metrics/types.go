// Package metrics provides in-process telemetry for the transformation
// service: job execution records with per-style aggregation, the accelerator
// sampler, and the Prometheus exporter fed by scheduler events.
package metrics

import "time"

// JobRecord is one finished job as seen by the dashboard: identifiers,
// outcome, and timing. No image bytes, no prompt text.
type JobRecord struct {
	// ID is the job handle
	ID string `json:"id"`

	// StyleID is the requested camera style
	StyleID string `json:"style_id"`

	// Resolution is the tier actually rendered
	Resolution string `json:"resolution"`

	// Downgraded is true when the assigned tier differs from the request
	Downgraded bool `json:"downgraded"`

	// State is the terminal state: "completed", "failed", "expired",
	// "rejected", "canceled"
	State string `json:"state"`

	// ErrorCode is the taxonomy code for non-completed jobs
	ErrorCode string `json:"error_code,omitempty"`

	// Duration is submit-to-terminal wall time
	Duration time.Duration `json:"duration"`

	// FinishedAt is when the job reached its terminal state
	FinishedAt time.Time `json:"finished_at"`
}

// JobMetrics is the aggregated job view served to the dashboard.
type JobMetrics struct {
	// TotalProcessed is the number of jobs that reached a terminal state
	TotalProcessed int64 `json:"total_processed"`

	// TotalCompleted is the count of successful transformations
	TotalCompleted int64 `json:"total_completed"`

	// TotalFailed counts failed, expired, and rejected jobs
	TotalFailed int64 `json:"total_failed"`

	// TotalDowngraded counts jobs rendered below their requested tier
	TotalDowngraded int64 `json:"total_downgraded"`

	// ByStyle contains per-style statistics
	ByStyle map[string]*StyleMetrics `json:"by_style"`
}

// StyleMetrics is the per-style slice of JobMetrics.
type StyleMetrics struct {
	// Count is the number of terminal jobs for this style
	Count int64 `json:"count"`

	// SuccessRate is the percentage of completed jobs (0-100)
	SuccessRate float64 `json:"success_rate"`

	// AvgDuration is the mean submit-to-terminal time
	AvgDuration time.Duration `json:"avg_duration"`
}

// SystemStatus is the overall service health summary.
type SystemStatus struct {
	// Health is "running", "degraded" (model unavailable), or "stopped"
	Health string `json:"health"`

	// Version is the application version string
	Version string `json:"version"`

	// Uptime is the duration since process start
	Uptime time.Duration `json:"uptime"`

	// LastCheck is when this snapshot was taken
	LastCheck time.Time `json:"last_check"`
}

// Terminal state names used in JobRecord.State.
const (
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
	JobStateExpired   = "expired"
	JobStateRejected  = "rejected"
	JobStateCanceled  = "canceled"
)

// Health values for SystemStatus.
const (
	SystemHealthRunning  = "running"
	SystemHealthDegraded = "degraded"
	SystemHealthStopped  = "stopped"
)
