package core

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// AcceleratorMetrics represents accelerator resource utilization metrics.
// Implements zapcore.ObjectMarshaler for structured logging.
type AcceleratorMetrics struct {
	// VRAMUsedMB is the amount of VRAM currently in use (megabytes)
	VRAMUsedMB int64 `json:"vram_used_mb"`
	// VRAMTotalMB is the total available VRAM (megabytes)
	VRAMTotalMB int64 `json:"vram_total_mb"`
	// Utilization is the accelerator utilization percentage (0-100)
	Utilization float64 `json:"utilization"`
	// Temperature is the accelerator temperature in Celsius
	Temperature float64 `json:"temperature"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler for structured logging.
func (m AcceleratorMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("vram_used_mb", m.VRAMUsedMB)
	enc.AddInt64("vram_total_mb", m.VRAMTotalMB)
	enc.AddFloat64("utilization", m.Utilization)
	enc.AddFloat64("temperature", m.Temperature)
	return nil
}

// TransformationRecord is the journal row written for every job that reaches
// a terminal state. It deliberately carries no prompt text: prompt content is
// the system's protected asset and never leaves the resolver.
type TransformationRecord struct {
	// ID is the database row id
	ID int64 `json:"id"`
	// JobID is the job handle the client holds
	JobID string `json:"job_id"`
	// ClientID identifies the submitting client
	ClientID string `json:"client_id"`
	// StyleID is the camera style that was requested
	StyleID string `json:"style_id"`
	// RequestedTier is the resolution tier the client asked for
	RequestedTier string `json:"requested_tier"`
	// AssignedTier is the resolution tier actually rendered (after any downgrade)
	AssignedTier string `json:"assigned_tier"`
	// Downgraded is true when AssignedTier differs from RequestedTier
	Downgraded bool `json:"downgraded"`
	// Seed is the seed the render ran with (0 if the job never rendered)
	Seed int64 `json:"seed"`
	// DurationMs is the total wall time from submit to terminal state
	DurationMs int64 `json:"duration_ms"`
	// State is the terminal state name (completed, failed, expired, rejected, canceled)
	State string `json:"state"`
	// ErrorCode is the taxonomy code for non-completed jobs, empty otherwise
	ErrorCode string `json:"error_code,omitempty"`
	// CreatedAt is when the record was written
	CreatedAt time.Time `json:"created_at"`
}

// Terminal state names used in TransformationRecord.State.
const (
	RecordStateCompleted = "completed"
	RecordStateFailed    = "failed"
	RecordStateExpired   = "expired"
	RecordStateRejected  = "rejected"
	RecordStateCanceled  = "canceled"
)
