// Package webapi is the HTTP surface of the transformation backend: job
// submission and lifecycle endpoints, style listing, health and telemetry,
// operator controls, and a WebSocket event stream for dashboards. The layer
// is glue over the scheduler; it holds no queueing or admission policy.
package webapi

import (
	"encoding/json"
	"time"

	"ai_backend/core"
	"ai_backend/scheduler"
)

// WebSocket message type constants. Every frame sent to a dashboard client
// carries one of these in its envelope.
const (
	// StreamTypeJobUpdate is a job state transition.
	StreamTypeJobUpdate = "job_update"

	// StreamTypeTelemetry is an accelerator telemetry sample.
	StreamTypeTelemetry = "telemetry"

	// StreamTypeSystemStatus is an overall health snapshot.
	StreamTypeSystemStatus = "system_status"

	// StreamTypeInitial is the state snapshot sent on connection.
	StreamTypeInitial = "initial"

	// StreamTypeError is a server-side error notice.
	StreamTypeError = "error"
)

// StreamMessage is the envelope for all WebSocket frames. The Data payload
// is type-specific, keyed by Type.
type StreamMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewStreamMessage builds an envelope stamped with the current time.
func NewStreamMessage(msgType string, data interface{}) StreamMessage {
	return StreamMessage{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Encode serializes the message for the wire.
func (m StreamMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// JobUpdateData mirrors a scheduler transition event for dashboard clients.
// Identifiers and policy outcomes only, never image bytes or prompt text.
type JobUpdateData struct {
	JobID      string `json:"job_id"`
	ClientID   string `json:"client_id"`
	StyleID    string `json:"style_id"`
	State      string `json:"state"`
	Resolution string `json:"resolution"`
	Downgraded bool   `json:"downgraded"`
	QueueDepth int    `json:"queue_depth"`
	Terminal   bool   `json:"terminal"`
	ErrorCode  string `json:"error_code,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// TelemetryData is one accelerator sample.
type TelemetryData struct {
	Utilization float64 `json:"utilization"`
	Temperature float64 `json:"temperature"`
	VRAMUsedMB  int64   `json:"vram_used_mb"`
	VRAMTotalMB int64   `json:"vram_total_mb"`
	VRAMPercent float64 `json:"vram_percent"`
}

// SystemStatusData is the health snapshot for the initial frame and for
// broadcast status changes.
type SystemStatusData struct {
	Health     string  `json:"health"`
	Version    string  `json:"version"`
	UptimeSecs float64 `json:"uptime_secs"`
	QueueDepth int     `json:"queue_depth"`
	ActiveJobs int     `json:"active_jobs"`
}

// InitialData is the snapshot a client receives right after connecting.
type InitialData struct {
	System    SystemStatusData `json:"system"`
	Telemetry *TelemetryData   `json:"telemetry,omitempty"`
}

// ErrorData carries a taxonomy code and human summary to clients.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewJobUpdateMessage converts a scheduler event into a stream frame.
func NewJobUpdateMessage(ev scheduler.Event) StreamMessage {
	return NewStreamMessage(StreamTypeJobUpdate, JobUpdateData{
		JobID:      ev.JobID,
		ClientID:   ev.ClientID,
		StyleID:    ev.StyleID,
		State:      ev.State,
		Resolution: ev.Resolution,
		Downgraded: ev.Downgraded,
		QueueDepth: ev.QueueDepth,
		Terminal:   ev.Terminal,
		ErrorCode:  ev.ErrorCode,
		DurationMs: ev.DurationMs,
	})
}

// NewTelemetryMessage converts an accelerator sample into a stream frame.
func NewTelemetryMessage(m core.AcceleratorMetrics) StreamMessage {
	return NewStreamMessage(StreamTypeTelemetry, telemetryData(m))
}

// NewSystemStatusMessage wraps a health snapshot.
func NewSystemStatusMessage(data SystemStatusData) StreamMessage {
	return NewStreamMessage(StreamTypeSystemStatus, data)
}

// NewInitialMessage wraps the connection-time snapshot.
func NewInitialMessage(data InitialData) StreamMessage {
	return NewStreamMessage(StreamTypeInitial, data)
}

// NewErrorMessage wraps an error notice.
func NewErrorMessage(code, message string) StreamMessage {
	return NewStreamMessage(StreamTypeError, ErrorData{Code: code, Message: message})
}
