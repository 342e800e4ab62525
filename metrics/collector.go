package metrics

import "ai_backend/core"

// Collector is the read/write surface the web layer depends on. MetricsStore
// is the shipped implementation; the interface keeps handlers testable with
// a fake.
//
// All methods must be concurrency-safe. Zero values are returned for
// metrics that have not been observed yet.
type Collector interface {
	// RecordJob logs a job that reached a terminal state.
	RecordJob(job JobRecord)

	// GetJobMetrics returns aggregated job statistics.
	GetJobMetrics() JobMetrics

	// GetRecentJobs returns the N most recent job records, oldest first.
	GetRecentJobs(limit int) []JobRecord

	// UpdateAcceleratorMetrics records the latest accelerator sample.
	UpdateAcceleratorMetrics(m core.AcceleratorMetrics)

	// GetAcceleratorMetrics returns the latest accelerator sample.
	GetAcceleratorMetrics() core.AcceleratorMetrics

	// SetModelAvailable flips the health signal driving GetSystemStatus.
	SetModelAvailable(available bool)

	// GetSystemStatus returns the overall service health.
	GetSystemStatus() SystemStatus
}
