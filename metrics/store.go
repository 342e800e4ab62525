package metrics

import (
	"sync"
	"time"

	"ai_backend/core"
)

// MetricsStore is the in-memory telemetry store behind the dashboard and
// health endpoints. It keeps a bounded ring of recent job records, per-style
// aggregates, the latest accelerator sample, and the health flag.
//
// Usage:
//
//	store := NewMetricsStore(DefaultStoreConfig(), time.Now())
//	store.RecordJob(job)
//	summary := store.GetJobMetrics()
type MetricsStore struct {
	mu sync.RWMutex

	// Job history (ring buffer)
	jobHistory []JobRecord
	jobCap     int
	jobHead    int
	jobSize    int

	// Job aggregation
	totalJobs       int64
	totalCompleted  int64
	totalFailed     int64
	totalDowngraded int64
	jobsByStyle     map[string]*styleStats

	// Latest accelerator sample
	accelerator core.AcceleratorMetrics

	// Health
	modelAvailable bool

	startTime time.Time
	version   string
}

// styleStats holds per-style aggregation data.
type styleStats struct {
	count          int64
	completedCount int64
	totalDuration  time.Duration
}

// StoreConfig configures the MetricsStore.
type StoreConfig struct {
	// JobHistoryCapacity is the max number of job records to retain
	JobHistoryCapacity int
	// Version is the application version string
	Version string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		JobHistoryCapacity: 100,
		Version:            "0.0.0",
	}
}

// NewMetricsStore creates a MetricsStore. The startTime feeds uptime.
func NewMetricsStore(config StoreConfig, startTime time.Time) *MetricsStore {
	capacity := config.JobHistoryCapacity
	if capacity < 1 {
		capacity = 100
	}

	return &MetricsStore{
		jobHistory:  make([]JobRecord, capacity),
		jobCap:      capacity,
		jobsByStyle: make(map[string]*styleStats),
		startTime:   startTime,
		version:     config.Version,
	}
}

// RecordJob logs a terminal job.
func (s *MetricsStore) RecordJob(job JobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobHistory[s.jobHead] = job
	s.jobHead = (s.jobHead + 1) % s.jobCap
	if s.jobSize < s.jobCap {
		s.jobSize++
	}

	s.totalJobs++
	switch job.State {
	case JobStateCompleted:
		s.totalCompleted++
	case JobStateFailed, JobStateExpired, JobStateRejected:
		s.totalFailed++
	}
	if job.Downgraded {
		s.totalDowngraded++
	}

	stats, ok := s.jobsByStyle[job.StyleID]
	if !ok {
		stats = &styleStats{}
		s.jobsByStyle[job.StyleID] = stats
	}
	stats.count++
	if job.State == JobStateCompleted {
		stats.completedCount++
	}
	stats.totalDuration += job.Duration
}

// GetJobMetrics returns aggregated job statistics.
func (s *MetricsStore) GetJobMetrics() JobMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := JobMetrics{
		TotalProcessed:  s.totalJobs,
		TotalCompleted:  s.totalCompleted,
		TotalFailed:     s.totalFailed,
		TotalDowngraded: s.totalDowngraded,
		ByStyle:         make(map[string]*StyleMetrics, len(s.jobsByStyle)),
	}

	for styleID, stats := range s.jobsByStyle {
		var successRate float64
		var avgDuration time.Duration
		if stats.count > 0 {
			successRate = float64(stats.completedCount) / float64(stats.count) * 100
			avgDuration = stats.totalDuration / time.Duration(stats.count)
		}
		out.ByStyle[styleID] = &StyleMetrics{
			Count:       stats.count,
			SuccessRate: successRate,
			AvgDuration: avgDuration,
		}
	}
	return out
}

// GetRecentJobs returns the N most recent job records, oldest first.
// If limit exceeds available records, all are returned.
func (s *MetricsStore) GetRecentJobs(limit int) []JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.jobSize == 0 {
		return []JobRecord{}
	}
	if limit > s.jobSize {
		limit = s.jobSize
	}

	result := make([]JobRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.jobHead - limit + i + s.jobCap) % s.jobCap
		result[i] = s.jobHistory[idx]
	}
	return result
}

// UpdateAcceleratorMetrics records the latest accelerator sample.
func (s *MetricsStore) UpdateAcceleratorMetrics(m core.AcceleratorMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accelerator = m
}

// GetAcceleratorMetrics returns the latest accelerator sample.
func (s *MetricsStore) GetAcceleratorMetrics() core.AcceleratorMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accelerator
}

// SetModelAvailable flips the health signal. Set false while the base model
// is unloaded or reloading.
func (s *MetricsStore) SetModelAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelAvailable = available
}

// GetSystemStatus returns the overall service health. The service is
// "degraded" while the base model is unavailable: the process serves
// requests but every submission is rejected.
func (s *MetricsStore) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	if !s.modelAvailable {
		health = SystemHealthDegraded
	}

	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
	}
}

var _ Collector = (*MetricsStore)(nil)
