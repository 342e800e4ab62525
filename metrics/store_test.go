package metrics

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"ai_backend/core"
)

func completedJob(id, styleID string, d time.Duration) JobRecord {
	return JobRecord{
		ID:         id,
		StyleID:    styleID,
		Resolution: "standard",
		State:      JobStateCompleted,
		Duration:   d,
		FinishedAt: time.Now(),
	}
}

// TestMetricsStore_RecordAndAggregate verifies job aggregation.
func TestMetricsStore_RecordAndAggregate(t *testing.T) {
	store := NewMetricsStore(DefaultStoreConfig(), time.Now())

	store.RecordJob(completedJob("j1", "hasselblad", 2*time.Second))
	store.RecordJob(completedJob("j2", "hasselblad", 4*time.Second))
	store.RecordJob(JobRecord{
		ID: "j3", StyleID: "hasselblad", State: JobStateFailed,
		ErrorCode: "ACCELERATOR_MEMORY_EXHAUSTED", Downgraded: true,
	})
	store.RecordJob(JobRecord{ID: "j4", StyleID: "leica_m", State: JobStateCanceled})

	m := store.GetJobMetrics()
	if m.TotalProcessed != 4 {
		t.Errorf("TotalProcessed = %d, want 4", m.TotalProcessed)
	}
	if m.TotalCompleted != 2 {
		t.Errorf("TotalCompleted = %d, want 2", m.TotalCompleted)
	}
	if m.TotalFailed != 1 {
		t.Errorf("TotalFailed = %d, want 1 (canceled is not a failure)", m.TotalFailed)
	}
	if m.TotalDowngraded != 1 {
		t.Errorf("TotalDowngraded = %d, want 1", m.TotalDowngraded)
	}

	hasselblad := m.ByStyle["hasselblad"]
	if hasselblad == nil {
		t.Fatal("hasselblad missing from per-style metrics")
	}
	if hasselblad.Count != 3 {
		t.Errorf("hasselblad count = %d, want 3", hasselblad.Count)
	}
	wantRate := float64(2) / 3 * 100
	if hasselblad.SuccessRate < wantRate-0.01 || hasselblad.SuccessRate > wantRate+0.01 {
		t.Errorf("hasselblad success rate = %.2f, want %.2f", hasselblad.SuccessRate, wantRate)
	}
	if hasselblad.AvgDuration != 2*time.Second {
		t.Errorf("hasselblad avg duration = %v, want 2s", hasselblad.AvgDuration)
	}
}

// TestMetricsStore_RecentJobsRing verifies ring buffer behavior.
func TestMetricsStore_RecentJobsRing(t *testing.T) {
	store := NewMetricsStore(StoreConfig{JobHistoryCapacity: 3}, time.Now())

	for i := 1; i <= 5; i++ {
		store.RecordJob(completedJob(fmt.Sprintf("j%d", i), "hasselblad", time.Second))
	}

	recent := store.GetRecentJobs(10)
	if len(recent) != 3 {
		t.Fatalf("got %d records, want 3 (ring capacity)", len(recent))
	}
	// Oldest first: j3, j4, j5
	want := []string{"j3", "j4", "j5"}
	for i, rec := range recent {
		if rec.ID != want[i] {
			t.Errorf("recent[%d].ID = %s, want %s", i, rec.ID, want[i])
		}
	}

	if got := store.GetRecentJobs(2); len(got) != 2 || got[0].ID != "j4" {
		t.Errorf("GetRecentJobs(2) = %v", got)
	}
	if got := store.GetRecentJobs(0); len(got) != 0 {
		t.Errorf("GetRecentJobs(0) returned %d records", len(got))
	}
}

// TestMetricsStore_AcceleratorSnapshot round-trips the latest sample.
func TestMetricsStore_AcceleratorSnapshot(t *testing.T) {
	store := NewMetricsStore(DefaultStoreConfig(), time.Now())

	sample := core.AcceleratorMetrics{
		VRAMUsedMB:  8192,
		VRAMTotalMB: 24576,
		Utilization: 87.5,
		Temperature: 71,
	}
	store.UpdateAcceleratorMetrics(sample)

	if got := store.GetAcceleratorMetrics(); got != sample {
		t.Errorf("GetAcceleratorMetrics() = %+v, want %+v", got, sample)
	}
}

// TestMetricsStore_SystemStatus tracks the model availability flag.
func TestMetricsStore_SystemStatus(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	store := NewMetricsStore(StoreConfig{Version: "1.2.3"}, start)

	status := store.GetSystemStatus()
	if status.Health != SystemHealthDegraded {
		t.Errorf("health before model load = %s, want degraded", status.Health)
	}
	if status.Version != "1.2.3" {
		t.Errorf("version = %s", status.Version)
	}
	if status.Uptime < time.Minute {
		t.Errorf("uptime = %v, want >= 1m", status.Uptime)
	}

	store.SetModelAvailable(true)
	if got := store.GetSystemStatus().Health; got != SystemHealthRunning {
		t.Errorf("health after model load = %s, want running", got)
	}

	store.SetModelAvailable(false)
	if got := store.GetSystemStatus().Health; got != SystemHealthDegraded {
		t.Errorf("health after unload = %s, want degraded", got)
	}
}

// TestMetricsStore_ConcurrentAccess exercises the store from many goroutines.
func TestMetricsStore_ConcurrentAccess(t *testing.T) {
	store := NewMetricsStore(DefaultStoreConfig(), time.Now())

	var wg sync.WaitGroup
	const writers = 8
	const perWriter = 100
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				store.RecordJob(completedJob(fmt.Sprintf("w%d-j%d", i, j), "zeiss", time.Second))
				store.GetJobMetrics()
				store.GetRecentJobs(5)
			}
		}(i)
	}
	wg.Wait()

	if got := store.GetJobMetrics().TotalProcessed; got != writers*perWriter {
		t.Errorf("TotalProcessed = %d, want %d", got, writers*perWriter)
	}
}
