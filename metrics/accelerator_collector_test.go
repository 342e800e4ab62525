package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"ai_backend/core"
)

func testSample(used int64) core.AcceleratorMetrics {
	return core.AcceleratorMetrics{
		VRAMUsedMB:  used,
		VRAMTotalMB: 24576,
		Utilization: 50,
		Temperature: 60,
	}
}

// TestParseNvidiaSMIOutput verifies CSV parsing.
func TestParseNvidiaSMIOutput(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    core.AcceleratorMetrics
		wantErr bool
	}{
		{
			name:   "normal output",
			output: "87, 71, 8192, 24576\n",
			want: core.AcceleratorMetrics{
				Utilization: 87,
				Temperature: 71,
				VRAMUsedMB:  8192,
				VRAMTotalMB: 24576,
			},
		},
		{
			name:   "idle accelerator",
			output: "0, 35, 0, 24576",
			want: core.AcceleratorMetrics{
				Temperature: 35,
				VRAMTotalMB: 24576,
			},
		},
		{name: "empty output", output: "", wantErr: true},
		{name: "too few fields", output: "87, 71, 8192", wantErr: true},
		{name: "non-numeric field", output: "abc, 71, 8192, 24576", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseNvidiaSMIOutput(tt.output)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseNvidiaSMIOutput() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseNvidiaSMIOutput() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestAcceleratorCollector_CollectsFromReader verifies sampling via the
// mock reader.
func TestAcceleratorCollector_CollectsFromReader(t *testing.T) {
	reader := NewMockAcceleratorReader(testSample(4096))

	var mu sync.Mutex
	var samples []core.AcceleratorMetrics
	collector := NewAcceleratorCollectorWithReader(
		AcceleratorCollectorConfig{CollectionInterval: time.Hour, HistorySize: 10},
		reader,
		func(m core.AcceleratorMetrics) {
			mu.Lock()
			samples = append(samples, m)
			mu.Unlock()
		},
	)

	collector.collectOnce()

	if !collector.IsAvailable() {
		t.Error("IsAvailable() = false after successful sample")
	}
	if got := collector.CurrentMetrics(); got.VRAMUsedMB != 4096 {
		t.Errorf("CurrentMetrics().VRAMUsedMB = %d, want 4096", got.VRAMUsedMB)
	}
	if collector.HistorySize() != 1 {
		t.Errorf("HistorySize() = %d, want 1", collector.HistorySize())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(samples) != 1 || samples[0].VRAMUsedMB != 4096 {
		t.Errorf("callback samples = %+v", samples)
	}
}

// TestAcceleratorCollector_ErrorKeepsLastSample verifies failure handling.
func TestAcceleratorCollector_ErrorKeepsLastSample(t *testing.T) {
	reader := NewMockAcceleratorReader(testSample(2048))
	collector := NewAcceleratorCollectorWithReader(
		AcceleratorCollectorConfig{CollectionInterval: time.Hour, HistorySize: 10},
		reader, nil,
	)

	collector.collectOnce()
	reader.SetError(errors.New("nvidia-smi not found"))
	collector.collectOnce()

	if collector.IsAvailable() {
		t.Error("IsAvailable() = true after failed sample")
	}
	if collector.LastError() == nil {
		t.Error("LastError() = nil after failed sample")
	}
	// The last good sample survives; the failure is not added to history
	if got := collector.CurrentMetrics(); got.VRAMUsedMB != 2048 {
		t.Errorf("CurrentMetrics().VRAMUsedMB = %d, want 2048", got.VRAMUsedMB)
	}
	if collector.HistorySize() != 1 {
		t.Errorf("HistorySize() = %d, want 1", collector.HistorySize())
	}
}

// TestAcceleratorCollector_HistoryRing verifies the ring buffer ordering.
func TestAcceleratorCollector_HistoryRing(t *testing.T) {
	reader := NewMockAcceleratorReader(testSample(0))
	collector := NewAcceleratorCollectorWithReader(
		AcceleratorCollectorConfig{CollectionInterval: time.Hour, HistorySize: 3},
		reader, nil,
	)

	for i := int64(1); i <= 5; i++ {
		reader.SetMetrics(testSample(i * 1000))
		collector.collectOnce()
	}

	history := collector.History(10)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	// Oldest first: samples 3, 4, 5
	for i, want := range []int64{3000, 4000, 5000} {
		if history[i].VRAMUsedMB != want {
			t.Errorf("history[%d].VRAMUsedMB = %d, want %d", i, history[i].VRAMUsedMB, want)
		}
	}

	if got := collector.History(0); len(got) != 0 {
		t.Errorf("History(0) returned %d samples", len(got))
	}
}

// TestAcceleratorCollector_StartStop runs the background loop briefly.
func TestAcceleratorCollector_StartStop(t *testing.T) {
	reader := NewMockAcceleratorReader(testSample(1024))
	collector := NewAcceleratorCollectorWithReader(
		AcceleratorCollectorConfig{CollectionInterval: time.Second, HistorySize: 10},
		reader, nil,
	)

	collector.Start()
	// The loop samples immediately on start
	deadline := time.Now().Add(2 * time.Second)
	for collector.HistorySize() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	collector.Stop()

	if reader.CallCount() == 0 {
		t.Error("reader was never called")
	}
	if collector.HistorySize() == 0 {
		t.Error("no samples collected")
	}
}
