package metrics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"ai_backend/core"
)

// AcceleratorReader reads one accelerator sample. The nvidia-smi reader is
// the production implementation; MockAcceleratorReader serves tests and
// accelerator-less dev machines.
type AcceleratorReader interface {
	// ReadAcceleratorMetrics reads the current sample.
	// Returns an error if the accelerator is unavailable.
	ReadAcceleratorMetrics() (core.AcceleratorMetrics, error)
}

// AcceleratorCollectorConfig configures the sampler.
type AcceleratorCollectorConfig struct {
	// CollectionInterval is how often to sample
	CollectionInterval time.Duration

	// HistorySize is the number of samples to retain (720 = 1 hour at 5s intervals)
	HistorySize int

	// NvidiaSMIPath is the path to the nvidia-smi executable.
	// If empty, uses "nvidia-smi" and relies on PATH.
	NvidiaSMIPath string
}

// DefaultAcceleratorCollectorConfig returns a default configuration.
func DefaultAcceleratorCollectorConfig() AcceleratorCollectorConfig {
	return AcceleratorCollectorConfig{
		CollectionInterval: 5 * time.Second,
		HistorySize:        720,
		NvidiaSMIPath:      "nvidia-smi",
	}
}

// AcceleratorCollector periodically samples accelerator utilization and VRAM
// via nvidia-smi and keeps a rolling history for the dashboard. Samples also
// flow to a callback, which feeds the MetricsStore and the Prometheus gauges.
type AcceleratorCollector struct {
	mu sync.RWMutex

	config AcceleratorCollectorConfig
	reader AcceleratorReader

	// History storage (ring buffer)
	history  []core.AcceleratorMetrics
	histHead int
	histSize int
	histCap  int

	lastMetrics core.AcceleratorMetrics
	available   bool
	lastError   error

	onSample func(core.AcceleratorMetrics)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAcceleratorCollector creates a collector using nvidia-smi.
// The onSample callback is invoked for every successful sample.
func NewAcceleratorCollector(config AcceleratorCollectorConfig, onSample func(core.AcceleratorMetrics)) *AcceleratorCollector {
	if config.CollectionInterval < time.Second {
		config.CollectionInterval = 5 * time.Second
	}
	if config.HistorySize < 1 {
		config.HistorySize = 720
	}
	if config.NvidiaSMIPath == "" {
		config.NvidiaSMIPath = "nvidia-smi"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &AcceleratorCollector{
		config:   config,
		history:  make([]core.AcceleratorMetrics, config.HistorySize),
		histCap:  config.HistorySize,
		onSample: onSample,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// NewAcceleratorCollectorWithReader creates a collector with a custom reader.
// Used in tests and on machines without nvidia-smi.
func NewAcceleratorCollectorWithReader(config AcceleratorCollectorConfig, reader AcceleratorReader, onSample func(core.AcceleratorMetrics)) *AcceleratorCollector {
	c := NewAcceleratorCollector(config, onSample)
	c.reader = reader
	return c
}

// Start begins periodic sampling in a background goroutine.
func (c *AcceleratorCollector) Start() {
	c.wg.Add(1)
	go c.collectLoop()
}

// Stop halts sampling. Blocks until the goroutine has exited.
func (c *AcceleratorCollector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// IsAvailable reports whether the last sample succeeded.
func (c *AcceleratorCollector) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// LastError returns the most recent sampling error, nil if none.
func (c *AcceleratorCollector) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// CurrentMetrics returns the most recent successful sample.
func (c *AcceleratorCollector) CurrentMetrics() core.AcceleratorMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

// History returns up to limit samples, oldest first.
func (c *AcceleratorCollector) History(limit int) []core.AcceleratorMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 || c.histSize == 0 {
		return []core.AcceleratorMetrics{}
	}
	if limit > c.histSize {
		limit = c.histSize
	}

	result := make([]core.AcceleratorMetrics, limit)
	for i := 0; i < limit; i++ {
		idx := (c.histHead - limit + i + c.histCap) % c.histCap
		result[i] = c.history[idx]
	}
	return result
}

// HistorySize returns the current number of retained samples.
func (c *AcceleratorCollector) HistorySize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.histSize
}

func (c *AcceleratorCollector) collectLoop() {
	defer c.wg.Done()

	// Sample immediately on start
	c.collectOnce()

	ticker := time.NewTicker(c.config.CollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collectOnce()
		}
	}
}

func (c *AcceleratorCollector) collectOnce() {
	var sample core.AcceleratorMetrics
	var err error

	if c.reader != nil {
		sample, err = c.reader.ReadAcceleratorMetrics()
	} else {
		sample, err = c.readNvidiaSMI()
	}

	c.mu.Lock()
	if err != nil {
		c.available = false
		c.lastError = err
		// Keep the last valid sample but don't add to history
	} else {
		c.available = true
		c.lastError = nil
		c.lastMetrics = sample

		c.history[c.histHead] = sample
		c.histHead = (c.histHead + 1) % c.histCap
		if c.histSize < c.histCap {
			c.histSize++
		}
	}
	current := c.lastMetrics
	c.mu.Unlock()

	// Callback outside the lock
	if c.onSample != nil && err == nil {
		c.onSample(current)
	}
}

func (c *AcceleratorCollector) readNvidiaSMI() (core.AcceleratorMetrics, error) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.config.NvidiaSMIPath,
		"--query-gpu=utilization.gpu,temperature.gpu,memory.used,memory.total",
		"--format=csv,noheader,nounits")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return core.AcceleratorMetrics{}, fmt.Errorf("nvidia-smi failed: %w (stderr: %s)", err, stderr.String())
	}

	return parseNvidiaSMIOutput(stdout.String())
}

// parseNvidiaSMIOutput parses nvidia-smi's CSV output. Memory values are
// reported in MiB, which matches core.AcceleratorMetrics directly.
func parseNvidiaSMIOutput(output string) (core.AcceleratorMetrics, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return core.AcceleratorMetrics{}, fmt.Errorf("empty nvidia-smi output")
	}

	reader := csv.NewReader(strings.NewReader(output))
	record, err := reader.Read()
	if err != nil {
		return core.AcceleratorMetrics{}, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(record) < 4 {
		return core.AcceleratorMetrics{}, fmt.Errorf("unexpected field count: got %d, expected 4", len(record))
	}

	util, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
	if err != nil {
		return core.AcceleratorMetrics{}, fmt.Errorf("failed to parse utilization: %w", err)
	}
	temp, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return core.AcceleratorMetrics{}, fmt.Errorf("failed to parse temperature: %w", err)
	}
	memUsedMiB, err := strconv.ParseInt(strings.TrimSpace(record[2]), 10, 64)
	if err != nil {
		return core.AcceleratorMetrics{}, fmt.Errorf("failed to parse memory used: %w", err)
	}
	memTotalMiB, err := strconv.ParseInt(strings.TrimSpace(record[3]), 10, 64)
	if err != nil {
		return core.AcceleratorMetrics{}, fmt.Errorf("failed to parse memory total: %w", err)
	}

	return core.AcceleratorMetrics{
		Utilization: util,
		Temperature: temp,
		VRAMUsedMB:  memUsedMiB,
		VRAMTotalMB: memTotalMiB,
	}, nil
}

// MockAcceleratorReader is a scriptable AcceleratorReader for tests.
type MockAcceleratorReader struct {
	mu      sync.Mutex
	metrics core.AcceleratorMetrics
	err     error
	calls   int
}

// NewMockAcceleratorReader creates a mock returning the given sample.
func NewMockAcceleratorReader(metrics core.AcceleratorMetrics) *MockAcceleratorReader {
	return &MockAcceleratorReader{metrics: metrics}
}

// SetMetrics updates the sample returned by this mock.
func (m *MockAcceleratorReader) SetMetrics(metrics core.AcceleratorMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// SetError sets an error to be returned by ReadAcceleratorMetrics.
func (m *MockAcceleratorReader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ReadAcceleratorMetrics returns the configured sample or error.
func (m *MockAcceleratorReader) ReadAcceleratorMetrics() (core.AcceleratorMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return core.AcceleratorMetrics{}, m.err
	}
	return m.metrics, nil
}

// CallCount returns how many times the mock was read.
func (m *MockAcceleratorReader) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
