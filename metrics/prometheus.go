package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ai_backend/core"
	"ai_backend/scheduler"
)

// Prometheus metric definitions. Registered on the default registry and
// served by the /metrics endpoint.

// JobsTotal counts terminal jobs by state and style.
var JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ai_backend",
	Subsystem: "jobs",
	Name:      "terminal_total",
	Help:      "Total jobs that reached a terminal state, by state and style.",
}, []string{"state", "style"})

// JobsRejected counts submissions refused at admission, by taxonomy code.
var JobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ai_backend",
	Subsystem: "jobs",
	Name:      "rejected_total",
	Help:      "Total submissions rejected at admission, by error code.",
}, []string{"code"})

// JobsDowngraded counts jobs rendered below their requested tier.
var JobsDowngraded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ai_backend",
	Subsystem: "jobs",
	Name:      "downgraded_total",
	Help:      "Total jobs rendered below their requested resolution tier.",
})

// JobDuration observes submit-to-terminal latency for completed jobs.
var JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ai_backend",
	Subsystem: "jobs",
	Name:      "duration_seconds",
	Help:      "Submit-to-terminal latency of completed jobs.",
	Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
}, []string{"resolution"})

// QueueDepth tracks the current scheduler queue depth.
var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ai_backend",
	Subsystem: "scheduler",
	Name:      "queue_depth",
	Help:      "Current number of jobs waiting in the scheduler queue.",
})

// AcceleratorUtilization tracks the latest sampled utilization percentage.
var AcceleratorUtilization = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ai_backend",
	Subsystem: "accelerator",
	Name:      "utilization_percent",
	Help:      "Latest sampled accelerator utilization (0-100).",
})

// AcceleratorVRAMUsed tracks the latest sampled VRAM usage.
var AcceleratorVRAMUsed = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ai_backend",
	Subsystem: "accelerator",
	Name:      "vram_used_mb",
	Help:      "Latest sampled VRAM usage in megabytes.",
})

// AcceleratorTemperature tracks the latest sampled temperature.
var AcceleratorTemperature = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ai_backend",
	Subsystem: "accelerator",
	Name:      "temperature_celsius",
	Help:      "Latest sampled accelerator temperature.",
})

// ObserveAcceleratorSample updates the accelerator gauges. Wired as the
// AcceleratorCollector's onSample callback.
func ObserveAcceleratorSample(m core.AcceleratorMetrics) {
	AcceleratorUtilization.Set(m.Utilization)
	AcceleratorVRAMUsed.Set(float64(m.VRAMUsedMB))
	AcceleratorTemperature.Set(m.Temperature)
}

// Notifier bridges scheduler events into the MetricsStore and the Prometheus
// metrics. Registered with scheduler.WithNotifier; every callback is a map
// update or counter increment, so it never blocks dispatch.
type Notifier struct {
	store *MetricsStore
}

// NewNotifier creates a Notifier feeding store. A nil store updates only the
// Prometheus metrics.
func NewNotifier(store *MetricsStore) *Notifier {
	return &Notifier{store: store}
}

// JobTransition implements scheduler.Notifier.
func (n *Notifier) JobTransition(ev scheduler.Event) {
	QueueDepth.Set(float64(ev.QueueDepth))

	if !ev.Terminal {
		return
	}

	JobsTotal.WithLabelValues(ev.State, ev.StyleID).Inc()
	if ev.State == JobStateRejected {
		JobsRejected.WithLabelValues(ev.ErrorCode).Inc()
	}
	if ev.Downgraded {
		JobsDowngraded.Inc()
	}
	if ev.State == JobStateCompleted {
		JobDuration.WithLabelValues(ev.Resolution).
			Observe(float64(ev.DurationMs) / 1000)
	}

	if n.store != nil {
		n.store.RecordJob(JobRecord{
			ID:         ev.JobID,
			StyleID:    ev.StyleID,
			Resolution: ev.Resolution,
			Downgraded: ev.Downgraded,
			State:      ev.State,
			ErrorCode:  ev.ErrorCode,
			Duration:   time.Duration(ev.DurationMs) * time.Millisecond,
			FinishedAt: ev.At,
		})
	}
}

var _ scheduler.Notifier = (*Notifier)(nil)
