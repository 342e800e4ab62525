package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ai_backend/core"
)

// RenderMetrics represents metrics collected for one render operation.
// Implements zapcore.ObjectMarshaler for structured logging.
//
// It carries identifiers and numbers only. Prompt text never appears here;
// the prompt is identified by its version.
//
// Example:
//
//	m := logging.RenderMetrics{
//		ModelID:       "flux.1-schnell",
//		StyleID:       "hasselblad",
//		PromptVersion: "v2",
//		Resolution:    "standard",
//		Width:         512,
//		Height:        512,
//		Seed:          271828,
//		QueueWait:     400 * time.Millisecond,
//		Duration:      3 * time.Second,
//	}
//	logger.Info("render complete", logging.RenderFields(m))
type RenderMetrics struct {
	// ModelID identifies the base model used for the render
	ModelID string `json:"model_id"`

	// StyleID is the camera style applied
	StyleID string `json:"style_id"`

	// PromptVersion identifies which prompt record was resolved
	PromptVersion string `json:"prompt_version"`

	// Resolution is the tier name actually rendered (after any downgrade)
	Resolution string `json:"resolution"`

	// Width and Height are the output pixel dimensions
	Width  int `json:"width"`
	Height int `json:"height"`

	// Downgraded is true when the tier differs from the one requested
	Downgraded bool `json:"downgraded"`

	// Seed is the seed the render ran with
	Seed int64 `json:"seed"`

	// QueueWait is how long the job waited before acquiring the accelerator
	QueueWait time.Duration `json:"queue_wait"`

	// Duration is the accelerator-resident render time
	Duration time.Duration `json:"duration"`

	// Accelerator contains resource utilization sampled around the render
	Accelerator core.AcceleratorMetrics `json:"accelerator"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler for structured logging.
// Durations are encoded in milliseconds for readability.
func (m RenderMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("model_id", m.ModelID)
	enc.AddString("style_id", m.StyleID)
	enc.AddString("prompt_version", m.PromptVersion)
	enc.AddString("resolution", m.Resolution)
	enc.AddInt("width", m.Width)
	enc.AddInt("height", m.Height)
	enc.AddBool("downgraded", m.Downgraded)
	enc.AddInt64("seed", m.Seed)
	enc.AddInt64("queue_wait_ms", m.QueueWait.Milliseconds())
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())

	if err := enc.AddObject("accelerator", m.Accelerator); err != nil {
		return err
	}
	return nil
}

// RenderFields creates a structured zap field from render metrics.
//
// Example:
//
//	logger.Info("render complete", logging.RenderFields(metrics))
func RenderFields(metrics RenderMetrics) zap.Field {
	return zap.Object("render", metrics)
}

// AcceleratorFields creates a structured zap field from accelerator metrics.
//
// Example:
//
//	logger.Info("accelerator status", logging.AcceleratorFields(snapshot))
func AcceleratorFields(metrics core.AcceleratorMetrics) zap.Field {
	return zap.Object("accelerator", metrics)
}

// TimingFields creates a slice of zap fields for an operation's timing.
//
// Example:
//
//	logger.Info("timing", logging.TimingFields(start, time.Now())...)
func TimingFields(startTime, endTime time.Time) []zap.Field {
	return []zap.Field{
		zap.Time("start_time", startTime),
		zap.Time("end_time", endTime),
		zap.Duration("duration", endTime.Sub(startTime)),
	}
}
