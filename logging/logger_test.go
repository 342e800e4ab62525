package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newObservedLogger builds a Logger over an observer core so tests can
// inspect exactly what would have been written.
func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerWithCore(core, true), logs
}

func TestLoggerRedactsPromptFields(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	logger.Info("prompt resolved",
		zap.String("style_id", "hasselblad"),
		zap.String("prompt", "medium format photography, hasselblad x2d, 100mm lens"),
		zap.String("negative_prompt", "blurry, noise"),
		zap.String("prompt_version", "v2"),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()

	if fields["prompt"] != RedactedPlaceholder {
		t.Errorf("prompt field = %v, want %q", fields["prompt"], RedactedPlaceholder)
	}
	if fields["negative_prompt"] != RedactedPlaceholder {
		t.Errorf("negative_prompt field = %v, want %q", fields["negative_prompt"], RedactedPlaceholder)
	}
	if fields["prompt_version"] != "v2" {
		t.Errorf("prompt_version field = %v, want v2", fields["prompt_version"])
	}
	if fields["style_id"] != "hasselblad" {
		t.Errorf("style_id field = %v, want hasselblad", fields["style_id"])
	}
}

func TestLoggerRedactsSugaredPairs(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	logger.Infow("resolver hit",
		"prompt", "leica m rangefinder photography",
		"prompt_source", "default",
		"seed", int64(42),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()

	if fields["prompt"] != RedactedPlaceholder {
		t.Errorf("prompt = %v, want %q", fields["prompt"], RedactedPlaceholder)
	}
	if fields["prompt_source"] != "default" {
		t.Errorf("prompt_source = %v, want default", fields["prompt_source"])
	}
	if fields["seed"] != int64(42) {
		t.Errorf("seed = %v, want 42", fields["seed"])
	}
}

func TestLoggerRedactsEmbeddedSecrets(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	logger.Error("remote render failed",
		zap.String("detail", "request with key sk-abcdefghijklmnopqrstuvwx rejected"),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	detail, _ := entries[0].ContextMap()["detail"].(string)
	if detail == "" {
		t.Fatal("detail field missing")
	}
	if detail == "request with key sk-abcdefghijklmnopqrstuvwx rejected" {
		t.Error("embedded API key was not redacted")
	}
}

func TestLoggerWithCarriesRedactedFields(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	child := logger.With(zap.String("prompt", "zeiss otus lens photography"))
	child.Info("attached")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["prompt"] != RedactedPlaceholder {
		t.Errorf("With() field = %v, want %q", entries[0].ContextMap()["prompt"], RedactedPlaceholder)
	}
}

func TestLoggerNamed(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	logger.Named("scheduler").Info("started")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "scheduler" {
		t.Errorf("LoggerName = %q, want scheduler", entries[0].LoggerName)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.InfoLevel)

	logger.Debug("below threshold")
	logger.Info("at threshold")

	if got := len(logs.All()); got != 1 {
		t.Errorf("expected 1 entry after level filtering, got %d", got)
	}
}

func TestNilLoggerSyncIsSafe(t *testing.T) {
	var logger *Logger
	if err := logger.Sync(); err != nil {
		t.Errorf("nil Sync() = %v, want nil", err)
	}
}
