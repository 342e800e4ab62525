package validation

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// ValidationStep represents a single validation step with its status.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SuiteResult represents the complete result of validation suite execution.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// ValidationSuite orchestrates all startup checks: configuration shape,
// required artifacts on disk, writable data directories, and listen port
// availability, with progress output.
type ValidationSuite struct {
	output          io.Writer
	configValidator *ConfigValidator
	showProgress    bool
	failFast        bool
	checkPort       bool
}

// NewValidationSuite creates a new ValidationSuite with default settings.
func NewValidationSuite(inputs Inputs) *ValidationSuite {
	return &ValidationSuite{
		output:          os.Stdout,
		configValidator: NewConfigValidator(inputs),
		showProgress:    true,
		failFast:        false,
		checkPort:       true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// WithPortCheck enables or disables the listen port bind probe.
func (s *ValidationSuite) WithPortCheck(check bool) *ValidationSuite {
	s.checkPort = check
	return s
}

// Validate runs all validation checks in sequence with progress output.
// Returns a SuiteResult with complete validation results.
func (s *ValidationSuite) Validate() SuiteResult {
	startTime := time.Now()
	steps := make([]ValidationStep, 0, 7)

	// Header
	if s.showProgress {
		s.printHeader("Startup Validation")
	}

	// Step 1: Check .env override file
	step := s.runStep("Environment File", func() (bool, string, error) {
		result := s.configValidator.CheckEnvFile()
		return result.Valid, result.Message, result.Error
	})
	steps = append(steps, step)
	if s.failFast && step.Status == StepFailed {
		return s.buildResult(steps, startTime)
	}

	// Step 2: Check listen address shape
	addrStep := s.runStep("Listen Address", func() (bool, string, error) {
		result := s.configValidator.CheckListenAddr()
		return result.Valid, result.Message, result.Error
	})
	steps = append(steps, addrStep)
	if s.failFast && addrStep.Status == StepFailed {
		return s.buildResult(steps, startTime)
	}

	// Step 3: Check base model artifact
	step = s.runStep("Base Model Artifact", func() (bool, string, error) {
		result := s.configValidator.CheckModelArtifact()
		return result.Valid, result.Message, result.Error
	})
	steps = append(steps, step)
	if s.failFast && step.Status == StepFailed {
		return s.buildResult(steps, startTime)
	}

	// Step 4: Check style adapter artifacts
	step = s.runStep("Style Adapters", func() (bool, string, error) {
		result := s.configValidator.CheckAdapterArtifacts()
		return result.Valid, result.Message, result.Error
	})
	steps = append(steps, step)
	if s.failFast && step.Status == StepFailed {
		return s.buildResult(steps, startTime)
	}

	// Step 5: Check database path writability
	step = s.runStep("Database Path", func() (bool, string, error) {
		result := s.configValidator.CheckDatabasePath()
		return result.Valid, result.Message, result.Error
	})
	steps = append(steps, step)
	if s.failFast && step.Status == StepFailed {
		return s.buildResult(steps, startTime)
	}

	// Step 6: Check artifact storage (writable + free space)
	step = s.runStep("Artifact Storage", func() (bool, string, error) {
		result := s.configValidator.CheckArtifactDir()
		if !result.Valid {
			return false, result.Message, result.Error
		}
		if err := CheckDiskSpaceForDefaultArtifacts(s.configValidator.inputs.ArtifactDir); err != nil {
			return false, "Insufficient free space for artifacts", err
		}
		return true, result.Message, nil
	})
	steps = append(steps, step)
	if s.failFast && step.Status == StepFailed {
		return s.buildResult(steps, startTime)
	}

	// Step 7: Probe the listen port (only if the address shape is valid)
	if s.checkPort && addrStep.Status == StepPassed {
		step = s.runStep("Port Availability", func() (bool, string, error) {
			ln, err := net.Listen("tcp", s.configValidator.inputs.ListenAddr)
			if err != nil {
				return false, "Listen address already in use or not bindable", err
			}
			ln.Close()
			return true, "Listen address bindable", nil
		})
	} else {
		step = ValidationStep{
			Name:    "Port Availability",
			Status:  StepSkipped,
			Message: "Skipped",
		}
		if s.showProgress {
			s.printStep(step)
		}
	}
	steps = append(steps, step)

	result := s.buildResult(steps, startTime)

	// Summary
	if s.showProgress {
		s.printSummary(result)
	}

	return result
}

// ValidateQuick runs only essential configuration checks with no side
// effects (no port binding, no directory creation beyond writability
// probes). Useful for quick startup validation.
func (s *ValidationSuite) ValidateQuick() SuiteResult {
	startTime := time.Now()
	steps := make([]ValidationStep, 0, 5)

	if s.showProgress {
		s.printHeader("Quick Configuration Check")
	}

	checks := []struct {
		name string
		fn   func() ValidationResult
	}{
		{"Environment File", s.configValidator.CheckEnvFile},
		{"Listen Address", s.configValidator.CheckListenAddr},
		{"Base Model Artifact", s.configValidator.CheckModelArtifact},
		{"Style Adapters", s.configValidator.CheckAdapterArtifacts},
	}

	for _, check := range checks {
		step := s.runStep(check.name, func() (bool, string, error) {
			result := check.fn()
			return result.Valid, result.Message, result.Error
		})
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			break
		}
	}

	result := s.buildResult(steps, startTime)

	if s.showProgress {
		s.printSummary(result)
	}

	return result
}

// runStep executes a validation step with timing and progress output.
func (s *ValidationSuite) runStep(name string, fn func() (bool, string, error)) ValidationStep {
	step := ValidationStep{Name: name, Status: StepRunning}

	if s.showProgress {
		s.printStepStart(name)
	}

	startTime := time.Now()
	passed, message, err := fn()
	step.Latency = time.Since(startTime)
	step.Message = message
	step.Error = err

	if passed {
		step.Status = StepPassed
	} else {
		step.Status = StepFailed
	}

	if s.showProgress {
		s.printStep(step)
	}

	return step
}

// buildResult creates a SuiteResult from completed steps.
func (s *ValidationSuite) buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}

	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}

	return result
}

// printHeader prints a validation header.
func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	headerColor := color.New(color.FgCyan, color.Bold)
	headerColor.Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

// printStepStart prints the step name before execution (for real-time feedback).
func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

// printStep prints a completed validation step with status indicator.
func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepFailed:
		icon = "✗"
		clr = color.New(color.FgRed)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	case StepSkipped:
		icon = "○"
		clr = color.New(color.FgHiBlack)
	default:
		icon = "?"
		clr = color.New(color.FgWhite)
	}

	// Clear the "running" line and print result
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)

	// Add message if present
	if step.Message != "" {
		dim := color.New(color.FgHiBlack)
		dim.Fprintf(s.output, " - %s", step.Message)
	}

	fmt.Fprintln(s.output)

	// Print error details for failed steps
	if step.Status == StepFailed && step.Error != nil {
		errColor := color.New(color.FgRed)
		errColor.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

// printSummary prints the validation summary.
func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Validation Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed in %v)",
			result.PassedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond))
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Validation Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}

// GetErrors returns all errors from failed steps.
func (r SuiteResult) GetErrors() []error {
	errors := make([]error, 0)
	for _, step := range r.Steps {
		if step.Error != nil {
			errors = append(errors, step.Error)
		}
	}
	return errors
}

// GetFirstError returns the first error from failed steps, or nil if all passed.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a human-readable summary string.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Validation %s: ", map[bool]string{true: "Passed", false: "Failed"}[r.Success]))
	sb.WriteString(fmt.Sprintf("%d/%d checks passed", r.PassedSteps, r.TotalSteps))
	if r.FailedSteps > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", r.FailedSteps))
	}
	if r.Warnings > 0 {
		sb.WriteString(fmt.Sprintf(", %d warnings", r.Warnings))
	}
	sb.WriteString(fmt.Sprintf(" (took %v)", r.Duration.Round(time.Millisecond)))
	return sb.String()
}
