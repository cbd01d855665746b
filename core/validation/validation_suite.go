// Package validation runs the startup preflight checks and prints their
// progress to the terminal.
package validation

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"eegstream/core"
)

// ValidationStep is the outcome of one check.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus is the state of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

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

// SuiteResult aggregates every step of a run.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// Check is a single named preflight check. Run returns the status to record;
// returning StepSkipped marks a check that does not apply.
type Check struct {
	Name string
	Run  func() (StepStatus, string, error)
}

// ValidationSuite runs the acquisition preflight: environment file, stream
// sizing, sample source, recording storage, log directory and web address.
type ValidationSuite struct {
	output       io.Writer
	envPath      string
	showProgress bool
	failFast     bool
}

// NewValidationSuite returns a suite printing to stdout.
func NewValidationSuite() *ValidationSuite {
	return &ValidationSuite{
		output:       os.Stdout,
		envPath:      ".env",
		showProgress: true,
	}
}

// WithOutput sets the writer used for progress output.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops at the first failed step.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// WithEnvPath sets the .env path checked by the first step.
func (s *ValidationSuite) WithEnvPath(path string) *ValidationSuite {
	s.envPath = path
	return s
}

// Checks returns the preflight checks for cfg in execution order.
func (s *ValidationSuite) Checks(cfg *core.Config) []Check {
	return []Check{
		{"Environment File", func() (StepStatus, string, error) {
			if err := CheckFileReadable(s.envPath); err != nil {
				return StepWarning, "not found, using process environment", nil
			}
			return StepPassed, s.envPath, nil
		}},
		{"Stream Sizing", func() (StepStatus, string, error) {
			return CheckStages(cfg.Stages)
		}},
		{"Sample Source", func() (StepStatus, string, error) {
			return CheckSource(cfg)
		}},
		{"Recording Storage", func() (StepStatus, string, error) {
			if !cfg.RecordEnabled {
				return StepSkipped, "recording disabled", nil
			}
			return CheckRecordingStorage(cfg.DatabasePath, cfg.SampleRate)
		}},
		{"Log Directory", func() (StepStatus, string, error) {
			if cfg.LogFile == "" {
				return StepSkipped, "file logging disabled", nil
			}
			if err := CheckDirWritable(dirOf(cfg.LogFile)); err != nil {
				return StepFailed, "", err
			}
			return StepPassed, dirOf(cfg.LogFile), nil
		}},
		{"Web Address", func() (StepStatus, string, error) {
			if !cfg.WebEnabled {
				return StepSkipped, "web UI disabled", nil
			}
			if err := CheckListenAddr(cfg.WebAddr); err != nil {
				return StepFailed, "", err
			}
			return StepPassed, cfg.WebAddr, nil
		}},
	}
}

// Validate runs the preflight checks for cfg.
func (s *ValidationSuite) Validate(cfg *core.Config) SuiteResult {
	return s.Run("Acquisition Preflight", s.Checks(cfg))
}

// Run executes checks in order with progress output.
func (s *ValidationSuite) Run(title string, checks []Check) SuiteResult {
	startTime := time.Now()
	steps := make([]ValidationStep, 0, len(checks))

	if s.showProgress {
		s.printHeader(title)
	}

	for _, check := range checks {
		step := s.runStep(check.Name, check.Run)
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

func (s *ValidationSuite) runStep(name string, fn func() (StepStatus, string, error)) ValidationStep {
	if s.showProgress {
		fmt.Fprintf(s.output, "  ◌ %s...", name)
	}

	start := time.Now()
	status, message, err := fn()
	step := ValidationStep{
		Name:    name,
		Status:  status,
		Message: message,
		Error:   err,
		Latency: time.Since(start),
	}
	if err != nil && status != StepWarning {
		step.Status = StepFailed
	}

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

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

func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	case StepSkipped:
		icon, clr = "○", color.New(color.FgHiBlack)
	default:
		icon, clr = "?", color.New(color.FgWhite)
	}

	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Error != nil && step.Status != StepPassed {
		color.New(color.FgRed).Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)
	if result.Success {
		c := color.New(color.FgGreen, color.Bold)
		c.Fprintf(s.output, "━━━ Preflight Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed in %v)",
			result.PassedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond))
		c.Fprintln(s.output, " ━━━")
	} else {
		c := color.New(color.FgRed, color.Bold)
		c.Fprintf(s.output, "━━━ Preflight Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		c.Fprintln(s.output, " ━━━")
	}
	fmt.Fprintln(s.output)
}

// GetErrors returns the errors of every failed or warning step.
func (r SuiteResult) GetErrors() []error {
	errs := make([]error, 0)
	for _, step := range r.Steps {
		if step.Error != nil {
			errs = append(errs, step.Error)
		}
	}
	return errs
}

// GetFirstError returns the first step error, or nil.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a one-line description of the result.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Preflight Passed: ")
	} else {
		sb.WriteString("Preflight Failed: ")
	}
	fmt.Fprintf(&sb, "%d/%d checks passed", r.PassedSteps, r.TotalSteps)
	if r.FailedSteps > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.FailedSteps)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	fmt.Fprintf(&sb, " (took %v)", r.Duration.Round(time.Millisecond))
	return sb.String()
}
