package validation

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"eegstream/core"
)

func testConfig(t *testing.T) *core.Config {
	t.Helper()
	dir := t.TempDir()
	return &core.Config{
		Stages:        core.DefaultStages(2, 1000),
		Source:        core.SourceSine,
		SampleRate:    5000,
		RecordEnabled: true,
		DatabasePath:  filepath.Join(dir, "data", "eeg.db"),
		LogFile:       filepath.Join(dir, "logs", "eeg.log"),
		WebEnabled:    true,
		WebAddr:       "127.0.0.1:8090",
	}
}

func TestValidationSuite_AllPass(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("SOURCE=sine\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	result := NewValidationSuite().WithOutput(&out).WithEnvPath(envPath).Validate(testConfig(t))

	if !result.Success {
		t.Fatalf("Validate() failed: %s\n%s", result.Summary(), out.String())
	}
	if result.TotalSteps != 6 {
		t.Errorf("TotalSteps = %d, want 6", result.TotalSteps)
	}
	if !strings.Contains(out.String(), "Acquisition Preflight") {
		t.Errorf("output missing header: %s", out.String())
	}
	if !strings.Contains(out.String(), "Preflight Passed") {
		t.Errorf("output missing summary: %s", out.String())
	}
}

func TestValidationSuite_MissingEnvIsWarning(t *testing.T) {
	result := NewValidationSuite().
		WithShowProgress(false).
		WithEnvPath(filepath.Join(t.TempDir(), "absent.env")).
		Validate(testConfig(t))

	if result.Steps[0].Status != StepWarning {
		t.Errorf("env step status = %v, want warning", result.Steps[0].Status)
	}
	if !result.Success {
		t.Errorf("warnings must not fail the suite: %s", result.Summary())
	}
	if result.Warnings < 1 {
		t.Errorf("Warnings = %d, want >= 1", result.Warnings)
	}
}

func TestValidationSuite_SkipsDisabledParts(t *testing.T) {
	cfg := testConfig(t)
	cfg.RecordEnabled = false
	cfg.WebEnabled = false
	cfg.LogFile = ""

	result := NewValidationSuite().WithShowProgress(false).Validate(cfg)
	skipped := 0
	for _, step := range result.Steps {
		if step.Status == StepSkipped {
			skipped++
		}
	}
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}
}

func TestValidationSuite_FailFast(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source = core.SourceSerial
	cfg.SerialDevice = filepath.Join(t.TempDir(), "ttyACM9")

	result := NewValidationSuite().WithShowProgress(false).WithFailFast(true).Validate(cfg)
	if result.Success {
		t.Fatal("Validate() succeeded with a missing serial device")
	}
	if len(result.Steps) != 3 {
		t.Errorf("steps run = %d, want 3 (stop at source)", len(result.Steps))
	}
	if core.GetErrorCode(result.GetFirstError()) != core.ErrCodeSerialDeviceMissing {
		t.Errorf("first error = %v", result.GetFirstError())
	}
}

func TestValidationSuite_RunCustomChecks(t *testing.T) {
	var out bytes.Buffer
	boom := errors.New("boom")
	result := NewValidationSuite().WithOutput(&out).Run("Custom", []Check{
		{"ok", func() (StepStatus, string, error) { return StepPassed, "fine", nil }},
		{"err", func() (StepStatus, string, error) { return StepPassed, "", boom }},
	})

	if result.PassedSteps != 1 || result.FailedSteps != 1 {
		t.Errorf("passed/failed = %d/%d, want 1/1", result.PassedSteps, result.FailedSteps)
	}
	if len(result.GetErrors()) != 1 {
		t.Errorf("GetErrors() len = %d, want 1", len(result.GetErrors()))
	}
	if !strings.Contains(out.String(), "└─ boom") {
		t.Errorf("output missing error detail: %s", out.String())
	}
	if !strings.Contains(result.Summary(), "1 failed") {
		t.Errorf("Summary() = %q", result.Summary())
	}
}

func TestStepStatus_String(t *testing.T) {
	names := map[StepStatus]string{
		StepPending: "pending", StepRunning: "running", StepPassed: "passed",
		StepFailed: "failed", StepWarning: "warning", StepSkipped: "skipped",
		StepStatus(42): "unknown",
	}
	for status, want := range names {
		if got := status.String(); got != want {
			t.Errorf("StepStatus(%d).String() = %q, want %q", status, got, want)
		}
	}
}
