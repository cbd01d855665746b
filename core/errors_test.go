package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConfigError_Error(t *testing.T) {
	err := ErrSerialDeviceMissing("/dev/ttyACM0")
	msg := err.Error()
	if !strings.Contains(msg, "/dev/ttyACM0") || !strings.Contains(msg, "SERIAL_DEVICE") {
		t.Errorf("Error() = %q, want device path and action", msg)
	}

	bare := &ConfigError{Code: "X", Message: "only message"}
	if bare.Error() != "only message" {
		t.Errorf("Error() without action = %q", bare.Error())
	}
}

func TestIsConfigError_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("startup: %w", ErrInvalidSource("radio"))
	ce, ok := IsConfigError(wrapped)
	if !ok || ce.Code != ErrCodeInvalidSource {
		t.Errorf("IsConfigError() = %v, %v", ce, ok)
	}
	if _, ok := IsConfigError(errors.New("plain")); ok {
		t.Error("IsConfigError(plain) = true")
	}
	if GetErrorCode(nil) != "" {
		t.Error("GetErrorCode(nil) should be empty")
	}
}

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitCodeSuccess},
		{errors.New("db locked"), ExitCodeError},
		{ErrDatasetMissing("x.csv"), ExitCodeConfig},
		{errors.Join(ErrInvalidValue("A", "b", "c")), ExitCodeConfig},
	}
	for _, tt := range tests {
		if got := ExitCodeForError(tt.err); got != tt.want {
			t.Errorf("ExitCodeForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestExitCodeName(t *testing.T) {
	if ExitCodeName(ExitCodeConfig) != "configuration error" {
		t.Errorf("ExitCodeName(78) = %q", ExitCodeName(ExitCodeConfig))
	}
	if ExitCodeName(5) != "unknown" {
		t.Errorf("ExitCodeName(5) = %q", ExitCodeName(5))
	}
	if !IsSignalExit(ExitCodeSIGTERM) || IsSignalExit(ExitCodeError) {
		t.Error("IsSignalExit mismatch")
	}
}

func TestBuildLdflags(t *testing.T) {
	got := BuildLdflags("v1.0.0", "", "abc")
	want := "-X eegstream/core.Version=v1.0.0 -X eegstream/core.GitCommit=abc"
	if got != want {
		t.Errorf("BuildLdflags() = %q, want %q", got, want)
	}
	if BuildLdflags("", "", "") != "" {
		t.Error("BuildLdflags() with no values should be empty")
	}
	if !strings.HasPrefix(GetVersionInfo(), Version+" (built ") {
		t.Errorf("GetVersionInfo() = %q", GetVersionInfo())
	}
}
