package core

import (
	"errors"
)

// Process exit codes. Signal exits follow the 128+signal convention and
// configuration failures use EX_CONFIG from sysexits.h.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	ExitCodeConfig  = 78
	ExitCodeSIGINT  = 130
	ExitCodeSIGTERM = 143
)

// ExitCodeName returns a human-readable name for an exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeConfig:
		return "configuration error"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}

// ExitCodeForError maps a startup or run error to an exit code.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ExitCodeConfig
	}
	return ExitCodeError
}

// IsSignalExit reports whether code denotes termination by a signal.
func IsSignalExit(code int) bool {
	return code == ExitCodeSIGINT || code == ExitCodeSIGTERM
}
