package core

import (
	"errors"
	"fmt"
)

// ConfigError is a configuration problem together with the action that
// fixes it.
type ConfigError struct {
	Code    string
	Message string
	Action  string
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes.
const (
	ErrCodeEnvFileMissing      = "ENV_FILE_MISSING"
	ErrCodeInvalidValue        = "INVALID_VALUE"
	ErrCodeInvalidCapacity     = "INVALID_CAPACITY"
	ErrCodeInvalidSource       = "INVALID_SOURCE"
	ErrCodeDatasetMissing      = "DATASET_MISSING"
	ErrCodeSerialDeviceMissing = "SERIAL_DEVICE_MISSING"
	ErrCodePipelineFile        = "PIPELINE_FILE"
)

// ErrEnvFileMissing reports a missing .env file.
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Copy example.env to .env or export the variables directly",
	}
}

// ErrInvalidValue reports an environment variable that failed to parse.
func ErrInvalidValue(name, value, expected string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid value %q for %s", value, name),
		Action:  fmt.Sprintf("Set %s to %s", name, expected),
	}
}

// ErrInvalidCapacityConfig reports a non-positive stream capacity.
func ErrInvalidCapacityConfig(stage string, capacity int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidCapacity,
		Message: fmt.Sprintf("Stage %q has invalid capacity %d", stage, capacity),
		Action:  "Set STREAM_CAPACITY (or the stage capacity in PIPELINE_FILE) to a positive integer",
	}
}

// ErrInvalidSource reports an unknown SOURCE.
func ErrInvalidSource(kind string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidSource,
		Message: fmt.Sprintf("Unknown sample source %q", kind),
		Action:  "Set SOURCE to one of: sine, csv, serial",
	}
}

// ErrDatasetMissing reports an unreadable CSV dataset.
func ErrDatasetMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeDatasetMissing,
		Message: fmt.Sprintf("Dataset not readable: %s", path),
		Action:  "Set DATASET_PATH to an existing CSV recording",
	}
}

// ErrSerialDeviceMissing reports a serial device that does not exist.
func ErrSerialDeviceMissing(device string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeSerialDeviceMissing,
		Message: fmt.Sprintf("Serial device not found: %s", device),
		Action:  "Connect the acquisition board or set SERIAL_DEVICE to its device path",
	}
}

// ErrPipelineFile reports an unreadable or malformed pipeline file.
func ErrPipelineFile(path string, err error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodePipelineFile,
		Message: fmt.Sprintf("Cannot load pipeline file %s: %v", path, err),
		Action:  "Fix PIPELINE_FILE or unset it to use STAGE_COUNT",
	}
}

// IsConfigError returns the ConfigError in err's chain, if any.
func IsConfigError(err error) (*ConfigError, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// GetErrorCode returns the ConfigError code in err's chain, or "".
func GetErrorCode(err error) string {
	if ce, ok := IsConfigError(err); ok {
		return ce.Code
	}
	return ""
}
