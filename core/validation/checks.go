package validation

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"

	"eegstream/core"
	"eegstream/ringbuffer"
)

// FileError describes a path that failed a check.
type FileError struct {
	Path    string
	Message string
}

func (e *FileError) Error() string {
	return e.Message
}

// CheckFileReadable returns nil if path is a regular file that can be opened.
func CheckFileReadable(path string) error {
	if path == "" {
		return &FileError{Path: path, Message: "file path cannot be empty"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileError{Path: path, Message: fmt.Sprintf("file not found: %s", path)}
		}
		return &FileError{Path: path, Message: fmt.Sprintf("error checking file %s: %v", path, err)}
	}
	if info.IsDir() {
		return &FileError{Path: path, Message: fmt.Sprintf("path is a directory, not a file: %s", path)}
	}
	f, err := os.Open(path)
	if err != nil {
		return &FileError{Path: path, Message: fmt.Sprintf("cannot open %s: %v", path, err)}
	}
	return f.Close()
}

// CheckDirWritable creates dir if needed and verifies a file can be written
// in it.
func CheckDirWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &FileError{Path: dir, Message: fmt.Sprintf("cannot create directory %s: %v", dir, err)}
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return &FileError{Path: dir, Message: fmt.Sprintf("directory not writable: %s: %v", dir, err)}
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// CheckListenAddr validates a host:port listen address.
func CheckListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return core.ErrInvalidValue("WEB_ADDR", addr, "host:port, e.g. 127.0.0.1:8090")
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return core.ErrInvalidValue("WEB_ADDR", addr, "a port between 0 and 65535")
	}
	return nil
}

// CheckStages verifies each stage fits under the allocation ceiling and
// reports the total sample memory.
func CheckStages(stages []core.StageConfig) (StepStatus, string, error) {
	var total int
	for _, s := range stages {
		if s.Capacity <= 0 {
			return StepFailed, "", core.ErrInvalidCapacityConfig(s.Name, s.Capacity)
		}
		if s.Capacity > ringbuffer.DefaultMaxCapacity {
			return StepFailed, "", &core.ConfigError{
				Code:    core.ErrCodeInvalidCapacity,
				Message: fmt.Sprintf("Stage %q capacity %d exceeds the allocation limit %d", s.Name, s.Capacity, ringbuffer.DefaultMaxCapacity),
				Action:  "Reduce the stage capacity",
			}
		}
		total += s.Capacity
	}
	return StepPassed, fmt.Sprintf("%d stage(s), %s of sample storage",
		len(stages), humanize.IBytes(uint64(total)*4)), nil
}

// CheckSource verifies the configured sample source is reachable.
func CheckSource(cfg *core.Config) (StepStatus, string, error) {
	switch cfg.Source {
	case core.SourceSine:
		return StepPassed, fmt.Sprintf("synthetic sine at %g Hz", cfg.SampleRate), nil
	case core.SourceCSV:
		if err := CheckFileReadable(cfg.DatasetPath); err != nil {
			return StepFailed, "", core.ErrDatasetMissing(cfg.DatasetPath)
		}
		return StepPassed, fmt.Sprintf("%s column %d", cfg.DatasetPath, cfg.DatasetColumn), nil
	case core.SourceSerial:
		if _, err := os.Stat(cfg.SerialDevice); err != nil {
			return StepFailed, "", core.ErrSerialDeviceMissing(cfg.SerialDevice)
		}
		return StepPassed, cfg.SerialDevice, nil
	default:
		return StepFailed, "", core.ErrInvalidSource(string(cfg.Source))
	}
}

// minRecordingBytes is the free space below which recording warns.
const minRecordingBytes = 64 << 20

// CheckRecordingStorage verifies the database directory is writable and has
// room for at least an hour of samples at rate Hz.
func CheckRecordingStorage(dbPath string, rate float64) (StepStatus, string, error) {
	dir := dirOf(dbPath)
	if err := CheckDirWritable(dir); err != nil {
		return StepFailed, "", err
	}

	required := uint64(rate * 4 * 3600)
	if required < minRecordingBytes {
		required = minRecordingBytes
	}
	info, err := GetDiskSpace(dir)
	if err != nil {
		return StepWarning, "free space unknown", err
	}
	if info.Free < required {
		return StepWarning, fmt.Sprintf("%s free, %s recommended", humanize.IBytes(info.Free), humanize.IBytes(required)), nil
	}
	return StepPassed, fmt.Sprintf("%s (%s free)", dir, humanize.IBytes(info.Free)), nil
}

func dirOf(path string) string {
	dir := filepath.Dir(path)
	if dir == "" {
		return "."
	}
	return dir
}
