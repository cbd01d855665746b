package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var errDiskSpaceUnsupported = errors.New("disk space query not supported on this platform")

// DiskSpaceInfo is the capacity of the filesystem holding Path.
type DiskSpaceInfo struct {
	Path  string
	Total uint64
	Free  uint64
}

// GetDiskSpace reports the filesystem capacity for path, walking up to the
// nearest existing directory.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	for {
		info, err := os.Stat(path)
		if err == nil {
			if !info.IsDir() {
				path = filepath.Dir(path)
			}
			break
		}
		parent := filepath.Dir(path)
		if !os.IsNotExist(err) || parent == path {
			return nil, fmt.Errorf("cannot access path %s: %w", path, err)
		}
		path = parent
	}

	total, free, err := diskSpace(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", path, err)
	}
	return &DiskSpaceInfo{Path: path, Total: total, Free: free}, nil
}
