package ringbuffer

import (
	"errors"
	"fmt"
)

// Construction failures. These are the only errors a BoundedStream surfaces;
// full, empty, and lock exhaustion are reported as ordinary negative results.
var (
	ErrInvalidCapacity = errors.New("capacity must be positive")
	ErrOutOfMemory     = errors.New("cannot allocate storage")
)

// ConstructionError wraps a construction failure with the requested capacity.
type ConstructionError struct {
	Name     string
	Capacity int
	Err      error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("ringbuffer: create %q with capacity %d: %v", e.Name, e.Capacity, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// IsConstructionError reports whether err is (or wraps) a ConstructionError.
func IsConstructionError(err error) bool {
	var ce *ConstructionError
	return errors.As(err, &ce)
}
