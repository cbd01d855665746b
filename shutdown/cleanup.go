package shutdown

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"eegstream/core"
)

// Destroyer is implemented by anything holding stream storage, such as
// *ringbuffer.BoundedStream or *pipeline.Pipeline.
type Destroyer interface {
	Destroy()
}

// DestroyStreams returns a handler that destroys each target. Destroy is
// idempotent, so the handler is safe to run after a pipeline already tore
// itself down.
func DestroyStreams(logger *zap.Logger, targets ...Destroyer) core.ShutdownFunc {
	return func(ctx context.Context) error {
		for _, t := range targets {
			if t == nil {
				continue
			}
			t.Destroy()
		}
		logger.Debug("streams destroyed", zap.Int("count", len(targets)))
		return nil
	}
}

// Closer adapts a Close method (database, web server, recorder).
func Closer(fn func() error) core.ShutdownFunc {
	return func(context.Context) error {
		return fn()
	}
}

// Syncer is implemented by *zap.Logger and *logging.Logger.
type Syncer interface {
	Sync() error
}

// SyncLogger flushes the logger, ignoring the EINVAL/ENOTTY errors returned
// when stdout is a terminal or pipe.
func SyncLogger(s Syncer) core.ShutdownFunc {
	return func(context.Context) error {
		err := s.Sync()
		if err == nil || isConsoleSyncError(err) {
			return nil
		}
		return err
	}
}

func isConsoleSyncError(err error) bool {
	for _, e := range unwrapAll(err) {
		msg := e.Error()
		if !strings.Contains(msg, "invalid argument") && !strings.Contains(msg, "inappropriate ioctl") {
			return false
		}
	}
	return true
}

func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	if inner := errors.Unwrap(err); inner != nil {
		return []error{inner}
	}
	return []error{err}
}
