package shutdown

import (
	"os"
	"sync"
	"syscall"

	"eegstream/core"
)

// SignalCounter counts termination signals and calls onForce once the
// count reaches forceAfter.
type SignalCounter struct {
	mu         sync.Mutex
	count      int
	first      os.Signal
	forceAfter int
	onForce    func()
}

// NewSignalCounter returns a counter that forces after forceAfter signals.
func NewSignalCounter(forceAfter int, onForce func()) *SignalCounter {
	return &SignalCounter{forceAfter: forceAfter, onForce: onForce}
}

// Observe records sig and returns the new count.
func (s *SignalCounter) Observe(sig os.Signal) int {
	s.mu.Lock()
	s.count++
	if s.first == nil {
		s.first = sig
	}
	count, force := s.count, s.onForce
	s.mu.Unlock()

	if count >= s.forceAfter && force != nil {
		force()
	}
	return count
}

// Count returns the number of signals observed.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// First returns the first signal observed, or nil.
func (s *SignalCounter) First() os.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.first
}

// ExitCodeForSignal maps SIGINT and SIGTERM to their conventional exit
// codes; anything else is a plain error exit.
func ExitCodeForSignal(sig os.Signal) int {
	switch sig {
	case nil:
		return core.ExitCodeSuccess
	case os.Interrupt:
		return core.ExitCodeSIGINT
	case syscall.SIGTERM:
		return core.ExitCodeSIGTERM
	default:
		return core.ExitCodeError
	}
}
