// Package shutdown owns the run-control context of the process. Acquisition
// loops observe Manager.Context instead of a global "keep running" flag; the
// first SIGINT/SIGTERM (or a call to Trigger) cancels it, and Shutdown then
// waits for tracked work and runs the registered cleanup in priority order.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"eegstream/core"
)

// Manager coordinates signals, tracked goroutines and cleanup.
type Manager struct {
	logger  *zap.Logger
	timeout time.Duration
	signals []os.Signal
	exit    func(int)

	mu       sync.Mutex
	started  bool
	shutdown bool
	cause    error

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *ShutdownRegistry
	counter  *SignalCounter
	sigChan  chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout bounds the whole shutdown sequence. Default 30s.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithSignals replaces the watched signals (SIGINT, SIGTERM).
func WithSignals(sigs ...os.Signal) ManagerOption {
	return func(m *Manager) {
		m.signals = sigs
	}
}

// WithForceExit replaces os.Exit for the forced exit on a second signal.
func WithForceExit(exit func(code int)) ManagerOption {
	return func(m *Manager) {
		if exit != nil {
			m.exit = exit
		}
	}
}

// NewManager returns a Manager whose context is live until the first signal
// or Trigger.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger,
		timeout:  30 * time.Second,
		signals:  []os.Signal{os.Interrupt, syscall.SIGTERM},
		exit:     os.Exit,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewShutdownRegistry(),
		sigChan:  make(chan os.Signal, 2),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.counter = NewSignalCounter(2, func() {
		m.logger.Warn("second signal received, forcing exit")
		m.exit(ExitCodeForSignal(m.counter.First()))
	})
	return m
}

// Context is cancelled when the process should stop acquiring.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup handler; see the Priority constants.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start begins watching for signals. It is safe to call more than once.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, m.signals...)
	go m.watch()
	m.logger.Debug("shutdown manager listening for signals")
}

func (m *Manager) watch() {
	for {
		select {
		case sig := <-m.sigChan:
			if m.counter.Observe(sig) == 1 {
				m.Trigger(fmt.Errorf("received %s", sig))
			}
		case <-m.ctx.Done():
			// Keep counting so a second signal can still force the exit.
			for sig := range m.sigChan {
				m.counter.Observe(sig)
			}
			return
		}
	}
}

// Trigger cancels the run context with a reason. Only the first cause is
// kept.
func (m *Manager) Trigger(cause error) {
	m.mu.Lock()
	if m.cause == nil {
		m.cause = cause
	}
	m.mu.Unlock()

	if m.ctx.Err() == nil {
		m.logger.Info("stopping acquisition", zap.NamedError("reason", cause))
	}
	m.cancel()
}

// Cause returns what cancelled the context, or nil while running.
func (m *Manager) Cause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cause
}

// Go runs fn on a tracked goroutine. A non-cancellation error from fn
// triggers shutdown.
func (m *Manager) Go(name string, fn func(ctx context.Context) error) bool {
	if !m.tracker.Start() {
		m.logger.Debug("operation rejected, shutting down", zap.String("operation", name))
		return false
	}
	go func() {
		defer m.tracker.Done()
		err := fn(m.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("operation failed", zap.String("operation", name), zap.Error(err))
			m.Trigger(fmt.Errorf("%s: %w", name, err))
		}
	}()
	return true
}

// Wait blocks until the run context is cancelled.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// Shutdown cancels the context, waits for tracked goroutines and runs the
// cleanup handlers within the timeout. It runs at most once.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	start := time.Now()
	m.cancel()
	m.tracker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if n := m.tracker.ActiveCount(); n > 0 {
		m.logger.Info("waiting for running operations", zap.Int64("active", n))
	}
	if err := m.tracker.Wait(ctx); err != nil {
		m.logger.Warn("operations still running at shutdown deadline",
			zap.Int64("remaining", m.tracker.ActiveCount()))
	}

	// Cleanup always gets at least a second even if waiting used the budget.
	cleanupCtx := ctx
	if ctx.Err() != nil {
		var cleanupCancel context.CancelFunc
		cleanupCtx, cleanupCancel = context.WithTimeout(context.Background(), time.Second)
		defer cleanupCancel()
	}

	m.logger.Debug("running cleanup", zap.Strings("handlers", m.registry.Names()))
	errs := m.registry.Shutdown(cleanupCtx)
	for _, err := range errs {
		m.logger.Error("cleanup failed", zap.Error(err))
	}

	m.mu.Lock()
	if m.started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}
	m.mu.Unlock()

	m.logger.Info("shutdown complete",
		zap.Duration("duration", time.Since(start)),
		zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}

// ExitCode returns the process exit code implied by how the run ended.
func (m *Manager) ExitCode(runErr error) int {
	if sig := m.counter.First(); sig != nil {
		return ExitCodeForSignal(sig)
	}
	return core.ExitCodeForError(runErr)
}

// ActiveOperations returns the number of tracked goroutines still running.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether Shutdown has started.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// RegisteredHandlers returns cleanup handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
