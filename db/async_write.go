package db

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultChannelCapacity is the default number of queued writes.
const DefaultChannelCapacity = 256

// WriteOperation is a queued write.
type WriteOperation struct {
	Data      any
	Timestamp time.Time
}

// WriteHandler applies one queued write.
type WriteHandler func(ctx context.Context, op WriteOperation) error

// AsyncWriter applies writes on a background goroutine so the consumer loop
// never waits on disk. When the queue is full, writes are refused and
// counted rather than blocking.
type AsyncWriter struct {
	queue   chan WriteOperation
	handler WriteHandler
	logger  *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	refused atomic.Int64
	failed  atomic.Int64
	applied atomic.Int64
}

// AsyncWriterConfig holds configuration for the async writer.
type AsyncWriterConfig struct {
	ChannelCapacity int
	Logger          *zap.Logger
}

// NewAsyncWriter creates a writer. Call Start before queueing.
func NewAsyncWriter(handler WriteHandler, config AsyncWriterConfig) *AsyncWriter {
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = DefaultChannelCapacity
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &AsyncWriter{
		queue:   make(chan WriteOperation, config.ChannelCapacity),
		handler: handler,
		logger:  config.Logger,
		done:    make(chan struct{}),
	}
}

// Start launches the background goroutine. Calling it again is a no-op.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx)
}

func (w *AsyncWriter) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case op := <-w.queue:
			w.apply(context.Background(), op)
		}
	}
}

func (w *AsyncWriter) drain() {
	for {
		select {
		case op := <-w.queue:
			w.apply(context.Background(), op)
		default:
			return
		}
	}
}

func (w *AsyncWriter) apply(ctx context.Context, op WriteOperation) {
	if err := w.handler(ctx, op); err != nil {
		if n := w.failed.Add(1); n == 1 || n%100 == 0 {
			w.logger.Warn("async write failed", zap.Error(err), zap.Int64("failed", n))
		}
		return
	}
	w.applied.Add(1)
}

// Write queues data without blocking. It returns false if the writer is not
// running or its queue is full.
func (w *AsyncWriter) Write(data any) bool {
	// Held across the non-blocking send so Stop cannot miss a write.
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started || w.stopped {
		w.refused.Add(1)
		return false
	}

	select {
	case w.queue <- WriteOperation{Data: data, Timestamp: time.Now()}:
		return true
	default:
		if n := w.refused.Add(1); n == 1 || n%100 == 0 {
			w.logger.Warn("async write queue full", zap.Int64("refused", n))
		}
		return false
	}
}

// Stop drains queued writes and stops the goroutine. It returns ctx.Err()
// if ctx ends before the drain completes.
func (w *AsyncWriter) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started || w.stopped {
		w.stopped = true
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.cancel()
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsStarted reports whether the writer accepts writes.
func (w *AsyncWriter) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started && !w.stopped
}

// Pending returns the number of queued writes.
func (w *AsyncWriter) Pending() int { return len(w.queue) }

// AsyncStats counts writer outcomes.
type AsyncStats struct {
	Applied int64 `json:"applied"`
	Failed  int64 `json:"failed"`
	Refused int64 `json:"refused"`
	Pending int   `json:"pending"`
}

// Stats returns the writer counters.
func (w *AsyncWriter) Stats() AsyncStats {
	return AsyncStats{
		Applied: w.applied.Load(),
		Failed:  w.failed.Load(),
		Refused: w.refused.Load(),
		Pending: w.Pending(),
	}
}
