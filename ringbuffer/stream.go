// Package ringbuffer provides BoundedStream, a fixed-capacity FIFO of float32
// samples shared by a producer and a consumer running at different rates.
//
// Every operation runs inside one acquisition of the stream lock. Locks are
// taken with a bounded try-lock loop (see AcquirePolicy): under pathological
// contention an operation gives up and reports "could not proceed" instead
// of blocking its caller forever. While waiting it logs "waiting for lock"
// at info level every DiagnosticEvery retries, and a warning when it gives up.
//
// Write rejects samples when the stream is full. WriteOverwrite evicts the
// oldest sample instead, so it only fails when the lock cannot be acquired.
// Streams built WithOverwritePolicy(OverwriteReject) keep the older
// behaviour where WriteOverwrite rejects exactly like Write.
package ringbuffer

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BoundedStream is a lock-guarded ring of float32 samples.
//
// head is the next slot to read, tail the next slot to write and count the
// number of valid samples; the valid samples are the count slots starting at
// head, wrapping modulo capacity.
//
// A BoundedStream is safe for one producer and one consumer. Additional
// writers or readers are mutually excluded, but ordering is only kept per
// goroutine.
type BoundedStream struct {
	mu sync.Mutex

	storage   []float32
	head      int
	tail      int
	count     int
	destroyed bool

	// Set by New and never reassigned, so they are read without the lock.
	capacity  int
	name      string
	policy    AcquirePolicy
	overwrite OverwritePolicy
	logger    *zap.Logger
	stats     *statistics
	metrics   *streamMetrics
}

// New allocates a stream holding at most capacity samples.
//
// It returns a *ConstructionError wrapping ErrInvalidCapacity when
// capacity <= 0, and wrapping ErrOutOfMemory when the storage cannot be
// allocated.
func New(capacity int, opts ...Option) (*BoundedStream, error) {
	o := applyOptions(opts...)

	if capacity <= 0 {
		return nil, &ConstructionError{Name: o.name, Capacity: capacity, Err: ErrInvalidCapacity}
	}
	if capacity > o.maxCapacity {
		return nil, &ConstructionError{Name: o.name, Capacity: capacity, Err: ErrOutOfMemory}
	}
	storage, err := allocate(capacity)
	if err != nil {
		return nil, &ConstructionError{Name: o.name, Capacity: capacity, Err: err}
	}

	s := &BoundedStream{
		storage:   storage,
		capacity:  capacity,
		name:      o.name,
		policy:    o.acquire,
		overwrite: o.overwrite,
		logger:    o.logger.With(zap.String("stream", o.name)),
		stats:     newStatistics(),
	}

	if o.registerer != nil {
		m, err := newStreamMetrics(o.registerer, o.namespace, o.name)
		if err != nil {
			s.logger.Warn("stream metrics disabled", zap.Error(err))
		} else {
			s.metrics = m
			m.setLength(0, capacity)
		}
	}

	return s, nil
}

func allocate(capacity int) (storage []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			storage = nil
			err = ErrOutOfMemory
		}
	}()
	return make([]float32, capacity), nil
}

// Write appends v. It returns false, leaving the stream untouched, when the
// stream is full, destroyed, or the lock could not be acquired.
func (s *BoundedStream) Write(v float32) bool {
	if !s.acquire("write") {
		return false
	}
	defer s.mu.Unlock()

	if s.destroyed {
		return false
	}
	if s.count == s.capacity {
		s.stats.rejected.Add(1)
		if s.metrics != nil {
			s.metrics.rejected.Inc()
		}
		return false
	}
	s.push(v)
	return true
}

// WriteOverwrite appends v, evicting the oldest sample when the stream is
// full. It returns false only when the stream is destroyed or the lock could
// not be acquired. Under OverwriteReject it behaves exactly like Write.
func (s *BoundedStream) WriteOverwrite(v float32) bool {
	if s.overwrite == OverwriteReject {
		return s.Write(v)
	}
	if !s.acquire("write_overwrite") {
		return false
	}
	defer s.mu.Unlock()

	if s.destroyed {
		return false
	}
	if s.count == s.capacity {
		s.head = (s.head + 1) % s.capacity
		s.count--
		s.stats.overwritten.Add(1)
		if s.metrics != nil {
			s.metrics.overwritten.Inc()
		}
	}
	s.push(v)
	return true
}

// push stores v at tail. Caller holds the lock and has checked for space.
func (s *BoundedStream) push(v float32) {
	s.storage[s.tail] = v
	s.tail = (s.tail + 1) % s.capacity
	s.count++
	s.stats.writes.Add(1)
	s.stats.setLength(s.count)
	if s.metrics != nil {
		s.metrics.writes.Inc()
		s.metrics.setLength(s.count, s.capacity)
	}
}

// Read removes and returns the oldest sample. ok is false when the stream is
// empty, destroyed, or the lock could not be acquired; none of these is an
// error.
func (s *BoundedStream) Read() (v float32, ok bool) {
	if !s.acquire("read") {
		return 0, false
	}
	defer s.mu.Unlock()

	if s.destroyed {
		return 0, false
	}
	if s.count == 0 {
		s.stats.emptyReads.Add(1)
		if s.metrics != nil {
			s.metrics.emptyReads.Inc()
		}
		return 0, false
	}

	v = s.storage[s.head]
	s.head = (s.head + 1) % s.capacity
	s.count--
	s.stats.reads.Add(1)
	s.stats.setLength(s.count)
	if s.metrics != nil {
		s.metrics.reads.Inc()
		s.metrics.setLength(s.count, s.capacity)
	}
	return v, true
}

// IsEmpty reports whether the stream held no samples at the moment of the
// call. The answer may be stale by the time the caller acts on it. A
// destroyed stream, or one whose lock could not be acquired, reports false.
func (s *BoundedStream) IsEmpty() bool {
	if !s.acquire("is_empty") {
		return false
	}
	defer s.mu.Unlock()
	return !s.destroyed && s.count == 0
}

// IsFull reports whether the stream was at capacity at the moment of the
// call. Same staleness caveat as IsEmpty.
func (s *BoundedStream) IsFull() bool {
	if !s.acquire("is_full") {
		return false
	}
	defer s.mu.Unlock()
	return !s.destroyed && s.count == s.capacity
}

// Len returns the last published sample count without taking the lock.
func (s *BoundedStream) Len() int {
	return int(s.stats.length.Load())
}

// Cap returns the fixed capacity.
func (s *BoundedStream) Cap() int {
	return s.capacity
}

// Name returns the stream label.
func (s *BoundedStream) Name() string {
	return s.name
}

// Stats returns a snapshot of the stream counters.
func (s *BoundedStream) Stats() Statistics {
	return s.stats.snapshot(s.name, s.capacity)
}

// Destroyed reports whether Destroy has run.
func (s *BoundedStream) Destroyed() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Destroy releases the storage and unregisters metrics. It is a no-op on a
// nil or already destroyed stream. Callers must ensure no other goroutine is
// still using the stream.
func (s *BoundedStream) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.destroyed = true
	s.storage = nil
	s.head, s.tail, s.count = 0, 0, 0
	s.stats.setLength(0)
	if s.metrics != nil {
		s.metrics.unregister()
	}
	s.logger.Debug("stream destroyed")
}

// acquire takes the lock with the bounded retry policy. It returns false
// after MaxRetries failed retries; the lock is not held in that case.
func (s *BoundedStream) acquire(op string) bool {
	if s.mu.TryLock() {
		return true
	}

	start := time.Now()
	for retries := 1; retries <= s.policy.MaxRetries; retries++ {
		if s.policy.RetryInterval > 0 {
			time.Sleep(s.policy.RetryInterval)
		} else {
			runtime.Gosched()
		}
		if s.mu.TryLock() {
			return true
		}
		if s.policy.DiagnosticEvery > 0 && retries%s.policy.DiagnosticEvery == 0 {
			s.logger.Info("waiting for lock",
				zap.String("op", op),
				zap.Int("retries", retries))
		}
	}

	s.stats.lockTimeouts.Add(1)
	if s.metrics != nil {
		s.metrics.lockTimeouts.Inc()
	}
	s.logger.Warn("lock acquisition exhausted, possible deadlock",
		zap.String("op", op),
		zap.Int("retries", s.policy.MaxRetries),
		zap.Duration("waited", time.Since(start)))
	return false
}
