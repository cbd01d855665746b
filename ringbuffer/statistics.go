package ringbuffer

import (
	"sync/atomic"
	"time"
)

// statistics are always collected; counters are updated while the stream
// lock is held, but read lock-free through Stats.
type statistics struct {
	writes       atomic.Int64
	rejected     atomic.Int64
	overwritten  atomic.Int64
	reads        atomic.Int64
	emptyReads   atomic.Int64
	lockTimeouts atomic.Int64
	length       atomic.Int64
	highWater    atomic.Int64
	startTime    time.Time
}

func newStatistics() *statistics {
	return &statistics{startTime: time.Now()}
}

func (s *statistics) setLength(n int) {
	v := int64(n)
	s.length.Store(v)
	for {
		hw := s.highWater.Load()
		if v <= hw || s.highWater.CompareAndSwap(hw, v) {
			return
		}
	}
}

// Statistics is a point-in-time snapshot of a stream's counters.
type Statistics struct {
	Name         string        `json:"name"`
	Capacity     int           `json:"capacity"`
	Length       int64         `json:"length"`
	HighWater    int64         `json:"high_water"`
	Writes       int64         `json:"writes"`
	Rejected     int64         `json:"rejected"`
	Overwritten  int64         `json:"overwritten"`
	Reads        int64         `json:"reads"`
	EmptyReads   int64         `json:"empty_reads"`
	LockTimeouts int64         `json:"lock_timeouts"`
	Uptime       time.Duration `json:"uptime"`
}

// Utilization returns Length/Capacity in [0, 1].
func (s Statistics) Utilization() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Length) / float64(s.Capacity)
}

// DropRate returns the share of write attempts rejected because the stream
// was full.
func (s Statistics) DropRate() float64 {
	attempts := s.Writes + s.Rejected
	if attempts == 0 {
		return 0
	}
	return float64(s.Rejected) / float64(attempts)
}

// WriteThroughput returns accepted writes per second since creation.
func (s Statistics) WriteThroughput() float64 {
	if s.Uptime <= 0 {
		return 0
	}
	return float64(s.Writes) / s.Uptime.Seconds()
}

func (s *statistics) snapshot(name string, capacity int) Statistics {
	return Statistics{
		Name:         name,
		Capacity:     capacity,
		Length:       s.length.Load(),
		HighWater:    s.highWater.Load(),
		Writes:       s.writes.Load(),
		Rejected:     s.rejected.Load(),
		Overwritten:  s.overwritten.Load(),
		Reads:        s.reads.Load(),
		EmptyReads:   s.emptyReads.Load(),
		LockTimeouts: s.lockTimeouts.Load(),
		Uptime:       time.Since(s.startTime),
	}
}
