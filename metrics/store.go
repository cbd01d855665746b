package metrics

import (
	"sync"
	"time"

	"eegstream/pipeline"
	"eegstream/ringbuffer"
)

// Store is an in-memory history of pipeline snapshots. It keeps a fixed
// number of StageSamples per stream and derives health from the most recent
// interval.
//
// Usage:
//
//	store := NewStore(DefaultStoreConfig())
//	store.Record(p.Snapshot())
//	status := store.Status()
type Store struct {
	mu sync.RWMutex

	history map[string]*sampleRing
	order   []string

	previous   *pipeline.Snapshot
	latest     pipeline.Snapshot
	hasLatest  bool
	degraded   bool
	historyCap int

	dropThreshold float64
	startTime     time.Time
	version       string
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// HistorySize is the number of samples kept per stream (720 = 1 hour at 5s intervals)
	HistorySize int
	// DropThreshold is the interval drop rate above which the pipeline is degraded
	DropThreshold float64
	// Version is reported in PipelineStatus
	Version string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		HistorySize:   720,
		DropThreshold: 0.01,
		Version:       "0.0.0",
	}
}

// NewStore creates an empty store.
func NewStore(config StoreConfig) *Store {
	if config.HistorySize < 1 {
		config.HistorySize = 720
	}
	if config.DropThreshold <= 0 {
		config.DropThreshold = 0.01
	}
	return &Store{
		history:       make(map[string]*sampleRing),
		historyCap:    config.HistorySize,
		dropThreshold: config.DropThreshold,
		startTime:     time.Now(),
		version:       config.Version,
	}
}

// Record adds a snapshot. Rates are computed against the previous snapshot
// of the same session; the first snapshot of a session only records levels.
func (s *Store) Record(snap pipeline.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev map[string]ringbuffer.Statistics
	var elapsed time.Duration
	if s.previous != nil && s.previous.SessionID == snap.SessionID {
		prev = make(map[string]ringbuffer.Statistics, len(s.previous.Stages))
		for _, st := range s.previous.Stages {
			prev[st.Name] = st
		}
		elapsed = snap.Time.Sub(s.previous.Time)
	}

	degraded := false
	for _, st := range snap.Stages {
		sample := deriveSample(snap.Time, st, prev[st.Name], prev != nil, elapsed)
		if sample.DropRate > s.dropThreshold || sample.LockTimeouts > 0 {
			degraded = true
		}
		ring, ok := s.history[st.Name]
		if !ok {
			ring = newSampleRing(s.historyCap)
			s.history[st.Name] = ring
			s.order = append(s.order, st.Name)
		}
		ring.push(sample)
	}

	cp := snap
	s.previous = &cp
	s.latest = snap
	s.hasLatest = true
	s.degraded = degraded
}

func deriveSample(at time.Time, cur, prev ringbuffer.Statistics, hasPrev bool, elapsed time.Duration) StageSample {
	sample := StageSample{
		Time:        at,
		Length:      cur.Length,
		Utilization: cur.Utilization(),
	}
	if !hasPrev {
		return sample
	}

	writes := cur.Writes - prev.Writes
	rejected := cur.Rejected - prev.Rejected
	if secs := elapsed.Seconds(); secs > 0 {
		sample.WriteRate = float64(writes) / secs
		sample.ReadRate = float64(cur.Reads-prev.Reads) / secs
	}
	if attempts := writes + rejected; attempts > 0 {
		sample.DropRate = float64(rejected) / float64(attempts)
	}
	sample.Overwritten = cur.Overwritten - prev.Overwritten
	sample.LockTimeouts = cur.LockTimeouts - prev.LockTimeouts
	return sample
}

// History returns up to limit samples for stage, oldest first.
func (s *Store) History(stage string, limit int) []StageSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.history[stage]
	if !ok {
		return []StageSample{}
	}
	return ring.last(limit)
}

// StageNames returns the stages seen so far in pipeline order.
func (s *Store) StageNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Latest returns the most recent snapshot and whether one was recorded.
func (s *Store) Latest() (pipeline.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasLatest
}

// Status summarizes the latest snapshot.
func (s *Store) Status() PipelineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := PipelineStatus{
		Health:    HealthStopped,
		Version:   s.version,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
		Stages:    []StageStatus{},
	}
	if !s.hasLatest {
		return status
	}

	snap := s.latest
	status.SessionID = snap.SessionID
	status.Produced = snap.Producer.Produced
	status.Dropped = snap.Producer.Dropped
	status.Consumed = snap.Consumer.Consumed
	switch {
	case !snap.Running:
		status.Health = HealthStopped
	case s.degraded:
		status.Health = HealthDegraded
	default:
		status.Health = HealthRunning
	}

	for _, st := range snap.Stages {
		ss := StageStatus{Name: st.Name, Capacity: st.Capacity, HighWater: st.HighWater}
		if ring, ok := s.history[st.Name]; ok {
			if last := ring.last(1); len(last) == 1 {
				ss.Latest = last[0]
			}
		}
		status.Stages = append(status.Stages, ss)
	}
	return status
}

// sampleRing is a fixed-size history. Oldest entries are overwritten.
type sampleRing struct {
	buf  []StageSample
	head int
	size int
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{buf: make([]StageSample, capacity)}
}

func (r *sampleRing) push(s StageSample) {
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *sampleRing) last(limit int) []StageSample {
	if limit <= 0 || r.size == 0 {
		return []StageSample{}
	}
	if limit > r.size {
		limit = r.size
	}
	out := make([]StageSample, limit)
	for i := 0; i < limit; i++ {
		idx := (r.head - limit + i + len(r.buf)) % len(r.buf)
		out[i] = r.buf[idx]
	}
	return out
}
