package webui

import (
	"context"
	"sync"
	"time"

	"eegstream/metrics"
	"eegstream/pipeline"
)

// DefaultFrameInterval is how often consumed samples are pushed to clients.
const DefaultFrameInterval = 40 * time.Millisecond

// maxBatch bounds the pending batch when clients fall behind.
const maxBatch = 4096

// SampleFeed is a pipeline.Sink that collects consumed samples and pushes
// them to the broadcaster once per frame.
type SampleFeed struct {
	broadcaster *Broadcaster
	interval    time.Duration

	mu      sync.Mutex
	pending []float32
	next    int64 // stream index of pending[0]
	skipped int64
}

// NewSampleFeed creates a feed. A non-positive interval uses
// DefaultFrameInterval.
func NewSampleFeed(b *Broadcaster, interval time.Duration) *SampleFeed {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &SampleFeed{broadcaster: b, interval: interval}
}

// Consume queues v for the next frame. When more than one frame's worth
// backs up, the oldest pending samples are skipped.
func (f *SampleFeed) Consume(v float32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == maxBatch {
		n := copy(f.pending, f.pending[1:])
		f.pending = f.pending[:n]
		f.next++
		f.skipped++
	}
	f.pending = append(f.pending, v)
}

// Skipped returns the number of samples never sent because a batch overflowed.
func (f *SampleFeed) Skipped() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.skipped
}

// Flush broadcasts the pending batch, if any.
func (f *SampleFeed) Flush() {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return
	}
	batch := f.pending
	first := f.next
	f.next += int64(len(batch))
	f.pending = make([]float32, 0, len(batch))
	f.mu.Unlock()

	f.broadcaster.BroadcastMessage(NewSamplesMessage(first, batch))
}

// Run flushes once per frame until ctx is cancelled.
func (f *SampleFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.Flush()
			return
		case <-ticker.C:
			f.Flush()
		}
	}
}

// StatsPublisher returns a metrics collector callback that broadcasts the
// store's status after every snapshot.
func StatsPublisher(b *Broadcaster, store *metrics.Store) func(pipeline.Snapshot) {
	return func(pipeline.Snapshot) {
		b.BroadcastMessage(NewStatsMessage(store.Status()))
	}
}
