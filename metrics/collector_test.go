package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eegstream/pipeline"
	"eegstream/ringbuffer"
)

type fakeProvider struct {
	calls atomic.Int64
}

func (f *fakeProvider) Snapshot() pipeline.Snapshot {
	n := f.calls.Add(1)
	return snapshotAt("s1", time.Now(), true,
		ringbuffer.Statistics{Name: "raw", Capacity: 10, Writes: n * 10})
}

func TestCollector_DefaultInterval(t *testing.T) {
	c := NewCollector(CollectorConfig{}, &fakeProvider{}, nil, nil)
	if c.config.Interval != 5*time.Second {
		t.Errorf("expected 5s interval, got %v", c.config.Interval)
	}
	// Stop before Start is a no-op.
	c.Stop()
}

func TestCollector_CollectOnce(t *testing.T) {
	store := NewStore(DefaultStoreConfig())
	c := NewCollector(DefaultCollectorConfig(), &fakeProvider{}, store, nil)

	var got []pipeline.Snapshot
	c.OnSnapshot(func(s pipeline.Snapshot) { got = append(got, s) })

	c.CollectOnce()
	c.CollectOnce()

	if c.Count() != 2 {
		t.Errorf("expected 2 snapshots, got %d", c.Count())
	}
	if len(got) != 2 {
		t.Fatalf("expected callback twice, got %d", len(got))
	}
	if len(store.History("raw", 10)) != 2 {
		t.Errorf("expected store to hold 2 samples")
	}
}

func TestCollector_StartStop(t *testing.T) {
	provider := &fakeProvider{}
	store := NewStore(DefaultStoreConfig())
	c := NewCollector(CollectorConfig{Interval: 5 * time.Millisecond}, provider, store, nil)

	var mu sync.Mutex
	callbacks := 0
	c.OnSnapshot(func(pipeline.Snapshot) {
		mu.Lock()
		callbacks++
		mu.Unlock()
	})

	c.Start(context.Background())
	time.Sleep(40 * time.Millisecond)
	c.Stop()

	calls := provider.calls.Load()
	// immediate + ticks + final
	if calls < 3 {
		t.Errorf("expected at least 3 snapshots, got %d", calls)
	}
	mu.Lock()
	if int64(callbacks) != calls {
		t.Errorf("expected %d callbacks, got %d", calls, callbacks)
	}
	mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	if provider.calls.Load() != calls {
		t.Error("collector kept running after Stop")
	}
}

func TestCollector_StopsWithContext(t *testing.T) {
	provider := &fakeProvider{}
	c := NewCollector(CollectorConfig{Interval: time.Hour}, provider, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()
	c.Stop()

	// initial and final snapshot
	if got := provider.calls.Load(); got != 2 {
		t.Errorf("expected 2 snapshots, got %d", got)
	}
}
