package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"eegstream/logging"
	"eegstream/pipeline"
)

// SnapshotProvider is anything that can report pipeline counters.
// *pipeline.Pipeline satisfies it.
type SnapshotProvider interface {
	Snapshot() pipeline.Snapshot
}

// CollectorConfig configures the Collector.
type CollectorConfig struct {
	// Interval is how often to take a snapshot
	Interval time.Duration
}

// DefaultCollectorConfig returns a default configuration.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{Interval: 5 * time.Second}
}

// Collector periodically snapshots a pipeline into a Store and hands each
// snapshot to the registered callbacks (recorder, websocket).
type Collector struct {
	config   CollectorConfig
	provider SnapshotProvider
	store    *Store
	logger   *zap.Logger

	mu        sync.RWMutex
	callbacks []func(pipeline.Snapshot)
	count     int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector creates a collector. It does not start polling.
func NewCollector(config CollectorConfig, provider SnapshotProvider, store *Store, logger *zap.Logger) *Collector {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		config:   config,
		provider: provider,
		store:    store,
		logger:   logger,
	}
}

// OnSnapshot registers fn to receive every collected snapshot. Callbacks run
// on the collector goroutine, outside any lock.
func (c *Collector) OnSnapshot(fn func(pipeline.Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// Start begins polling in a background goroutine until ctx is cancelled or
// Stop is called.
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.collectLoop(ctx)
}

// Stop halts polling, takes one final snapshot and waits for the goroutine.
func (c *Collector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
}

// Count returns the number of snapshots taken.
func (c *Collector) Count() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

func (c *Collector) collectLoop(ctx context.Context) {
	defer c.wg.Done()
	defer c.CollectOnce()

	c.CollectOnce()

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CollectOnce()
		}
	}
}

// CollectOnce takes a single snapshot.
func (c *Collector) CollectOnce() {
	snap := c.provider.Snapshot()
	if c.store != nil {
		c.store.Record(snap)
	}

	c.mu.Lock()
	c.count++
	callbacks := append([](func(pipeline.Snapshot))(nil), c.callbacks...)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(snap)
	}
	c.logger.Debug("pipeline snapshot",
		zap.String("session", snap.SessionID),
		zap.Int64("produced", snap.Producer.Produced),
		zap.Int64("consumed", snap.Consumer.Consumed),
		logging.StageFields(snap.Stages))
}
