package pipeline

import (
	"context"
	"sync/atomic"
	"time"
)

// Sink receives consumed samples. Consume is called from the consumer
// goroutine only.
type Sink interface {
	Consume(v float32)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(v float32)

// Consume calls f(v).
func (f SinkFunc) Consume(v float32) { f(v) }

// MultiSink fans each sample out to every sink in order.
type MultiSink []Sink

// Consume delivers v to each sink.
func (m MultiSink) Consume(v float32) {
	for _, s := range m {
		s.Consume(v)
	}
}

// ConsumerStats counts consumer activity.
type ConsumerStats struct {
	Consumed  int64 `json:"consumed"`
	IdleTicks int64 `json:"idle_ticks"`
}

// Consumer drains the last stream on a fixed tick, the way a display loop
// polls its buffer.
type Consumer struct {
	from  Reader
	sink  Sink
	tick  time.Duration
	batch int

	consumed atomic.Int64
	idle     atomic.Int64
}

// NewConsumer reads up to batch samples from from every tick and hands them
// to sink. A zero tick polls continuously.
func NewConsumer(from Reader, sink Sink, tick time.Duration, batch int) *Consumer {
	if sink == nil {
		sink = SinkFunc(func(float32) {})
	}
	if batch < 1 {
		batch = 1
	}
	return &Consumer{from: from, sink: sink, tick: tick, batch: batch}
}

// Run consumes until ctx is cancelled, or until upstreamDone is closed and
// the stream is empty.
func (c *Consumer) Run(ctx context.Context, upstreamDone <-chan struct{}) error {
	var tick <-chan time.Time
	if c.tick > 0 {
		t := time.NewTicker(c.tick)
		defer t.Stop()
		tick = t.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		if c.step() == 0 {
			if finished(upstreamDone) && c.from.IsEmpty() {
				return nil
			}
			c.idle.Add(1)
			if tick == nil {
				pause(ctx, 0)
			}
		}
	}
}

// step performs one tick worth of reads and returns how many succeeded.
func (c *Consumer) step() int {
	n := 0
	for ; n < c.batch; n++ {
		v, ok := c.from.Read()
		if !ok {
			break
		}
		c.sink.Consume(v)
	}
	c.consumed.Add(int64(n))
	return n
}

// Stats returns the consumer counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed:  c.consumed.Load(),
		IdleTicks: c.idle.Load(),
	}
}
