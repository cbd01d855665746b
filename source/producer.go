package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Writer accepts samples. *ringbuffer.BoundedStream satisfies it.
type Writer interface {
	Write(v float32) bool
}

// OverwriteWriter can make room by evicting its oldest sample.
type OverwriteWriter interface {
	Writer
	WriteOverwrite(v float32) bool
}

// Policy decides what happens to a sample the Writer rejects.
type Policy int

const (
	// PolicyDrop discards the sample and moves on.
	PolicyDrop Policy = iota
	// PolicyRetry waits RetryDelay, tries once more, then discards.
	PolicyRetry
	// PolicyOverwrite evicts the oldest buffered sample to keep the newest.
	// It needs an OverwriteWriter and falls back to PolicyDrop otherwise.
	PolicyOverwrite
)

func (p Policy) String() string {
	switch p {
	case PolicyDrop:
		return "drop"
	case PolicyRetry:
		return "retry"
	case PolicyOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps "drop", "retry" and "overwrite" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "drop":
		return PolicyDrop, nil
	case "overwrite":
		return PolicyOverwrite, nil
	case "retry", "":
		return PolicyRetry, nil
	}
	return PolicyDrop, fmt.Errorf("unknown write policy %q", s)
}

// dropReportEvery controls how often sustained drops are logged.
const dropReportEvery = 1000

// ProducerConfig configures a Producer.
type ProducerConfig struct {
	// Rate is samples per second. Zero or negative runs unpaced.
	Rate       float64
	Policy     Policy
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// ProducerStats is a snapshot of producer counters.
type ProducerStats struct {
	Produced int64 `json:"produced"`
	Dropped  int64 `json:"dropped"`
	Retried  int64 `json:"retried"`
}

// Producer moves samples from a Source into a Writer at a paced rate.
type Producer struct {
	src     Source
	dst     Writer
	limiter *rate.Limiter
	policy  Policy
	delay   time.Duration
	logger  *zap.Logger

	produced atomic.Int64
	dropped  atomic.Int64
	retried  atomic.Int64

	closeOnce sync.Once
}

// NewProducer builds a producer. It does not start it.
func NewProducer(src Source, dst Writer, cfg ProducerConfig) *Producer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		src:     src,
		dst:     dst,
		limiter: newLimiter(cfg.Rate),
		policy:  cfg.Policy,
		delay:   cfg.RetryDelay,
		logger:  logger,
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	// Allow up to a millisecond of catch-up so timer slack does not lower
	// the average rate.
	burst := int(math.Max(1, perSecond/1000))
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Run produces until ctx is cancelled or the source is exhausted, both of
// which return nil. Run owns the source: if it implements io.Closer it is
// closed on return, and on cancellation to unblock a pending read.
func (p *Producer) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, p.closeSource)
	defer func() {
		stop()
		p.closeSource()
	}()

	p.logger.Info("producer started",
		zap.Float64("rate", float64(p.limiter.Limit())),
		zap.Stringer("policy", p.policy))
	defer func() {
		s := p.Stats()
		p.logger.Info("producer stopped",
			zap.Int64("produced", s.Produced),
			zap.Int64("dropped", s.Dropped),
			zap.Int64("retried", s.Retried))
	}()

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil
		}
		v, err := p.src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Info("source exhausted")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("producer: %w", err)
		}
		p.deliver(ctx, v)
	}
}

func (p *Producer) deliver(ctx context.Context, v float32) {
	if p.policy == PolicyOverwrite {
		if ow, ok := p.dst.(OverwriteWriter); ok {
			if ow.WriteOverwrite(v) {
				p.produced.Add(1)
				return
			}
			p.drop()
			return
		}
	}
	if p.dst.Write(v) {
		p.produced.Add(1)
		return
	}
	if p.policy == PolicyRetry {
		p.retried.Add(1)
		if sleepCtx(ctx, p.delay) && p.dst.Write(v) {
			p.produced.Add(1)
			return
		}
	}
	p.drop()
}

func (p *Producer) drop() {
	if n := p.dropped.Add(1); n == 1 || n%dropReportEvery == 0 {
		p.logger.Warn("producer dropping samples", zap.Int64("dropped", n))
	}
}

func (p *Producer) closeSource() {
	p.closeOnce.Do(func() {
		if c, ok := p.src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				p.logger.Debug("close source", zap.Error(err))
			}
		}
	})
}

// Stats returns the current counters.
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		Produced: p.produced.Load(),
		Dropped:  p.dropped.Load(),
		Retried:  p.retried.Load(),
	}
}

// sleepCtx sleeps for d. It returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
