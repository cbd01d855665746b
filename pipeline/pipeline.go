// Package pipeline chains bounded streams into producer → relays → consumer
// and runs every loop under one errgroup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eegstream/logging"
	"eegstream/ringbuffer"
	"eegstream/source"
)

// StageSpec describes one stream. Transform is applied to samples entering
// the stage; nil means identity.
type StageSpec struct {
	Name      string
	Capacity  int
	Transform Transform
}

// Options tune a Pipeline. The zero value is usable.
type Options struct {
	// StreamOptions are applied to every stream after its name.
	StreamOptions []ringbuffer.Option
	Logger        *zap.Logger
	// RelayIdle is the relay back-off when a step makes no progress.
	RelayIdle time.Duration
	// ConsumerTick and ConsumerBatch pace the final reader.
	ConsumerTick  time.Duration
	ConsumerBatch int
	// Drain lets relays and the consumer empty the chain once the producer
	// returns, after which Run returns.
	Drain bool
}

// Producer feeds the first stage. *source.Producer satisfies it.
type Producer interface {
	Run(ctx context.Context) error
	Stats() source.ProducerStats
}

// Snapshot is a point-in-time view of a pipeline.
type Snapshot struct {
	SessionID string                  `json:"session_id"`
	Time      time.Time               `json:"time"`
	Running   bool                    `json:"running"`
	Stages    []ringbuffer.Statistics `json:"stages"`
	Relays    []RelayStats            `json:"relays"`
	Producer  source.ProducerStats    `json:"producer"`
	Consumer  ConsumerStats           `json:"consumer"`
}

// Pipeline owns a chain of streams.
type Pipeline struct {
	id      uuid.UUID
	specs   []StageSpec
	streams []*ringbuffer.BoundedStream
	opts    Options
	logger  *zap.Logger

	relays  []*Relay
	running atomic.Bool

	mu       sync.RWMutex
	started  time.Time
	consumer *Consumer
	producer Producer
}

var (
	// ErrNoStages is returned by New for an empty stage list.
	ErrNoStages = errors.New("pipeline: no stages")
	// ErrRunning is returned by Run when the pipeline is already running.
	ErrRunning = errors.New("pipeline: already running")
)

// New creates one stream per StageSpec. If any stream fails to build, the ones
// already created are destroyed and the construction error is returned.
func New(specs []StageSpec, opts Options) (*Pipeline, error) {
	if len(specs) == 0 {
		return nil, ErrNoStages
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		id:     uuid.New(),
		specs:  append([]StageSpec(nil), specs...),
		opts:   opts,
		logger: logger,
	}
	p.logger = logger.With(zap.String("session", p.id.String()))

	for i := range p.specs {
		spec := &p.specs[i]
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("stage-%d", i+1)
		}
		streamOpts := append([]ringbuffer.Option{
			ringbuffer.WithName(spec.Name),
			ringbuffer.WithLogger(logger),
		}, opts.StreamOptions...)
		s, err := ringbuffer.New(spec.Capacity, streamOpts...)
		if err != nil {
			p.Destroy()
			return nil, err
		}
		p.streams = append(p.streams, s)
	}

	for i := 1; i < len(p.streams); i++ {
		r := NewRelay(p.streams[i-1], p.streams[i], p.specs[i].Transform, opts.RelayIdle)
		p.relays = append(p.relays, r.named(p.specs[i-1].Name, p.specs[i].Name))
	}
	return p, nil
}

// SessionID identifies this run.
func (p *Pipeline) SessionID() uuid.UUID { return p.id }

// Started returns when Run began, or the zero time.
func (p *Pipeline) Started() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// Stages returns the stage specs with default names filled in.
func (p *Pipeline) Stages() []StageSpec { return p.specs }

// Streams returns the streams in chain order.
func (p *Pipeline) Streams() []*ringbuffer.BoundedStream { return p.streams }

// Input is the writer the producer should target: the first stream with
// its stage transform applied.
func (p *Pipeline) Input() source.OverwriteWriter {
	head := p.streams[0]
	if t := p.specs[0].Transform; t != nil {
		return transformWriter{to: head, transform: t}
	}
	return head
}

// Output is the last stream.
func (p *Pipeline) Output() *ringbuffer.BoundedStream {
	return p.streams[len(p.streams)-1]
}

// Run starts producer, relays and consumer and blocks until they all return.
// The first error cancels the rest. Without Drain every loop except the
// producer runs until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, producer Producer, sink Sink) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer p.running.Store(false)

	consumer := NewConsumer(p.Output(), sink, p.opts.ConsumerTick, p.opts.ConsumerBatch)
	started := time.Now()
	p.mu.Lock()
	p.producer, p.consumer, p.started = producer, consumer, started
	p.mu.Unlock()

	p.logger.Info("pipeline started",
		zap.Int("stages", len(p.streams)),
		zap.Bool("drain", p.opts.Drain))

	g, gctx := errgroup.WithContext(ctx)

	producerDone := make(chan struct{})
	g.Go(func() error {
		defer close(producerDone)
		return producer.Run(gctx)
	})

	var upstream <-chan struct{} = producerDone
	for _, r := range p.relays {
		done := make(chan struct{})
		in := p.upstream(upstream)
		g.Go(func() error {
			defer close(done)
			return r.Run(gctx, in)
		})
		upstream = done
	}

	in := p.upstream(upstream)
	g.Go(func() error {
		return consumer.Run(gctx, in)
	})

	err := g.Wait()
	snap := p.Snapshot()
	fields := append(logging.ThroughputFields(started, time.Now(), snap.Consumer.Consumed),
		zap.Int64("produced", snap.Producer.Produced),
		zap.Int64("dropped", snap.Producer.Dropped),
		logging.StageFields(snap.Stages))
	p.logger.Info("pipeline stopped", fields...)
	return err
}

// upstream hides completion signals when draining is off.
func (p *Pipeline) upstream(done <-chan struct{}) <-chan struct{} {
	if !p.opts.Drain {
		return nil
	}
	return done
}

// Snapshot collects the current counters of every part.
func (p *Pipeline) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID: p.id.String(),
		Time:      time.Now(),
		Running:   p.Running(),
		Stages:    make([]ringbuffer.Statistics, 0, len(p.streams)),
		Relays:    make([]RelayStats, 0, len(p.relays)),
	}
	for _, s := range p.streams {
		snap.Stages = append(snap.Stages, s.Stats())
	}
	for _, r := range p.relays {
		snap.Relays = append(snap.Relays, r.Stats())
	}
	p.mu.RLock()
	producer, consumer := p.producer, p.consumer
	p.mu.RUnlock()
	if producer != nil {
		snap.Producer = producer.Stats()
	}
	if consumer != nil {
		snap.Consumer = consumer.Stats()
	}
	return snap
}

// Running reports whether Run is in progress.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Destroy destroys every stream. It is idempotent and must not race with
// Run.
func (p *Pipeline) Destroy() {
	if p == nil {
		return
	}
	for _, s := range p.streams {
		s.Destroy()
	}
}

type transformWriter struct {
	to        *ringbuffer.BoundedStream
	transform Transform
}

func (w transformWriter) Write(v float32) bool {
	return w.to.Write(w.transform(v))
}

func (w transformWriter) WriteOverwrite(v float32) bool {
	return w.to.WriteOverwrite(w.transform(v))
}
