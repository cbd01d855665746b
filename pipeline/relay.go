package pipeline

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// Reader is the consuming side of a stream.
type Reader interface {
	Read() (float32, bool)
	IsEmpty() bool
}

// Writer is the producing side of a stream.
type Writer interface {
	Write(v float32) bool
}

// RelayStats counts relay activity.
type RelayStats struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Moved   int64  `json:"moved"`
	Blocked int64  `json:"blocked"`
}

// Relay moves samples from one stream to the next. It holds at most one
// sample between the two and never takes both stream locks at once. A
// sample the downstream stream rejects is kept and retried, so nothing is
// lost between stages.
type Relay struct {
	from      Reader
	to        Writer
	transform Transform
	idle      time.Duration
	fromName  string
	toName    string

	moved   atomic.Int64
	blocked atomic.Int64
}

// NewRelay connects from to to. idle is the pause after a step that made no
// progress; zero yields the processor instead of sleeping.
func NewRelay(from Reader, to Writer, transform Transform, idle time.Duration) *Relay {
	if transform == nil {
		transform = Identity
	}
	return &Relay{from: from, to: to, transform: transform, idle: idle}
}

func (r *Relay) named(from, to string) *Relay {
	r.fromName, r.toName = from, to
	return r
}

// Run relays until ctx is cancelled. If upstreamDone is non-nil, Run also
// returns once it is closed and the upstream stream has been emptied.
func (r *Relay) Run(ctx context.Context, upstreamDone <-chan struct{}) error {
	var (
		pending    float32
		hasPending bool
	)
	for {
		if ctx.Err() != nil {
			return nil
		}

		if !hasPending {
			v, ok := r.from.Read()
			if !ok {
				if finished(upstreamDone) && r.from.IsEmpty() {
					return nil
				}
				pause(ctx, r.idle)
				continue
			}
			pending, hasPending = r.transform(v), true
		}

		if r.to.Write(pending) {
			hasPending = false
			r.moved.Add(1)
			continue
		}
		r.blocked.Add(1)
		pause(ctx, r.idle)
	}
}

// Stats returns the relay counters.
func (r *Relay) Stats() RelayStats {
	return RelayStats{
		From:    r.fromName,
		To:      r.toName,
		Moved:   r.moved.Load(),
		Blocked: r.blocked.Load(),
	}
}

func finished(done <-chan struct{}) bool {
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		runtime.Gosched()
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
