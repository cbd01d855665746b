package ringbuffer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultMaxCapacity bounds a single allocation (1 GiB of float32 samples).
// Larger requests fail with ErrOutOfMemory instead of aborting the process.
const DefaultMaxCapacity = 1 << 28

// OverwritePolicy selects what WriteOverwrite does when the stream is full.
type OverwritePolicy int

const (
	// OverwriteOldest evicts the oldest sample so the new one always fits.
	OverwriteOldest OverwritePolicy = iota

	// OverwriteReject makes WriteOverwrite behave exactly like Write.
	OverwriteReject
)

// String returns the config name of the policy.
func (p OverwritePolicy) String() string {
	switch p {
	case OverwriteOldest:
		return "oldest"
	case OverwriteReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseOverwritePolicy maps "oldest" / "reject" to a policy.
func ParseOverwritePolicy(s string) (OverwritePolicy, bool) {
	switch s {
	case "oldest", "":
		return OverwriteOldest, true
	case "reject":
		return OverwriteReject, true
	default:
		return OverwriteOldest, false
	}
}

// AcquirePolicy controls the bounded try-lock loop used by every operation.
type AcquirePolicy struct {
	// RetryInterval is the pause between failed attempts. Zero yields the
	// processor instead of sleeping.
	RetryInterval time.Duration

	// DiagnosticEvery emits a "waiting for lock" info entry every N retries.
	// Zero disables the periodic diagnostic.
	DiagnosticEvery int

	// MaxRetries is the number of failed retries after which the operation
	// gives up and reports a possible deadlock.
	MaxRetries int
}

// DefaultAcquirePolicy returns 10µs retries, a diagnostic every 1000 retries
// and a ceiling of 100000 retries.
func DefaultAcquirePolicy() AcquirePolicy {
	return AcquirePolicy{
		RetryInterval:   10 * time.Microsecond,
		DiagnosticEvery: 1000,
		MaxRetries:      100000,
	}
}

// Option configures a BoundedStream.
type Option func(*streamOptions)

type streamOptions struct {
	name        string
	logger      *zap.Logger
	acquire     AcquirePolicy
	overwrite   OverwritePolicy
	maxCapacity int
	registerer  prometheus.Registerer
	namespace   string
}

// WithName labels the stream in logs, statistics and metrics.
func WithName(name string) Option {
	return func(o *streamOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger used for lock diagnostics. Nil is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(o *streamOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAcquirePolicy overrides the lock retry policy.
// Negative fields fall back to the defaults.
func WithAcquirePolicy(p AcquirePolicy) Option {
	return func(o *streamOptions) {
		def := DefaultAcquirePolicy()
		if p.RetryInterval < 0 {
			p.RetryInterval = def.RetryInterval
		}
		if p.DiagnosticEvery < 0 {
			p.DiagnosticEvery = def.DiagnosticEvery
		}
		if p.MaxRetries < 0 {
			p.MaxRetries = def.MaxRetries
		}
		o.acquire = p
	}
}

// WithOverwritePolicy sets the full-stream behaviour of WriteOverwrite.
func WithOverwritePolicy(p OverwritePolicy) Option {
	return func(o *streamOptions) {
		o.overwrite = p
	}
}

// WithMaxCapacity changes the allocation ceiling. Values <= 0 are ignored.
func WithMaxCapacity(n int) Option {
	return func(o *streamOptions) {
		if n > 0 {
			o.maxCapacity = n
		}
	}
}

// WithMetrics exports the stream counters as Prometheus metrics labelled
// with the stream name. A nil registerer is ignored.
func WithMetrics(reg prometheus.Registerer, namespace string) Option {
	return func(o *streamOptions) {
		if reg == nil {
			return
		}
		o.registerer = reg
		if namespace != "" {
			o.namespace = namespace
		}
	}
}

func applyOptions(opts ...Option) *streamOptions {
	o := &streamOptions{
		name:        "stream",
		logger:      zap.NewNop(),
		acquire:     DefaultAcquirePolicy(),
		overwrite:   OverwriteOldest,
		maxCapacity: DefaultMaxCapacity,
		namespace:   "eegstream",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
