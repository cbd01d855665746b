// Package source produces EEG samples for the first stream of a pipeline.
//
// A Source yields one sample per Next call. Sources are not safe for
// concurrent use; each one is owned by a single Producer.
package source

import (
	"context"
	"math"
)

// Source produces samples. Next returns io.EOF once the source is exhausted.
type Source interface {
	Next(ctx context.Context) (float32, error)
}

// SineSource generates a synthetic 0.5 amplitude sine wave.
type SineSource struct {
	Amplitude float64
	Frequency float64
	Step      float64

	phase float64
}

// NewSine returns a sine source with the default shape: 0.5*sin(6*phase),
// phase decremented by 0.02 per sample.
func NewSine() *SineSource {
	return &SineSource{Amplitude: 0.5, Frequency: 6, Step: -0.02}
}

// Next returns the next point of the wave. It never ends on its own.
func (s *SineSource) Next(ctx context.Context) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v := s.Amplitude * math.Sin(s.Frequency*s.phase)
	s.phase += s.Step
	return float32(v), nil
}

// Phase returns the phase of the next sample.
func (s *SineSource) Phase() float64 {
	return s.phase
}
