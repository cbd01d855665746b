// Package webui serves the live view of an acquisition run: a rolling
// display window, stage statistics and recorded sessions over HTTP, and
// consumed samples pushed to browsers over WebSocket.
package webui

import "sync"

// DefaultDisplayPoints is the width of the live plot.
const DefaultDisplayPoints = 250

// DisplayWindow holds the last N consumed samples for plotting. New samples
// overwrite the oldest once the window is full.
//
// It implements pipeline.Sink so it can be attached directly to the
// consumer.
type DisplayWindow struct {
	mu    sync.RWMutex
	data  []float32
	size  int
	head  int // next slot to write
	total int64
}

// NewDisplayWindow creates a window of the given width. Widths below 1 use
// DefaultDisplayPoints.
func NewDisplayWindow(points int) *DisplayWindow {
	if points < 1 {
		points = DefaultDisplayPoints
	}
	return &DisplayWindow{data: make([]float32, points)}
}

// Consume appends v, evicting the oldest sample when full.
func (w *DisplayWindow) Consume(v float32) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.data[w.head] = v
	w.head = (w.head + 1) % len(w.data)
	if w.size < len(w.data) {
		w.size++
	}
	w.total++
}

// Snapshot returns the window contents, oldest first, and the stream index
// of the first returned sample. The slice is a copy.
func (w *DisplayWindow) Snapshot() (samples []float32, firstIndex int64) {
	return w.Last(len(w.data))
}

// Last returns up to n of the most recent samples, oldest first, and the
// stream index of the first one.
func (w *DisplayWindow) Last(n int) ([]float32, int64) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if n > w.size {
		n = w.size
	}
	if n <= 0 {
		return []float32{}, w.total
	}

	out := make([]float32, n)
	start := (w.head - n + len(w.data)) % len(w.data)
	for i := range out {
		out[i] = w.data[(start+i)%len(w.data)]
	}
	return out, w.total - int64(n)
}

// Len returns the number of samples in the window.
func (w *DisplayWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}

// Cap returns the window width.
func (w *DisplayWindow) Cap() int { return len(w.data) }

// Total returns the number of samples ever consumed.
func (w *DisplayWindow) Total() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.total
}

// Reset empties the window, for example when a new session starts.
func (w *DisplayWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.data)
	w.size, w.head, w.total = 0, 0, 0
}
