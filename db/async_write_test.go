package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncWriterBasicWrite(t *testing.T) {
	var (
		mu       sync.Mutex
		received []any
	)
	handler := func(_ context.Context, op WriteOperation) error {
		mu.Lock()
		received = append(received, op.Data)
		mu.Unlock()
		return nil
	}

	w := NewAsyncWriter(handler, AsyncWriterConfig{})
	w.Start()

	for _, data := range []string{"first", "second", "third"} {
		if !w.Write(data) {
			t.Errorf("Write(%q) = false, want true", data)
		}
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 || received[0] != "first" || received[2] != "third" {
		t.Errorf("received = %v, want [first second third]", received)
	}
	if st := w.Stats(); st.Applied != 3 {
		t.Errorf("Applied = %d, want 3", st.Applied)
	}
}

func TestAsyncWriterNonBlocking(t *testing.T) {
	release := make(chan struct{})
	handler := func(context.Context, WriteOperation) error {
		<-release
		return nil
	}

	w := NewAsyncWriter(handler, AsyncWriterConfig{ChannelCapacity: 2})
	w.Start()

	start := time.Now()
	accepted := 0
	for i := 0; i < 10; i++ {
		if w.Write(i) {
			accepted++
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("writes took %v, expected non-blocking", elapsed)
	}
	// One op may be in the handler, two queued.
	if accepted < 2 || accepted > 3 {
		t.Errorf("accepted = %d, want 2 or 3", accepted)
	}
	if st := w.Stats(); st.Refused != int64(10-accepted) {
		t.Errorf("Refused = %d, want %d", st.Refused, 10-accepted)
	}

	close(release)
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestAsyncWriterRefusesWhenNotRunning(t *testing.T) {
	w := NewAsyncWriter(func(context.Context, WriteOperation) error { return nil }, AsyncWriterConfig{})

	if w.Write("early") {
		t.Error("Write() before Start = true, want false")
	}
	if w.IsStarted() {
		t.Error("IsStarted() before Start = true")
	}

	w.Start()
	if !w.IsStarted() {
		t.Error("IsStarted() after Start = false")
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w.Write("late") {
		t.Error("Write() after Stop = true, want false")
	}
	// Stop is idempotent and Start after Stop does nothing.
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	w.Start()
	if w.IsStarted() {
		t.Error("IsStarted() after restart = true")
	}
}

func TestAsyncWriterCountsFailures(t *testing.T) {
	var calls atomic.Int64
	handler := func(context.Context, WriteOperation) error {
		if calls.Add(1)%2 == 0 {
			return errors.New("disk full")
		}
		return nil
	}

	w := NewAsyncWriter(handler, AsyncWriterConfig{})
	w.Start()
	for i := 0; i < 4; i++ {
		w.Write(i)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := w.Stats()
	if st.Applied != 2 || st.Failed != 2 {
		t.Errorf("Stats() = %+v, want 2 applied 2 failed", st)
	}
}

func TestAsyncWriterStopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	w := NewAsyncWriter(func(context.Context, WriteOperation) error {
		<-release
		return nil
	}, AsyncWriterConfig{})
	w.Start()
	w.Write("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() error = %v, want DeadlineExceeded", err)
	}
}
