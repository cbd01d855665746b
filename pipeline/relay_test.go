package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegstream/ringbuffer"
)

func newStream(t *testing.T, capacity int) *ringbuffer.BoundedStream {
	t.Helper()
	s, err := ringbuffer.New(capacity)
	require.NoError(t, err)
	t.Cleanup(s.Destroy)
	return s
}

func TestRelay_HoldsRejectedSample(t *testing.T) {
	from := newStream(t, 8)
	to := newStream(t, 2)
	for i := 0; i < 5; i++ {
		require.True(t, from.Write(float32(i)))
	}

	r := NewRelay(from, to, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, nil)
	}()

	// to fills with 0,1; the relay holds 2 and stays blocked.
	require.Eventually(t, to.IsFull, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return r.Stats().Blocked > 0 }, time.Second, time.Millisecond)

	var got []float32
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 5 && time.Now().Before(deadline) {
		if v, ok := to.Read(); ok {
			got = append(got, v)
		}
	}
	cancel()
	<-done

	assert.Equal(t, []float32{0, 1, 2, 3, 4}, got)
	assert.Equal(t, int64(5), r.Stats().Moved)
}

func TestRelay_DrainReturnsWhenUpstreamEmpty(t *testing.T) {
	from := newStream(t, 4)
	to := newStream(t, 4)
	require.True(t, from.Write(1))
	require.True(t, from.Write(2))

	upstream := make(chan struct{})
	close(upstream)

	r := NewRelay(from, to, Scale(3), time.Microsecond)
	require.NoError(t, r.Run(context.Background(), upstream))

	assert.True(t, from.IsEmpty())
	v, _ := to.Read()
	assert.Equal(t, float32(3), v)
	v, _ = to.Read()
	assert.Equal(t, float32(6), v)
}

func TestRelay_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRelay(newStream(t, 1), newStream(t, 1), nil, time.Second)
	assert.NoError(t, r.Run(ctx, nil))
}

func TestConsumer_BatchPerTick(t *testing.T) {
	from := newStream(t, 100)
	for i := 0; i < 10; i++ {
		require.True(t, from.Write(float32(i)))
	}

	var got []float32
	c := NewConsumer(from, SinkFunc(func(v float32) { got = append(got, v) }), 0, 4)
	assert.Equal(t, 4, c.step())
	assert.Equal(t, 4, c.step())
	assert.Equal(t, 2, c.step())
	assert.Equal(t, 0, c.step())
	assert.Len(t, got, 10)
	assert.Equal(t, int64(10), c.Stats().Consumed)
}

func TestConsumer_CountsIdleTicks(t *testing.T) {
	from := newStream(t, 4)
	c := NewConsumer(from, nil, time.Millisecond, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx, nil))

	assert.Zero(t, c.Stats().Consumed)
	assert.Positive(t, c.Stats().IdleTicks)
}

func TestConsumer_DrainMode(t *testing.T) {
	from := newStream(t, 4)
	require.True(t, from.Write(7))
	upstream := make(chan struct{})
	close(upstream)

	var sum float32
	sinks := MultiSink{
		SinkFunc(func(v float32) { sum += v }),
		SinkFunc(func(v float32) { sum += v }),
	}
	c := NewConsumer(from, sinks, 0, 1)
	require.NoError(t, c.Run(context.Background(), upstream))
	assert.Equal(t, float32(14), sum)
}
