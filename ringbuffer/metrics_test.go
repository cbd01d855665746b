package ringbuffer

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMetrics_MirrorStatistics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestStream(t, 2, WithName("raw"), WithMetrics(reg, "test"))
	require.NotNil(t, s.metrics)

	s.Write(1)
	s.Write(2)
	s.Write(3)
	s.WriteOverwrite(4)
	s.Read()
	s.Read()
	s.Read()

	assert.Equal(t, 3.0, testutil.ToFloat64(s.metrics.writes))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.rejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.overwritten))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.reads))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.emptyReads))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.length))

	count, err := testutil.GatherAndCount(reg, "test_stream_writes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_DuplicateNameDisablesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	core, logs := observer.New(zapcore.WarnLevel)

	first := newTestStream(t, 2, WithName("dup"), WithMetrics(reg, "test"))
	second := newTestStream(t, 2, WithName("dup"), WithMetrics(reg, "test"), WithLogger(zap.New(core)))

	assert.NotNil(t, first.metrics)
	assert.Nil(t, second.metrics)
	assert.Equal(t, 1, logs.FilterMessage("stream metrics disabled").Len())
	assert.True(t, second.Write(1), "stream works without metrics")
}

func TestMetrics_DestroyUnregisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := New(2, WithName("cycle"), WithMetrics(reg, "test"))
	require.NoError(t, err)
	s.Destroy()

	again := newTestStream(t, 2, WithName("cycle"), WithMetrics(reg, "test"))
	assert.NotNil(t, again.metrics)
}

func TestMetrics_ExhaustionDuringDestroy(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestStream(t, 2,
		WithName("racing"),
		WithMetrics(reg, "test"),
		WithAcquirePolicy(AcquirePolicy{
			RetryInterval:   time.Microsecond,
			DiagnosticEvery: 1000,
			MaxRetries:      5,
		}))

	s.mu.Lock()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				s.Write(1)
			}
		}()
	}
	destroyed := make(chan struct{})
	go func() {
		s.Destroy()
		close(destroyed)
	}()
	time.Sleep(20 * time.Millisecond)
	s.mu.Unlock()

	wg.Wait()
	<-destroyed

	assert.True(t, s.Destroyed())
	assert.Positive(t, s.Stats().LockTimeouts)
	assert.Equal(t, float64(s.Stats().LockTimeouts), testutil.ToFloat64(s.metrics.lockTimeouts))
}

func TestWithMetrics_NilRegistererIgnored(t *testing.T) {
	s := newTestStream(t, 2, WithMetrics(nil, "test"))
	assert.Nil(t, s.metrics)
}
