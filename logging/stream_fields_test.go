package logging

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"eegstream/ringbuffer"
)

func TestStreamFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	stats := ringbuffer.Statistics{
		Name:     "raw",
		Capacity: 4,
		Length:   2,
		Writes:   10,
		Rejected: 1,
		Reads:    8,
	}
	zap.New(core).Info("stage report", StreamFields(stats))

	entry := logs.All()[0]
	obj, ok := entry.ContextMap()["stream"].(map[string]interface{})
	if !ok {
		t.Fatalf("stream field = %T, want object", entry.ContextMap()["stream"])
	}
	if obj["name"] != "raw" {
		t.Errorf("name = %v, want raw", obj["name"])
	}
	if obj["rejected"] != int64(1) {
		t.Errorf("rejected = %v, want 1", obj["rejected"])
	}
	if obj["utilization"] != 0.5 {
		t.Errorf("utilization = %v, want 0.5", obj["utilization"])
	}
	if _, present := obj["lock_timeouts"]; present {
		t.Error("lock_timeouts should be omitted when zero")
	}
}

func TestStageFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	zap.New(core).Info("pipeline", StageFields([]ringbuffer.Statistics{
		{Name: "a", Capacity: 1},
		{Name: "b", Capacity: 1},
	}))

	stages, ok := logs.All()[0].ContextMap()["stages"].([]interface{})
	if !ok || len(stages) != 2 {
		t.Fatalf("stages = %#v, want 2 entries", logs.All()[0].ContextMap()["stages"])
	}
}

func TestThroughputFields(t *testing.T) {
	start := time.Now()
	fields := ThroughputFields(start, start.Add(2*time.Second), 1000)

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	if enc.Fields["samples_per_second"] != 500.0 {
		t.Errorf("samples_per_second = %v, want 500", enc.Fields["samples_per_second"])
	}

	zero := ThroughputFields(start, start, 10)
	enc = zapcore.NewMapObjectEncoder()
	for _, f := range zero {
		f.AddTo(enc)
	}
	if enc.Fields["samples_per_second"] != 0.0 {
		t.Errorf("zero window rate = %v, want 0", enc.Fields["samples_per_second"])
	}
}
