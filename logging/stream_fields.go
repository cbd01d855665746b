package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"eegstream/ringbuffer"
)

// StreamStats adapts a stream snapshot for structured logging.
type StreamStats ringbuffer.Statistics

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s StreamStats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("name", s.Name)
	enc.AddInt("capacity", s.Capacity)
	enc.AddInt64("length", s.Length)
	enc.AddInt64("high_water", s.HighWater)
	enc.AddInt64("writes", s.Writes)
	enc.AddInt64("rejected", s.Rejected)
	if s.Overwritten > 0 {
		enc.AddInt64("overwritten", s.Overwritten)
	}
	enc.AddInt64("reads", s.Reads)
	enc.AddInt64("empty_reads", s.EmptyReads)
	if s.LockTimeouts > 0 {
		enc.AddInt64("lock_timeouts", s.LockTimeouts)
	}
	enc.AddFloat64("utilization", ringbuffer.Statistics(s).Utilization())
	return nil
}

type stageArray []ringbuffer.Statistics

func (a stageArray) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, s := range a {
		if err := enc.AppendObject(StreamStats(s)); err != nil {
			return err
		}
	}
	return nil
}

// StreamFields logs one stream snapshot under the "stream" key.
func StreamFields(stats ringbuffer.Statistics) zap.Field {
	return zap.Object("stream", StreamStats(stats))
}

// StageFields logs every stage of a pipeline under the "stages" key.
func StageFields(stages []ringbuffer.Statistics) zap.Field {
	return zap.Array("stages", stageArray(stages))
}

// ThroughputFields describes a run window: its bounds and samples per second.
func ThroughputFields(start, end time.Time, samples int64) []zap.Field {
	elapsed := end.Sub(start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(samples) / elapsed.Seconds()
	}
	return []zap.Field{
		zap.Time("start_time", start),
		zap.Duration("duration", elapsed),
		zap.Int64("samples", samples),
		zap.Float64("samples_per_second", rate),
	}
}
