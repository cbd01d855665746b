// Package metrics keeps a rolling history of pipeline snapshots for the
// live view and the recorder.
package metrics

import "time"

// StageSample is one interval of activity for a single stream, derived from
// two consecutive snapshots.
type StageSample struct {
	// Time is when the later snapshot was taken
	Time time.Time `json:"time"`

	// Length is the number of samples buffered at Time
	Length int64 `json:"length"`

	// Utilization is Length/Capacity in [0, 1]
	Utilization float64 `json:"utilization"`

	// WriteRate and ReadRate are accepted operations per second over the interval
	WriteRate float64 `json:"write_rate"`
	ReadRate  float64 `json:"read_rate"`

	// DropRate is the share of write attempts rejected during the interval
	DropRate float64 `json:"drop_rate"`

	// Overwritten counts evictions during the interval
	Overwritten int64 `json:"overwritten"`

	// LockTimeouts counts abandoned lock acquisitions during the interval
	LockTimeouts int64 `json:"lock_timeouts"`
}

// StageStatus is the latest state of one stream.
type StageStatus struct {
	Name     string      `json:"name"`
	Capacity int         `json:"capacity"`
	Latest   StageSample `json:"latest"`
	// HighWater is the largest Length seen since the stream was created
	HighWater int64 `json:"high_water"`
}

// PipelineStatus is the overall health of the acquisition run.
type PipelineStatus struct {
	// Health is one of the Health* constants
	Health    string        `json:"health"`
	SessionID string        `json:"session_id"`
	Version   string        `json:"version"`
	Uptime    time.Duration `json:"uptime"`
	LastCheck time.Time     `json:"last_check"`
	Produced  int64         `json:"produced"`
	Dropped   int64         `json:"dropped"`
	Consumed  int64         `json:"consumed"`
	Stages    []StageStatus `json:"stages"`
}

// Health values for PipelineStatus.
const (
	HealthRunning  = "running"
	HealthDegraded = "degraded"
	HealthStopped  = "stopped"
)
