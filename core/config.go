package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SourceKind names a sample producer.
type SourceKind string

const (
	SourceSine   SourceKind = "sine"
	SourceCSV    SourceKind = "csv"
	SourceSerial SourceKind = "serial"
)

// WritePolicy is what a producer does with a sample the first stage rejects.
type WritePolicy string

const (
	// WriteDrop discards the sample immediately.
	WriteDrop WritePolicy = "drop"
	// WriteRetry waits RetryDelay and tries once more before discarding.
	WriteRetry WritePolicy = "retry"
	// WriteOverwrite evicts the oldest buffered sample to make room.
	WriteOverwrite WritePolicy = "overwrite"
)

// StageConfig describes one stream in the pipeline.
type StageConfig struct {
	Name      string  `yaml:"name"`
	Capacity  int     `yaml:"capacity"`
	Transform string  `yaml:"transform"`
	Factor    float64 `yaml:"factor"`
}

// Config is the full runtime configuration, loaded from the environment.
type Config struct {
	// Streams
	Capacity            int
	Overwrite           string
	LockRetryInterval   time.Duration
	LockDiagnosticEvery int
	LockMaxRetries      int
	PipelineFile        string
	Stages              []StageConfig

	// Source
	Source        SourceKind
	SampleRate    float64
	DatasetPath   string
	DatasetColumn int
	DatasetLoop   bool
	SerialDevice  string
	SerialBaud    int
	WritePolicy   WritePolicy
	RetryDelay    time.Duration

	// Consumer
	ConsumerTick  time.Duration
	ConsumerBatch int
	DisplayPoints int

	// Recording
	RecordEnabled    bool
	DatabasePath     string
	MigrationsPath   string // golang-migrate source URL; empty uses the embedded migrations
	SampleBlockSize  int
	RetentionDays    int
	SnapshotInterval time.Duration

	// Web UI
	WebEnabled     bool
	WebAddr        string
	MetricsEnabled bool
	FrameInterval  time.Duration

	// Process
	DevMode         bool
	LogFile         string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Default sample rates in Hz per source. Serial input is paced by the device.
var defaultSampleRates = map[SourceKind]float64{
	SourceSine:   5000,
	SourceCSV:    2000,
	SourceSerial: 0,
}

// LoadConfig reads the configuration from the environment. Call
// godotenv.Load first to pick up a .env file. Every malformed variable is
// reported in the returned error; Validate is applied before returning.
func LoadConfig() (*Config, error) {
	env := &envReader{}

	cfg := &Config{
		Capacity:            env.Int("STREAM_CAPACITY", 10000),
		Overwrite:           env.String("STREAM_OVERWRITE", "oldest"),
		LockRetryInterval:   env.Duration("LOCK_RETRY_INTERVAL", 10*time.Microsecond),
		LockDiagnosticEvery: env.Int("LOCK_DIAGNOSTIC_EVERY", 1000),
		LockMaxRetries:      env.Int("LOCK_MAX_RETRIES", 100000),
		PipelineFile:        env.String("PIPELINE_FILE", ""),

		Source:        SourceKind(strings.ToLower(env.String("SOURCE", string(SourceSine)))),
		DatasetPath:   env.String("DATASET_PATH", ""),
		DatasetColumn: env.Int("DATASET_COLUMN", 1),
		DatasetLoop:   env.Bool("DATASET_LOOP", false),
		SerialDevice:  env.String("SERIAL_DEVICE", "/dev/ttyACM0"),
		SerialBaud:    env.Int("SERIAL_BAUD", 115200),
		WritePolicy:   WritePolicy(strings.ToLower(env.String("WRITE_POLICY", string(WriteRetry)))),
		RetryDelay:    env.Duration("WRITE_RETRY_DELAY", 100*time.Microsecond),

		ConsumerTick:  env.Duration("CONSUMER_TICK", time.Millisecond),
		ConsumerBatch: env.Int("CONSUMER_BATCH", 1),
		DisplayPoints: env.Int("DISPLAY_POINTS", 250),

		RecordEnabled:    env.Bool("RECORD_ENABLED", true),
		DatabasePath:     env.String("DATABASE_PATH", "data/eegstream.db"),
		MigrationsPath:   env.String("MIGRATIONS_PATH", ""),
		SampleBlockSize:  env.Int("SAMPLE_BLOCK_SIZE", 500),
		RetentionDays:    env.Int("RETENTION_DAYS", 30),
		SnapshotInterval: env.Duration("SNAPSHOT_INTERVAL", 5*time.Second),

		WebEnabled:     env.Bool("WEB_ENABLED", true),
		WebAddr:        env.String("WEB_ADDR", "127.0.0.1:8090"),
		MetricsEnabled: env.Bool("METRICS_ENABLED", true),
		FrameInterval:  env.Duration("WS_FRAME_INTERVAL", 50*time.Millisecond),

		DevMode:         env.Bool("DEV_MODE", false),
		LogFile:         env.String("LOG_FILE", "logs/eegstream.log"),
		LogLevel:        env.String("LOG_LEVEL", ""),
		ShutdownTimeout: env.Duration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
	cfg.SampleRate = env.Float("SAMPLE_RATE", defaultSampleRates[cfg.Source])

	stageCount := env.Int("STAGE_COUNT", 1)
	if err := env.Err(); err != nil {
		return nil, err
	}

	if cfg.PipelineFile != "" {
		stages, err := LoadPipelineFile(cfg.PipelineFile)
		if err != nil {
			return nil, err
		}
		cfg.Stages = stages
	} else {
		cfg.Stages = DefaultStages(stageCount, cfg.Capacity)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultStages returns n identity stages named stage-1..stage-n.
func DefaultStages(n, capacity int) []StageConfig {
	if n < 1 {
		n = 1
	}
	stages := make([]StageConfig, n)
	for i := range stages {
		stages[i] = StageConfig{
			Name:      fmt.Sprintf("stage-%d", i+1),
			Capacity:  capacity,
			Transform: "identity",
		}
	}
	return stages
}

// Validate checks cross-field constraints. Existence of files and devices is
// left to the startup validation suite.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Stages) == 0 {
		errs = append(errs, ErrInvalidCapacityConfig("stage-1", 0))
	}
	for _, s := range c.Stages {
		if s.Capacity <= 0 {
			errs = append(errs, ErrInvalidCapacityConfig(s.Name, s.Capacity))
		}
	}

	switch c.Source {
	case SourceSine:
	case SourceSerial:
		if c.SerialBaud <= 0 {
			errs = append(errs, ErrInvalidValue("SERIAL_BAUD", fmt.Sprint(c.SerialBaud), "a positive baud rate"))
		}
	case SourceCSV:
		if c.DatasetPath == "" {
			errs = append(errs, ErrDatasetMissing("(DATASET_PATH not set)"))
		}
		if c.DatasetColumn < 0 {
			errs = append(errs, ErrInvalidValue("DATASET_COLUMN", fmt.Sprint(c.DatasetColumn), "a column index >= 0"))
		}
	default:
		errs = append(errs, ErrInvalidSource(string(c.Source)))
	}

	if c.SampleRate < 0 {
		errs = append(errs, ErrInvalidValue("SAMPLE_RATE", fmt.Sprint(c.SampleRate), "a rate >= 0 (0 means unpaced)"))
	}
	switch c.WritePolicy {
	case WriteDrop, WriteRetry, WriteOverwrite:
	default:
		errs = append(errs, ErrInvalidValue("WRITE_POLICY", string(c.WritePolicy), "drop, retry or overwrite"))
	}
	if c.Overwrite != "oldest" && c.Overwrite != "reject" {
		errs = append(errs, ErrInvalidValue("STREAM_OVERWRITE", c.Overwrite, "oldest or reject"))
	}
	if c.LockMaxRetries < 0 {
		errs = append(errs, ErrInvalidValue("LOCK_MAX_RETRIES", fmt.Sprint(c.LockMaxRetries), "a count >= 0"))
	}
	if c.ConsumerBatch <= 0 {
		errs = append(errs, ErrInvalidValue("CONSUMER_BATCH", fmt.Sprint(c.ConsumerBatch), "a positive integer"))
	}
	if c.DisplayPoints <= 0 {
		errs = append(errs, ErrInvalidValue("DISPLAY_POINTS", fmt.Sprint(c.DisplayPoints), "a positive integer"))
	}
	if c.RecordEnabled && c.SampleBlockSize <= 0 {
		errs = append(errs, ErrInvalidValue("SAMPLE_BLOCK_SIZE", fmt.Sprint(c.SampleBlockSize), "a positive integer"))
	}

	return errors.Join(errs...)
}
