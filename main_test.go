package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"eegstream/core"
	"eegstream/core/validation"
	"eegstream/db"
	"eegstream/logging"
	"eegstream/ringbuffer"
	"eegstream/shutdown"
)

// createTestLoggerMain returns a logger that discards output, so goroutines
// outliving a test can still log.
func createTestLoggerMain(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLoggerWithOptions(logging.Options{
		Console: zapcore.AddSync(io.Discard),
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return logger
}

// testConfig returns a sine-source configuration with recording and the
// web UI disabled.
func testConfig(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		Capacity:            64,
		Overwrite:           "oldest",
		LockRetryInterval:   10 * time.Microsecond,
		LockDiagnosticEvery: 1000,
		LockMaxRetries:      100000,
		Stages:              core.DefaultStages(2, 64),

		Source:      core.SourceSine,
		SampleRate:  2000,
		WritePolicy: core.WriteRetry,
		RetryDelay:  100 * time.Microsecond,

		ConsumerTick:  time.Millisecond,
		ConsumerBatch: 4,
		DisplayPoints: 100,

		DatabasePath:     filepath.Join(t.TempDir(), "eegstream.db"),
		SampleBlockSize:  50,
		SnapshotInterval: 50 * time.Millisecond,

		WebAddr:         "127.0.0.1:0",
		FrameInterval:   20 * time.Millisecond,
		ShutdownTimeout: 5 * time.Second,
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		devMode  bool
		logLevel string
		want     zapcore.Level
	}{
		{"production default", false, "", zapcore.InfoLevel},
		{"development default", true, "", zapcore.DebugLevel},
		{"explicit warn", false, "warn", zapcore.WarnLevel},
		{"explicit info in dev", true, "info", zapcore.InfoLevel},
		{"invalid falls back", true, "loud", zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &core.Config{DevMode: tt.devMode, LogLevel: tt.logLevel}
			logger, err := newLogger(cfg)
			if err != nil {
				t.Fatalf("newLogger failed: %v", err)
			}
			if got := logger.Level(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunStartupValidation(t *testing.T) {
	logger := createTestLoggerMain(t)
	suite := func() *validation.ValidationSuite {
		return validation.NewValidationSuite().
			WithOutput(io.Discard).
			WithEnvPath(filepath.Join(t.TempDir(), "missing.env"))
	}

	t.Run("passes with warnings", func(t *testing.T) {
		cfg := testConfig(t)
		if code := runStartupValidation(logger, cfg, suite()); code != core.ExitCodeSuccess {
			t.Errorf("exit code = %d, want %d", code, core.ExitCodeSuccess)
		}
	})

	t.Run("missing dataset", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Source = core.SourceCSV
		cfg.DatasetPath = filepath.Join(t.TempDir(), "missing.csv")
		if code := runStartupValidation(logger, cfg, suite()); code != core.ExitCodeConfig {
			t.Errorf("exit code = %d, want %d", code, core.ExitCodeConfig)
		}
	})

	t.Run("oversized stage", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Stages = []core.StageConfig{{Name: "huge", Capacity: ringbuffer.DefaultMaxCapacity + 1}}
		if code := runStartupValidation(logger, cfg, suite()); code != core.ExitCodeConfig {
			t.Errorf("exit code = %d, want %d", code, core.ExitCodeConfig)
		}
	})
}

func TestNewAppInvalidStage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stages = []core.StageConfig{{Name: "input", Capacity: 0}}

	_, err := newApp(context.Background(), cfg, createTestLoggerMain(t))
	if !errors.Is(err, ringbuffer.ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
}

func TestNewAppMissingDataset(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source = core.SourceCSV
	cfg.DatasetPath = filepath.Join(t.TempDir(), "missing.csv")

	_, err := newApp(context.Background(), cfg, createTestLoggerMain(t))
	if err == nil {
		t.Fatal("expected an error for a missing dataset")
	}
	if code := core.ExitCodeForError(err); code != core.ExitCodeConfig {
		t.Errorf("exit code = %d, want %d", code, core.ExitCodeConfig)
	}
}

func TestAppSinks(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(context.Background(), cfg, createTestLoggerMain(t))
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.release()

	if a.server != nil || a.recorder != nil || a.database != nil {
		t.Error("web and recording should be disabled")
	}
	// An empty fan-out must still accept samples.
	a.sink().Consume(0.5)
}

// TestAppRunAndShutdown runs a recorded, served acquisition and checks what
// the database holds after an orderly shutdown.
func TestAppRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.RecordEnabled = true
	cfg.WebEnabled = true
	cfg.MetricsEnabled = true

	logger := createTestLoggerMain(t)
	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}

	mgr := shutdown.NewManager(zap.NewNop(), shutdown.WithTimeout(5*time.Second))
	a.registerShutdown(mgr)

	runDone := make(chan error, 1)
	go func() { runDone <- a.run(mgr) }()

	deadline := time.Now().Add(5 * time.Second)
	for a.pipeline.Snapshot().Consumer.Consumed < 200 {
		if time.Now().After(deadline) {
			t.Fatal("pipeline did not consume samples in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	addr := a.server.Addr()
	for strings.HasSuffix(addr, ":0") {
		if time.Now().After(deadline) {
			t.Fatal("web server did not start listening")
		}
		time.Sleep(10 * time.Millisecond)
		addr = a.server.Addr()
	}
	for _, path := range []string{"/health", "/api/status", "/api/sessions", "/metrics"} {
		resp, err := http.Get("http://" + addr + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}

	mgr.Trigger(errors.New("test stop"))
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	if err := mgr.Shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if code := mgr.ExitCode(nil); code != core.ExitCodeSuccess {
		t.Errorf("exit code = %d, want %d", code, core.ExitCodeSuccess)
	}
	if !a.pipeline.Output().Destroyed() {
		t.Error("streams should be destroyed after shutdown")
	}

	database, err := db.NewDatabase(db.DatabaseConfig{Path: cfg.DatabasePath})
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer database.Close()
	repo := db.NewRepository(database, nil)
	ctx := context.Background()

	session, err := repo.GetSession(ctx, a.recorder.SessionID())
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Status != db.SessionFinished {
		t.Errorf("session status = %q, want %q", session.Status, db.SessionFinished)
	}
	if session.Consumed < 200 {
		t.Errorf("session consumed = %d, want >= 200", session.Consumed)
	}
	if len(session.Stages) != 2 {
		t.Errorf("session stages = %v, want 2 entries", session.Stages)
	}

	count, err := repo.CountSamples(ctx, session.ID)
	if err != nil {
		t.Fatalf("CountSamples failed: %v", err)
	}
	if count != session.Consumed {
		t.Errorf("stored samples = %d, consumed = %d", count, session.Consumed)
	}

	snaps, err := repo.SessionSnapshots(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("SessionSnapshots failed: %v", err)
	}
	if len(snaps) == 0 {
		t.Error("expected stage snapshots to be recorded")
	}
}
