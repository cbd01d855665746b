package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"eegstream/core"
	"eegstream/db"
	"eegstream/logging"
	"eegstream/metrics"
	"eegstream/pipeline"
	"eegstream/shutdown"
	"eegstream/source"
	"eegstream/webui"
)

// app wires one acquisition run: source, stream chain, sinks and the
// optional recording database and live view.
type app struct {
	cfg    *core.Config
	logger *logging.Logger

	registry  *prometheus.Registry
	pipeline  *pipeline.Pipeline
	producer  *source.Producer
	store     *metrics.Store
	collector *metrics.Collector

	database *db.Database
	writer   *db.AsyncWriter
	recorder *db.Recorder
	server   *webui.Server

	mu       sync.Mutex
	final    pipeline.Snapshot
	runErr   error
	serveErr error
}

// newApp builds every component selected by cfg. Components already built
// are released when a later one fails.
func newApp(ctx context.Context, cfg *core.Config, logger *logging.Logger) (a *app, err error) {
	built := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			built.release()
		}
	}()
	a = built

	var reg prometheus.Registerer
	if cfg.MetricsEnabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		reg = a.registry
	}

	a.pipeline, err = pipeline.FromConfig(cfg, reg, logger.Component("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	src, err := source.Open(cfg, logger.Component("source"))
	if err != nil {
		return nil, err
	}
	a.producer = source.NewProducer(src, a.pipeline.Input(), source.ProducerConfigFrom(cfg, logger.Component("producer")))

	a.store = metrics.NewStore(metrics.StoreConfig{
		HistorySize:   metrics.DefaultStoreConfig().HistorySize,
		DropThreshold: metrics.DefaultStoreConfig().DropThreshold,
		Version:       core.Version,
	})
	a.collector = metrics.NewCollector(metrics.CollectorConfig{Interval: cfg.SnapshotInterval},
		a.pipeline, a.store, logger.Component("collector"))

	var sessions webui.SessionStore
	var pinger webui.Pinger
	if cfg.RecordEnabled {
		repo, err := a.openRecording(ctx)
		if err != nil {
			return nil, err
		}
		a.collector.OnSnapshot(a.recorder.RecordSnapshot)
		sessions, pinger = repo, a.database
	}

	if cfg.WebEnabled {
		webConfig := webui.DefaultServerConfig()
		webConfig.Addr = cfg.WebAddr
		webConfig.DisplayPoints = cfg.DisplayPoints
		webConfig.FrameInterval = cfg.FrameInterval
		webConfig.VersionInfo = webui.VersionInfo{
			Version:   core.Version,
			BuildDate: core.BuildTime,
			GitCommit: core.GitCommit,
		}
		deps := webui.ServerDeps{
			Store:    a.store,
			Sessions: sessions,
			Database: pinger,
			Logger:   logger.Component("webui"),
		}
		if a.registry != nil {
			deps.Gatherer = a.registry
		}
		a.server, err = webui.NewServer(webConfig, deps)
		if err != nil {
			return nil, err
		}
		a.collector.OnSnapshot(a.server.StatsCallback())
	}

	logger.Info("Configuration loaded",
		zap.String("source", string(cfg.Source)),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.String("write_policy", string(cfg.WritePolicy)),
		zap.String("overwrite", cfg.Overwrite),
		zap.Int("stages", len(cfg.Stages)),
		zap.Bool("record", cfg.RecordEnabled),
		zap.Bool("web", cfg.WebEnabled),
		zap.Bool("metrics", cfg.MetricsEnabled),
		zap.String("session_id", a.pipeline.SessionID().String()),
	)
	return a, nil
}

// openRecording opens and migrates the database and creates the session
// recorder.
func (a *app) openRecording(ctx context.Context) (*db.Repository, error) {
	database, err := db.NewDatabase(db.DatabaseConfig{
		Path:           a.cfg.DatabasePath,
		MigrationsPath: a.cfg.MigrationsPath,
	})
	if err != nil {
		return nil, err
	}
	a.database = database
	if err := database.Migrate(); err != nil {
		return nil, err
	}

	repo := db.NewRepository(database, nil)
	a.writer = db.NewAsyncWriter(repo.AsyncWriteHandler(), db.AsyncWriterConfig{
		Logger: a.logger.Component("db"),
	})
	a.writer.Start()
	repo = db.NewRepository(database, a.writer)

	stages := make([]string, 0, len(a.pipeline.Stages()))
	for _, s := range a.pipeline.Stages() {
		stages = append(stages, s.Name)
	}
	a.recorder, err = db.NewRecorder(ctx, repo, db.RecorderConfig{
		SessionID:  a.pipeline.SessionID().String(),
		Source:     string(a.cfg.Source),
		SampleRate: a.cfg.SampleRate,
		Stages:     stages,
		BlockSize:  a.cfg.SampleBlockSize,
		Logger:     a.logger.Component("recorder"),
	})
	if err != nil {
		return nil, fmt.Errorf("start recording: %w", err)
	}
	return repo, nil
}

// sink fans consumed samples out to the live view and the recorder.
func (a *app) sink() pipeline.Sink {
	var sinks pipeline.MultiSink
	if a.server != nil {
		sinks = append(sinks, a.server.Sink())
	}
	if a.recorder != nil {
		sinks = append(sinks, a.recorder)
	}
	return sinks
}

// run starts the background services and blocks in the pipeline until the
// manager's context is cancelled or a part of the pipeline fails.
func (a *app) run(mgr *shutdown.Manager) error {
	ctx := mgr.Context()
	a.collector.Start(ctx)

	if a.server != nil {
		// Not tracked: the server only returns once its shutdown handler ran.
		go func() {
			if err := a.server.Start(ctx); err != nil {
				a.mu.Lock()
				a.serveErr = err
				a.mu.Unlock()
				mgr.Trigger(err)
			}
		}()
	}
	if a.database != nil && a.cfg.RetentionDays > 0 {
		log := a.logger.Component("cleanup")
		a.database.StartCleanupScheduler(ctx, db.CleanupSchedulerConfig{
			RetentionDays: a.cfg.RetentionDays,
			Interval:      db.DefaultCleanupSchedulerConfig().Interval,
			OnCleanup: func(result db.CleanupResult, err error) {
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("retention cleanup failed", zap.Error(err))
					return
				}
				if result.TotalDeleted() > 0 {
					log.Info("retention cleanup",
						zap.Int64("sessions", result.SessionsDeleted),
						zap.Int64("snapshots", result.SnapshotsDeleted),
						zap.Int64("blocks", result.BlocksDeleted),
						zap.Duration("duration", result.Duration))
				}
			},
		})
	}

	err := a.pipeline.Run(ctx, a.producer, a.sink())
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	a.mu.Lock()
	if err == nil {
		err = a.serveErr
	}
	a.final, a.runErr = a.pipeline.Snapshot(), err
	a.mu.Unlock()
	return err
}

// registerShutdown registers cleanup in dependency order: the collector and
// streams go first, the recorder flushes before its writer stops, and the
// database closes after both.
func (a *app) registerShutdown(mgr *shutdown.Manager) {
	mgr.Register("collector", shutdown.PriorityPipeline, func(context.Context) error {
		a.collector.Stop()
		return nil
	})
	mgr.Register("streams", shutdown.PriorityPipeline, shutdown.DestroyStreams(a.logger.Component("shutdown"), a.pipeline))

	if a.recorder != nil {
		mgr.Register("recorder", shutdown.PriorityRecorder, func(ctx context.Context) error {
			a.mu.Lock()
			final, runErr := a.final, a.runErr
			a.mu.Unlock()
			return a.recorder.Close(ctx, final, runErr)
		})
	}
	if a.writer != nil {
		mgr.Register("db-writer", shutdown.PriorityRecorder, a.writer.Stop)
	}
	if a.server != nil {
		mgr.Register("webui", shutdown.PriorityWeb, a.server.Shutdown)
	}
	if a.database != nil {
		mgr.Register("database", shutdown.PriorityDatabase, shutdown.Closer(a.database.Close))
	}
	mgr.Register("logger", shutdown.PriorityLogger, shutdown.SyncLogger(a.logger))
}

// release frees whatever newApp built before failing.
func (a *app) release() {
	if a.writer != nil {
		_ = a.writer.Stop(context.Background())
	}
	if a.database != nil {
		_ = a.database.Close()
	}
	a.pipeline.Destroy()
}
