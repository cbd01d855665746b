package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"eegstream/core"
	"eegstream/core/validation"
	"eegstream/logging"
	"eegstream/shutdown"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	if len(os.Args) > 1 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		fmt.Println("eegstream", core.GetVersionInfo())
		return
	}
	if HandleServiceCommand(os.Args) {
		return
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(core.ExitCodeForError(err))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(core.ExitCodeError)
	}

	if code := runStartupValidation(logger, cfg, validation.NewValidationSuite()); code != core.ExitCodeSuccess {
		_ = logger.Sync()
		os.Exit(code)
	}

	if handled, err := RunAsService(cfg, logger); handled {
		if err != nil {
			logger.Error("Service run failed", zap.Error(err))
			_ = logger.Sync()
			os.Exit(core.ExitCodeError)
		}
		return
	}

	mgr := shutdown.NewManager(logger.Component("shutdown"), shutdown.WithTimeout(cfg.ShutdownTimeout))
	mgr.Start()
	os.Exit(runForeground(mgr, cfg, logger))
}

// newLogger builds the process logger. LOG_LEVEL overrides the level implied
// by DEV_MODE.
func newLogger(cfg *core.Config) (*logging.Logger, error) {
	opts := logging.Options{
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		File:        logging.DefaultFileWriterConfig(),
	}
	if cfg.LogLevel != "" {
		def := zapcore.InfoLevel
		if cfg.DevMode {
			def = zapcore.DebugLevel
		}
		level := logging.ParseLogLevelString(cfg.LogLevel, def)
		opts.Level = &level
	}
	return logging.NewLoggerWithOptions(opts)
}

// runStartupValidation runs the preflight checks and returns the exit code
// to use: ExitCodeSuccess when every check passed or only warned.
func runStartupValidation(logger *logging.Logger, cfg *core.Config, suite *validation.ValidationSuite) int {
	logger.Info("Starting startup validation...")

	result := suite.Validate(cfg)
	if !result.Success {
		logger.Error("Configuration validation failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)
		for _, step := range result.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("Validation step failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}
		return core.ExitCodeConfig
	}

	logger.Info("Configuration validation passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Int("warnings", result.Warnings),
		zap.Duration("duration", result.Duration),
	)
	return core.ExitCodeSuccess
}

// runForeground builds the application, runs it until mgr's context is
// cancelled or the pipeline fails, and shuts down. It returns the exit code.
func runForeground(mgr *shutdown.Manager, cfg *core.Config, logger *logging.Logger) int {
	a, err := newApp(mgr.Context(), cfg, logger)
	if err != nil {
		logger.Error("Startup failed", zap.Error(err))
		_ = logger.Sync()
		return core.ExitCodeForError(err)
	}
	a.registerShutdown(mgr)

	runErr := a.run(mgr)
	if runErr != nil {
		logger.Error("Acquisition failed", zap.Error(runErr))
	}
	if err := mgr.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}

	code := mgr.ExitCode(runErr)
	if code != core.ExitCodeSuccess {
		fmt.Fprintf(os.Stderr, "exit %d (%s)\n", code, core.ExitCodeName(code))
	}
	return code
}
