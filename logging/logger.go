package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger that tees to the console and a rotated JSON file.
//
// Components receive the plain *zap.Logger through Component; the wrapper is
// kept by main for sugared startup output and Sync on exit.
type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger

	level         zap.AtomicLevel
	isDevelopment bool
	logFilePath   string
}

// Options configures NewLoggerWithOptions.
type Options struct {
	// Development selects colored console output and debug level.
	Development bool

	// FilePath is the rotated log file. Empty disables file output.
	FilePath string

	// Level overrides the level implied by Development when non-nil.
	Level *zapcore.Level

	// File controls lumberjack rotation.
	File FileWriterConfig

	// Console replaces stdout, mostly for tests.
	Console zapcore.WriteSyncer
}

// NewLogger creates a Logger at debug level in development mode and info
// level otherwise, writing to stdout and logFilePath.
func NewLogger(isDevelopment bool, logFilePath string) (*Logger, error) {
	return NewLoggerWithOptions(Options{
		Development: isDevelopment,
		FilePath:    logFilePath,
		File:        DefaultFileWriterConfig(),
	})
}

// NewLoggerWithOptions creates a Logger from explicit options.
func NewLoggerWithOptions(opts Options) (*Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Development {
		level.SetLevel(zapcore.DebugLevel)
	}
	if opts.Level != nil {
		level.SetLevel(*opts.Level)
	}

	console := opts.Console
	if console == nil {
		console = zapcore.Lock(os.Stdout)
	}

	var file zapcore.WriteSyncer
	if opts.FilePath != "" {
		if dir := filepath.Dir(opts.FilePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		file = NewFileWriterWithConfig(opts.FilePath, opts.File)
	}

	core := NewMultiCore(level, console, file, opts.Development)
	zl := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{
		zap:           zl,
		sugar:         zl.Sugar(),
		level:         level,
		isDevelopment: opts.Development,
		logFilePath:   opts.FilePath,
	}, nil
}

// Component returns a named *zap.Logger for a subsystem such as "stream",
// "pipeline" or "webui".
func (l *Logger) Component(name string) *zap.Logger {
	if l == nil || l.zap == nil {
		return zap.NewNop()
	}
	return l.zap.Named(name)
}

// SetLevel changes the level of every logger derived from l.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

// Level returns the current level.
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// Sync flushes buffered entries. Call before exit.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }

// Infow logs at info level with loosely typed key-value pairs.
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warnw logs at warn level with loosely typed key-value pairs.
func (l *Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Errorw logs at error level with loosely typed key-value pairs.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Infof logs a formatted message at info level.
func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(template, args...)
}

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(template, args...)
}

// With returns a child Logger that adds fields to every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.zap.With(fields...)
	return &Logger{
		zap:           zl,
		sugar:         zl.Sugar(),
		level:         l.level,
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Named returns a child Logger with a sub-name.
func (l *Logger) Named(name string) *Logger {
	zl := l.zap.Named(name)
	return &Logger{
		zap:           zl,
		sugar:         zl.Sugar(),
		level:         l.level,
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Zap returns the underlying logger.
func (l *Logger) Zap() *zap.Logger { return l.zap }

// Sugar returns the underlying sugared logger.
func (l *Logger) Sugar() *zap.SugaredLogger { return l.sugar }

// IsDevelopment reports whether the logger was built in development mode.
func (l *Logger) IsDevelopment() bool { return l.isDevelopment }

// LogFilePath returns the rotated file path, or "" when file output is off.
func (l *Logger) LogFilePath() string { return l.logFilePath }
