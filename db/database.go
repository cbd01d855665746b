package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrClosed is returned by operations on a closed Database.
var ErrClosed = errors.New("database connection is closed")

// Database owns the SQLite connection of the recorder.
//
// Usage:
//
//	d, err := NewDatabase(DatabaseConfig{Path: "data/eegstream.db"})
//	if err != nil {
//	    return err
//	}
//	defer d.Close()
//	if err := d.Migrate(); err != nil {
//	    return err
//	}
type Database struct {
	mu             sync.RWMutex
	conn           *sql.DB
	path           string
	migrationsPath string
}

// DatabaseConfig holds configuration for a Database.
type DatabaseConfig struct {
	// Path is the database file path
	Path string
	// MigrationsPath is a golang-migrate source URL; EmbeddedMigrations by default
	MigrationsPath string
	// Connection overrides DefaultConnectionConfig(Path)
	Connection *ConnectionConfig
}

// NewDatabase opens the database, creating its directory if needed. It does
// not run migrations.
func NewDatabase(config DatabaseConfig) (*Database, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	connConfig := DefaultConnectionConfig(config.Path)
	if config.Connection != nil {
		connConfig = *config.Connection
		connConfig.Path = config.Path
	}
	conn, err := NewSQLiteConnection(connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	return &Database{
		conn:           conn,
		path:           config.Path,
		migrationsPath: config.MigrationsPath,
	}, nil
}

// Migrate applies pending migrations on a separate connection.
func (d *Database) Migrate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := migrateFromPath(d.path, func(conn *sql.DB) error {
		return MigrateUp(conn, d.migrationsPath)
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (d *Database) Version() (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := migrateFromPath(d.path, func(conn *sql.DB) error {
		var err error
		version, dirty, err = MigrationVersion(conn, d.migrationsPath)
		return err
	})
	return version, dirty, err
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close closes the connection. It is safe to call more than once.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Ping verifies the connection for health checks.
func (d *Database) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.conn == nil {
		return ErrClosed
	}
	return d.conn.PingContext(ctx)
}

// ExecContext runs a statement that returns no rows.
func (d *Database) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.conn == nil {
		return nil, ErrClosed
	}
	return d.conn.ExecContext(ctx, query, args...)
}

// QueryContext runs a query that returns rows.
func (d *Database) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.conn == nil {
		return nil, ErrClosed
	}
	return d.conn.QueryContext(ctx, query, args...)
}

// WithTx runs fn in a transaction, committing if it returns nil.
func (d *Database) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.conn == nil {
		return ErrClosed
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Times are stored as sortable UTC text so range queries compare correctly.
const timeLayout = "2006-01-02 15:04:05.000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts what the driver hands back for a DATETIME column:
// a time.Time, or text in our layout or RFC 3339.
func parseTime(v any) time.Time {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
