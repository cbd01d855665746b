package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// EmbeddedMigrations selects the migrations compiled into the binary.
const EmbeddedMigrations = ""

// MigrateUp applies all pending migrations. migrationsPath is a
// golang-migrate source URL such as "file://db/migrations", or
// EmbeddedMigrations. ErrNoChange is not an error.
//
// MigrateUp takes ownership of conn and closes it.
func MigrateUp(conn *sql.DB, migrationsPath string) error {
	m, err := newMigrator(conn, migrationsPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls back steps migrations, or all of them when steps is -1.
// It takes ownership of conn and closes it.
func MigrateDown(conn *sql.DB, migrationsPath string, steps int) error {
	m, err := newMigrator(conn, migrationsPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if steps == -1 {
		err = m.Down()
	} else {
		err = m.Steps(-steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the applied version and dirty flag; version 0
// means nothing has been applied. It takes ownership of conn and closes it.
func MigrationVersion(conn *sql.DB, migrationsPath string) (uint, bool, error) {
	m, err := newMigrator(conn, migrationsPath)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// migrateFromPath runs fn on a dedicated connection to dbPath, since the
// migrator closes the connection it is given.
func migrateFromPath(dbPath string, fn func(*sql.DB) error) error {
	conn, err := NewSQLiteConnection(DefaultConnectionConfig(dbPath))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	return fn(conn)
}

// newMigrator closes conn if it fails.
func newMigrator(conn *sql.DB, migrationsPath string) (*migrate.Migrate, error) {
	if conn == nil {
		return nil, errors.New("database connection is required")
	}

	driver, err := sqlite.WithInstance(conn, &sqlite.Config{DatabaseName: "main"})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	var m *migrate.Migrate
	if migrationsPath == EmbeddedMigrations {
		src, srcErr := iofs.New(embeddedMigrations, "migrations")
		if srcErr != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to load embedded migrations: %w", srcErr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", driver)
	} else {
		m, err = migrate.NewWithDatabaseInstance(migrationsPath, "sqlite", driver)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}
