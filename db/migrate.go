package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Schema migrations ship inside the binary so a deployment is a single
// executable plus a writable data directory.
//
//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrateUp applies all pending migrations to the database at path.
// Returns nil when the schema is already current (ErrNoChange is not an
// error condition).
//
// A fresh connection is used because golang-migrate takes ownership of the
// connection it is given and closes it.
func MigrateUp(path string) error {
	m, cleanup, err := newMigrator(path)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls back migrations by the specified number of steps.
// Pass -1 to roll back everything.
func MigrateDown(path string, steps int) error {
	m, cleanup, err := newMigrator(path)
	if err != nil {
		return err
	}
	defer cleanup()

	var migrateErr error
	if steps == -1 {
		migrateErr = m.Down()
	} else {
		migrateErr = m.Steps(-steps)
	}
	if migrateErr != nil && !errors.Is(migrateErr, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", migrateErr)
	}
	return nil
}

// MigrationVersion returns the current schema version and dirty state.
// Returns version=0, dirty=false when no migrations have been applied.
//
// The dirty flag means a migration failed partway through and manual
// intervention may be required; see ForceMigrationVersion.
func MigrationVersion(path string) (uint, bool, error) {
	m, cleanup, err := newMigrator(path)
	if err != nil {
		return 0, false, err
	}
	defer cleanup()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// ForceMigrationVersion forcibly sets the schema version without running
// migrations. Only for repairing a dirty state after manual intervention.
func ForceMigrationVersion(path string, version int) error {
	m, cleanup, err := newMigrator(path)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force migration version to %d: %w", version, err)
	}
	return nil
}

// newMigrator opens a dedicated connection to path and builds a migrator
// over the embedded migration files. The returned cleanup closes both the
// migrator and its connection.
func newMigrator(path string) (*migrate.Migrate, func(), error) {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	conn, err := NewSQLiteConnectionWithDefaults(path)
	if err != nil {
		source.Close()
		return nil, nil, fmt.Errorf("failed to open database for migration: %w", err)
	}

	driver, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		source.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		source.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// m.Close closes the source and the database driver (and with it conn)
	cleanup := func() { _, _ = m.Close() }
	return m, cleanup, nil
}
