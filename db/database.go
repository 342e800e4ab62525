package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Database manages the SQLite lifecycle: connection with WAL mode, embedded
// migrations, and graceful shutdown. Stores (StyleStore, JournalStore) sit
// on top of it.
//
// Usage:
//
//	db, err := NewDatabase("/path/to/data.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(); err != nil {
//	    log.Fatal(err)
//	}
type Database struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// DatabaseConfig holds configuration for the Database.
type DatabaseConfig struct {
	// Path is the database file path
	Path string
	// ConnectionConfig allows customizing the SQLite connection; nil = defaults
	ConnectionConfig *ConnectionConfig
}

// NewDatabase creates a Database with default connection settings.
// The database file's parent directory is created if it doesn't exist.
func NewDatabase(path string) (*Database, error) {
	return NewDatabaseWithConfig(DatabaseConfig{Path: path})
}

// NewDatabaseWithConfig creates a Database with custom configuration.
func NewDatabaseWithConfig(config DatabaseConfig) (*Database, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dir := filepath.Dir(config.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	var connConfig ConnectionConfig
	if config.ConnectionConfig != nil {
		connConfig = *config.ConnectionConfig
	} else {
		connConfig = DefaultConnectionConfig(config.Path)
	}

	conn, err := NewSQLiteConnection(connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	return &Database{db: conn, path: config.Path}, nil
}

// Migrate applies all pending embedded migrations. Safe to call on every
// startup; an up-to-date schema is a no-op.
//
// golang-migrate takes ownership of the connection it is given, so a
// dedicated connection is opened for the migration run.
func (d *Database) Migrate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := MigrateUp(d.path); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// DB returns the underlying sql.DB for use by stores.
// Do not close it directly; use Database.Close.
func (d *Database) DB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close closes the database connection. After Close the Database must not
// be used.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.db = nil
	return nil
}

// Ping verifies the connection is alive. Used by health checks.
func (d *Database) Ping() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return fmt.Errorf("database connection is closed")
	}
	return d.db.Ping()
}

// Stats returns connection pool statistics for monitoring.
func (d *Database) Stats() sql.DBStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return sql.DBStats{}
	}
	return d.db.Stats()
}

// ExecContext executes a statement without returning rows.
func (d *Database) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, fmt.Errorf("database connection is closed")
	}
	return d.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (d *Database) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, fmt.Errorf("database connection is closed")
	}
	return d.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row.
// Errors are deferred to Scan.
func (d *Database) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (d *Database) BeginTx(ctx context.Context) (*sql.Tx, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, fmt.Errorf("database connection is closed")
	}
	return d.db.BeginTx(ctx, nil)
}
