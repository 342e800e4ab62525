package db

import (
	"path/filepath"
	"testing"
)

// latestSchemaVersion is the highest embedded migration.
const latestSchemaVersion = 2

// TestMigrateUp applies the embedded migrations to a fresh database.
func TestMigrateUp(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate_test.db")

	if err := MigrateUp(dbPath); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	// Schema should now contain the three core tables
	conn, err := NewSQLiteConnectionWithDefaults(dbPath)
	if err != nil {
		t.Fatalf("open after migrate: %v", err)
	}
	defer conn.Close()

	for _, table := range []string{"styles", "style_prompts", "transformations"} {
		var name string
		err := conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}

	// Seed migration should have loaded the launch catalog
	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM styles").Scan(&count); err != nil {
		t.Fatalf("count styles: %v", err)
	}
	if count != 4 {
		t.Errorf("seeded styles = %d, want 4", count)
	}
}

// TestMigrateUp_Idempotent verifies a second run is a no-op.
func TestMigrateUp_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idempotent_test.db")

	if err := MigrateUp(dbPath); err != nil {
		t.Fatalf("first MigrateUp() error = %v", err)
	}
	if err := MigrateUp(dbPath); err != nil {
		t.Fatalf("second MigrateUp() error = %v", err)
	}
}

// TestMigrationVersion verifies version reporting before and after migration.
func TestMigrationVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "version_test.db")

	version, dirty, err := MigrationVersion(dbPath)
	if err != nil {
		t.Fatalf("MigrationVersion() before migrate error = %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("fresh database: version=%d dirty=%v, want 0/false", version, dirty)
	}

	if err := MigrateUp(dbPath); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	version, dirty, err = MigrationVersion(dbPath)
	if err != nil {
		t.Fatalf("MigrationVersion() after migrate error = %v", err)
	}
	if version != latestSchemaVersion {
		t.Errorf("version = %d, want %d", version, latestSchemaVersion)
	}
	if dirty {
		t.Error("database reported dirty after clean migration")
	}
}

// TestMigrateDown rolls everything back.
func TestMigrateDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "down_test.db")

	if err := MigrateUp(dbPath); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	if err := MigrateDown(dbPath, -1); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	conn, err := NewSQLiteConnectionWithDefaults(dbPath)
	if err != nil {
		t.Fatalf("open after rollback: %v", err)
	}
	defer conn.Close()

	var name string
	err = conn.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='styles'",
	).Scan(&name)
	if err == nil {
		t.Error("styles table still present after full rollback")
	}
}

// TestForceMigrationVersion repairs a version without running migrations.
func TestForceMigrationVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "force_test.db")

	if err := MigrateUp(dbPath); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	if err := ForceMigrationVersion(dbPath, 1); err != nil {
		t.Fatalf("ForceMigrationVersion() error = %v", err)
	}

	version, dirty, err := MigrationVersion(dbPath)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version=%d dirty=%v, want 1/false", version, dirty)
	}
}
