package db

import (
	"context"
	"testing"
	"time"
)

// insertAgedRecord writes a journal row with an explicit created_at.
func insertAgedRecord(t *testing.T, database *Database, jobID string, age time.Duration) {
	t.Helper()
	createdAt := time.Now().Add(-age).UTC().Format(sqliteTimeLayout)
	_, err := database.ExecContext(context.Background(), `
		INSERT INTO transformations (job_id, client_id, style_id, requested_tier, assigned_tier, state, created_at)
		VALUES (?, 'client-a', 'hasselblad', 'preview', 'preview', 'completed', ?)`,
		jobID, createdAt)
	if err != nil {
		t.Fatalf("insert aged record: %v", err)
	}
}

func countTransformations(t *testing.T, database *Database) int {
	t.Helper()
	var count int
	err := database.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM transformations").Scan(&count)
	if err != nil {
		t.Fatalf("count transformations: %v", err)
	}
	return count
}

// TestCleanup_DeletesOldRecords verifies retention keeps recent rows only.
func TestCleanup_DeletesOldRecords(t *testing.T) {
	database := newTestDatabase(t)

	insertAgedRecord(t, database, "old-1", 45*24*time.Hour)
	insertAgedRecord(t, database, "old-2", 31*24*time.Hour)
	insertAgedRecord(t, database, "recent", 24*time.Hour)

	result, err := database.Cleanup(30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if result.TransformationsDeleted != 2 {
		t.Errorf("deleted %d records, want 2", result.TransformationsDeleted)
	}
	if got := countTransformations(t, database); got != 1 {
		t.Errorf("remaining records = %d, want 1", got)
	}
}

// TestCleanup_NothingToDelete is a clean no-op.
func TestCleanup_NothingToDelete(t *testing.T) {
	database := newTestDatabase(t)

	insertAgedRecord(t, database, "recent", time.Hour)

	result, err := database.Cleanup(30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if result.TransformationsDeleted != 0 {
		t.Errorf("deleted %d records, want 0", result.TransformationsDeleted)
	}
}

// TestCleanup_NegativeRetention is rejected.
func TestCleanup_NegativeRetention(t *testing.T) {
	database := newTestDatabase(t)

	if _, err := database.Cleanup(-1); err == nil {
		t.Error("Cleanup(-1) succeeded, want error")
	}
}

// TestCleanup_KeepsCatalog verifies styles survive retention runs.
func TestCleanup_KeepsCatalog(t *testing.T) {
	database := newTestDatabase(t)

	if _, err := database.Cleanup(0); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	var count int
	err := database.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM styles").Scan(&count)
	if err != nil {
		t.Fatalf("count styles: %v", err)
	}
	if count != 4 {
		t.Errorf("styles after cleanup = %d, want 4", count)
	}
}

// TestCleanup_CancelledContext returns early without committing.
func TestCleanup_CancelledContext(t *testing.T) {
	database := newTestDatabase(t)

	insertAgedRecord(t, database, "old", 60*24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := database.CleanupWithContext(ctx, 30); err == nil {
		t.Error("CleanupWithContext() succeeded with cancelled context")
	}
	if got := countTransformations(t, database); got != 1 {
		t.Errorf("cancelled cleanup deleted rows: remaining = %d, want 1", got)
	}
}

// TestStartCleanupScheduler runs the initial cleanup and reports results.
func TestStartCleanupScheduler(t *testing.T) {
	database := newTestDatabase(t)

	insertAgedRecord(t, database, "old", 60*24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan CleanupResult, 1)
	database.StartCleanupSchedulerWithConfig(ctx, CleanupSchedulerConfig{
		RetentionDays: 30,
		Interval:      time.Hour,
		OnCleanup: func(result CleanupResult, err error) {
			if err != nil {
				t.Errorf("scheduled cleanup error = %v", err)
			}
			select {
			case results <- result:
			default:
			}
		},
	})

	select {
	case result := <-results:
		if result.TransformationsDeleted != 1 {
			t.Errorf("initial cleanup deleted %d, want 1", result.TransformationsDeleted)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("initial cleanup did not run")
	}
}
