package db

import (
	"context"
	"fmt"
	"time"
)

// CleanupResult contains statistics about a cleanup run.
type CleanupResult struct {
	// TransformationsDeleted is the number of journal rows deleted
	TransformationsDeleted int64
	// Duration is how long the cleanup took
	Duration time.Duration
}

// Cleanup deletes journal rows older than retentionDays and runs VACUUM to
// reclaim disk space. The style catalog and prompt records are never
// touched; only the append-only transformations journal has a retention
// policy.
func (d *Database) Cleanup(retentionDays int) (CleanupResult, error) {
	return d.CleanupWithContext(context.Background(), retentionDays)
}

// CleanupWithContext is the context-aware version of Cleanup. It returns
// early if the context is cancelled, rolling back any pending changes.
func (d *Database) CleanupWithContext(ctx context.Context, retentionDays int) (CleanupResult, error) {
	start := time.Now()
	result := CleanupResult{}

	if retentionDays < 0 {
		return result, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}

	select {
	case <-ctx.Done():
		return result, ctx.Err()
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return result, fmt.Errorf("database connection is closed")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			tx.Rollback() // No-op if already committed
		}
	}()

	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM transformations WHERE created_at < datetime('now', '-%d days')",
		retentionDays))
	if err != nil {
		return result, fmt.Errorf("failed to delete old transformations: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}
	result.TransformationsDeleted = deleted

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	select {
	case <-ctx.Done():
		// Deletes committed, VACUUM skipped: acceptable partial success
		result.Duration = time.Since(start)
		return result, ctx.Err()
	default:
	}

	// VACUUM must run outside a transaction
	if _, err := d.db.ExecContext(ctx, "VACUUM"); err != nil {
		// The data was already deleted; report but don't lose the result
		result.Duration = time.Since(start)
		return result, fmt.Errorf("cleanup succeeded but VACUUM failed: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// CleanupSchedulerConfig holds configuration for the periodic cleanup.
type CleanupSchedulerConfig struct {
	// RetentionDays is the number of days to retain journal rows
	RetentionDays int
	// Interval is how often to run cleanup
	Interval time.Duration
	// OnCleanup is called after each run; useful for logging or metrics
	OnCleanup func(result CleanupResult, err error)
}

// DefaultCleanupSchedulerConfig returns sensible defaults.
func DefaultCleanupSchedulerConfig() CleanupSchedulerConfig {
	return CleanupSchedulerConfig{
		RetentionDays: 30,
		Interval:      24 * time.Hour,
	}
}

// StartCleanupScheduler runs cleanup immediately and then at each interval
// until the context is cancelled.
func (d *Database) StartCleanupScheduler(ctx context.Context, retentionDays int, interval time.Duration) {
	d.StartCleanupSchedulerWithConfig(ctx, CleanupSchedulerConfig{
		RetentionDays: retentionDays,
		Interval:      interval,
	})
}

// StartCleanupSchedulerWithConfig starts a cleanup scheduler with custom
// configuration, including a per-run callback.
func (d *Database) StartCleanupSchedulerWithConfig(ctx context.Context, config CleanupSchedulerConfig) {
	go func() {
		result, err := d.CleanupWithContext(ctx, config.RetentionDays)
		if config.OnCleanup != nil {
			config.OnCleanup(result, err)
		}

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				result, err := d.CleanupWithContext(ctx, config.RetentionDays)
				if config.OnCleanup != nil {
					config.OnCleanup(result, err)
				}
			}
		}
	}()
}
