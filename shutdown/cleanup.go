package shutdown

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ai_backend/core"

	"go.uber.org/zap"
)

// uploadTempPrefix matches the temp files the artifact store writes before
// renaming them into place. A crash mid-write strands them.
const uploadTempPrefix = ".upload-"

// CleanupStaleUploads returns a shutdown function that removes stranded
// artifact-store temp files under the given root. The store writes
// ".upload-*" files and renames them into place; anything still matching at
// shutdown is garbage from an interrupted write.
//
// Priority recommendation: 40+ (final cleanup, after services stopped)
//
// The cleanup function:
//   - Walks the artifact root removing ".upload-*" files
//   - Logs each removal (success or failure)
//   - Continues even if individual removals fail
//   - Returns nil so cleanup never blocks shutdown (errors are logged)
//
// Usage:
//
//	manager.Register("cleanup-uploads", 45, shutdown.CleanupStaleUploads(logger, cfg.ArtifactDir))
func CleanupStaleUploads(logger *zap.Logger, artifactDir string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		return cleanupStaleUploads(ctx, logger, artifactDir)
	}
}

// CleanupScratchDir returns a shutdown function that removes an entire
// transient directory. Use for scratch space that must not persist between
// runs.
//
// Priority recommendation: 45+ (very final cleanup)
//
// Usage:
//
//	manager.Register("cleanup-scratch", 50, shutdown.CleanupScratchDir(logger, cfg.ScratchDir))
func CleanupScratchDir(logger *zap.Logger, dir string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			logger.Warn("Shutdown context cancelled, skipping scratch removal")
			return nil
		default:
		}
		return removeScratchDir(logger, dir)
	}
}

// cleanupStaleUploads walks artifactDir removing stranded temp files.
// Returns nil even when some removals fail (errors are logged).
func cleanupStaleUploads(ctx context.Context, logger *zap.Logger, artifactDir string) error {
	logger.Debug("Starting stale upload cleanup",
		zap.String("directory", artifactDir),
	)

	if _, err := os.Stat(artifactDir); os.IsNotExist(err) {
		logger.Debug("Artifact directory does not exist, nothing to clean")
		return nil
	}

	var removedCount, failedCount int

	walkErr := filepath.WalkDir(artifactDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("Failed to walk artifact directory entry",
				zap.String("path", path),
				zap.Error(err),
			)
			return nil
		}

		select {
		case <-ctx.Done():
			logger.Warn("Shutdown context cancelled during cleanup",
				zap.Int("removed", removedCount),
			)
			return filepath.SkipAll
		default:
		}

		if d.IsDir() || !strings.HasPrefix(d.Name(), uploadTempPrefix) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			failedCount++
			logger.Warn("Failed to remove stale upload",
				zap.String("file", filepath.Base(path)),
				zap.Error(err),
			)
		} else {
			removedCount++
			logger.Debug("Removed stale upload",
				zap.String("file", filepath.Base(path)),
			)
		}
		return nil
	})
	if walkErr != nil {
		logger.Error("Failed to walk artifact directory",
			zap.String("directory", artifactDir),
			zap.Error(walkErr),
		)
		// Return nil to not block shutdown
		return nil
	}

	if removedCount > 0 || failedCount > 0 {
		logger.Info("Stale upload cleanup complete",
			zap.Int("removed", removedCount),
			zap.Int("failed", failedCount),
		)
	}

	return nil
}

// removeScratchDir removes the directory and all its contents. Returns nil
// if the directory doesn't exist.
func removeScratchDir(logger *zap.Logger, dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		logger.Debug("Scratch directory does not exist, nothing to remove",
			zap.String("directory", dir),
		)
		return nil
	}
	if err != nil {
		logger.Error("Failed to stat scratch directory",
			zap.String("directory", dir),
			zap.Error(err),
		)
		// Return nil to not block shutdown
		return nil
	}

	if !info.IsDir() {
		logger.Warn("Scratch path is not a directory",
			zap.String("path", dir),
		)
		return nil
	}

	if err := os.RemoveAll(dir); err != nil {
		logger.Error("Failed to remove scratch directory",
			zap.String("directory", dir),
			zap.Error(err),
		)
		// Return nil to not block shutdown
		return nil
	}

	logger.Info("Removed scratch directory",
		zap.String("directory", dir),
	)

	return nil
}
