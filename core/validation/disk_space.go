package validation

import (
	"ai_backend/core"
	"fmt"
	"os"
	"runtime"
)

// DiskSpaceInfo contains information about disk space.
type DiskSpaceInfo struct {
	// Path that was checked
	Path string
	// Total disk space in bytes
	Total int64
	// Free disk space in bytes
	Free int64
	// Used disk space in bytes
	Used int64
	// Human-readable total
	TotalFormatted string
	// Human-readable free
	FreeFormatted string
	// Human-readable used
	UsedFormatted string
	// Percentage used (0-100)
	UsedPercent float64
}

// DiskSpaceError indicates a disk space problem.
type DiskSpaceError struct {
	// Path that was checked
	Path string
	// Required space in bytes
	Required int64
	// Available space in bytes
	Available int64
	// Human-readable message
	Message string
}

func (e *DiskSpaceError) Error() string {
	return e.Message
}

// GetDiskSpace returns disk space information for the given path.
// The path can be a file or directory; the function will check the filesystem
// containing that path.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	// Ensure the path exists by trying to stat it
	// If it doesn't exist, try the parent directory
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Try parent directory
			parentPath := getParentPath(path)
			if parentPath != "" && parentPath != path {
				return GetDiskSpace(parentPath)
			}
		}
		return nil, fmt.Errorf("cannot access path %s: %w", path, err)
	}

	// If it's a file, use its parent directory
	if !info.IsDir() {
		parentPath := getParentPath(path)
		if parentPath != "" {
			path = parentPath
		}
	}

	// Get disk space using platform-specific implementation
	total, free, err := getDiskSpace(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", path, err)
	}

	used := total - free
	var usedPercent float64
	if total > 0 {
		usedPercent = float64(used) / float64(total) * 100
	}

	return &DiskSpaceInfo{
		Path:           path,
		Total:          total,
		Free:           free,
		Used:           used,
		TotalFormatted: core.FormatBytes(total),
		FreeFormatted:  core.FormatBytes(free),
		UsedFormatted:  core.FormatBytes(used),
		UsedPercent:    usedPercent,
	}, nil
}

// CheckDiskSpace verifies there is sufficient disk space at the given path.
// Returns nil if there is enough space, or a DiskSpaceError if not.
// requiredBytes is the minimum required free space in bytes.
func CheckDiskSpace(path string, requiredBytes int64) error {
	info, err := GetDiskSpace(path)
	if err != nil {
		return err
	}

	if info.Free < requiredBytes {
		return &DiskSpaceError{
			Path:      path,
			Required:  requiredBytes,
			Available: info.Free,
			Message: fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
				path, core.FormatBytes(requiredBytes), info.FreeFormatted),
		}
	}

	return nil
}

// CheckDiskSpaceForArtifacts checks if there's enough space for rendered
// artifacts to accumulate. bufferPercent is additional headroom as a
// percentage (e.g., 10 for 10% extra).
func CheckDiskSpaceForArtifacts(path string, expectedBytes int64, bufferPercent int) error {
	// Headroom for temp files written during atomic uploads.
	buffer := expectedBytes * int64(bufferPercent) / 100
	required := expectedBytes + buffer

	return CheckDiskSpace(path, required)
}

// DefaultArtifactSpaceBytes is the free space expected for artifact storage (~2GB).
const DefaultArtifactSpaceBytes int64 = 2 * core.BytesPerGB

// DefaultBufferPercent is the default headroom percentage for temporary files.
const DefaultBufferPercent = 10

// CheckDiskSpaceForDefaultArtifacts checks disk space for artifact storage.
// Uses DefaultArtifactSpaceBytes (2GB) with DefaultBufferPercent (10%) headroom.
func CheckDiskSpaceForDefaultArtifacts(path string) error {
	return CheckDiskSpaceForArtifacts(path, DefaultArtifactSpaceBytes, DefaultBufferPercent)
}

// getParentPath returns the parent directory of a path.
// Returns "" if the path has no parent (e.g., "/" or ".").
func getParentPath(path string) string {
	// Handle special cases
	if path == "" || path == "." || path == "/" {
		return ""
	}

	// Handle different OS path separators
	if runtime.GOOS == "windows" {
		// Handle Windows paths like C:\foo\bar
		// Remove trailing separator if present
		if len(path) > 1 && (path[len(path)-1] == '\\' || path[len(path)-1] == '/') {
			path = path[:len(path)-1]
		}
		for i := len(path) - 1; i >= 0; i-- {
			if path[i] == '\\' || path[i] == '/' {
				if i == 2 && len(path) > 2 && path[1] == ':' {
					// Return drive root like "C:\"
					return path[:3]
				}
				if i == 0 {
					return ""
				}
				return path[:i]
			}
		}
		return ""
	}

	// Unix-like paths
	// Remove trailing separator if present
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	sep := string(os.PathSeparator)
	for i := len(path) - 1; i >= 0; i-- {
		if string(path[i]) == sep {
			if i == 0 {
				return "/" // Parent of /foo is /
			}
			return path[:i]
		}
	}
	return ""
}
