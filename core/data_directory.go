package core

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the application name used in data directory paths.
const AppName = "Hasselize"

// EnvDataDir overrides the platform default data directory when set.
const EnvDataDir = "HASSELIZE_DATA_DIR"

// GetDataDirectory returns the data directory path for the application.
// HASSELIZE_DATA_DIR takes precedence; otherwise a platform default is used.
//
// Paths by platform:
//   - Windows: %APPDATA%/Hasselize
//   - Linux/macOS: ~/.hasselize
//
// Does NOT create the directory - callers should use EnsureDataDirectory for that.
func GetDataDirectory() string {
	if override := os.Getenv(EnvDataDir); override != "" {
		return override
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return AppName
			}
			return filepath.Join(home, "AppData", "Roaming", AppName)
		}
		return filepath.Join(appData, AppName)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return ".hasselize"
		}
		return filepath.Join(home, ".hasselize")
	}
}

// GetDataFilePath returns the full path for a file within the data directory.
// Example: GetDataFilePath("hasselize.db") -> "/home/user/.hasselize/hasselize.db"
func GetDataFilePath(filename string) string {
	return filepath.Join(GetDataDirectory(), filename)
}

// EnsureDataDirectory creates the data directory if it doesn't exist.
// Returns the directory path and any error encountered.
func EnsureDataDirectory() (string, error) {
	dir := GetDataDirectory()
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return "", err
	}
	return dir, nil
}
