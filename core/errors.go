package core

import (
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeEnvFileMissing     = "ENV_FILE_MISSING"
	ErrCodeMissingConfig      = "MISSING_CONFIG"
	ErrCodeInvalidListenAddr  = "INVALID_LISTEN_ADDR"
	ErrCodeModelMissing       = "MODEL_MISSING"
	ErrCodeAdapterDirMissing  = "ADAPTER_DIR_MISSING"
	ErrCodeAdapterMissing     = "ADAPTER_ARTIFACT_MISSING"
	ErrCodeDataDirUnwritable  = "DATA_DIR_UNWRITABLE"
	ErrCodeInvalidTierSizes   = "INVALID_TIER_SIZES"
	ErrCodeMissingOperatorKey = "MISSING_OPERATOR_KEY"
	ErrCodeDatabaseOpen       = "DATABASE_OPEN_FAILED"
)

// ErrEnvFileMissing returns an error for missing .env file
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Copy example.env to .env and configure the required values",
	}
}

// ErrMissingConfig returns an error for a missing required configuration value
func ErrMissingConfig(name string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Required configuration missing: %s", name),
		Action:  fmt.Sprintf("Set %s in config.yaml or the environment", name),
	}
}

// ErrInvalidListenAddr returns an error for a malformed HTTP listen address
func ErrInvalidListenAddr(addr string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidListenAddr,
		Message: fmt.Sprintf("Invalid listen address '%s': %s", addr, reason),
		Action:  "Set server.listen_addr to host:port (e.g., 0.0.0.0:8080)",
	}
}

// ErrModelMissing returns an error for an absent base model artifact
func ErrModelMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeModelMissing,
		Message: fmt.Sprintf("Base model artifact not found: %s", path),
		Action:  "Set model.path to the base model file, or download it before starting",
	}
}

// ErrAdapterDirMissing returns an error for an absent style adapter directory
func ErrAdapterDirMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeAdapterDirMissing,
		Message: fmt.Sprintf("Style adapter directory not found: %s", path),
		Action:  "Set model.adapter_dir to the directory holding the style adapter artifacts",
	}
}

// ErrAdapterArtifactMissing returns an error for an absent style adapter artifact
func ErrAdapterArtifactMissing(name string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeAdapterMissing,
		Message: fmt.Sprintf("Style adapter artifact not found: %s", name),
		Action:  "Place the adapter file under model.adapter_dir or remove the style from the catalog",
	}
}

// ErrDataDirUnwritable returns an error for a data directory that cannot be written
func ErrDataDirUnwritable(path string, cause error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeDataDirUnwritable,
		Message: fmt.Sprintf("Data directory not writable: %s (%v)", path, cause),
		Action:  "Fix permissions on the data directory or point HASSELIZE_DATA_DIR elsewhere",
	}
}

// ErrInvalidTierSizes returns an error for a malformed resolution tier table
func ErrInvalidTierSizes(detail string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidTierSizes,
		Message: fmt.Sprintf("Invalid resolution tier configuration: %s", detail),
		Action:  "Each tier needs a positive pixel size, strictly increasing preview < standard < high",
	}
}

// ErrMissingOperatorKey returns an error for a missing operator token hash
func ErrMissingOperatorKey() *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingOperatorKey,
		Message: "Operator token hash not configured",
		Action:  "Set OPERATOR_TOKEN_HASH to a bcrypt hash to enable the admin endpoints",
	}
}

// ErrDatabaseOpen returns an error for a database that failed to open
func ErrDatabaseOpen(path string, cause error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeDatabaseOpen,
		Message: fmt.Sprintf("Failed to open database at %s: %v", path, cause),
		Action:  "Check the path exists and the file is not locked by another process",
	}
}
