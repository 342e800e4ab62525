package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"ai_backend/core"
)

// ValidationResult represents the result of a configuration validation check.
type ValidationResult struct {
	Valid   bool
	Message string
	Error   error
}

// Inputs holds the resolved configuration values the startup checks run
// against. Built from the loaded config before the daemon starts.
type Inputs struct {
	// EnvPath is the optional .env override file (default: ".env")
	EnvPath string

	// ModelPath is the base model artifact file
	ModelPath string

	// AdapterDir is the directory holding style adapter artifacts
	AdapterDir string

	// AdapterFiles are the artifact filenames the style catalog expects,
	// relative to AdapterDir
	AdapterFiles []string

	// DatabasePath is the SQLite database file
	DatabasePath string

	// ArtifactDir is the rendered artifact storage root
	ArtifactDir string

	// ListenAddr is the HTTP listen address (host:port)
	ListenAddr string
}

// ConfigValidator composes validation atoms to provide comprehensive startup
// checking: artifact presence, directory writability, and address shape.
type ConfigValidator struct {
	inputs Inputs
}

// NewConfigValidator creates a ConfigValidator for the given inputs.
func NewConfigValidator(inputs Inputs) *ConfigValidator {
	if inputs.EnvPath == "" {
		inputs.EnvPath = ".env"
	}
	return &ConfigValidator{inputs: inputs}
}

// CheckEnvFile reports whether the optional .env override file is present.
// A missing file is valid: the YAML config and real environment still apply.
func (v *ConfigValidator) CheckEnvFile() ValidationResult {
	if err := CheckFileExists(v.inputs.EnvPath); err != nil {
		return ValidationResult{
			Valid:   true,
			Message: "No .env override file (optional)",
		}
	}
	return ValidationResult{
		Valid:   true,
		Message: "Environment override file found",
	}
}

// CheckModelArtifact validates that the base model artifact exists. An empty
// path means the deployment renders through a remote backend and needs no
// local model file.
func (v *ConfigValidator) CheckModelArtifact() ValidationResult {
	if v.inputs.ModelPath == "" {
		return ValidationResult{
			Valid:   true,
			Message: "No local model configured (remote backend)",
		}
	}
	if err := CheckFileExists(v.inputs.ModelPath); err != nil {
		return ValidationResult{
			Valid:   false,
			Message: "Base model artifact missing: " + v.inputs.ModelPath,
			Error:   core.ErrModelMissing(v.inputs.ModelPath),
		}
	}
	return ValidationResult{
		Valid:   true,
		Message: "Base model artifact found",
	}
}

// CheckAdapterArtifacts validates that the adapter directory exists and that
// every artifact the style catalog references is present.
func (v *ConfigValidator) CheckAdapterArtifacts() ValidationResult {
	if v.inputs.AdapterDir == "" {
		return ValidationResult{
			Valid:   false,
			Message: "Adapter directory not configured",
			Error:   core.ErrMissingConfig("model.adapter_dir"),
		}
	}

	info, err := os.Stat(v.inputs.AdapterDir)
	if err != nil || !info.IsDir() {
		return ValidationResult{
			Valid:   false,
			Message: "Adapter directory missing: " + v.inputs.AdapterDir,
			Error:   core.ErrAdapterDirMissing(v.inputs.AdapterDir),
		}
	}

	var missing []string
	for _, name := range v.inputs.AdapterFiles {
		path := filepath.Join(v.inputs.AdapterDir, filepath.FromSlash(name))
		if err := CheckFileExists(path); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%d of %d adapter artifacts missing", len(missing), len(v.inputs.AdapterFiles)),
			Error:   core.ErrAdapterArtifactMissing(missing[0]),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("All %d adapter artifacts present", len(v.inputs.AdapterFiles)),
	}
}

// CheckDatabasePath validates that the database file's directory exists or
// can be created, and is writable.
func (v *ConfigValidator) CheckDatabasePath() ValidationResult {
	if v.inputs.DatabasePath == "" {
		return ValidationResult{
			Valid:   false,
			Message: "Database path not configured",
			Error:   core.ErrMissingConfig("database.path"),
		}
	}

	dir := filepath.Dir(v.inputs.DatabasePath)
	if err := checkDirWritable(dir); err != nil {
		return ValidationResult{
			Valid:   false,
			Message: "Database directory not writable: " + dir,
			Error:   core.ErrDataDirUnwritable(dir, err),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: "Database directory writable",
	}
}

// CheckArtifactDir validates that the artifact storage root exists or can be
// created, and is writable.
func (v *ConfigValidator) CheckArtifactDir() ValidationResult {
	if v.inputs.ArtifactDir == "" {
		return ValidationResult{
			Valid:   false,
			Message: "Artifact directory not configured",
			Error:   core.ErrMissingConfig("storage.artifact_dir"),
		}
	}

	if err := checkDirWritable(v.inputs.ArtifactDir); err != nil {
		return ValidationResult{
			Valid:   false,
			Message: "Artifact directory not writable: " + v.inputs.ArtifactDir,
			Error:   core.ErrDataDirUnwritable(v.inputs.ArtifactDir, err),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: "Artifact directory writable",
	}
}

// CheckListenAddr validates the shape of the HTTP listen address.
func (v *ConfigValidator) CheckListenAddr() ValidationResult {
	if v.inputs.ListenAddr == "" {
		return ValidationResult{
			Valid:   false,
			Message: "Listen address not configured",
			Error:   core.ErrMissingConfig("server.listen_addr"),
		}
	}

	if err := ValidateListenAddr(v.inputs.ListenAddr); err != nil {
		return ValidationResult{
			Valid:   false,
			Message: "Invalid listen address: " + v.inputs.ListenAddr,
			Error:   core.ErrInvalidListenAddr(v.inputs.ListenAddr, err.Error()),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: "Listen address valid",
	}
}

// ValidateAll runs all configuration checks and returns all results.
func (v *ConfigValidator) ValidateAll() []ValidationResult {
	return []ValidationResult{
		v.CheckEnvFile(),
		v.CheckListenAddr(),
		v.CheckModelArtifact(),
		v.CheckAdapterArtifacts(),
		v.CheckDatabasePath(),
		v.CheckArtifactDir(),
	}
}

// ValidateRequired runs the required checks and returns the first failure,
// or nil if all pass.
func (v *ConfigValidator) ValidateRequired() error {
	checks := []func() ValidationResult{
		v.CheckListenAddr,
		v.CheckModelArtifact,
		v.CheckAdapterArtifacts,
		v.CheckDatabasePath,
		v.CheckArtifactDir,
	}
	for _, check := range checks {
		if result := check(); !result.Valid {
			return result.Error
		}
	}
	return nil
}

// IsValid returns true if all required configuration is valid.
func (v *ConfigValidator) IsValid() bool {
	return v.ValidateRequired() == nil
}

// CountValid returns the number of valid configuration items.
func (v *ConfigValidator) CountValid() int {
	count := 0
	for _, r := range v.ValidateAll() {
		if r.Valid {
			count++
		}
	}
	return count
}

// CountInvalid returns the number of invalid configuration items.
func (v *ConfigValidator) CountInvalid() int {
	results := v.ValidateAll()
	return len(results) - v.CountValid()
}

// checkDirWritable ensures dir exists (creating it if needed) and that a
// file can be written in it.
func checkDirWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
