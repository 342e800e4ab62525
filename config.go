package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ai_backend/core"
	"ai_backend/scheduler"
)

// Config is the full daemon configuration. Values come from config.yaml,
// overridden by HASSELIZE_* environment variables (which the optional .env
// file may populate).
type Config struct {
	Server    ServerSection    `yaml:"server"`
	Model     ModelSection     `yaml:"model"`
	Database  DatabaseSection  `yaml:"database"`
	Storage   StorageSection   `yaml:"storage"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Telemetry TelemetrySection `yaml:"telemetry"`
	Logging   LoggingSection   `yaml:"logging"`
}

// ServerSection configures the HTTP front end.
type ServerSection struct {
	ListenAddr     string        `yaml:"listen_addr"`
	AwaitTimeout   time.Duration `yaml:"await_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	// OperatorToken enables the /operator endpoints when non-empty.
	// Prefer setting it via HASSELIZE_OPERATOR_TOKEN rather than the file.
	OperatorToken string `yaml:"operator_token"`
}

// ModelSection configures the inference backend.
type ModelSection struct {
	// Path is the base model artifact file
	Path string `yaml:"path"`
	// AdapterDir holds the style adapter artifacts
	AdapterDir string `yaml:"adapter_dir"`
	// Backend selects the renderer: "local" or "remote"
	Backend string `yaml:"backend"`
	// Remote API settings, used when Backend is "remote"
	RemoteAPIKey  string `yaml:"remote_api_key"`
	RemoteBaseURL string `yaml:"remote_base_url"`
	RemoteModel   string `yaml:"remote_model"`
}

// DatabaseSection configures the SQLite store.
type DatabaseSection struct {
	Path string `yaml:"path"`
}

// StorageSection configures rendered artifact storage.
type StorageSection struct {
	ArtifactDir string `yaml:"artifact_dir"`
	// BaseURL is the public URL prefix artifact keys are joined to
	BaseURL string `yaml:"base_url"`
}

// TelemetrySection configures accelerator sampling.
type TelemetrySection struct {
	Interval      time.Duration `yaml:"interval"`
	HistorySize   int           `yaml:"history_size"`
	NvidiaSMIPath string        `yaml:"nvidia_smi_path"`
}

// LoggingSection configures the structured logger.
type LoggingSection struct {
	DevMode bool   `yaml:"dev_mode"`
	File    string `yaml:"file"`
}

// DefaultConfig returns the shipped defaults. Paths are relative to the
// working directory so a bare checkout runs with just a model in place.
func DefaultConfig() Config {
	return Config{
		Server: ServerSection{
			ListenAddr:     "127.0.0.1:8080",
			AwaitTimeout:   60 * time.Second,
			MaxUploadBytes: 10 << 20,
		},
		Model: ModelSection{
			Path:       "models/flux-schnell.safetensors",
			AdapterDir: "models/adapters",
			Backend:    "local",
		},
		Database: DatabaseSection{
			Path: core.GetDataFilePath("hasselize.db"),
		},
		Storage: StorageSection{
			ArtifactDir: core.GetDataFilePath("artifacts"),
			BaseURL:     "/artifacts",
		},
		Scheduler: scheduler.DefaultConfig(),
		Telemetry: TelemetrySection{
			Interval:    5 * time.Second,
			HistorySize: 720,
		},
		Logging: LoggingSection{
			File: "hasselize.log",
		},
	}
}

// LoadConfig reads configuration from the given YAML file, then applies
// environment overrides. A missing file is fine when path is empty (the
// default "config.yaml" is tried); an explicitly requested file must exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults plus environment only.
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides layers HASSELIZE_* environment variables over the file.
func applyEnvOverrides(cfg *Config) {
	cfg.Server.ListenAddr = core.GetEnvOrDefault("HASSELIZE_LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.AwaitTimeout = core.ParseDurationEnv("HASSELIZE_AWAIT_TIMEOUT", cfg.Server.AwaitTimeout)
	cfg.Server.MaxUploadBytes = core.ParseInt64Env("HASSELIZE_MAX_UPLOAD_BYTES", cfg.Server.MaxUploadBytes)
	cfg.Server.OperatorToken = core.GetEnvOrDefault("HASSELIZE_OPERATOR_TOKEN", cfg.Server.OperatorToken)

	cfg.Model.Path = core.GetEnvOrDefault("HASSELIZE_MODEL_PATH", cfg.Model.Path)
	cfg.Model.AdapterDir = core.GetEnvOrDefault("HASSELIZE_ADAPTER_DIR", cfg.Model.AdapterDir)
	cfg.Model.Backend = core.GetEnvOrDefault("HASSELIZE_MODEL_BACKEND", cfg.Model.Backend)
	cfg.Model.RemoteAPIKey = core.GetEnvOrDefault("HASSELIZE_REMOTE_API_KEY", cfg.Model.RemoteAPIKey)
	cfg.Model.RemoteBaseURL = core.GetEnvOrDefault("HASSELIZE_REMOTE_BASE_URL", cfg.Model.RemoteBaseURL)
	cfg.Model.RemoteModel = core.GetEnvOrDefault("HASSELIZE_REMOTE_MODEL", cfg.Model.RemoteModel)

	cfg.Database.Path = core.GetEnvOrDefault("HASSELIZE_DB_PATH", cfg.Database.Path)

	cfg.Storage.ArtifactDir = core.GetEnvOrDefault("HASSELIZE_ARTIFACT_DIR", cfg.Storage.ArtifactDir)
	cfg.Storage.BaseURL = core.GetEnvOrDefault("HASSELIZE_ARTIFACT_BASE_URL", cfg.Storage.BaseURL)

	cfg.Scheduler.RateLimitCount = core.ParseIntEnv("HASSELIZE_RATE_LIMIT_COUNT", cfg.Scheduler.RateLimitCount)
	cfg.Scheduler.RateLimitWindow = core.ParseDurationEnv("HASSELIZE_RATE_LIMIT_WINDOW", cfg.Scheduler.RateLimitWindow)
	cfg.Scheduler.Workers = core.ParseIntEnv("HASSELIZE_WORKERS", cfg.Scheduler.Workers)

	cfg.Telemetry.Interval = core.ParseDurationEnv("HASSELIZE_TELEMETRY_INTERVAL", cfg.Telemetry.Interval)
	cfg.Telemetry.NvidiaSMIPath = core.GetEnvOrDefault("HASSELIZE_NVIDIA_SMI", cfg.Telemetry.NvidiaSMIPath)

	cfg.Logging.DevMode = core.ParseBoolEnv("HASSELIZE_DEV_MODE", cfg.Logging.DevMode)
	cfg.Logging.File = core.GetEnvOrDefault("HASSELIZE_LOG_FILE", cfg.Logging.File)
}

// Validate checks required values and cross-field constraints.
func (c Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return core.ErrMissingConfig("server.listen_addr")
	}
	if c.Model.Backend != "local" && c.Model.Backend != "remote" {
		return fmt.Errorf("model.backend must be \"local\" or \"remote\", got %q", c.Model.Backend)
	}
	if c.Model.Backend == "remote" && c.Model.RemoteAPIKey == "" {
		return core.ErrMissingConfig("model.remote_api_key")
	}
	if c.Model.Backend == "local" && c.Model.Path == "" {
		return core.ErrMissingConfig("model.path")
	}
	if c.Model.AdapterDir == "" {
		return core.ErrMissingConfig("model.adapter_dir")
	}
	if c.Database.Path == "" {
		return core.ErrMissingConfig("database.path")
	}
	if c.Storage.ArtifactDir == "" {
		return core.ErrMissingConfig("storage.artifact_dir")
	}
	return c.Scheduler.Validate()
}
