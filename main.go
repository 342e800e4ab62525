package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ai_backend/artifact"
	"ai_backend/core"
	"ai_backend/core/validation"
	"ai_backend/db"
	"ai_backend/fluxruntime"
	"ai_backend/logging"
	"ai_backend/metrics"
	"ai_backend/scheduler"
	"ai_backend/shutdown"
	"ai_backend/styles"
	"ai_backend/webapi"
)

// journalRetentionDays is how long terminal-state journal rows are kept
// before the daily cleanup sweep removes them.
const journalRetentionDays = 90

func main() {
	// Service management commands (install/uninstall/start/stop/...)
	if HandleServiceCommand(os.Args) {
		return
	}

	// Windows service mode; returns false when running interactively
	asService, err := RunAsService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service error: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	if asService {
		return
	}

	os.Exit(run(context.Background()))
}

// run builds and operates the daemon until the context is cancelled or a
// shutdown signal arrives. Returns the process exit code.
func run(ctx context.Context) int {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("No .env override file loaded: %v\n", err)
	}

	config, err := LoadConfig(os.Getenv("HASSELIZE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return core.ExitCodeError
	}

	// Initialize structured logger early
	logger, err := logging.NewLogger(config.Logging.DevMode, config.Logging.File)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Printf("Failed to sync logger: %v\n", syncErr)
		}
	}()

	// Run startup validation before heavy operations
	if exitCode := runStartupValidation(logger, config); exitCode != core.ExitCodeSuccess {
		return exitCode
	}

	logger.Info("Configuration loaded",
		zap.String("listen_addr", config.Server.ListenAddr),
		zap.String("backend", config.Model.Backend),
		zap.String("database", config.Database.Path),
		zap.String("artifact_dir", config.Storage.ArtifactDir),
		zap.Int("workers", config.Scheduler.Workers),
		zap.Int("rate_limit", config.Scheduler.RateLimitCount),
		zap.Duration("rate_window", config.Scheduler.RateLimitWindow),
		zap.Bool("dev_mode", config.Logging.DevMode),
		zap.String("version", core.GetVersionInfo()),
	)

	return runDaemon(ctx, config, logger)
}

// runDaemon wires the full stack and blocks until shutdown. Components are
// registered with the shutdown manager in reverse dependency order: the web
// front end stops first, the database closes last.
func runDaemon(ctx context.Context, config Config, logger *logging.Logger) int {
	zl := logger.Zap()

	mgr := shutdown.NewManager(zl, shutdown.WithTimeout(45*time.Second))
	mgr.Start()

	// Database and schema
	database, err := db.NewDatabase(config.Database.Path)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return core.ExitCodeError
	}
	if err := database.Migrate(); err != nil {
		logger.Error("Failed to migrate database", zap.Error(err))
		database.Close()
		return core.ExitCodeError
	}
	mgr.Register("database", 35, func(context.Context) error {
		return database.Close()
	})

	// Style catalog: compiled-in seed, then the database rows
	styleStore := db.NewStyleStore(database)
	registry := styles.NewRegistry(styleStore, zl)
	if err := registry.Reload(ctx); err != nil {
		logger.Warn("Style reload failed, serving compiled-in defaults", zap.Error(err))
	}

	// Prompt chain: deployment override file, versioned records, defaults
	override, err := styles.NewOverrideSource("prompts_override.json")
	if err != nil {
		logger.Error("Failed to load prompt override file", zap.Error(err))
		return core.ExitCodeError
	}
	prompts := styles.NewPromptResolver(zl,
		override,
		styles.NewStoreSource(styleStore),
		styles.DefaultSource{},
	)

	// Inference engine over the single accelerator session
	renderer, err := buildRenderer(config.Model)
	if err != nil {
		logger.Error("Failed to build renderer", zap.Error(err))
		return core.ExitCodeError
	}
	session := fluxruntime.NewSession()
	engine := fluxruntime.NewEngine(session, renderer, config.Model.AdapterDir, zl)
	if err := engine.LoadModel(ctx); err != nil {
		logger.Error("Failed to load base model", zap.Error(err))
		return core.ExitCodeError
	}
	mgr.Register("engine", 25, func(context.Context) error {
		engine.Close()
		return nil
	})

	// Artifact storage
	store, err := artifact.NewFSStore(config.Storage.ArtifactDir, config.Storage.BaseURL)
	if err != nil {
		logger.Error("Failed to open artifact store", zap.Error(err))
		return core.ExitCodeError
	}
	pipeline := artifact.NewPipeline(store, zl)
	mgr.Register("stale-uploads", 40, shutdown.CleanupStaleUploads(zl, config.Storage.ArtifactDir))

	// Terminal-state journal with async writer
	journal := db.NewJournalStore(database, zl)
	journal.Start()
	mgr.Register("journal", 30, func(context.Context) error {
		journal.Stop()
		return nil
	})

	// Telemetry and metrics
	metricsStore := metrics.NewMetricsStore(metrics.StoreConfig{
		JobHistoryCapacity: 100,
		Version:            core.GetVersion(),
	}, time.Now())
	metricsStore.SetModelAvailable(engine.Available())

	collector := metrics.NewAcceleratorCollector(metrics.AcceleratorCollectorConfig{
		CollectionInterval: config.Telemetry.Interval,
		HistorySize:        config.Telemetry.HistorySize,
		NvidiaSMIPath:      config.Telemetry.NvidiaSMIPath,
	}, func(m core.AcceleratorMetrics) {
		metrics.ObserveAcceleratorSample(m)
		metricsStore.UpdateAcceleratorMetrics(m)
	})
	collector.Start()
	mgr.Register("telemetry", 20, func(context.Context) error {
		collector.Stop()
		return nil
	})

	// Live event fan-out to websocket clients
	hub := webapi.NewHub(zl)

	// Scheduler: the only path onto the accelerator
	sched, err := scheduler.New(config.Scheduler, registry, prompts, engine, pipeline, zl,
		scheduler.WithJournal(journal),
		scheduler.WithNotifier(metrics.NewNotifier(metricsStore)),
		scheduler.WithNotifier(hub),
	)
	if err != nil {
		logger.Error("Failed to build scheduler", zap.Error(err))
		return core.ExitCodeError
	}
	sched.Start()
	mgr.Register("scheduler", 15, func(stopCtx context.Context) error {
		return sched.Stop(stopCtx)
	})

	// HTTP front end
	host, port, err := splitListenAddr(config.Server.ListenAddr)
	if err != nil {
		logger.Error("Invalid listen address", zap.Error(err))
		return core.ExitCodeError
	}
	serverConfig := webapi.DefaultServerConfig()
	serverConfig.Host = host
	serverConfig.Port = port
	serverConfig.AwaitTimeout = config.Server.AwaitTimeout
	serverConfig.MaxUploadBytes = config.Server.MaxUploadBytes
	serverConfig.OperatorToken = config.Server.OperatorToken
	serverConfig.Version = core.GetVersion()
	serverConfig.ArtifactDir = config.Storage.ArtifactDir

	server, err := webapi.NewServer(serverConfig, sched, registry, engine, collector, journal, hub, zl)
	if err != nil {
		logger.Error("Failed to build web server", zap.Error(err))
		return core.ExitCodeError
	}

	hubCtx, hubCancel := context.WithCancel(ctx)
	go hub.Run(hubCtx)
	mgr.Register("hub", 12, func(context.Context) error {
		hubCancel()
		return nil
	})

	go func() {
		// Telemetry pushes ride the same hub as job transitions
		ticker := time.NewTicker(config.Telemetry.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-hubCtx.Done():
				return
			case <-ticker.C:
				if collector.IsAvailable() {
					hub.BroadcastTelemetry(collector.CurrentMetrics())
				}
			}
		}
	}()

	go func() {
		// Journal retention: drop old rows once a day
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-hubCtx.Done():
				return
			case <-ticker.C:
				result, err := database.CleanupWithContext(hubCtx, journalRetentionDays)
				if err != nil {
					logger.Warn("Journal cleanup failed", zap.Error(err))
					continue
				}
				logger.Info("Journal cleanup complete",
					zap.Int64("rows_deleted", result.TransformationsDeleted),
					zap.Duration("duration", result.Duration))
			}
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	mgr.Register("web-server", 10, func(stopCtx context.Context) error {
		return server.Shutdown(stopCtx)
	})

	logger.Info("Hasselize backend running",
		zap.String("addr", server.Addr()),
		zap.Int("styles", registry.Count()))

	// Block until a signal, caller cancellation, or listener failure
	select {
	case <-mgr.Context().Done():
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("Web server failed", zap.Error(err))
			mgr.Shutdown()
			return core.ExitCodeError
		}
	}

	if err := mgr.Shutdown(); err != nil {
		logger.Error("Shutdown completed with errors", zap.Error(err))
		return core.ExitCodeError
	}

	logger.Info("Goodbye!")
	return core.ExitCodeSuccess
}

// buildRenderer selects the inference backend from configuration.
func buildRenderer(cfg ModelSection) (fluxruntime.Renderer, error) {
	switch cfg.Backend {
	case "remote":
		return fluxruntime.NewRemoteRenderer(fluxruntime.RemoteConfig{
			APIKey:  cfg.RemoteAPIKey,
			BaseURL: cfg.RemoteBaseURL,
			Model:   cfg.RemoteModel,
		})
	default:
		return fluxruntime.NewLocalRenderer(cfg.Path), nil
	}
}

// runStartupValidation performs comprehensive startup validation.
//
// Returns the appropriate exit code:
//   - ExitCodeSuccess (0) if all validations pass
//   - ExitCodeError (1) if any validation fails
func runStartupValidation(logger *logging.Logger, config Config) int {
	logger.Info("Starting startup validation...")

	inputs := validation.Inputs{
		ModelPath:    "",
		AdapterDir:   config.Model.AdapterDir,
		AdapterFiles: adapterFiles(),
		DatabasePath: config.Database.Path,
		ArtifactDir:  config.Storage.ArtifactDir,
		ListenAddr:   config.Server.ListenAddr,
	}
	if config.Model.Backend == "local" {
		inputs.ModelPath = config.Model.Path
	}

	result := validation.NewValidationSuite(inputs).Validate()

	if !result.Success {
		logger.Error("Startup validation failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)

		// Log individual failures for debugging
		for _, step := range result.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("Validation step failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}

		return core.ExitCodeError
	}

	logger.Info("Startup validation passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Duration("duration", result.Duration),
	)
	return core.ExitCodeSuccess
}

// adapterFiles returns the artifact paths of the compiled-in style set. The
// database may add styles later; their artifacts are verified at first use
// by the engine, not at startup.
func adapterFiles() []string {
	descs := styles.DefaultDescriptors()
	files := make([]string, 0, len(descs))
	for _, d := range descs {
		files = append(files, d.ArtifactPath)
	}
	return files
}

// splitListenAddr breaks host:port into the pieces the web server wants.
func splitListenAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("listen address %q: port: %w", addr, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host, port, nil
}
