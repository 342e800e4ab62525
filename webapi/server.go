// This file contains the Server: the chi router, its dependencies behind
// small interfaces, and the HTTP listener lifecycle.
package webapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ai_backend/core"
	"ai_backend/db"
	"ai_backend/scheduler"
	"ai_backend/styles"
)

// JobService is the scheduler surface the HTTP layer needs. The catalog
// reload lives here rather than on StyleDirectory because the scheduler
// serializes the snapshot swap against the accelerator session. Satisfied
// by *scheduler.Scheduler.
type JobService interface {
	Submit(req scheduler.Request) (string, error)
	Poll(jobID string) (scheduler.Status, error)
	Await(ctx context.Context, jobID string) (scheduler.Status, error)
	Cancel(jobID string) error
	ReloadStyles(ctx context.Context) (int, error)
	QueueDepth() int
	ActiveJobs() int
}

// StyleDirectory is the registry's tier-filtered listing surface.
// Satisfied by *styles.Registry.
type StyleDirectory interface {
	List(callerTier styles.Tier) []styles.Descriptor
}

// ModelController exposes base model readiness and the operator reload.
// Satisfied by *fluxruntime.Engine.
type ModelController interface {
	Available() bool
	ReloadModel(ctx context.Context) error
}

// TelemetrySource exposes accelerator telemetry. Satisfied by
// *metrics.AcceleratorCollector. Optional; nil disables the endpoints.
type TelemetrySource interface {
	IsAvailable() bool
	CurrentMetrics() core.AcceleratorMetrics
	History(limit int) []core.AcceleratorMetrics
	LastError() error
}

// ActivityJournal exposes the transformation journal's read side. Satisfied
// by *db.JournalStore. Optional; nil disables the journal endpoints.
type ActivityJournal interface {
	QueryRecent(ctx context.Context, limit int) ([]core.TransformationRecord, error)
	QueryByClient(ctx context.Context, clientID string, limit int) ([]core.TransformationRecord, error)
	CountByState(ctx context.Context, since time.Time) ([]db.StateCount, error)
}

// ServerConfig configures the HTTP listener and request limits.
type ServerConfig struct {
	// Host to bind to (default: "localhost")
	Host string

	// Port to listen on (default: 8080)
	Port int

	// ReadTimeout for requests (default: 30s)
	ReadTimeout time.Duration

	// WriteTimeout for responses. Must exceed AwaitTimeout or long polls
	// are cut off mid-wait (default: 2m)
	WriteTimeout time.Duration

	// IdleTimeout for keep-alive connections (default: 120s)
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration

	// MaxUploadBytes caps source image uploads (default: 10 MB)
	MaxUploadBytes int64

	// AwaitTimeout is the ceiling on a single long-poll wait (default: 60s)
	AwaitTimeout time.Duration

	// Version reported by the health endpoint
	Version string

	// ArtifactDir, when set, is served read-only under /artifacts/
	ArtifactDir string

	// OperatorToken guards the operator endpoints. Empty disables them.
	OperatorToken string
}

// DefaultServerConfig returns a ServerConfig with production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "localhost",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    2 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxUploadBytes:  DefaultMaxUploadBytes,
		AwaitTimeout:    60 * time.Second,
		Version:         "0.0.0",
	}
}

// Server is the HTTP front of the backend. It routes requests to the
// scheduler, the style registry, the telemetry collector, and the journal,
// and hosts the WebSocket hub and the Prometheus endpoint.
type Server struct {
	config ServerConfig
	logger *zap.Logger

	jobs      JobService
	styleDir  StyleDirectory
	model     ModelController
	telemetry TelemetrySource
	journal   ActivityJournal
	hub       *Hub
	guard     *TokenGuard

	maxUploadBytes int64
	awaitTimeout   time.Duration
	version        string
	startedAt      time.Time

	httpServer *http.Server
}

// NewServer wires a Server. jobs, styleDir, and model are required;
// telemetry, journal, and hub are optional and disable their routes when
// nil. An operator token in the config enables the operator endpoints.
func NewServer(
	config ServerConfig,
	jobs JobService,
	styleDir StyleDirectory,
	model ModelController,
	telemetry TelemetrySource,
	journal ActivityJournal,
	hub *Hub,
	logger *zap.Logger,
) (*Server, error) {
	if jobs == nil {
		return nil, fmt.Errorf("webapi: job service is required")
	}
	if styleDir == nil {
		return nil, fmt.Errorf("webapi: style directory is required")
	}
	if model == nil {
		return nil, fmt.Errorf("webapi: model controller is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port <= 0 {
		config.Port = 8080
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if config.AwaitTimeout <= 0 {
		config.AwaitTimeout = 60 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 2 * time.Minute
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		config:         config,
		logger:         logger.Named("webapi"),
		jobs:           jobs,
		styleDir:       styleDir,
		model:          model,
		telemetry:      telemetry,
		journal:        journal,
		hub:            hub,
		maxUploadBytes: config.MaxUploadBytes,
		awaitTimeout:   config.AwaitTimeout,
		version:        config.Version,
		startedAt:      time.Now(),
	}

	if config.OperatorToken != "" {
		guard, err := NewTokenGuard(config.OperatorToken, logger)
		if err != nil {
			return nil, err
		}
		s.guard = guard
	}

	if hub != nil {
		hub.SetSnapshot(s.snapshot)
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	logger.Info("web server created",
		zap.String("addr", addr),
		zap.Bool("operator_enabled", s.guard != nil),
		zap.Bool("websocket_enabled", hub != nil))

	return s, nil
}

// Handler builds the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/health/model", s.handleModelHealth)
	r.Get("/health/accelerator", s.handleAcceleratorHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/transformations", s.handleSubmit)
		r.Get("/transformations/{jobID}", s.handlePoll)
		r.Get("/transformations/{jobID}/await", s.handleAwait)
		r.Delete("/transformations/{jobID}", s.handleCancel)
		r.Get("/styles", s.handleStyles)
	})

	r.Handle("/metrics", promhttp.Handler())

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleConnection)
	}

	if s.guard != nil {
		r.Route("/operator", func(r chi.Router) {
			r.Use(s.guard.Middleware)
			r.Post("/styles/reload", s.handleReloadStyles)
			r.Post("/model/reload", s.handleReloadModel)
			r.Get("/journal/recent", s.handleJournalRecent)
			r.Get("/journal/activity", s.handleJournalActivity)
		})
	}

	if s.config.ArtifactDir != "" {
		fs := http.StripPrefix("/artifacts/",
			http.FileServer(http.Dir(s.config.ArtifactDir)))
		r.Get("/artifacts/*", fs.ServeHTTP)
	}

	return r
}

// snapshot builds the initial frame for new WebSocket clients.
func (s *Server) snapshot() InitialData {
	data := InitialData{
		System: SystemStatusData{
			Health:     s.healthWord(),
			Version:    s.version,
			UptimeSecs: time.Since(s.startedAt).Seconds(),
			QueueDepth: s.jobs.QueueDepth(),
			ActiveJobs: s.jobs.ActiveJobs(),
		},
	}
	if s.telemetry != nil && s.telemetry.IsAvailable() {
		t := telemetryData(s.telemetry.CurrentMetrics())
		data.Telemetry = &t
	}
	return data
}

func (s *Server) healthWord() string {
	if s.model.Available() {
		return "running"
	}
	return "degraded"
}

// requestLogger logs each request with status and duration. Health probes
// are skipped to keep the log readable.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr))
	})
}

// Start runs the listener. Blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("web server starting", zap.String("addr", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webapi: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("web server shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webapi: shutdown: %w", err)
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Guard returns the operator token guard, nil when operator endpoints are
// disabled. Exposed for periodic attempt-record cleanup.
func (s *Server) Guard() *TokenGuard { return s.guard }
