package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"request_pipeline/internal/middlewares"
	"request_pipeline/internal/observability"
)

// Config holds HTTP server configuration
type Config struct {
	// Server address (host:port)
	Addr string

	// Logger for structured logging
	Logger *slog.Logger

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration

	// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header
	MaxHeaderBytes int
}

// DefaultConfig returns a default server configuration
func DefaultConfig(addr string) *Config {
	return &Config{
		Addr:           addr,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
}

// New creates a new HTTP server with the given configuration
func New(handler http.Handler, config *Config) *http.Server {
	if config == nil {
		config = DefaultConfig(":8080")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &http.Server{
		Addr:           config.Addr,
		Handler:        handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	logger.Info("http server configured",
		"addr", config.Addr,
		"read_timeout", config.ReadTimeout.String(),
		"write_timeout", config.WriteTimeout.String(),
		"idle_timeout", config.IdleTimeout.String(),
	)

	return server
}

// MuxConfig wires the transport around the pipeline
type MuxConfig struct {
	Logger *slog.Logger

	// Pipeline serves every path not claimed by the endpoints below
	Pipeline http.Handler

	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Health   *observability.HealthConfig

	Build middlewares.BuildConfig

	// Hosts restricts the Host header of pipeline requests
	Hosts []string

	// RequestTimeout bounds pipeline request contexts. Zero disables it.
	RequestTimeout time.Duration

	// Development exposes panic details in recovery responses
	Development bool
}

// NewMux builds the outer router: /health/live, /health/ready, /metrics and
// a catch-all handing everything else to the pipeline.
func NewMux(config MuxConfig) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loggerConfig := middlewares.DefaultLoggerConfig()
	loggerConfig.Logger = logger

	r := chi.NewRouter()
	r.Use(observability.RequestID(nil))
	r.Use(middlewares.Logger(loggerConfig))
	r.Use(middlewares.Recovery(&middlewares.RecoveryConfig{Logger: logger, Development: config.Development}))
	r.Use(config.Metrics.Middleware())
	r.Use(middlewares.BuildHeaders(config.Build))

	r.Get("/health/live", observability.LivenessHandler(config.Health))
	r.Get("/health/ready", observability.ReadinessHandler(config.Health))
	if config.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", observability.MetricsHandler(config.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(middlewares.HostCheck(&middlewares.HostConfig{Logger: logger, Hosts: config.Hosts}))
		r.Use(middlewares.Timeout(&middlewares.TimeoutConfig{Logger: logger, Timeout: config.RequestTimeout}))
		r.Handle("/*", config.Pipeline)
	})

	return r
}

// Run serves until ctx is cancelled or the listener fails, then shuts the
// server down and closes the manager's resources.
func Run(ctx context.Context, server *http.Server, manager *ShutdownManager) error {
	if manager == nil {
		manager = NewShutdownManager(nil)
	}
	logger := manager.logger

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated, stopping server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), manager.config.Timeout)
		defer cancel()

		serverErr := server.Shutdown(shutdownCtx)
		if serverErr != nil {
			logger.Error("server shutdown failed", "error", serverErr)
		}
		return errors.Join(serverErr, manager.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
