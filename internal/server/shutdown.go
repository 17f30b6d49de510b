package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"request_pipeline/internal/cache"
)

// ShutdownConfig holds configuration for graceful shutdown
type ShutdownConfig struct {
	// Logger for structured logging
	Logger *slog.Logger

	// Timeout for graceful shutdown
	Timeout time.Duration
}

// DefaultShutdownConfig returns a default shutdown configuration
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{Timeout: 30 * time.Second}
}

// Resource represents a resource that needs cleanup during shutdown
type Resource interface {
	Name() string
	Close(ctx context.Context) error
}

// ShutdownManager closes registered resources once the server stopped
type ShutdownManager struct {
	config    *ShutdownConfig
	logger    *slog.Logger
	resources []Resource
	mu        sync.RWMutex
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(config *ShutdownConfig) *ShutdownManager {
	if config == nil {
		config = DefaultShutdownConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ShutdownManager{
		config: config,
		logger: logger,
	}
}

// Register adds a resource to be cleaned up during shutdown
func (sm *ShutdownManager) Register(resource Resource) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.resources = append(sm.resources, resource)
	sm.logger.Debug("resource registered for shutdown", "resource", resource.Name())
}

// Shutdown closes all registered resources concurrently and waits for them
// or for ctx to end.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.mu.RLock()
	resources := make([]Resource, len(sm.resources))
	copy(resources, sm.resources)
	sm.mu.RUnlock()

	sm.logger.Info("closing resources", "resources", len(resources))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := len(resources) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(r Resource) {
			defer wg.Done()
			start := time.Now()
			if err := r.Close(ctx); err != nil {
				sm.logger.Error("failed to close resource",
					"resource", r.Name(),
					"error", err,
					"duration", time.Since(start).String(),
				)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			sm.logger.Info("resource closed", "resource", r.Name(), "duration", time.Since(start).String())
		}(resources[i])
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		mu.Lock()
		defer mu.Unlock()
		return errors.Join(errs...)
	case <-ctx.Done():
		sm.logger.Warn("shutdown timeout exceeded, forcing shutdown")
		return ctx.Err()
	}
}

// DatabaseResource wraps a database pool for graceful shutdown
type DatabaseResource struct {
	pool *pgxpool.Pool
	name string
}

// NewDatabaseResource creates a new database resource
func NewDatabaseResource(name string, pool *pgxpool.Pool) *DatabaseResource {
	return &DatabaseResource{pool: pool, name: name}
}

func (d *DatabaseResource) Name() string {
	return d.name
}

// pgxpool.Close() doesn't accept context, but we can wait for it
func (d *DatabaseResource) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.pool.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CacheResource closes a cache backend
type CacheResource struct {
	cache cache.Cache
	name  string
}

// NewCacheResource creates a new cache resource
func NewCacheResource(name string, c cache.Cache) *CacheResource {
	return &CacheResource{cache: c, name: name}
}

func (c *CacheResource) Name() string {
	return c.name
}

func (c *CacheResource) Close(ctx context.Context) error {
	return c.cache.Close()
}

// CustomResource wraps a custom cleanup function
type CustomResource struct {
	name      string
	closeFunc func(ctx context.Context) error
}

// NewCustomResource creates a new custom resource
func NewCustomResource(name string, closeFunc func(ctx context.Context) error) *CustomResource {
	return &CustomResource{name: name, closeFunc: closeFunc}
}

func (c *CustomResource) Name() string {
	return c.name
}

func (c *CustomResource) Close(ctx context.Context) error {
	return c.closeFunc(ctx)
}
