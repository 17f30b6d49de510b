package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check function
type HealthCheck func(ctx context.Context) (HealthStatus, string, error)

// HealthConfig holds configuration for health check endpoints
type HealthConfig struct {
	Logger *slog.Logger

	// Dependency checks run by the readiness endpoint
	Checks map[string]HealthCheck

	// Timeout for the whole readiness run
	CheckTimeout time.Duration

	// Version reported by both endpoints
	Version string
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

var startTime = time.Now()

// Pinger is implemented by cache backends and connection pools.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports unhealthy when p cannot be reached.
func PingCheck(component string, p Pinger) HealthCheck {
	return func(ctx context.Context) (HealthStatus, string, error) {
		if err := p.Ping(ctx); err != nil {
			return StatusUnhealthy, component + " unreachable", err
		}
		return StatusHealthy, component + " is healthy", nil
	}
}

// DatabaseCheck pings the pool and reports connection counts.
func DatabaseCheck(pool *pgxpool.Pool) HealthCheck {
	return func(ctx context.Context) (HealthStatus, string, error) {
		if err := pool.Ping(ctx); err != nil {
			return StatusUnhealthy, "Database connection failed", err
		}
		stat := pool.Stat()
		msg := fmt.Sprintf("Database is healthy (conns: total=%d, idle=%d, acquired=%d)",
			stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns())
		if stat.MaxConns() > 0 && stat.AcquiredConns() >= stat.MaxConns() {
			return StatusDegraded, msg, nil
		}
		return StatusHealthy, msg, nil
	}
}

// RunChecks executes checks concurrently.
func RunChecks(ctx context.Context, checks map[string]HealthCheck) map[string]CheckResult {
	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex
	var g errgroup.Group

	for name, check := range checks {
		name, check := name, check
		g.Go(func() error {
			result := runHealthCheck(ctx, check)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

// runHealthCheck executes a check, giving up when ctx ends
func runHealthCheck(ctx context.Context, check HealthCheck) CheckResult {
	start := time.Now()

	resultChan := make(chan CheckResult, 1)
	go func() {
		status, message, err := check(ctx)
		result := CheckResult{
			Status:  status,
			Message: message,
			Latency: time.Since(start).String(),
		}
		if err != nil {
			result.Error = err.Error()
			if result.Status == StatusHealthy {
				result.Status = StatusUnhealthy
			}
		}
		resultChan <- result
	}()

	select {
	case result := <-resultChan:
		return result
	case <-ctx.Done():
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "Health check timed out",
			Error:   ctx.Err().Error(),
			Latency: time.Since(start).String(),
		}
	}
}

// ReadinessHandler returns an HTTP handler for readiness checks
// Endpoint: GET /health/ready
func ReadinessHandler(config *HealthConfig) http.HandlerFunc {
	if config == nil {
		config = &HealthConfig{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.CheckTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		checks := RunChecks(ctx, config.Checks)
		status := StatusHealthy
		for _, c := range checks {
			if c.Status == StatusUnhealthy {
				status = StatusUnhealthy
				break
			}
			if c.Status == StatusDegraded {
				status = StatusDegraded
			}
		}

		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
			logger.Warn("readiness check failed", "checks", checks)
		}

		writeJSON(w, code, map[string]any{
			"status":    status,
			"ready":     status != StatusUnhealthy,
			"version":   config.Version,
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		})
	}
}

// LivenessHandler returns an HTTP handler for liveness checks
// Endpoint: GET /health/live
func LivenessHandler(config *HealthConfig) http.HandlerFunc {
	version := ""
	if config != nil {
		version = config.Version
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"alive":     true,
			"version":   version,
			"timestamp": time.Now().Format(time.RFC3339),
			"uptime":    time.Since(startTime).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
