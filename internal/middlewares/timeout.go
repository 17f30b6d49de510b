package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// TimeoutConfig holds configuration for timeout middleware
type TimeoutConfig struct {
	// Logger for structured logging (optional, uses slog.Default if nil)
	Logger *slog.Logger

	// Timeout bounds the request context. Zero disables the middleware.
	Timeout time.Duration

	// SkipTimeoutForPaths defines paths that should not have timeout applied
	SkipTimeoutForPaths []string
}

// Timeout attaches a deadline to the request context. Cache stores, hook
// listeners and controllers observe it through the pipeline context; the
// response itself is still written by the handler.
func Timeout(config *TimeoutConfig) func(next http.Handler) http.Handler {
	if config == nil || config.Timeout <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkipPath(r.URL.Path, config.SkipTimeoutForPaths) {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), config.Timeout)
			defer cancel()

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logger.Warn("request exceeded timeout",
					"method", r.Method,
					"path", r.URL.Path,
					"duration", time.Since(start).String(),
					"timeout", config.Timeout.String(),
				)
			}
		})
	}
}
