package middlewares

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"request_pipeline/internal/observability"
)

// responseWriter wraps http.ResponseWriter to capture response details for logging
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

// WriteHeader captures the status code for logging
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures response size for logging
func (rw *responseWriter) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.bytesWritten += int64(n)
	return n, err
}

// Hijack implements the http.Hijacker interface for WebSocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("the ResponseWriter doesn't support Hijacker")
	}
	return hijacker.Hijack()
}

// LoggerConfig holds configuration options for the HTTP access logger
type LoggerConfig struct {
	Logger             *slog.Logger // Structured logger instance
	SkipPaths          []string     // Paths to skip logging (e.g., health checks)
	IncludeUserAgent   bool         // Whether to include User-Agent header
	IncludeQueryParams bool         // Whether to include query parameters

	// CacheHeader is the response header carrying the cache outcome.
	CacheHeader string
}

// DefaultLoggerConfig creates a production-ready logger configuration with sensible defaults
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Logger:             slog.Default(),
		SkipPaths:          []string{"/health/live", "/health/ready", "/metrics", "/favicon.ico"},
		IncludeUserAgent:   true,
		IncludeQueryParams: true,
		CacheHeader:        "X-Cache",
	}
}

// Logger creates an HTTP access log middleware. The request id is taken from
// the context set by observability.RequestID.
func Logger(config *LoggerConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkipPath(r.URL.Path, config.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			fields := buildLogFields(r, wrapped, time.Since(startTime), config)
			logRequest(config.Logger, wrapped.statusCode, fields)
		})
	}
}

// shouldSkipPath checks if the given path should be skipped from logging
func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath {
			return true
		}
	}
	return false
}

// buildLogFields creates structured log fields from request and response data
func buildLogFields(r *http.Request, rw *responseWriter, duration time.Duration, config *LoggerConfig) []any {
	fields := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", rw.statusCode,
		"latency_ms", duration.Milliseconds(),
		"client_ip", getClientIP(r),
		"response_size", rw.bytesWritten,
	}

	if id := observability.GetRequestID(r.Context()); id != "" {
		fields = append(fields, "request_id", id)
	}
	if config.CacheHeader != "" {
		if status := rw.Header().Get(config.CacheHeader); status != "" {
			fields = append(fields, "cache", status)
		}
	}
	if config.IncludeQueryParams && len(r.URL.RawQuery) > 0 {
		fields = append(fields, "query", r.URL.RawQuery)
	}
	if config.IncludeUserAgent {
		if userAgent := r.Header.Get("User-Agent"); userAgent != "" {
			fields = append(fields, "user_agent", userAgent)
		}
	}

	return fields
}

// logRequest logs the request with appropriate level based on status code
func logRequest(logger *slog.Logger, statusCode int, fields []any) {
	switch {
	case statusCode >= 500:
		logger.Error("server error", fields...)
	case statusCode >= 400:
		logger.Warn("client error", fields...)
	default:
		logger.Info("request handled", fields...)
	}
}

// getClientIP prefers proxy headers over the socket address
func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
