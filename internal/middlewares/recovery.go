package middlewares

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"request_pipeline/internal/observability"
)

// RecoveryConfig holds configuration for recovery middleware
type RecoveryConfig struct {
	// Logger for structured logging (optional, uses slog.Default if nil)
	Logger *slog.Logger

	// DisableStackTrace omits the stack from panic logs
	DisableStackTrace bool

	// Recovery function that handles the panic
	RecoveryHandler func(w http.ResponseWriter, r *http.Request, err any, stack []byte)

	// Development mode includes the panic value and stack in responses
	Development bool
}

// DefaultRecoveryConfig returns a default recovery configuration
func DefaultRecoveryConfig() *RecoveryConfig {
	return &RecoveryConfig{RecoveryHandler: defaultRecoveryHandler}
}

func defaultRecoveryHandler(w http.ResponseWriter, r *http.Request, err any, stack []byte) {
	writeRecovery(w, map[string]any{
		"error":      "Internal Server Error",
		"message":    "An unexpected error occurred",
		"request_id": observability.GetRequestID(r.Context()),
	})
}

func developmentRecoveryHandler(w http.ResponseWriter, r *http.Request, err any, stack []byte) {
	writeRecovery(w, map[string]any{
		"error":      "Internal Server Error",
		"message":    fmt.Sprintf("Panic: %v", err),
		"stack":      string(stack),
		"method":     r.Method,
		"path":       r.URL.Path,
		"timestamp":  time.Now().Format(time.RFC3339),
		"request_id": observability.GetRequestID(r.Context()),
	})
}

func writeRecovery(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(body)
}

// Recovery returns a middleware turning panics into 500 responses
func Recovery(config *RecoveryConfig) func(next http.Handler) http.Handler {
	if config == nil {
		config = DefaultRecoveryConfig()
	}
	if config.RecoveryHandler == nil {
		if config.Development {
			config.RecoveryHandler = developmentRecoveryHandler
		} else {
			config.RecoveryHandler = defaultRecoveryHandler
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				var stack []byte
				if !config.DisableStackTrace || config.Development {
					stack = debug.Stack()
				}

				logAttrs := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"client_ip", getClientIP(r),
					"error", fmt.Sprintf("%v", err),
				}
				if requestID := observability.GetRequestID(r.Context()); requestID != "" {
					logAttrs = append(logAttrs, "request_id", requestID)
				}
				if !config.DisableStackTrace {
					logAttrs = append(logAttrs, "stack", string(stack))
				}
				logger.Error("panic recovered", logAttrs...)

				config.RecoveryHandler(w, r, err, stack)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
