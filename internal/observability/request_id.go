package observability

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the context key for request ID
const RequestIDKey contextKey = "request_id"

// RequestIDConfig holds configuration for request ID middleware
type RequestIDConfig struct {
	// Header name for request ID
	// Default: X-Request-ID
	Header string

	// Generator creates request IDs
	// Default: random UUID
	Generator func() string
}

// RequestID returns a middleware that reuses or assigns a request ID and
// exposes it in the response header and the request context.
func RequestID(config *RequestIDConfig) func(next http.Handler) http.Handler {
	header := "X-Request-ID"
	generate := uuid.NewString
	if config != nil {
		if config.Header != "" {
			header = config.Header
		}
		if config.Generator != nil {
			generate = config.Generator
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(header)
			if requestID == "" || len(requestID) > 128 {
				requestID = generate()
			}

			w.Header().Set(header, requestID)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
		})
	}
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

// WithRequestID returns a context with the given request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}
