package middlewares

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// BuildConfig holds the values of the build headers
type BuildConfig struct {
	// Version is sent as X-Build-Version
	Version string

	// ID is sent as X-Build-Id
	ID string
}

// BuildHeaders adds X-Build-Version and X-Build-Id to every response.
// Empty values are not sent.
func BuildHeaders(config BuildConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Version != "" {
				w.Header().Set("X-Build-Version", config.Version)
			}
			if config.ID != "" {
				w.Header().Set("X-Build-Id", config.ID)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HostConfig holds configuration for the host check middleware
type HostConfig struct {
	Logger *slog.Logger

	// Hosts lists accepted Host header values (port ignored). A leading
	// "*." accepts any subdomain. Empty disables the check.
	Hosts []string

	// Skipper defines a function to skip middleware
	Skipper func(r *http.Request) bool
}

// HostCheck rejects requests whose Host header is not configured with 400.
func HostCheck(config *HostConfig) func(next http.Handler) http.Handler {
	if config == nil || len(config.Hosts) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hosts := make([]string, len(config.Hosts))
	for i, h := range config.Hosts {
		hosts[i] = strings.ToLower(h)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Skipper != nil && config.Skipper(r) {
				next.ServeHTTP(w, r)
				return
			}

			host := strings.ToLower(r.Host)
			if h, _, err := net.SplitHostPort(host); err == nil {
				host = h
			}
			if !hostAllowed(host, hosts) {
				logger.Warn("host rejected", "host", r.Host, "path", r.URL.Path)
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hostAllowed(host string, hosts []string) bool {
	for _, h := range hosts {
		if h == host {
			return true
		}
		if strings.HasPrefix(h, "*.") && strings.HasSuffix(host, h[1:]) {
			return true
		}
	}
	return false
}
