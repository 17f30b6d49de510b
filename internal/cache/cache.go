package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a byte-oriented key-value backend with expiry. Response entries
// are layered on top of it by KVStore.
type Cache interface {
	// Get retrieves a value. A missing key yields ErrCacheNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with optional TTL (0 = backend default)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)

	// Clear removes all entries under the configured prefix
	Clear(ctx context.Context) error

	// Ping checks if the backend is reachable
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Config holds common cache configuration
type Config struct {
	// Default TTL for entries written with ttl 0 (0 = no expiration)
	DefaultTTL time.Duration

	// Key prefix for all cache keys
	Prefix string

	// Enable/disable cache (useful for testing)
	Enabled bool
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "pipeline:",
		Enabled:    true,
	}
}

// CacheError represents a cache operation error
type CacheError struct {
	Op      string // Operation that failed
	Key     string // Cache key involved
	Err     error  // Underlying error
	Retried bool   // Whether operation was retried
}

func (e *CacheError) Error() string {
	if e.Retried {
		return "cache " + e.Op + " failed (retried): " + e.Err.Error()
	}
	return "cache " + e.Op + " failed: " + e.Err.Error()
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// Common cache errors
var (
	ErrCacheNotFound    = &CacheError{Op: "get", Err: errKeyNotFound}
	ErrCacheUnavailable = &CacheError{Op: "connection", Err: errUnavailable}
	ErrCacheDisabled    = &CacheError{Op: "operation", Err: errDisabled}
)

var (
	errKeyNotFound = customError("key not found")
	errUnavailable = customError("cache unavailable")
	errDisabled    = customError("cache disabled")
)

type customError string

func (e customError) Error() string {
	return string(e)
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, errKeyNotFound)
}
