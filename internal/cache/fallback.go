package cache

import (
	"context"
	"log/slog"
	"time"
)

// FallbackCache implements a cache with Redis primary and memory fallback
type FallbackCache struct {
	primary    Cache
	fallback   Cache
	logger     *slog.Logger
	usePrimary bool
}

// FallbackConfig holds fallback cache configuration
type FallbackConfig struct {
	// Redis configuration
	Redis *RedisConfig

	// Memory cache configuration
	Memory *Config

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultFallbackConfig returns a default fallback configuration
func DefaultFallbackConfig() *FallbackConfig {
	return &FallbackConfig{
		Redis:  DefaultRedisConfig(),
		Memory: DefaultConfig(),
	}
}

// NewFallbackCache creates a new fallback cache. An unreachable Redis is
// not an error: the memory cache then serves alone.
func NewFallbackCache(config *FallbackConfig) *FallbackCache {
	if config == nil {
		config = DefaultFallbackConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var primary Cache
	redisCache, err := NewRedisCache(config.Redis)
	if err != nil {
		logger.Warn("redis cache unavailable, using memory cache only", "error", err)
	} else {
		primary = redisCache
		logger.Info("fallback cache initialized with redis primary")
	}

	return newFallback(primary, NewMemoryCache(config.Memory), logger)
}

func newFallback(primary, fallback Cache, logger *slog.Logger) *FallbackCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackCache{
		primary:    primary,
		fallback:   fallback,
		logger:     logger,
		usePrimary: primary != nil,
	}
}

// Get retrieves a value from cache (primary first, then fallback)
func (fc *FallbackCache) Get(ctx context.Context, key string) ([]byte, error) {
	if fc.usePrimary {
		value, err := fc.primary.Get(ctx, key)
		if err == nil {
			return value, nil
		}

		// a miss on a healthy primary is authoritative
		if IsNotFound(err) {
			return nil, err
		}

		fc.logger.Warn("primary cache get failed, trying fallback", "error", err, "key", key)
	}

	return fc.fallback.Get(ctx, key)
}

// Set stores a value in both caches
func (fc *FallbackCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var primaryErr error

	if fc.usePrimary {
		primaryErr = fc.primary.Set(ctx, key, value, ttl)
		if primaryErr != nil {
			fc.logger.Warn("primary cache set failed", "error", primaryErr, "key", key)
		}
	}

	// Always update fallback
	if err := fc.fallback.Set(ctx, key, value, ttl); err != nil {
		fc.logger.Error("fallback cache set failed", "error", err, "key", key)
		return err
	}

	return primaryErr
}

// Delete removes a value from both caches
func (fc *FallbackCache) Delete(ctx context.Context, key string) error {
	if fc.usePrimary {
		if err := fc.primary.Delete(ctx, key); err != nil {
			fc.logger.Warn("primary cache delete failed", "error", err, "key", key)
		}
	}

	return fc.fallback.Delete(ctx, key)
}

// Exists checks if a key exists in either cache
func (fc *FallbackCache) Exists(ctx context.Context, key string) (bool, error) {
	if fc.usePrimary {
		exists, err := fc.primary.Exists(ctx, key)
		if err == nil {
			return exists, nil
		}
		fc.logger.Warn("primary cache exists check failed, trying fallback", "error", err, "key", key)
	}

	return fc.fallback.Exists(ctx, key)
}

// Clear removes all entries from both caches
func (fc *FallbackCache) Clear(ctx context.Context) error {
	if fc.usePrimary {
		if err := fc.primary.Clear(ctx); err != nil {
			fc.logger.Warn("primary cache clear failed", "error", err)
		}
	}

	return fc.fallback.Clear(ctx)
}

// Ping checks if the primary cache is accessible
func (fc *FallbackCache) Ping(ctx context.Context) error {
	if fc.usePrimary {
		return fc.primary.Ping(ctx)
	}
	return fc.fallback.Ping(ctx)
}

// Close closes both caches
func (fc *FallbackCache) Close() error {
	if fc.primary != nil {
		fc.primary.Close()
	}
	return fc.fallback.Close()
}
