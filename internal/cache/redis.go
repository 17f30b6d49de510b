package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements a Redis-backed cache
type RedisCache struct {
	client *redis.Client
	config *Config
	logger *slog.Logger
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Common cache config
	*Config

	// Redis connection address
	Addr string

	// Redis password
	Password string

	// Redis database number
	DB int

	// Maximum number of retries
	MaxRetries int

	// Connection pool size
	PoolSize int

	// Connection timeout
	DialTimeout time.Duration

	// Read timeout
	ReadTimeout time.Duration

	// Write timeout
	WriteTimeout time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultRedisConfig returns a default Redis configuration
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Config:       DefaultConfig(),
		Addr:         "localhost:6379",
		MaxRetries:   3,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(config *RedisConfig) (*RedisCache, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	if config.Config == nil {
		config.Config = DefaultConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("redis connection failed", "error", err, "addr", config.Addr)
		client.Close()
		return nil, &CacheError{Op: "connect", Err: err}
	}

	logger.Info("redis cache initialized", "addr", config.Addr, "db", config.DB)

	return &RedisCache{
		client: client,
		config: config.Config,
		logger: logger,
	}, nil
}

// Get retrieves a value from Redis
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !rc.config.Enabled {
		return nil, ErrCacheDisabled
	}

	key = rc.prefixKey(key)

	result, err := rc.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheNotFound
		}
		rc.logger.Error("redis get failed", "error", err, "key", key)
		return nil, &CacheError{Op: "get", Key: key, Err: err}
	}

	return result, nil
}

// Set stores a value in Redis with optional TTL
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !rc.config.Enabled {
		return ErrCacheDisabled
	}

	key = rc.prefixKey(key)

	if ttl == 0 {
		ttl = rc.config.DefaultTTL
	}

	if err := rc.client.Set(ctx, key, value, ttl).Err(); err != nil {
		rc.logger.Error("redis set failed", "error", err, "key", key)
		return &CacheError{Op: "set", Key: key, Err: err}
	}

	return nil
}

// Delete removes a value from Redis
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if !rc.config.Enabled {
		return ErrCacheDisabled
	}

	key = rc.prefixKey(key)

	if err := rc.client.Del(ctx, key).Err(); err != nil {
		rc.logger.Error("redis delete failed", "error", err, "key", key)
		return &CacheError{Op: "delete", Key: key, Err: err}
	}

	return nil
}

// Exists checks if a key exists in Redis
func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	if !rc.config.Enabled {
		return false, ErrCacheDisabled
	}

	key = rc.prefixKey(key)

	count, err := rc.client.Exists(ctx, key).Result()
	if err != nil {
		rc.logger.Error("redis exists failed", "error", err, "key", key)
		return false, &CacheError{Op: "exists", Key: key, Err: err}
	}

	return count > 0, nil
}

// Clear removes all keys carrying our prefix
func (rc *RedisCache) Clear(ctx context.Context) error {
	if !rc.config.Enabled {
		return ErrCacheDisabled
	}

	iter := rc.client.Scan(ctx, 0, rc.prefixKey("*"), 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return &CacheError{Op: "clear", Err: err}
	}
	if len(batch) == 0 {
		return nil
	}

	if err := rc.client.Del(ctx, batch...).Err(); err != nil {
		rc.logger.Error("redis clear failed", "error", err)
		return &CacheError{Op: "clear", Err: err}
	}

	return nil
}

// Ping checks if Redis is accessible
func (rc *RedisCache) Ping(ctx context.Context) error {
	if !rc.config.Enabled {
		return ErrCacheDisabled
	}

	if err := rc.client.Ping(ctx).Err(); err != nil {
		return &CacheError{Op: "ping", Err: err}
	}

	return nil
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func (rc *RedisCache) prefixKey(key string) string {
	if rc.config.Prefix == "" {
		return key
	}
	return rc.config.Prefix + key
}
