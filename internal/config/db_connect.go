package config

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DBConfig holds database connection configuration
type DBConfig struct {
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string

	// Logger for structured logging (optional, uses slog.Default if nil)
	Logger *slog.Logger

	// MaxConns is the maximum number of connections in the pool
	// Default: 10
	MaxConns int32

	// MinConns is the minimum number of connections in the pool
	// Default: 2
	MinConns int32

	// MaxConnLifetime is the maximum lifetime of a connection
	// Set to 0 for infinite when using external connection pooler
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum idle time of a connection
	MaxConnIdleTime time.Duration

	// HealthCheckPeriod is the period between health checks
	// Default: 1 minute
	HealthCheckPeriod time.Duration

	// ConnectTimeout is the timeout for establishing connections
	// Default: 10 seconds
	ConnectTimeout time.Duration

	// MaxRetries is the maximum number of connection attempts
	// Default: 3
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	// Uses exponential backoff
	// Default: 1 second
	RetryDelay time.Duration
}

// DefaultDBConfig returns a default database configuration
func DefaultDBConfig(databaseURL string) *DBConfig {
	return &DBConfig{
		DatabaseURL:       databaseURL,
		MaxConns:          10,
		MinConns:          2,
		HealthCheckPeriod: 1 * time.Minute,
		ConnectTimeout:    10 * time.Second,
		MaxRetries:        3,
		RetryDelay:        1 * time.Second,
	}
}

// DBConfig builds pool settings from the loaded configuration
func (d DatabaseConfig) DBConfig(logger *slog.Logger) *DBConfig {
	return &DBConfig{
		DatabaseURL:       d.URL,
		Logger:            logger,
		MaxConns:          d.MaxConns,
		MinConns:          d.MinConns,
		MaxConnLifetime:   d.MaxConnLifetime,
		MaxConnIdleTime:   d.MaxConnIdleTime,
		HealthCheckPeriod: d.HealthCheckPeriod,
		ConnectTimeout:    d.ConnectTimeout,
		MaxRetries:        d.MaxRetries,
		RetryDelay:        d.RetryDelay,
	}
}

// NewPool creates a connection pool, retrying with exponential backoff
// until ctx ends or MaxRetries attempts failed.
func NewPool(ctx context.Context, config *DBConfig) (*pgxpool.Pool, error) {
	if config == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}
	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	logger.Info("initializing database connection pool",
		"max_conns", config.MaxConns,
		"min_conns", config.MinConns,
		"health_check_period", config.HealthCheckPeriod.String(),
	)

	dbConfig, err := pgxpool.ParseConfig(config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if config.MaxConns > 0 {
		dbConfig.MaxConns = config.MaxConns
	}
	dbConfig.MinConns = config.MinConns
	dbConfig.MaxConnLifetime = config.MaxConnLifetime
	dbConfig.MaxConnIdleTime = config.MaxConnIdleTime
	if config.HealthCheckPeriod > 0 {
		dbConfig.HealthCheckPeriod = config.HealthCheckPeriod
	}
	dbConfig.ConnConfig.ConnectTimeout = config.ConnectTimeout

	var lastErr error
	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		pool, err := connect(ctx, dbConfig, config.ConnectTimeout)
		if err == nil {
			logger.Info("database connection pool established",
				"attempt", attempt,
				"total_conns", pool.Stat().TotalConns(),
			)
			return pool, nil
		}

		lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, config.MaxRetries, err)
		logger.Warn("failed to connect to database",
			"attempt", attempt,
			"max_retries", config.MaxRetries,
			"error", err,
		)

		if attempt == config.MaxRetries {
			break
		}
		delay := calculateBackoff(config.RetryDelay, attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", config.MaxRetries, lastErr)
}

func connect(ctx context.Context, dbConfig *pgxpool.Config, timeout time.Duration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// calculateBackoff calculates exponential backoff delay
func calculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	// Exponential backoff: baseDelay * 2^(attempt-1)
	multiplier := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(baseDelay) * multiplier)

	// Cap at 30 seconds
	maxDelay := 30 * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}
