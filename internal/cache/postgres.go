package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCache stores entries in a single table:
//
//	key text primary key, value bytea, expires_at timestamptz null
//
// Expired rows are ignored on read and removed by Purge.
type PostgresCache struct {
	pool   *pgxpool.Pool
	config *Config
	table  string
	logger *slog.Logger
}

// PostgresConfig holds PostgreSQL cache configuration
type PostgresConfig struct {
	*Config

	// Table name (default: response_cache)
	Table string

	// Create the table on startup
	AutoMigrate bool

	Logger *slog.Logger
}

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPostgresCache wraps an existing pool. The pool is owned by the caller.
func NewPostgresCache(ctx context.Context, pool *pgxpool.Pool, config *PostgresConfig) (*PostgresCache, error) {
	if config == nil {
		config = &PostgresConfig{AutoMigrate: true}
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	if config.Table == "" {
		config.Table = "response_cache"
	}
	if !tableName.MatchString(config.Table) {
		return nil, fmt.Errorf("invalid cache table name %q", config.Table)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pc := &PostgresCache{pool: pool, config: config.Config, table: config.Table, logger: logger}

	if config.AutoMigrate {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key text PRIMARY KEY,
			value bytea NOT NULL,
			expires_at timestamptz NULL
		)`, pc.table)
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return nil, &CacheError{Op: "migrate", Err: err}
		}
	}

	logger.Info("postgres cache initialized", "table", pc.table)
	return pc, nil
}

// Get retrieves a live value
func (pc *PostgresCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !pc.config.Enabled {
		return nil, ErrCacheDisabled
	}

	key = pc.prefixKey(key)

	var value []byte
	q := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, pc.table)
	err := pc.pool.QueryRow(ctx, q, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCacheNotFound
		}
		pc.logger.Error("postgres cache get failed", "error", err, "key", key)
		return nil, &CacheError{Op: "get", Key: key, Err: err}
	}
	return value, nil
}

// Set upserts a value
func (pc *PostgresCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !pc.config.Enabled {
		return ErrCacheDisabled
	}

	key = pc.prefixKey(key)
	if ttl == 0 {
		ttl = pc.config.DefaultTTL
	}

	var expires *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expires = &t
	}

	q := fmt.Sprintf(`INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, pc.table)
	if _, err := pc.pool.Exec(ctx, q, key, value, expires); err != nil {
		pc.logger.Error("postgres cache set failed", "error", err, "key", key)
		return &CacheError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Delete removes a value
func (pc *PostgresCache) Delete(ctx context.Context, key string) error {
	if !pc.config.Enabled {
		return ErrCacheDisabled
	}

	key = pc.prefixKey(key)
	if _, err := pc.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, pc.table), key); err != nil {
		return &CacheError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Exists checks if a live key exists
func (pc *PostgresCache) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := pc.Get(ctx, key); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Clear removes all rows under the prefix
func (pc *PostgresCache) Clear(ctx context.Context) error {
	if !pc.config.Enabled {
		return ErrCacheDisabled
	}

	q := fmt.Sprintf(`DELETE FROM %s WHERE starts_with(key, $1)`, pc.table)
	if _, err := pc.pool.Exec(ctx, q, pc.config.Prefix); err != nil {
		return &CacheError{Op: "clear", Err: err}
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (pc *PostgresCache) Purge(ctx context.Context) (int64, error) {
	tag, err := pc.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= now()`, pc.table))
	if err != nil {
		return 0, &CacheError{Op: "purge", Err: err}
	}
	return tag.RowsAffected(), nil
}

// Ping checks the pool
func (pc *PostgresCache) Ping(ctx context.Context) error {
	if err := pc.pool.Ping(ctx); err != nil {
		return &CacheError{Op: "ping", Err: err}
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (pc *PostgresCache) Close() error {
	return nil
}

func (pc *PostgresCache) prefixKey(key string) string {
	return pc.config.Prefix + key
}
