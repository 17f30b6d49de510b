package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Log      LogConfig
	Auth     AuthConfig

	// Responders holds per-responder options keyed by responder name.
	Responders map[string]ResponderConfig

	// Messages is the lexicon for system messages.
	Messages map[string]string

	Route404 Route404Config
}

// AppConfig holds application-level settings
type AppConfig struct {
	Version     string
	BuildID     string
	Environment string // development, staging, production
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string
	Port string

	// Hosts lists accepted Host header values. Empty accepts any host.
	Hosts []string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// CacheConfig selects and tunes the response cache backend
type CacheConfig struct {
	// Driver is one of none, memory, redis, postgres, fallback
	Driver     string
	Prefix     string
	DefaultTTL time.Duration

	// Table is the postgres cache table
	Table string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL               string
	MaxConns          int32
	MinConns          int32
	HealthCheckPeriod time.Duration
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	ConnectTimeout    time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string
	// Format is json or text; empty picks text on a terminal
	Format string

	// File enables rotated file output
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// ResponderConfig holds the options of one named responder
type ResponderConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

// CORSConfig holds the origin policy of a responder
type CORSConfig struct {
	Disabled bool `mapstructure:"disabled"`

	// Origins is either a single static origin or an allow list
	Origins            []string `mapstructure:"origins"`
	Credentials        bool     `mapstructure:"credentials"`
	ExposeHeaders      []string `mapstructure:"expose_headers"`
	AllowHeaders       []string `mapstructure:"allow_headers"`
	MaxAge             int      `mapstructure:"max_age"`
	KeepHeadersOnError *bool    `mapstructure:"keep_headers_on_error"`
}

// Route404Config selects the methods served by the custom 404 route
type Route404Config struct {
	Methods []string `mapstructure:"methods"`
}

// Cache drivers
const (
	CacheDriverNone     = "none"
	CacheDriverMemory   = "memory"
	CacheDriverRedis    = "redis"
	CacheDriverPostgres = "postgres"
	CacheDriverFallback = "fallback"
)

// LoadConfig loads configuration from .env, the environment and, when
// CONFIG_FILE is set, a config file. File values win over the environment.
func LoadConfig(logger *slog.Logger) (*Config, error) {
	// Load .env file (ignore error if it doesn't exist)
	godotenv.Load()

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("loading application configuration")

	config := &Config{
		Responders: map[string]ResponderConfig{},
		Messages:   map[string]string{},
	}

	loadAppConfig(&config.App, logger)
	if err := loadServerConfig(&config.Server, logger); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	loadCacheConfig(&config.Cache)
	loadRedisConfig(&config.Redis)
	loadDatabaseConfig(&config.Database)
	loadLogConfig(&config.Log)
	loadAuthConfig(&config.Auth, logger)
	loadCORSConfig(config)
	config.Route404.Methods = splitAndTrim(os.Getenv("ROUTE404_METHODS"), ",")

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := mergeFile(config, path); err != nil {
			return nil, err
		}
		logger.Info("configuration file merged", "path", path)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.Info("configuration loaded successfully",
		"environment", config.App.Environment,
		"version", config.App.Version,
		"port", config.Server.Port,
		"cache_driver", config.Cache.Driver,
	)

	return config, nil
}

func loadAppConfig(cfg *AppConfig, logger *slog.Logger) {
	cfg.Version = os.Getenv("VERSION")
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
		logger.Warn("VERSION not set, using default", "default", cfg.Version)
	}
	cfg.BuildID = os.Getenv("BUILD_ID")

	cfg.Environment = os.Getenv("ENV")
	if cfg.Environment == "" {
		cfg.Environment = "development"
		logger.Warn("ENV not set, using default", "default", cfg.Environment)
	}
}

func loadServerConfig(cfg *ServerConfig, logger *slog.Logger) error {
	cfg.Host = os.Getenv("HOST")
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
		logger.Warn("PORT not set, using default", "default", cfg.Port)
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT %q", cfg.Port)
	}

	cfg.Hosts = splitAndTrim(os.Getenv("SERVER_HOSTS"), ",")
	cfg.ReadTimeout = getEnvAsSeconds("SERVER_READ_TIMEOUT_SECONDS", 15)
	cfg.WriteTimeout = getEnvAsSeconds("SERVER_WRITE_TIMEOUT_SECONDS", 30)
	cfg.IdleTimeout = getEnvAsSeconds("SERVER_IDLE_TIMEOUT_SECONDS", 60)
	cfg.RequestTimeout = getEnvAsSeconds("SERVER_REQUEST_TIMEOUT_SECONDS", 0)
	cfg.ShutdownTimeout = getEnvAsSeconds("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30)
	return nil
}

func loadCacheConfig(cfg *CacheConfig) {
	cfg.Driver = strings.ToLower(os.Getenv("CACHE_DRIVER"))
	if cfg.Driver == "" {
		cfg.Driver = CacheDriverMemory
	}
	cfg.Prefix = os.Getenv("CACHE_PREFIX")
	if cfg.Prefix == "" {
		cfg.Prefix = "pipeline:"
	}
	cfg.DefaultTTL = getEnvAsSeconds("CACHE_DEFAULT_TTL_SECONDS", 300)
	cfg.Table = os.Getenv("CACHE_TABLE")
}

func loadRedisConfig(cfg *RedisConfig) {
	cfg.Addr = os.Getenv("REDIS_ADDR")
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	cfg.Password = os.Getenv("REDIS_PASSWORD")
	cfg.DB = getEnvAsInt("REDIS_DB", 0)
}

func loadDatabaseConfig(cfg *DatabaseConfig) {
	cfg.URL = os.Getenv("DATABASE_URL")
	cfg.MaxConns = getEnvAsInt32("DB_MAX_CONNS", 10)
	cfg.MinConns = getEnvAsInt32("DB_MIN_CONNS", 2)
	cfg.HealthCheckPeriod = getEnvAsSeconds("DB_HEALTH_CHECK_PERIOD_SECONDS", 60)
	cfg.MaxConnLifetime = time.Duration(getEnvAsInt("DB_MAX_CONN_LIFETIME_MINUTES", 0)) * time.Minute
	cfg.MaxConnIdleTime = time.Duration(getEnvAsInt("DB_MAX_CONN_IDLE_TIME_MINUTES", 0)) * time.Minute
	cfg.ConnectTimeout = getEnvAsSeconds("DB_CONNECT_TIMEOUT_SECONDS", 10)
	cfg.MaxRetries = getEnvAsInt("DB_MAX_RETRIES", 3)
	cfg.RetryDelay = getEnvAsSeconds("DB_RETRY_DELAY_SECONDS", 1)
}

func loadLogConfig(cfg *LogConfig) {
	cfg.Level = os.Getenv("LOG_LEVEL")
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	cfg.Format = strings.ToLower(os.Getenv("LOG_FORMAT"))
	cfg.File = os.Getenv("LOG_FILE")
	cfg.MaxSizeMB = getEnvAsInt("LOG_MAX_SIZE_MB", 100)
	cfg.MaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", 10)
	cfg.Compress = getEnvAsBool("LOG_COMPRESS", true)
}

func loadAuthConfig(cfg *AuthConfig, logger *slog.Logger) {
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, auth.jwt middleware is not registered")
	}
	cfg.JWTIssuer = os.Getenv("JWT_ISSUER")
}

// loadCORSConfig maps the CORS_* variables onto the json responder.
func loadCORSConfig(config *Config) {
	origins := splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"), ",")
	if len(origins) == 0 && os.Getenv("CORS_ALLOW_CREDENTIALS") == "" {
		return
	}
	config.Responders["json"] = ResponderConfig{CORS: CORSConfig{
		Origins:       origins,
		Credentials:   getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
		ExposeHeaders: splitAndTrim(os.Getenv("CORS_EXPOSE_HEADERS"), ","),
		AllowHeaders:  splitAndTrim(os.Getenv("CORS_ALLOWED_HEADERS"), ","),
		MaxAge:        getEnvAsInt("CORS_MAX_AGE", 0),
	}}
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvAsInt32(key string, defaultVal int32) int32 {
	return int32(getEnvAsInt(key, int(defaultVal)))
}

func getEnvAsSeconds(key string, defaultVal int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultVal)) * time.Second
}

func getEnvAsBool(key string, defaultVal bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultVal
}

func splitAndTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// IsDevelopment reports whether the app runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction reports whether the app runs in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetServerAddress returns the listen address
func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Cache.Driver {
	case CacheDriverNone, CacheDriverMemory, CacheDriverRedis, CacheDriverFallback:
	case CacheDriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("cache driver %q requires DATABASE_URL", c.Cache.Driver)
		}
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}

	if c.Cache.DefaultTTL < 0 {
		return fmt.Errorf("cache default TTL must not be negative")
	}

	for name, r := range c.Responders {
		if r.CORS.MaxAge < 0 {
			return fmt.Errorf("responder %q: cors max_age must not be negative", name)
		}
	}

	return nil
}
