package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"request_pipeline/internal/cache"
	"request_pipeline/internal/config"
	"request_pipeline/internal/cors"
	"request_pipeline/internal/dispatch"
	"request_pipeline/internal/extra"
	"request_pipeline/internal/hooks"
	"request_pipeline/internal/middlewares"
	"request_pipeline/internal/observability"
	"request_pipeline/internal/pipeline"
	"request_pipeline/internal/responder"
	"request_pipeline/internal/server"
	"request_pipeline/internal/web"
)

func main() {
	cfg, err := config.LoadConfig(slog.Default())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, logCloser := newLogger(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdown := server.NewShutdownManager(&server.ShutdownConfig{Logger: logger, Timeout: cfg.Server.ShutdownTimeout})
	health := &observability.HealthConfig{
		Logger:  logger,
		Version: cfg.App.Version,
		Checks:  map[string]observability.HealthCheck{},
	}

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		p, err := config.NewPool(ctx, cfg.Database.DBConfig(logger))
		if err != nil {
			return err
		}
		pool = p
		shutdown.Register(server.NewDatabaseResource("database", pool))
		health.Checks["database"] = observability.DatabaseCheck(pool)
	}

	backend, err := newCacheBackend(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	if backend != nil {
		shutdown.Register(server.NewCacheResource("cache", backend))
		health.Checks["cache"] = observability.PingCheck("cache", backend)
	}

	metricsConfig := observability.DefaultMetricsConfig("pipeline")
	metricsConfig.Logger = logger
	metrics := observability.NewMetrics(metricsConfig)

	var store cache.Store
	if backend != nil {
		store = cache.NewKVStore(backend)
	}

	bus := hooks.NewBus(logger)
	tree := routes()
	lexicon := web.Lexicon(cfg.Messages)

	engines := map[string]*cors.Engine{}
	for _, name := range []string{"json", "text", "xlsx"} {
		rc, ok := cfg.Responders[name]
		if !ok && name != "json" {
			continue
		}
		engine := cors.New(name, rc.CORS.Options(logger), tree)
		engine.Attach(bus)
		engines[name] = engine
	}

	responders := dispatch.NewResponders(
		responder.NewJSON("json", responder.JSONConfig{
			CORS:    engines["json"],
			Bus:     bus,
			Lexicon: lexicon,
			Logger:  logger,
		}),
		responder.NewText("text", engines["text"]),
		responder.NewXLSX("xlsx"),
	)

	controllers := dispatch.NewControllers()
	newCatalog().register(controllers)

	mw := extra.NewRegistry()
	extra.Builtins(mw, extra.JWTConfig{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.JWTIssuer})

	var route404 *pipeline.Route404
	if len(cfg.Route404.Methods) > 0 {
		route404 = &pipeline.Route404{
			Methods: cfg.Route404.Methods,
			Route: &web.Route{
				Name: "404",
				Controller: web.ControllerPoint{Handler: func(*web.Context, any) (any, error) {
					msg := lexicon.Translate(web.MessageNotFound, "Page not found")
					return responder.NewPayload(responder.ErrorBody{Code: http.StatusNotFound, Message: msg}, http.StatusNotFound), nil
				}},
				Responder: web.ResponderPoint{Name: "json"},
			},
		}
	}

	p := pipeline.New(pipeline.Config{
		Bus:         bus,
		Routes:      tree,
		Controllers: controllers,
		Responders:  responders,
		Middleware:  mw,
		Cache:       cache.NewEngine(store, logger, metrics),
		Route404:    route404,
		Lexicon:     lexicon,
		Metrics:     metrics,
		Logger:      logger,
	})

	mux := server.NewMux(server.MuxConfig{
		Logger:         logger,
		Pipeline:       p,
		Metrics:        metrics,
		Gatherer:       prometheus.DefaultGatherer,
		Health:         health,
		Build:          middlewares.BuildConfig{Version: cfg.App.Version, ID: cfg.App.BuildID},
		Hosts:          cfg.Server.Hosts,
		RequestTimeout: cfg.Server.RequestTimeout,
		Development:    cfg.IsDevelopment(),
	})

	srv := server.New(mux, &server.Config{
		Addr:           cfg.GetServerAddress(),
		Logger:         logger,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	})

	return server.Run(ctx, srv, shutdown)
}

// newCacheBackend opens the configured byte store. Driver "none" disables
// response caching.
func newCacheBackend(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (cache.Cache, error) {
	common := &cache.Config{DefaultTTL: cfg.Cache.DefaultTTL, Prefix: cfg.Cache.Prefix, Enabled: true}
	redisConfig := &cache.RedisConfig{
		Config:       common,
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxRetries:   3,
		PoolSize:     10,
		DialTimeout:  cache.DefaultRedisConfig().DialTimeout,
		ReadTimeout:  cache.DefaultRedisConfig().ReadTimeout,
		WriteTimeout: cache.DefaultRedisConfig().WriteTimeout,
		Logger:       logger,
	}

	switch cfg.Cache.Driver {
	case config.CacheDriverNone:
		logger.Info("response cache disabled")
		return nil, nil
	case config.CacheDriverMemory:
		return cache.NewMemoryCache(common), nil
	case config.CacheDriverRedis:
		return cache.NewRedisCache(redisConfig)
	case config.CacheDriverFallback:
		return cache.NewFallbackCache(&cache.FallbackConfig{Redis: redisConfig, Memory: common, Logger: logger}), nil
	case config.CacheDriverPostgres:
		if pool == nil {
			return nil, fmt.Errorf("cache driver %q requires a database pool", cfg.Cache.Driver)
		}
		return cache.NewPostgresCache(ctx, pool, &cache.PostgresConfig{
			Config:      common,
			Table:       cfg.Cache.Table,
			AutoMigrate: true,
			Logger:      logger,
		})
	}
	return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
}
