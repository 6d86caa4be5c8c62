package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/fabric-catalog/internal/api"
	"github.com/maltedev/fabric-catalog/internal/catalog"
	"github.com/maltedev/fabric-catalog/internal/config"
	"github.com/maltedev/fabric-catalog/internal/database"
	"github.com/maltedev/fabric-catalog/internal/fetcher"
	"github.com/maltedev/fabric-catalog/internal/images"
	"github.com/maltedev/fabric-catalog/internal/metrics"
	"github.com/maltedev/fabric-catalog/internal/ratelimit"
	"github.com/maltedev/fabric-catalog/internal/scheduler"
	"github.com/maltedev/fabric-catalog/internal/scraper"
	"github.com/maltedev/fabric-catalog/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	outbox := database.NewOutboxRepository(db, cfg.Redis.Stream)
	fabrics := database.NewFabricRepository(db, outbox)
	syncRuns := database.NewSyncRunRepository(db)

	// Redis client for the outbox relay
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	relay := database.NewRelay(outbox, redisClient, logger, database.RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		Metrics:      m,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	httpFetcher := fetcher.New(fetcher.Options{
		UserAgent:         cfg.Scraper.UserAgent,
		Timeout:           cfg.Scraper.Timeout,
		MaxBodyBytes:      cfg.Scraper.MaxBodyBytes,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
		Metrics:           m,
		Logger:            logger,
	})

	registry := scraper.DefaultRegistry(scraper.Options{
		Fetcher:   httpFetcher,
		ItemDelay: cfg.Scraper.ItemDelay,
		PageDelay: cfg.Scraper.PageDelay,
		MaxPages:  cfg.Scraper.MaxPages,
		Metrics:   m,
		Logger:    logger,
	})

	store, err := storage.NewFileStore(cfg.Images.Dir)
	if err != nil {
		logger.Error("failed to prepare image directory", "error", err)
		os.Exit(1)
	}
	resolver, err := images.NewResolver(store, httpFetcher, images.Options{
		WebPrefix: cfg.Images.WebPrefix,
		CacheSize: cfg.Images.CacheSize,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create image resolver", "error", err)
		os.Exit(1)
	}

	service := catalog.NewService(registry, fabrics, catalog.Options{
		Images:  resolver,
		Runs:    syncRuns,
		Limiter: ratelimit.NewSimpleRateLimiter(cfg.Sync.URLDelay, cfg.Sync.URLDelay+cfg.Sync.URLDelayJitter),
		Metrics: m,
		Logger:  logger,
	})

	sched := scheduler.New(func(ctx context.Context) {
		seeds, err := config.LoadSeeds(cfg.Sync.SeedsFile)
		if err != nil {
			logger.Error("failed to load seeds", "file", cfg.Sync.SeedsFile, "error", err)
			return
		}
		service.RunPass(ctx, seeds.URLs)
	}, cfg.Sync.Interval, logger, syncOptions(cfg.Sync)...)

	if cfg.Sync.Enabled {
		go sched.Start(ctx)
	}

	handlers := api.NewHandlers(api.Deps{
		Store:    fabrics,
		Importer: service,
		Sync:     sched,
		Images:   resolver,
		Outbox:   relay,
		Logger:   logger,
		Context:  ctx,
	})

	router := api.NewRouter(handlers, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Gatherer:       m.Registry,
		ImagesDir:      cfg.Images.Dir,
		ImagesPrefix:   cfg.Images.WebPrefix,
		RequestTimeout: cfg.Server.RequestTimeout,
		ScrapeTimeout:  cfg.Server.ScrapeTimeout,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr, "sync_enabled", cfg.Sync.Enabled)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func syncOptions(cfg config.SyncConfig) []scheduler.Option {
	if cfg.RunOnStart {
		return []scheduler.Option{scheduler.WithRunOnStart()}
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
