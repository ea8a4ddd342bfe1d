package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"streakboard/internal/cache"
	"streakboard/internal/config"
	"streakboard/internal/publisher"
	"streakboard/internal/ratelimit"
	"streakboard/internal/scheduler"
	"streakboard/internal/server"
	"streakboard/internal/service"
	"streakboard/internal/source/devstats"
	"streakboard/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Cache backend: redis in production, in-process memory otherwise.
	store, err := setupCache(cfg.Cache)
	if err != nil {
		logger.Error("failed to connect to cache", "error", err)
		os.Exit(1)
	}
	logger.Info("cache ready", "type", cfg.Cache.Type)

	// RabbitMQ is optional: without a URL the sync summaries are only logged.
	var summaryPublisher service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		summaryPublisher = rabbitMQ
	}

	// Initialize stores
	userStore := postgres.NewUserStore(db)
	activityStore := postgres.NewActivityStore(db)
	txManager := postgres.NewTransactionManager(db)

	// Initialize DevStats source
	source := devstats.New(devstats.Config{
		BaseURL: cfg.Provider.BaseURL,
		Timeout: cfg.Provider.Timeout,
	}, logger)

	syncService := service.NewSyncService(
		source,
		userStore,
		activityStore,
		store,
		txManager,
		summaryPublisher,
		logger,
		cfg.Sync,
		cfg.Provider.Token,
	)

	sched := scheduler.NewScheduler(syncService, cfg.Sync.Interval, logger)

	handler := server.NewHandler(
		syncService,
		userStore,
		source,
		store,
		ratelimit.NewLimiter(store),
		cfg.Server,
		cfg.Provider.Token,
		logger,
	)
	httpServer := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: server.NewRouter(handler),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	logger.Info("starting streakboard syncer",
		"source", source.Name(),
		"interval", cfg.Sync.Interval,
		"batch_size", cfg.Sync.BatchSize,
		"window_days", cfg.Sync.WindowDays,
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}

func setupCache(cfg config.CacheConfig) (cache.Store, error) {
	if cfg.Type == "redis" {
		return cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.RedisAddress(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return cache.NewMemoryStore(), nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
