package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/fragrance-scraper/internal/api"
	"github.com/maltedev/fragrance-scraper/internal/browser"
	"github.com/maltedev/fragrance-scraper/internal/config"
	"github.com/maltedev/fragrance-scraper/internal/database"
	"github.com/maltedev/fragrance-scraper/internal/events"
	"github.com/maltedev/fragrance-scraper/internal/jobs"
	"github.com/maltedev/fragrance-scraper/internal/metrics"
	"github.com/maltedev/fragrance-scraper/internal/queue"
	"github.com/maltedev/fragrance-scraper/internal/scraper"
	"github.com/maltedev/fragrance-scraper/internal/similarity"
	"github.com/maltedev/fragrance-scraper/internal/storage"
)

// gateway is what the server needs from an ingestion backend.
type gateway interface {
	jobs.Gateway
	api.PerfumeReader
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if cfg.Jobs.Store == config.JobStoreRedis || (cfg.Ingest.Backend == config.IngestPostgres && cfg.Relay.Enabled) {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
	}

	var (
		store     gateway
		publisher jobs.EventPublisher
		outbox    api.OutboxStats
	)

	switch cfg.Ingest.Backend {
	case config.IngestFile:
		fileStore, err := storage.NewFileStore(cfg.Ingest.FilePath)
		if err != nil {
			logger.Error("failed to open file store", "path", cfg.Ingest.FilePath, "error", err)
			os.Exit(1)
		}
		store = fileStore
		publisher = events.NewLogPublisher(logger)

	default:
		db, err := database.New(ctx, cfg.DatabaseConfig())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}

		store = database.NewPerfumeStore(db, logger)
		publisher = events.NewPublisher(db, cfg.Redis.Stream, logger)

		if cfg.Relay.Enabled {
			relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, logger, database.RelayConfig{
				PollInterval: cfg.Relay.PollInterval,
				BatchSize:    cfg.Relay.BatchSize,
			})
			outbox = relay
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("relay stopped with error", "error", err)
				}
			}()
		}
	}

	var repo jobs.Repository = jobs.NewMemoryRepository()
	if cfg.Jobs.Store == config.JobStoreRedis {
		repo = jobs.NewRedisRepository(redisClient, cfg.Jobs.TTL, logger)
	}

	b, err := browser.New(cfg.BrowserOptions(), logger)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	policy := cfg.Policy()
	session := scraper.NewSession(func() (scraper.Page, error) {
		return b.NewPage()
	}, cfg.Guard(), policy, cfg.ScraperOptions(), logger)

	scheduler := queue.NewScheduler(policy, nil, logger)
	manager := jobs.NewManager(repo, session, store, publisher, scheduler, logger)

	handlers := api.NewHandlers(manager, store, similarity.NewMatcher(nil), logger)
	router := api.NewRouter(handlers, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Outbox:         outbox,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Error("job manager shutdown failed", "error", err)
		}
		cancel()
	}()

	logger.Info("server starting",
		"addr", server.Addr,
		"ingest", cfg.Ingest.Backend,
		"job_store", cfg.Jobs.Store)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped")
}
