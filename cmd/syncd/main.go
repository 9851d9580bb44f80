package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"estatesync/internal/api"
	"estatesync/internal/config"
	"estatesync/internal/database"
	"estatesync/internal/domain"
	"estatesync/internal/events"
	"estatesync/internal/logging"
	"estatesync/internal/metrics"
	"estatesync/internal/retry"
	"estatesync/internal/service"
	"estatesync/internal/source"
	"estatesync/internal/syncer"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	once := flag.Bool("once", false, "run a single sync pass and exit")
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "syncd").Logger()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rowSource, err := buildSource(ctx, cfg)
	if err != nil {
		return err
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	retrier := retry.NewRetrier(retry.Policy{
		MaxRetries:    cfg.Sync.MaxRetries,
		InitialDelay:  cfg.Sync.InitialDelay,
		MaxDelay:      cfg.Sync.MaxDelay,
		BackoffFactor: cfg.Sync.BackoffFactor,
		Jitter:        true,
	}, &logger)
	queue := retry.NewQueue(db, cfg.Sync.MaxQueueDepth, cfg.Sync.MaxRetries, &logger)

	eventBus := events.NewEventBus()
	subscribeSyncEvents(eventBus, &logger)

	processor := syncer.NewBatchProcessor(db, retrier, queue, eventBus, syncer.ProcessorConfig{
		BatchSize:   cfg.Sync.BatchSize,
		Concurrency: cfg.Sync.Concurrency,
		RateLimit:   cfg.Sync.RateLimit,
		RateBurst:   cfg.Sync.RateBurst,
	}, &logger)
	defer processor.Close()

	stateManager := syncer.NewStateManager(db, &logger)

	worker := syncer.NewQueueWorker(queue, db, retrier, redisClient, cfg.Sync.QueuePollInterval, &logger)
	go worker.Start(ctx)

	syncService := service.NewSyncService(rowSource, processor, stateManager, worker, eventBus, cfg.Sync.Type, &logger)

	if cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, stateManager, cfg.Sync.Type, cfg.Monitoring.PrometheusEnabled, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	go runRetentionCleanup(ctx, db, queue, cfg.Sync, &logger)

	if _, err := syncService.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("initial sync failed")
		if *once {
			return err
		}
	}
	if *once {
		return nil
	}

	go syncService.RunPeriodic(ctx, cfg.Sync.Interval)

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return nil
}

func buildSource(ctx context.Context, cfg *config.Config) (domain.RowSource, error) {
	switch cfg.Source.Type {
	case "sheets":
		src, err := source.NewSheetsSource(ctx, cfg.Google)
		if err != nil {
			return nil, err
		}
		// Bad credentials or an unshared spreadsheet should fail startup,
		// not the first scheduled run.
		if err := src.TestConnection(ctx); err != nil {
			return nil, err
		}
		return src, nil
	case "xlsx":
		return source.NewXLSXSource(cfg.Source.XLSXPath, cfg.Source.Sheet), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Source.Type)
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, queue worker falls back to polling")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	return client
}

func subscribeSyncEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventSyncFailed, func(e *events.Event) error {
		logger.Error().RawJSON("payload", e.Payload).Msg("sync run failed")
		return nil
	})
	bus.Subscribe(events.EventRecordFailed, func(e *events.Event) error {
		logger.Warn().RawJSON("payload", e.Payload).Msg("record sync failed")
		return nil
	})
	bus.Subscribe(events.EventChangeQueued, func(e *events.Event) error {
		logger.Info().RawJSON("payload", e.Payload).Msg("change escalated to durable queue")
		return nil
	})
}

func runRetentionCleanup(ctx context.Context, db *database.DB, queue *retry.Queue, cfg config.SyncConfig, logger *zerolog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := queue.CleanupOldChanges(ctx, cfg.ChangeRetentionDays); err != nil {
				logger.Error().Err(err).Msg("pending change cleanup failed")
			} else if n > 0 {
				logger.Info().Int64("removed", n).Msg("cleaned up processed changes")
			}

			if n, err := db.CleanupOldHistory(ctx, cfg.HistoryRetentionDays); err != nil {
				logger.Error().Err(err).Msg("history cleanup failed")
			} else if n > 0 {
				logger.Info().Int64("removed", n).Msg("cleaned up old sync history")
			}
		}
	}
}
