package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/cache"
	"github.com/plainhr/plain/internal/config"
	"github.com/plainhr/plain/internal/level"
	"github.com/plainhr/plain/internal/live"
	"github.com/plainhr/plain/internal/logger"
	"github.com/plainhr/plain/internal/messaging"
	"github.com/plainhr/plain/internal/retry"
	"github.com/plainhr/plain/internal/server"
	"github.com/plainhr/plain/internal/service"
	"github.com/plainhr/plain/internal/storage"
	"github.com/plainhr/plain/internal/storage/memory"
	"github.com/plainhr/plain/internal/storage/postgres"
)

const redisNamespace = "plain:"

func main() {
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	storageType := flag.String("storage", "", "тип хранилища: memory или postgres (перекрывает конфигурацию)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *storageType != "" {
		cfg.Storage = *storageType
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
	}

	zapLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var c cache.Cache
	if cfg.Cache.Backend == "redis" {
		client, err := newRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		logger.Info("Redis cache connected", zap.String("addr", cfg.Redis.Addr))
		c = cache.NewRedis(client, redisNamespace, cfg.Cache.StaleGrace, logger)
	} else {
		c = cache.NewMemory(cfg.Cache.MaxEntries, cfg.Cache.StaleGrace, time.Minute, logger)
	}
	defer c.Close()

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	hub := live.NewHub(logger)
	levels := level.NewEngine(store, level.DefaultWeights(), logger)
	svc := service.New(store, c, levels, hub, publisher, service.Options{
		CacheTTL:               cfg.Cache.TTL,
		ExcellentLikeThreshold: cfg.Level.ExcellentLikeThreshold,
		Retry: retry.Policy{
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
			Multiplier:      2,
			Jitter:          cfg.Retry.Jitter,
			MaxAttempts:     cfg.Retry.MaxAttempts,
		},
	}, logger)
	authSvc := auth.NewService(store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)

	srv := server.New(cfg, server.Deps{Service: svc, Auth: authSvc, Hub: hub, Loaders: store}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func newStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Storage {
	case "postgres":
		logger.Info("Initializing PostgreSQL storage")
		return postgres.New(ctx, cfg.Postgres.DSN, logger)
	case "memory":
		logger.Info("Initializing in-memory storage")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage)
	}
}

func newRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func newPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (messaging.NotificationPublisher, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Info("RabbitMQ is not configured, notifications stay in storage only")
		return messaging.NopPublisher{}, nil
	}
	return messaging.Dial(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.NotificationQueue, 5, logger)
}
