package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"jobgate/internal/ai"
	"jobgate/internal/config"
	"jobgate/internal/cvs"
	"jobgate/internal/database"
	"jobgate/internal/metrics"
	"jobgate/internal/notify"
	"jobgate/internal/storage"
	"jobgate/internal/tasks"
	"jobgate/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	emailTransport, pushTransport, err := notify.TransportsFromConfig(ctx, cfg.SMTP, cfg.Push, logger)
	if err != nil {
		log.Fatalf("init notification transports: %v", err)
	}
	dispatcher := notify.NewDispatcher(db, notify.Options{
		Email:     emailTransport,
		Push:      pushTransport,
		Publisher: notify.NewRedisPublisher(redisClient),
		Timeout:   cfg.Notify.Timeout,
		Logger:    logger,
	})

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logger),
	})

	analysisHandler := worker.NewCVAnalysisHandler(
		ai.NewGateway(cfg.AI, logger),
		cvs.NewService(db, store, logger),
		dispatcher,
		logger,
	)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeCVAnalyze, analysisHandler)

	logger.Info("worker service started",
		slog.String("redis_addr", cfg.Redis.Addr()),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
