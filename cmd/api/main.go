package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"jobgate/internal/ai"
	"jobgate/internal/api"
	"jobgate/internal/approval"
	"jobgate/internal/auth"
	"jobgate/internal/companies"
	"jobgate/internal/config"
	"jobgate/internal/consultant"
	"jobgate/internal/cvs"
	"jobgate/internal/database"
	"jobgate/internal/jobs"
	"jobgate/internal/notify"
	"jobgate/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

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

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}

	authService, err := loadAuthService(cfg.JWT)
	if err != nil {
		log.Fatalf("init auth: %v", err)
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

	queue := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	var scanner api.FileScanner
	if cfg.Clamd.Address != "" {
		scanner = api.NewClamdScanner(cfg.Clamd.Address)
		logger.Info("upload scanning enabled", slog.String("clamd", cfg.Clamd.Address))
	}

	admins := consultant.ConfiguredAdmins{DB: db, IDs: cfg.Notify.AdminUserIDs}
	cvService := cvs.NewService(db, store, logger)

	router := api.NewRouter(cfg.API, logger)
	api.RegisterRoutes(router, api.Deps{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Redis:       redisClient,
		Queue:       queue,
		Auth:        authService,
		Store:       store,
		Scanner:     scanner,
		Dispatcher:  dispatcher,
		Approvals:   approval.NewService(db, dispatcher, cfg.Company, logger),
		Companies:   companies.NewService(db, store, logger),
		Jobs:        jobs.NewService(db, store, dispatcher, logger),
		Consultants: consultant.NewService(db, dispatcher, admins, logger),
		CVs:         cvService,
		AI:          ai.NewGateway(cfg.AI, logger),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", slog.Any("error", err))
	}
}

func loadAuthService(cfg config.JWTConfig) (*auth.AuthService, error) {
	privatePEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	publicPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return auth.NewAuthService(privatePEM, publicPEM, cfg.AccessTTL, cfg.RefreshTTL)
}
