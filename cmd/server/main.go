package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/config"
	handler "github.com/ehtisham-id/proj7-ai-platform-api/internal/delivery/http"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/logger"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/notify"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/publisher"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository/postgres"
	redisrepo "github.com/ehtisham-id/proj7-ai-platform-api/internal/repository/redis"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/storage"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/summarize"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/tasks"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting API server")

	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	dbPool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()
	log.Info("Connected to PostgreSQL")

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(cfg.Database.URL); err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}
		log.Info("Database migrations applied")
	}

	// Connect to Redis
	rdb, err := redisrepo.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("Connected to Redis")

	store, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize object storage", zap.Error(err))
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatal("Failed to ensure storage bucket", zap.Error(err))
	}
	log.Info("Object storage ready", zap.String("driver", cfg.Storage.Driver), zap.String("bucket", cfg.Storage.Bucket))

	// Initialize RabbitMQ publisher
	pub, err := publisher.NewRabbitMQPublisher(cfg.RabbitMQ.URL, log)
	if err != nil {
		log.Fatal("Failed to initialize RabbitMQ publisher", zap.Error(err))
	}
	defer pub.Close()
	log.Info("Connected to RabbitMQ")

	registry := tasks.NewRegistry()
	registry.MustRegister(tasks.NewSummarization(summarize.NewExtractive(cfg.Jobs.SummaryRatio), cfg.Jobs.MaxTextChars))

	jobRepo := postgres.NewPostgresJobRepository(dbPool)

	submitUC := usecase.NewSubmitJobUsecase(jobRepo, pub, registry, log)
	getJobUC := usecase.NewGetJobUsecase(jobRepo, store, cfg.Storage.URLTTL, log)

	// Terminal events published by workers reach local sockets through the hub.
	hub := notify.NewHub(log)
	bus := notify.NewRedisBus(rdb, cfg.Notify.Channel, log)
	if err := bus.StartForwarder(ctx, hub.Forward); err != nil {
		log.Fatal("Failed to start notification forwarder", zap.Error(err))
	}

	router := handler.NewRouter(&handler.RouterDeps{
		SubmitUC:    submitUC,
		GetJobUC:    getJobUC,
		Registry:    registry,
		Hub:         hub,
		RateCounter: redisrepo.NewRedisRateCounter(rdb),
		HealthChecks: map[string]handler.HealthCheck{
			"postgres": jobRepo.Ping,
			"redis": func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
			"rabbitmq": func(context.Context) error {
				if !pub.Healthy() {
					return publisher.ErrUnavailable
				}
				return nil
			},
		},
		Server:    cfg.Server,
		Auth:      cfg.Auth,
		Keepalive: cfg.Notify.Keepalive,
		Logger:    log,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("API server stopped")
}
