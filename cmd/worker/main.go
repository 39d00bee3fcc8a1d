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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/config"
	amqpdelivery "github.com/ehtisham-id/proj7-ai-platform-api/internal/delivery/amqp"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/logger"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/notify"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/pool"
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

	log.Info("Starting execution worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	dbPool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()
	log.Info("Connected to PostgreSQL")

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

	registry := tasks.NewRegistry()
	registry.MustRegister(tasks.NewSummarization(summarize.NewExtractive(cfg.Jobs.SummaryRatio), cfg.Jobs.MaxTextChars))

	jobRepo := postgres.NewPostgresJobRepository(dbPool)
	idempotencyStore := redisrepo.NewRedisIdempotencyStore(rdb, cfg.Jobs.LockTTL)
	bus := notify.NewRedisBus(rdb, cfg.Notify.Channel, log)

	executeUC := usecase.NewExecuteJobUsecase(jobRepo, idempotencyStore, store, registry, bus, usecase.RetryPolicy{
		MaxRetries:  cfg.Jobs.MaxRetries,
		Delay:       cfg.Jobs.RetryDelay,
		LockWait:    cfg.Jobs.LockWait,
		LockRefresh: cfg.Jobs.LockTTL / 3,
	}, log)
	reconcileUC := usecase.NewReconcileUsecase(jobRepo, idempotencyStore, bus, cfg.Jobs.PendingTimeout, cfg.Jobs.SweepInterval, cfg.Jobs.SweepBatchSize, log)

	// Create buffered task channel
	tasksChan := make(chan *domain.TaskDelivery, cfg.Worker.PoolSize*2)

	consumer, err := amqpdelivery.NewConsumer(cfg.RabbitMQ.URL, cfg.Worker.PoolSize, tasksChan, log)
	if err != nil {
		log.Fatal("Failed to initialize AMQP consumer", zap.Error(err))
	}
	defer consumer.Close()
	log.Info("Connected to RabbitMQ")

	workerPool := pool.NewWorkerPool(cfg.Worker.PoolSize, tasksChan, executeUC, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := consumer.Start(gctx); err != nil {
			return fmt.Errorf("amqp consumer: %w", err)
		}
		return nil
	})

	// In-flight jobs settle before the deferred consumer.Close runs.
	g.Go(func() error {
		workerPool.Start(gctx)
		workerPool.Stop()
		return nil
	})

	g.Go(func() error {
		return reconcileUC.Run(gctx)
	})

	g.Go(func() error {
		return serveMetrics(gctx, cfg.Worker.MetricsPort, log)
	})

	<-gctx.Done()
	log.Info("Shutting down worker...")

	if err := g.Wait(); err != nil {
		log.Error("Worker stopped with error", zap.Error(err))
	}

	log.Info("Worker stopped")
}

func serveMetrics(ctx context.Context, port int, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Metrics server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
