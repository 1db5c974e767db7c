package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"commerce-service/config"
	"commerce-service/internal/api"
	"commerce-service/internal/broker"
	"commerce-service/internal/redisclient"
	"commerce-service/internal/service"
	"commerce-service/internal/store"
	"commerce-service/internal/util"
	"commerce-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// productStore is what main needs from either store implementation.
type productStore interface {
	service.ProductStore
	CreateUser(ctx context.Context, userID, username string) error
	Ping(ctx context.Context) error
	Close() error
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting commerce service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	tp, err := util.InitTracer("commerce-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := openStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Store ready", zap.String("driver", cfg.Database.Driver))

	if err := seedUsers(context.Background(), db, cfg.Auth.SeedUsers); err != nil {
		logger.Fatal("Failed to seed users", zap.Error(err))
	}

	var (
		stockCache  service.StockCache
		redisClient *redisclient.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		redisClient.WithSnapshotTTL(cfg.Redis.SnapshotTTL)
		stockCache = redisClient
		logger.Info("Redis connected")
	}

	var publisher service.EventPublisher = service.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.Topic))
	}

	retry := service.RetryPolicy{
		MaxAttempts:     uint(cfg.Business.StockRetryAttempts),
		InitialInterval: cfg.Business.StockRetryInterval,
		Multiplier:      cfg.Business.StockRetryMultiplier,
	}
	productService := service.NewProductService(db, publisher, retry)
	if stockCache != nil {
		productService.WithStockCache(stockCache)
	}
	promotionService := service.NewPromotionService(db, publisher)
	inventoryClient := service.NewInventoryClient(db, stockCache)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var projectionWorker *worker.StockProjectionWorker
	if len(cfg.Kafka.Brokers) > 0 && stockCache != nil {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup)
		projectionWorker = worker.NewStockProjectionWorker(consumer, inventoryClient)
		go func() {
			if err := projectionWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Stock projection worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(productService, promotionService, inventoryClient,
		api.NewTokenVerifier(cfg.Auth.JWTSecret),
		api.Options{
			DefaultPageSize:  cfg.Business.DefaultPageSize,
			DefaultPageIndex: cfg.Business.DefaultPageIndex,
			DiscountWindow:   time.Duration(cfg.Business.DiscountWindowDays) * 24 * time.Hour,
			IdempotencyTTL:   cfg.Business.IdempotencyTTL,
		}).
		WithReadinessCheck("database", db)
	if redisClient != nil {
		handler.WithIdempotency(redisClient).WithReadinessCheck("redis", redisClient)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if projectionWorker != nil {
		projectionWorker.Stop()
	}

	logger.Info("Server exited")
}

func openStore(cfg config.DatabaseConfig) (productStore, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "postgres", "":
		s, err := store.NewStore(cfg.URL, store.PoolOptions{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func seedUsers(ctx context.Context, db productStore, entries []string) error {
	for _, entry := range entries {
		id, name, ok := strings.Cut(entry, ":")
		if !ok {
			name = id
		}
		if err := db.CreateUser(ctx, id, name); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", id, err)
		}
	}
	return nil
}
