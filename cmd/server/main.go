package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"klarna-checkout-service/config"
	"klarna-checkout-service/internal/api"
	"klarna-checkout-service/internal/broker"
	"klarna-checkout-service/internal/checkout"
	"klarna-checkout-service/internal/klarna"
	"klarna-checkout-service/internal/redisclient"
	"klarna-checkout-service/internal/service"
	"klarna-checkout-service/internal/store"
	"klarna-checkout-service/internal/util"
	"klarna-checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting klarna checkout service", zap.String("klarna_mode", cfg.Klarna.Mode))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
		cfg.Business.OrderLockTTL, cfg.Business.OrderLockWait, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPaymentEvents, logger)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)
	clock := util.SystemClock{}

	klarnaCheckout, err := service.NewKlarnaCheckout(
		cfg.Klarna,
		cfg.Server.PublicBaseURL,
		db,
		db,
		klarna.NewClient(cfg.Klarna, logger),
		redisClient,
		eventPublisher,
		clock,
		logger,
	)
	if err != nil {
		logger.Fatal("Invalid gateway configuration", zap.Error(err))
	}
	gateways := service.NewRegistry(klarnaCheckout)

	urls, err := checkout.NewURLBuilder(cfg.Server.PublicBaseURL)
	if err != nil {
		logger.Fatal("Invalid public base URL", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	auditService := service.NewAuditService(db, clock, logger)
	auditConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPaymentEvents, cfg.Kafka.ConsumerGroup, logger)
	auditWorker := worker.NewAuditWorker(auditConsumer, auditService, logger)
	go func() {
		if err := auditWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Audit worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(gateways, urls, service.NewSnippetSigner(cfg.Klarna.SharedSecret), map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	}, logger)
	if err := handler.SetupRoutes(router); err != nil {
		logger.Fatal("Failed to set up routes", zap.Error(err))
	}

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
	if err := auditWorker.Stop(); err != nil {
		logger.Error("Failed to stop audit worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
