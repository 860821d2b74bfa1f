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

	"restoflow/config"
	"restoflow/internal/api"
	"restoflow/internal/broker"
	"restoflow/internal/client"
	"restoflow/internal/redisclient"
	"restoflow/internal/retry"
	"restoflow/internal/service"
	"restoflow/internal/store"
	"restoflow/internal/throttle"
	"restoflow/internal/util"
	"restoflow/internal/webhook"
	"restoflow/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting restoflow")

	tp, err := util.InitTracer("restoflow", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	stripeClient := client.NewStripeClient(cfg.Stripe.BaseURL, cfg.Stripe.APIKey, cfg.Stripe.WebhookSecret)
	doordashClient := client.NewDoorDashClient(cfg.DoorDash.BaseURL, cfg.DoorDash.APIKey)

	executor := retry.NewExecutor()
	guard := webhook.NewGuard(db)
	orderThrottle := throttle.New(db, db)

	orderService := service.NewOrderService(db, orderThrottle, eventPublisher)
	paymentService := service.NewPaymentService(db, guard, stripeClient, executor)
	deliveryService := service.NewDeliveryService(db, doordashClient, redisClient, guard, executor, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	deliveryWorker := worker.NewDeliveryWorker(orderConsumer, deliveryService, guard)
	go func() {
		if err := deliveryWorker.Start(workerCtx); err != nil {
			log.Printf("Delivery worker error: %v", err)
		}
	}()

	// Retention sweep for processed-webhook records
	go func() {
		retention := time.Duration(cfg.Webhook.RetentionDays) * 24 * time.Hour
		interval := time.Duration(cfg.Webhook.CleanupIntervalHrs) * time.Hour
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if _, err := guard.Cleanup(ctx, retention); err != nil {
					log.Printf("Webhook cleanup error: %v", err)
				}
				cancel()
			}
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orderService, paymentService, deliveryService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	deliveryWorker.Stop()

	log.Println("Server exited")
}
