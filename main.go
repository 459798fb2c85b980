package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/handlers"
	"github.com/makors/vender/internal/kafka"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/mailer"
	"github.com/makors/vender/internal/notify"
	rediswrap "github.com/makors/vender/internal/redis"
	"github.com/makors/vender/internal/services"
	"github.com/makors/vender/internal/storage"
)

const version = "1.0.0"

// Global logger instance
var log *logger.Logger

func main() {
	log = logger.NewLogger()
	defer log.Close()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn("ENV", "Error loading .env file, using environment variables")
	}

	log.LogProcess("STARTUP", "Vender ticket service starting up...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", "Invalid configuration: "+err.Error())
	}
	log.Info("CONFIG", "Configuration loaded successfully")

	log.LogProcess("DATABASE", "Initializing "+cfg.Database.Driver+" store...")
	store, err := storage.Open(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to initialize store: "+err.Error())
	}
	defer store.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := rediswrap.NewClient(startupCtx, cfg.Redis)
	cancelStartup()
	if err != nil {
		log.Fatal("REDIS", err.Error())
	}
	defer redisClient.Close()
	rdb := rediswrap.NewRedis(redisClient)
	log.LogProcess("REDIS", "Redis connection successful")

	sender := mailer.New(cfg.SMTP, log)

	// Notifications go to Kafka when enabled, otherwise to an in-process worker pool.
	consumeCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	var (
		notifier     services.Notifier
		stopNotifier func(ctx context.Context)
	)
	if cfg.Kafka.Enabled {
		log.LogProcess("KAFKA", "Initializing Kafka producer...")
		producer, err := kafka.NewProducer(cfg.Kafka, false, log)
		if err != nil {
			log.Fatal("KAFKA", "Failed to create Kafka producer: "+err.Error())
		}

		log.LogProcess("KAFKA", "Initializing Kafka consumer...")
		consumer, err := kafka.NewNotificationConsumer(cfg.Kafka, sender, log)
		if err != nil {
			log.Fatal("KAFKA", "Failed to create Kafka consumer: "+err.Error())
		}

		go func() {
			log.LogKafka("START", cfg.Kafka.Topic, "Starting Kafka consumer goroutine")
			if err := consumer.ConsumeNotifications(consumeCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("KAFKA", "Consumer error: "+err.Error())
			}
		}()

		notifier = producer
		stopNotifier = func(context.Context) {
			stopConsumers()
			consumer.Close()
			producer.Close()
		}
	} else {
		queue := notify.NewQueue(cfg.Notify, sender, log)
		queue.Start()
		notifier = queue
		stopNotifier = func(ctx context.Context) {
			if err := queue.Close(ctx); err != nil {
				log.Error("NOTIFY", err.Error())
			}
		}
	}

	verifier := services.NewStripeVerifier(cfg.Stripe, log)
	ledger := rediswrap.NewLedger(rdb, cfg.Issuance.IdempotencyTTL)
	sessions := rediswrap.NewSessionStore(rdb, cfg.Auth.SessionTTL)

	issuanceService := services.NewIssuanceService(verifier, ledger, store, notifier, log)
	checkinService := services.NewCheckinService(store, log)
	lookupService := services.NewLookupService(store, cfg.Lookup, log)
	authService := services.NewAuthService(cfg.Auth.OperatorSecret, sessions, log)
	eventService := services.NewEventService(store)
	log.LogProcess("SERVICE", "All services initialized")

	h := &handlers.Handlers{
		Webhook: handlers.NewWebhookHandler(issuanceService, log),
		Auth:    handlers.NewAuthHandler(authService),
		Scan:    handlers.NewScanHandler(checkinService),
		Lookup:  handlers.NewLookupHandler(lookupService),
		Events:  handlers.NewEventsHandler(eventService),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"store": store,
			"redis": rdb,
		}, version, log),
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.SetupRouter(h, authService, cfg.Server, log)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.LogProcess("SERVER", "Starting HTTP server on "+cfg.Server.Port)
		log.Info("STARTUP", "🎟  Vender is ready to accept requests!")
		log.Info("STARTUP", "📊 Health check available at: http://localhost"+cfg.Server.Port+"/health")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("SERVER", "Server failed to start: "+err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("SHUTDOWN", "Server forced to shutdown: "+err.Error())
	}
	// In-flight requests are done, so nothing else will be queued.
	stopNotifier(ctx)

	log.Info("SHUTDOWN", "✅ Vender shutdown completed successfully")
}
