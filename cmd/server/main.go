package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	credentialapp "github.com/ordersync/backend/internal/application/credential"
	syncapp "github.com/ordersync/backend/internal/application/sync"
	credentialdomain "github.com/ordersync/backend/internal/domain/credential"
	syncdomain "github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/downstream"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/persistence"
	"github.com/ordersync/backend/internal/infrastructure/queue"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
	"github.com/ordersync/backend/internal/infrastructure/storeapi"
	"github.com/ordersync/backend/internal/interfaces/http/handler"
	"github.com/ordersync/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting order sync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection
	gormLogLevel := gormlogger.Warn
	if cfg.Log.Level == "debug" {
		gormLogLevel = gormlogger.Info
	}
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLogLevel)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := persistence.AutoMigrate(db.DB); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Initialize repositories
	recordRepo := persistence.NewGormSyncRecordRepository(db.DB)
	errorRepo := persistence.NewGormSyncErrorRepository(db.DB)
	credentialRepo := persistence.NewGormCredentialRepository(db.DB)
	challengeRepo := persistence.NewGormChallengeRepository(db.DB)

	// External API clients
	storeClients := storeapi.NewFactory(cfg.StoreAPI.BaseURL, cfg.StoreAPI.Timeout)
	authenticator := storeapi.NewHTTPAuthenticator(cfg.StoreAPI.BaseURL, cfg.StoreAPI.Timeout)
	martanClient := downstream.NewMartanClient(cfg.Martan.BaseURL, cfg.Martan.ModuleTag, cfg.Martan.Timeout)
	tokenClient := downstream.NewOAuthClient(
		cfg.Martan.OAuthURL,
		cfg.Martan.ClientID,
		cfg.Martan.ClientSecret,
		cfg.Martan.RedirectURL,
		cfg.Martan.Timeout,
	)

	// Work queue backend
	var (
		workQueue   queue.Queue
		redisClient *redis.Client
	)
	switch cfg.Queue.Driver {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing redis client", zap.Error(err))
			}
		}()
		workQueue = queue.NewRedisQueue(redisClient)
	default:
		workQueue = queue.NewMemoryQueue()
	}
	log.Info("Work queue initialized", zap.String("driver", cfg.Queue.Driver))

	// Application services
	enricher := syncapp.NewEnricher(cfg.Enrichment, log)
	orchestrator := syncapp.NewOrchestrator(
		recordRepo, errorRepo, credentialRepo,
		storeClients, martanClient, workQueue, enricher, log,
	)
	refresher := credentialapp.NewRefresher(credentialRepo, tokenClient, authenticator, cfg.Sweep, log)
	pollSweep := syncapp.NewPollSweep(credentialRepo, storeClients, orchestrator, cfg.Sweep, log)
	redrive := syncapp.NewRedrive(recordRepo, errorRepo, workQueue, cfg.Sweep, log)

	ctx := context.Background()

	// Queue consumer submits pending orders downstream
	consumer := queue.NewConsumer(workQueue, orchestrator.ProcessMessage, log, cfg.Queue.ConsumeDelay, cfg.Queue.RedeliverDelay)
	if err := consumer.Start(ctx); err != nil {
		log.Fatal("Failed to start queue consumer", zap.Error(err))
	}
	defer consumer.Stop()

	// Scheduled sweeps, one trigger per platform or variant
	triggers := []*scheduler.IntervalTrigger{
		scheduler.NewIntervalTrigger("token-refresh-martan", cfg.Sweep.TokenRefreshIntervalMartan, func(ctx context.Context) {
			refresher.RunPlatform(ctx, credentialdomain.PlatformMartan)
		}, log),
		scheduler.NewIntervalTrigger("token-refresh-ecomplus", cfg.Sweep.TokenRefreshIntervalEcomplus, func(ctx context.Context) {
			refresher.RunPlatform(ctx, credentialdomain.PlatformEcomplus)
		}, log),
		scheduler.NewIntervalTrigger("order-poll-standard", cfg.Sweep.OrderPollIntervalStandard, func(ctx context.Context) {
			pollSweep.Run(ctx, syncdomain.VariantStandard)
		}, log),
		scheduler.NewIntervalTrigger("order-poll-cloudcommerce", cfg.Sweep.OrderPollIntervalCloudCommerce, func(ctx context.Context) {
			pollSweep.Run(ctx, syncdomain.VariantCloudCommerce)
		}, log),
		scheduler.NewIntervalTrigger("redrive", cfg.Sweep.RedriveInterval, redrive.Run, log),
		scheduler.NewIntervalTrigger("retention", cfg.Sweep.RetentionInterval, func(ctx context.Context) {
			refresher.RunRetention(ctx)
			redrive.RunRetention(ctx)
		}, log),
	}
	for _, trigger := range triggers {
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start sweep trigger", zap.Error(err))
		}
	}
	defer func() {
		for _, trigger := range triggers {
			if err := trigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping sweep trigger", zap.Error(err))
			}
		}
	}()

	// HTTP interface
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := router.NewEngine(log)

	healthHandler := handler.NewHealthHandler(db, redisClient)
	healthHandler.RegisterRoutes(engine.Group("/"))

	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Register(handler.NewWebhookHandler(orchestrator, log)).
		Register(handler.NewOAuthHandler(challengeRepo, credentialRepo, tokenClient, log)).
		Setup()

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-shutdownCtx.Done()
	log.Info("Shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
}
