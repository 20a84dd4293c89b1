package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marketplace-platform/auth-service/internal/config"
	"github.com/marketplace-platform/auth-service/internal/events/kafka"
	httpHandler "github.com/marketplace-platform/auth-service/internal/handler/http"
	"github.com/marketplace-platform/auth-service/internal/handler/http/middleware"
	redisRepo "github.com/marketplace-platform/auth-service/internal/repository/redis"
	"github.com/marketplace-platform/auth-service/internal/service"
	"github.com/marketplace-platform/auth-service/internal/utils/logger"
	"github.com/marketplace-platform/auth-service/internal/worker"
)

// App wires the session core and its HTTP surface together.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	redisClient *redis.Client
	producer    *kafka.Producer
	manager     *service.SessionManager
	updater     *service.ActivityUpdater
	cleanup     *worker.CleanupWorker
	server      *http.Server
}

// New assembles the application from configuration.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	store := redisRepo.NewSessionStore(redisClient, cfg.Redis.KeyPrefix, logger.WithComponent(log, "session_store"))

	tokens, err := service.NewTokenService(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	var producer *kafka.Producer
	var events service.EventPublisher
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.WithComponent(log, "kafka_producer"))
		events = producer
	}

	manager := service.NewSessionManager(store, store, tokens, events, cfg.JWT, cfg.Session, logger.WithComponent(log, "session_manager"))
	updater := service.NewActivityUpdater(manager, logger.WithComponent(log, "activity_updater"), 1024)
	manager.SetActivitySink(updater)

	cleanup := worker.NewCleanupWorker(manager, cfg.Session.CleanupInterval, logger.WithComponent(log, "cleanup_worker"))

	engine := buildRouter(cfg, log, manager, updater, redisClient)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		cfg:         cfg,
		logger:      log,
		redisClient: redisClient,
		producer:    producer,
		manager:     manager,
		updater:     updater,
		cleanup:     cleanup,
		server:      server,
	}, nil
}

func buildRouter(
	cfg *config.Config,
	log *zap.Logger,
	manager *service.SessionManager,
	updater *service.ActivityUpdater,
	redisClient *redis.Client,
) *gin.Engine {
	if cfg.Logging.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.MetricsMiddleware())

	health := httpHandler.NewHealthHandler(redisClient)
	engine.GET("/healthz", health.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	sessions := httpHandler.NewSessionHandler(manager, logger.WithComponent(log, "http"))
	sessions.RegisterRoutes(api)

	// Authenticated surface: demonstrates the middleware chain other
	// marketplace services mount in front of their own handlers.
	authed := engine.Group("/api/v1/me")
	authed.Use(middleware.AuthMiddleware(manager, logger.WithComponent(log, "http")), middleware.ActivityMiddleware(updater))
	authed.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":    c.GetString(middleware.ContextUserIDKey),
			"email":      c.GetString(middleware.ContextEmailKey),
			"session_id": c.GetString(middleware.ContextSessionIDKey),
			"device_id":  c.GetString(middleware.ContextDeviceIDKey),
			"roles":      c.GetStringSlice(middleware.ContextRolesKey),
		})
	})

	return engine
}

// Run starts the HTTP server and background workers, blocking until ctx is
// cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	a.updater.Start(workerCtx)
	go a.cleanup.Run(workerCtx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Auth service listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down auth service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Failed to shut down HTTP server cleanly", zap.Error(err))
	}

	cancelWorkers()
	a.updater.Wait()

	if err := a.producer.Close(); err != nil {
		a.logger.Error("Failed to close Kafka producer", zap.Error(err))
	}
	if err := a.redisClient.Close(); err != nil {
		a.logger.Error("Failed to close Redis client", zap.Error(err))
	}

	return nil
}
