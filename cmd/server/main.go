// Package main runs the ballot-creation API server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/safeballot/backend/config"
	"github.com/safeballot/backend/internal/attempts"
	"github.com/safeballot/backend/internal/auth"
	"github.com/safeballot/backend/internal/election"
	"github.com/safeballot/backend/internal/ledger"
	"github.com/safeballot/backend/internal/middleware"
	"github.com/safeballot/backend/internal/payment"
	"github.com/safeballot/backend/internal/reconcile"
	"github.com/safeballot/backend/internal/workflow"
	"github.com/safeballot/backend/pkg/database"
	"github.com/safeballot/backend/pkg/queue"
	"github.com/safeballot/backend/pkg/redis"
	"github.com/safeballot/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// External collaborators
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, uint64(cfg.Stripe.MaxRetries), logger)
	store := election.NewClient(election.ClientConfig{
		BaseURL:    cfg.ElectionStore.BaseURL,
		Timeout:    time.Duration(cfg.ElectionStore.TimeoutSec) * time.Second,
		MaxRetries: uint64(cfg.ElectionStore.MaxRetries),
	}, logger)

	// Durable fallback plumbing
	led := ledger.NewRedisLedger(rdb.Client, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	flags := reconcile.NewRedisFlags(rdb.Client, time.Duration(cfg.Reconcile.InflightTTLSec)*time.Second)

	// Workflow
	attemptRepo := attempts.NewRepository(pool)
	manager := workflow.NewManager(workflow.Config{
		Gateway:           gateway,
		Store:             store,
		Ledger:            led,
		Jobs:              jobQueue,
		Journal:           attemptRepo,
		Logger:            logger,
		PricePerSeatCents: cfg.Pricing.PricePerSeatCents,
		Currency:          cfg.Pricing.Currency,
	})
	workflowHandler := workflow.NewHandler(manager, attemptRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Admin API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	api.Use(middleware.RequireRole("admin"))
	{
		api.POST("/workflows", workflowHandler.Create)
		api.GET("/workflows/:id", workflowHandler.Get)
		api.PUT("/workflows/:id/draft", workflowHandler.UpdateDraft)
		api.POST("/workflows/:id/events", workflowHandler.HandleEvent)
		api.GET("/workflows/:id/attempts", workflowHandler.ListAttempts)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process reconciler so fallback commits catch up without waiting
	// for the standalone worker.
	reconcileCtx, reconcileCancel := context.WithCancel(context.Background())
	defer reconcileCancel()
	reconciler := reconcile.New(led, store, flags, jobQueue,
		time.Duration(cfg.Reconcile.SweepIntervalSec)*time.Second, logger)
	go reconciler.Run(reconcileCtx)
	logger.Info("reconciler started")

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	reconcileCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
