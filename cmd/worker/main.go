// Package main runs the standalone reconciliation worker. It drains the
// reconcile queue and periodically sweeps the local ledger for elections
// that were committed via the fallback path.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/safeballot/backend/config"
	"github.com/safeballot/backend/internal/election"
	"github.com/safeballot/backend/internal/ledger"
	"github.com/safeballot/backend/internal/reconcile"
	"github.com/safeballot/backend/pkg/queue"
	"github.com/safeballot/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	store := election.NewClient(election.ClientConfig{
		BaseURL:    cfg.ElectionStore.BaseURL,
		Timeout:    time.Duration(cfg.ElectionStore.TimeoutSec) * time.Second,
		MaxRetries: uint64(cfg.ElectionStore.MaxRetries),
	}, logger)

	led := ledger.NewRedisLedger(rdb.Client, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	flags := reconcile.NewRedisFlags(rdb.Client, time.Duration(cfg.Reconcile.InflightTTLSec)*time.Second)

	reconciler := reconcile.New(led, store, flags, jobQueue,
		time.Duration(cfg.Reconcile.SweepIntervalSec)*time.Second, logger)

	go reconciler.Run(ctx)
	logger.Info("reconcile worker started",
		zap.Int("sweep_interval_sec", cfg.Reconcile.SweepIntervalSec))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	logger.Info("reconcile worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
