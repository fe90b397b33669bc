// Package main runs the queue mode worker. It consumes item tasks queued by
// "classbuddy enqueue" and processes each through the pipeline.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/ClassBuddy/internal/app"
	"github.com/dharsanguruparan/ClassBuddy/internal/config"
	"github.com/dharsanguruparan/ClassBuddy/internal/logging"
	"github.com/dharsanguruparan/ClassBuddy/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New("error").Error("load config", "err", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	a, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("init app", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, asynq.Config{
		Concurrency:     cfg.Pipeline.Workers,
		ShutdownTimeout: cfg.Pipeline.CommitTimeout + 5*time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.Warn("task failed", "type", task.Type(), "retry", retried, "err", err)
		}),
	})
	processor := worker.NewProcessor(a.Pipeline, logger)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("worker started", "redis", cfg.Redis.Addr, "concurrency", cfg.Pipeline.Workers)
	if err := server.Run(mux); err != nil {
		logger.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}
