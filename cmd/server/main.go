// Package main runs the ClassBuddy status API. With CLASSBUDDY_SCHEDULE set
// to a cron expression it also runs passes on that schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/ClassBuddy/internal/api"
	"github.com/dharsanguruparan/ClassBuddy/internal/app"
	"github.com/dharsanguruparan/ClassBuddy/internal/config"
	"github.com/dharsanguruparan/ClassBuddy/internal/logging"
	"github.com/dharsanguruparan/ClassBuddy/internal/schedule"
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a, err := app.New(ctx, cfg, logger, reg)
	if err != nil {
		logger.Error("init app", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := api.New(cfg.Address, a.Store, a.Pipeline, a.Scope(),
		api.WithMetrics(a.Metrics.Handler()),
		api.WithLogger(logger),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if cfg.Schedule != "" && cfg.Schedule != "off" {
		sched, err := schedule.New(cfg.Schedule, func(ctx context.Context) error {
			_, err := a.Pipeline.Run(ctx, a.Scope())
			return err
		}, logger)
		if err != nil {
			logger.Error("init schedule", "err", err)
			os.Exit(1)
		}
		g.Go(func() error { return sched.Run(gctx, false) })
	}
	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
