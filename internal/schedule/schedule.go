// Package schedule triggers pipeline passes on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/dharsanguruparan/ClassBuddy/internal/logging"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one scheduled pass.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a schedule. Overlapping passes are skipped.
type Scheduler struct {
	spec   string
	job    Job
	logger *slog.Logger
}

// New validates spec ("*/30 * * * *", "@hourly", "@every 30m").
func New(spec string, job Job, logger *slog.Logger) (*Scheduler, error) {
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Scheduler{spec: spec, job: job, logger: logging.OrDiscard(logger).With("component", "schedule")}, nil
}

// Run blocks until ctx is cancelled. With immediate set, one pass runs
// before the first tick. A running pass is waited for on shutdown.
func (s *Scheduler) Run(ctx context.Context, immediate bool) error {
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	pass := func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.job(ctx); err != nil {
			s.logger.Error("scheduled pass failed", "err", err)
		}
	}
	id, err := c.AddFunc(s.spec, pass)
	if err != nil {
		return fmt.Errorf("register schedule: %w", err)
	}
	var first sync.WaitGroup
	if immediate {
		// Through the entry's wrapped job so it shares the skip-if-running guard.
		first.Add(1)
		go func() {
			defer first.Done()
			c.Entry(id).WrappedJob.Run()
		}()
	}
	c.Start()
	s.logger.Info("scheduler started", "schedule", s.spec)
	<-ctx.Done()
	<-c.Stop().Done()
	first.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}
