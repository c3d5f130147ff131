package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"calpadsrunner/internal/logging"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression or a descriptor such as
// "@daily" or "@every 1h".
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Scheduler runs a batch on a cron schedule. A tick that fires while the
// previous batch is still running is skipped, so two batches never share a
// session or a download directory.
type Scheduler struct {
	expr     string
	schedule cron.Schedule
	run      func(ctx context.Context) error
	logger   *zap.Logger
}

// NewScheduler validates expr and binds run to it.
func NewScheduler(expr string, run func(ctx context.Context) error, logger *zap.Logger) (*Scheduler, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{expr: expr, schedule: sched, run: run, logger: logger}, nil
}

// Next returns the next activation after now.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(time.Now())
}

// Start runs the schedule until ctx is cancelled, then waits for a running
// batch to return.
func (s *Scheduler) Start(ctx context.Context) error {
	cl := cron.PrintfLogger(logging.StdLog(s.logger))
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		s.logger.Info("Scheduled batch starting", zap.String("cron", s.expr))
		if err := s.run(ctx); err != nil {
			s.logger.Error("Scheduled batch failed", zap.Error(err))
		}
		s.logger.Info("Next scheduled batch", zap.Time("at", s.Next()))
	}))

	s.logger.Info("Scheduler started", zap.String("cron", s.expr), zap.Time("next", s.Next()))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return nil
}
