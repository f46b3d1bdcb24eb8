// Package scheduler runs the thirty-year regulation check on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/regulation"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner performs one regulation run.
type Runner interface {
	Run(ctx context.Context, calculationDate civil.Date) (regulation.Report, error)
}

// Scheduler handles the scheduled regulation runs.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	logger   *zap.Logger
	schedule string
	timeout  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	isRunning bool
}

// New creates a scheduler for a standard five field cron expression.
// If logger is nil, it will use a no-op logger to prevent panics.
func New(runner Runner, schedule string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(),
		runner:   runner,
		logger:   logger,
		schedule: schedule,
		timeout:  30 * time.Minute,
		now:      time.Now,
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("invalid regulation schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.isRunning = true
	s.logger.Info("regulation scheduler started",
		zap.String("op", "scheduler.Start"),
		zap.String("schedule", s.schedule),
	)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.isRunning = false
	s.logger.Info("regulation scheduler stopped", zap.String("op", "scheduler.Stop"))
}

// RunOnce runs the regulation for the current month. Failures are logged.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	today := civil.DateOf(s.now())
	logger := s.logger.With(zap.String("op", "scheduler.RunOnce"), zap.String("date", today.String()))
	logger.Info("starting scheduled regulation run")

	report, err := s.runner.Run(ctx, today)
	if err != nil {
		logger.Error("scheduled regulation run failed", zap.Error(err))
		return
	}
	logger.Info("scheduled regulation run completed",
		zap.Int("released_from_regulation", len(report.ReleasedFromRegulation)),
		zap.Int("stays_regulated", len(report.StaysRegulated)),
	)
}
