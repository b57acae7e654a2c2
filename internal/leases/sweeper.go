package leases

import (
	"context"
	"fmt"
	"time"

	"seatlock/pkg/logger"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper periodically removes expired leases so viewers see seats free up
// even when nobody touches the show.
type Sweeper struct {
	manager   *Manager
	interval  time.Duration
	scheduler gocron.Scheduler
}

func NewSweeper(manager *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{manager: manager, interval: interval}
}

// Start schedules the sweep job. Runs never overlap.
func (s *Sweeper) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create sweep scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.run),
		gocron.WithName("lease-expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to schedule lease sweep: %w", err)
	}

	s.scheduler = scheduler
	scheduler.Start()
	logger.GetDefault().Info("lease sweeper started", "interval", s.interval.String())
	return nil
}

// Stop waits for a running sweep to finish
func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	err := s.scheduler.Shutdown()
	s.scheduler = nil
	return err
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	start := time.Now()
	removed, err := s.manager.Sweep(ctx)
	if err != nil {
		logger.GetDefault().Error("lease sweep failed", "error", err)
		return
	}
	if removed > 0 {
		logger.GetDefault().LogLeasesSwept(ctx, removed, time.Since(start))
	}
}
