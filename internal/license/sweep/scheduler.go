package sweep

import (
	"context"
	"log/slog"
	"time"

	"licensewatch/internal/license/models"
)

// Sweeper is the part of the engine the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (*models.RunOutcome, error)
}

// Scheduler runs sweeps on a fixed interval. A sweep that outlasts the
// interval delays the next tick instead of overlapping it.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{sweeper: sweeper, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. A non-positive interval disables the
// scheduler and Run returns immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.InfoContext(ctx, "sweep scheduler disabled")
		return nil
	}
	s.logger.InfoContext(ctx, "sweep scheduler started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweep scheduler stopped")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	out, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled sweep failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "scheduled sweep finished",
		"run_id", out.ID.String(),
		"status", out.Status,
		"flagged", out.FlaggedCount,
	)
}
