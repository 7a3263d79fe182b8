package service

import (
	"context"
	"slotkeeper/internal/holds/repository"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/logger"
)

// Sweeper expires active holds whose lifetime has elapsed. It is scheduled on
// HOLD_SWEEP_CRON and goes through the same compare-and-swap path as callers,
// so a racing release or cancel and an expiry never both apply.
type Sweeper struct {
	holds HoldService
	repo  repository.HoldRepository
	clock clock.Clock
	cfg   *config.Config
	log   *logger.Logger
}

func NewSweeper(holds HoldService, repo repository.HoldRepository, clk clock.Clock, cfg *config.Config) *Sweeper {
	return &Sweeper{
		holds: holds,
		repo:  repo,
		clock: clk,
		cfg:   cfg,
		log:   cfg.Log.Component("hold_sweeper"),
	}
}

// Sweep expires due holds batch by batch and reports how many it settled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	batchSize := max(s.cfg.HoldSweepBatchSize, 1)
	expired := 0

	for ctx.Err() == nil {
		due, err := s.repo.ListExpired(ctx, s.clock.Now(), batchSize)
		if err != nil {
			s.log.Error("Failed to list expired holds", "error", err)
			return expired, err
		}

		progressed := 0
		for _, h := range due {
			result, err := s.holds.Expire(ctx, h.TenantID, h.ID)
			if err != nil {
				s.log.Tenant(h.TenantID).Warn("Failed to expire hold",
					"hold_id", h.ID,
					"error", err,
				)
				continue
			}
			progressed++
			if result.Applied {
				expired++
			}
		}

		// A short batch is the last one. A batch where nothing moved would be read again unchanged.
		if len(due) < batchSize || progressed == 0 {
			break
		}
	}

	if expired > 0 {
		s.log.Info("Hold sweep finished", "expired", expired)
	}
	return expired, ctx.Err()
}

// Run is the cron entry point.
func (s *Sweeper) Run(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.log.Warn("Hold sweep stopped early", "error", err)
	}
}
