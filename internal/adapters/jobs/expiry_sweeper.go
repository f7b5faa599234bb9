// Package jobs holds periodic maintenance workers.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type RedemptionSweeper interface {
	SweepExpiredRedemptions(ctx context.Context) (int, error)
	PurgeProcessedEvents(ctx context.Context) (int64, error)
}

// ExpirySweeper expires pending redemption codes past their deadline and drops
// lapsed inbound-event dedup markers. Reads also expire codes lazily, so a
// missed pass only delays the status change.
type ExpirySweeper struct {
	logger   *slog.Logger
	sweeper  RedemptionSweeper
	interval time.Duration
}

func NewExpirySweeper(logger *slog.Logger, sweeper RedemptionSweeper, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{logger: logger, sweeper: sweeper, interval: interval}
}

func (s *ExpirySweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *ExpirySweeper) runOnce(ctx context.Context) {
	s.sweepRedemptions(ctx)
	s.purgeDedup(ctx)
}

func (s *ExpirySweeper) purgeDedup(ctx context.Context) {
	purged, err := s.sweeper.PurgeProcessedEvents(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.ErrorContext(ctx, "event dedup purge failed",
			"module", "jobs.expiry_sweeper",
			"layer", "adapter",
			"operation", "purge_processed_events",
			"outcome", "failure",
			"error", err,
		)
		return
	}
	if purged > 0 {
		s.logger.DebugContext(ctx, "purged event dedup markers",
			"module", "jobs.expiry_sweeper",
			"layer", "adapter",
			"operation", "purge_processed_events",
			"outcome", "success",
			"purged", purged,
		)
	}
}

func (s *ExpirySweeper) sweepRedemptions(ctx context.Context) {
	expired, err := s.sweeper.SweepExpiredRedemptions(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.ErrorContext(ctx, "redemption sweep failed",
			"module", "jobs.expiry_sweeper",
			"layer", "adapter",
			"operation", "sweep_expired_redemptions",
			"outcome", "failure",
			"expired", expired,
			"error", err,
		)
		return
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired redemption codes",
			"module", "jobs.expiry_sweeper",
			"layer", "adapter",
			"operation", "sweep_expired_redemptions",
			"outcome", "success",
			"expired", expired,
		)
	}
}

func (s *ExpirySweeper) String() string { return "redemption-expiry-sweeper" }
