package escrow

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically refunds expired escrow contracts.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper constructs a sweeper running on the given interval.
func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run sweeps on every tick until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			swept, err := s.service.SweepExpired(ctx, now.UTC())
			if err != nil {
				s.logger.Error("escrow expiry sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				s.logger.Info("escrow expiry sweep completed", "swept", swept)
			}
		}
	}
}
