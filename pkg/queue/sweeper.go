package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper drives the time-based offer transitions. It runs for the lifetime
// of the process and shares the per-shift locks with Respond, so an offer
// resolved by a request between ticks is simply skipped.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper builds a sweeper over the given manager.
func NewSweeper(manager *Manager, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{manager: manager, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping expired offers every interval.
// A fault in one sweep is logged and the loop continues.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("offer expiry sweep started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("offer expiry sweep stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("expiry sweep panicked", zap.Any("panic", r))
		}
	}()

	expired, err := s.manager.ExpireDue(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		s.logger.Info("expired stale offers", zap.Int("count", expired))
	}
}
