package auction

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aqua-x402/credit-engine/internal/metrics"
	"github.com/aqua-x402/credit-engine/pkg/model"
)

// Finalizer periodically sweeps open auctions whose bidding window has
// ended and finalizes them. Finalization is also callable directly through
// the API; the sweep only guarantees expired auctions do not linger when
// nobody calls it.
type Finalizer struct {
	engine   *Engine
	logger   *zap.Logger
	interval time.Duration
}

// NewFinalizer creates a new background finalization job.
func NewFinalizer(engine *Engine, logger *zap.Logger, interval time.Duration) *Finalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{
		engine:   engine,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the sweep loop until context cancellation.
func (f *Finalizer) Start(ctx context.Context) {
	f.logger.Info("auction.finalizer.start", zap.Duration("interval", f.interval))

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.sweep()
		case <-ctx.Done():
			f.logger.Info("auction.finalizer.stopped")
			return
		}
	}
}

func (f *Finalizer) sweep() {
	due := f.engine.DueForFinalization(f.engine.clock())
	finalized := 0
	for _, id := range due {
		err := f.engine.Finalize(id)
		switch {
		case err == nil:
			finalized++
		case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrTooEarly):
			// Lost the race to a direct caller, or the clock moved; next
			// sweep picks it up if still due.
		default:
			f.logger.Warn("auction.finalizer.finalize_failed",
				zap.Uint64("auction_id", id),
				zap.Error(err),
			)
		}
	}

	if finalized > 0 {
		f.logger.Info("auction.finalizer.sweep_complete",
			zap.Int("due", len(due)),
			zap.Int("finalized", finalized),
		)
	}
	metrics.SetLastFinalizerSweep(time.Now())
}
