package execution

import (
	"context"
	"time"

	"mastertrade/internal/domain"
	"mastertrade/internal/obs/logger"
)

// sweepInterval is how often the auto-cancel sweep runs; finer than the
// tightest deadline (paperTimeout) so paper orders are caught promptly.
const sweepInterval = 250 * time.Millisecond

// RunTimeoutSweep auto-cancels any order still non-terminal past its
// environment's deadline (60s live / 1s paper), marking it rejected with
// reason "timeout", per SPEC_FULL §4.8's terminal-update invariant.
func (e *Executor) RunTimeoutSweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepOnce()
		}
	}
}

func (e *Executor) sweepOnce() {
	now := time.Now().UTC()
	e.expirePast(now, domain.EnvLive, liveTimeout)
	e.expirePast(now, domain.EnvPaper, paperTimeout)
}

func (e *Executor) expirePast(now time.Time, env domain.Environment, deadline time.Duration) {
	cutoff := now.Add(-deadline)
	open, err := e.orders.OpenOlderThan(cutoff.UnixMilli())
	if err != nil {
		logger.Errorf("execution: timeout sweep: load open orders: %v", err)
		return
	}
	for _, order := range open {
		if order.Environment != env {
			continue
		}
		e.transition(order, domain.OrderRejected, order.FilledQuantity, order.AvgFillPrice, "timeout")
	}
}
