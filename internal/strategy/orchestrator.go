package strategy

import (
	"context"
	"time"

	"mastertrade/internal/obs/logger"
	"mastertrade/internal/store"
)

// Default MAX_ACTIVE_STRATEGIES, overridable via settings (SPEC_FULL §8).
const DefaultMaxActiveStrategies = 5

const (
	jobGeneration = "strategy.generation"
	jobActivation = "strategy.activation"

	generationLeaseTTL = 10 * time.Minute
	activationLeaseTTL = 10 * time.Minute
)

// Orchestrator owns the generation/backtest/activation goroutines and
// coordinates the 03:00 UTC and every-4h schedules across replicas via the
// scheduled_jobs leader-election table.
type Orchestrator struct {
	generator  *Generator
	backtester *Backtester
	activator  *Activator
	scheduler  *store.SchedulerStore
	holderID   string
}

func NewOrchestrator(generator *Generator, backtester *Backtester, activator *Activator, scheduler *store.SchedulerStore, holderID string) *Orchestrator {
	return &Orchestrator{generator: generator, backtester: backtester, activator: activator, scheduler: scheduler, holderID: holderID}
}

// Run blocks until ctx is cancelled, driving the daily generation+backtest
// cycle at 03:00 UTC and the activation loop every 4 hours (plus
// immediately after each generation drain, per SPEC_FULL §5).
func (o *Orchestrator) Run(ctx context.Context) {
	go o.runDailyGeneration(ctx)
	go o.runActivationLoop(ctx)
	<-ctx.Done()
}

func (o *Orchestrator) runDailyGeneration(ctx context.Context) {
	for {
		next := nextDailyUTC(time.Now().UTC(), 3, 0)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		o.tryRunGeneration(next)
	}
}

func (o *Orchestrator) tryRunGeneration(now time.Time) {
	acquired, err := o.scheduler.TryAcquire(jobGeneration, o.holderID, now.UnixMilli(), now.Add(generationLeaseTTL).UnixMilli())
	if err != nil {
		logger.Errorf("strategy: orchestrator: acquire generation lease: %v", err)
		return
	}
	if !acquired {
		logger.Debugf("strategy: orchestrator: generation lease held by another replica")
		return
	}

	n, err := o.generator.Generate()
	if err != nil {
		logger.Errorf("strategy: orchestrator: generation failed: %v", err)
	} else {
		logger.Infof("strategy: orchestrator: generated %d candidates", n)
	}

	passed, archived, err := o.backtester.DrainOnce(now)
	if err != nil {
		logger.Errorf("strategy: orchestrator: backtest drain failed: %v", err)
	} else {
		logger.Infof("strategy: orchestrator: backtest drain passed=%d archived=%d", passed, archived)
	}

	if err := o.activator.Run(now); err != nil {
		logger.Errorf("strategy: orchestrator: post-backtest activation failed: %v", err)
	}

	if err := o.scheduler.MarkRun(jobGeneration, now.UnixMilli()); err != nil {
		logger.Warnf("strategy: orchestrator: mark generation run: %v", err)
	}
}

func (o *Orchestrator) runActivationLoop(ctx context.Context) {
	ticker := time.NewTicker(4 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tryRunActivation(time.Now().UTC())
		}
	}
}

func (o *Orchestrator) tryRunActivation(now time.Time) {
	acquired, err := o.scheduler.TryAcquire(jobActivation, o.holderID, now.UnixMilli(), now.Add(activationLeaseTTL).UnixMilli())
	if err != nil {
		logger.Errorf("strategy: orchestrator: acquire activation lease: %v", err)
		return
	}
	if !acquired {
		return
	}
	if err := o.activator.Run(now); err != nil {
		logger.Errorf("strategy: orchestrator: activation run failed: %v", err)
	}
	if err := o.scheduler.MarkRun(jobActivation, now.UnixMilli()); err != nil {
		logger.Warnf("strategy: orchestrator: mark activation run: %v", err)
	}
}

// nextDailyUTC returns the next UTC time at hour:minute after now.
func nextDailyUTC(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
