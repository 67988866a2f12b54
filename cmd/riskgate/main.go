// Command riskgate runs the risk management loop (C7) as its own process:
// periodic drawdown checks against the configured limits, plus the daily
// goal-tracking sub-task that feeds the strategy orchestrator's activation
// throttle.
package main

import (
	"context"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mastertrade/internal/bootstrap"
	"mastertrade/internal/config"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/risk"
	"mastertrade/internal/wiring"
)

const drawdownCheckInterval = 60 * time.Second

func main() {
	root := bootstrap.RootCommand("riskgate", "Run the drawdown and goal-tracking loops", run)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if err := logger.Init(&logger.Config{Level: os.Getenv("LOG_LEVEL")}); err != nil {
		panic(err)
	}
	logger.Info("risk gate process starting")

	cfg := config.Init()

	db, err := bootstrap.OpenStore(cfg.DBURL)
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}

	bus, err := bootstrap.OpenFabric(cfg.BrokerURL)
	if err != nil {
		logger.Fatalf("failed to open fabric: %v", err)
	}
	defer bus.Close()

	drawdown := risk.NewDrawdownTracker(db.Alert())
	valuer := wiring.PortfolioValuer{Orders: db.Order(), Positions: db.Position()}
	goalTracker := risk.NewGoalTracker(db.Goal(), valuer, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runDailyGoalTracking(ctx, goalTracker)
	go runDrawdownChecks(ctx, drawdown, valuer)
	logger.Info("risk gate running")

	quit := make(chan os.Signal, 1)
	osignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	cancel()
	logger.Info("risk gate process shut down")
	return nil
}

// runDailyGoalTracking runs the goal tracker's daily sub-task at 23:59 UTC.
func runDailyGoalTracking(ctx context.Context, gt *risk.GoalTracker) {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			if err := gt.RunDaily(time.Now().UTC()); err != nil {
				logger.Errorf("goal tracker: daily run: %v", err)
			}
		}
	}
}

// runDrawdownChecks polls portfolio value on a fixed cadence and feeds it
// into the monthly drawdown tracker.
func runDrawdownChecks(ctx context.Context, d *risk.DrawdownTracker, v wiring.PortfolioValuer) {
	ticker := time.NewTicker(drawdownCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			value, err := v.CurrentPortfolioValue()
			if err != nil {
				logger.Errorf("risk: drawdown check: %v", err)
				continue
			}
			d.CheckDrawdown("default", value, time.Now().UTC())
		}
	}
}
