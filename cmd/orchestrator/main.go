// Command orchestrator runs the strategy lifecycle loop (C6) as its own
// process: generation, backtesting, and activation, cooperating through
// the scheduler's leader-election row so only one orchestrator instance
// drives the lifecycle even if several are deployed for availability.
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
	"mastertrade/internal/strategy"
	"mastertrade/internal/timeseries"
)

const seriesRetention = 90 * 24 * time.Hour

func main() {
	root := bootstrap.RootCommand("orchestrator", "Run the strategy lifecycle loop", run)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if err := logger.Init(&logger.Config{Level: os.Getenv("LOG_LEVEL")}); err != nil {
		panic(err)
	}
	logger.Info("orchestrator process starting")

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

	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	series := timeseries.New(seriesRetention)

	generator := strategy.NewGenerator(db.Strategy(), symbols, []string{"5m", "15m", "1h", "4h"}, nil)
	backtester := strategy.NewBacktester(db.Strategy(), db.Backtest(), series)
	goalFactorSrc := risk.NewGoalFactorSource(db.Goal())
	activator := strategy.NewActivator(db.Strategy(), db.ActivationLog(), goalFactorSrc, bus, cfg.MaxActiveStrategies)
	orchestrator := strategy.NewOrchestrator(generator, backtester, activator, db.Scheduler(), bootstrap.InstanceID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go orchestrator.Run(ctx)
	logger.Info("strategy orchestrator running")

	quit := make(chan os.Signal, 1)
	osignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	cancel()
	logger.Info("orchestrator process shut down")
	return nil
}
