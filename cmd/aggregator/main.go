// Command aggregator runs the signal fusion loop (C5) as its own process:
// fans every per-symbol time series into a composite signal and publishes
// it, independent of collection, strategy orchestration, and execution.
//
// internal/timeseries.Store is process-local memory, so this binary only
// sees fresh data when run in the same process as the collectors (as
// cmd/mastertrade does); a genuinely split deployment needs the store's
// cache.Cache-shaped backing swapped for a shared Redis/Timescale instance,
// the same seam SPEC_FULL.md's DESIGN.md documents for the signal buffer.
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
	"mastertrade/internal/cache"
	"mastertrade/internal/config"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/signal"
	"mastertrade/internal/timeseries"
	"mastertrade/internal/wiring"
)

const seriesRetention = 90 * 24 * time.Hour

func main() {
	root := bootstrap.RootCommand("aggregator", "Run the signal fusion loop", run)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if err := logger.Init(&logger.Config{Level: os.Getenv("LOG_LEVEL")}); err != nil {
		panic(err)
	}
	logger.Info("aggregator process starting")

	cfg := config.Init()

	bus, err := bootstrap.OpenFabric(cfg.BrokerURL)
	if err != nil {
		logger.Fatalf("failed to open fabric: %v", err)
	}
	defer bus.Close()

	c := cache.NewInMemory()
	series := timeseries.New(seriesRetention)
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	agg := signal.New(symbols, wiring.BuildSignalSources(series), bus, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := agg.Run(ctx); err != nil {
			logger.Errorf("signal aggregator exited: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	osignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	cancel()
	logger.Info("aggregator process shut down")
	return nil
}
