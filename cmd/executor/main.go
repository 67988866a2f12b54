// Command executor runs the order execution loop (C8) as its own process:
// consumes order requests off the fabric, places them against the
// configured live adaptor (or simulates a paper fill), and runs the
// auto-cancel timeout sweep.
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
	"mastertrade/internal/execution"
	"mastertrade/internal/execution/bybit"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/timeseries"
	"mastertrade/internal/wiring"
)

const seriesRetention = 90 * 24 * time.Hour

func main() {
	root := bootstrap.RootCommand("executor", "Run the order execution loop", run)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if err := logger.Init(&logger.Config{Level: os.Getenv("LOG_LEVEL")}); err != nil {
		panic(err)
	}
	logger.Info("executor process starting")

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

	series := timeseries.New(seriesRetention)

	var liveAdaptor execution.Adaptor
	if cfg.BybitAPIKey != "" && cfg.BybitSecretKey != "" {
		liveAdaptor = bybit.New(cfg.BybitAPIKey, cfg.BybitSecretKey)
	}
	executor := execution.NewExecutor(db.Order(), db.Position(), wiring.TimeseriesTickers{Series: series}, liveAdaptor, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go executor.RunTimeoutSweep(ctx)
	go func() {
		if err := bus.Consume(ctx, "order_requests", 4, executor.HandleRequest); err != nil {
			logger.Errorf("order executor exited: %v", err)
		}
	}()
	logger.Info("order executor running")

	quit := make(chan os.Signal, 1)
	osignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	cancel()
	logger.Info("executor process shut down")
	return nil
}
