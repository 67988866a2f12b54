// Command collector runs the rate-limited, circuit-broken market-data
// collectors (C1 rate limiter + C2 collector framework) as their own
// process: every external-API poller the monolith runs inline, split out
// so a credential outage or API rate-limit trip in one collector can't
// starve the strategy/execution processes sharing the same binary.
package main

import (
	"context"
	"os"
	osignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mastertrade/internal/bootstrap"
	"mastertrade/internal/cache"
	"mastertrade/internal/collector"
	"mastertrade/internal/collector/exchange"
	"mastertrade/internal/collector/macro"
	"mastertrade/internal/collector/onchain"
	"mastertrade/internal/collector/social"
	"mastertrade/internal/config"
	"mastertrade/internal/fabric"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/store"
	"mastertrade/internal/timeseries"
)

const seriesRetention = 90 * 24 * time.Hour

func main() {
	root := bootstrap.RootCommand("collector", "Run the rate-limited market-data collectors", run)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if err := logger.Init(&logger.Config{Level: os.Getenv("LOG_LEVEL")}); err != nil {
		panic(err)
	}
	logger.Info("collector process starting")

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

	c := cache.NewInMemory()
	series := timeseries.New(seriesRetention)

	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	registry := buildCollectors(cfg, db, c, bus, series, symbols)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry.StartAll(ctx)
	logger.Infof("collectors started: %d registered", len(registry.All()))

	quit := make(chan os.Signal, 1)
	osignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	cancel()
	registry.StopAll(context.Background())
	logger.Info("collector process shut down")
	return nil
}

// buildCollectors registers every collector whose required credential is
// configured; an absent API key self-disables that collector rather than
// failing startup.
func buildCollectors(cfg *config.Config, db *store.Store, c cache.Cache, bus fabric.Fabric, series *timeseries.Store, symbols []string) *collector.Registry {
	registry := collector.NewRegistry()

	if cfg.OnchainCollectionEnabled && cfg.MoralisAPIKey != "" {
		registry.Register(onchain.New(cfg.MoralisAPIKey, symbols, c, db.Collector(), bus, series))
	}
	if cfg.SocialCollectionEnabled && cfg.LunarCrushKey != "" {
		registry.Register(social.New(cfg.LunarCrushKey, symbols, c, db.Collector(), bus, series))
	}
	if cfg.MacroCollectionEnabled {
		registry.Register(macro.New(cfg.FREDAPIKey, []string{"DFF", "CPIAUCSL", "UNRATE"}, c, db.Collector(), bus, series))
	}
	if cfg.ExchangeCollectionEnabled {
		registry.Register(exchange.New(coinbaseProducts(symbols), c, db.Collector(), bus, series))
	}

	return registry
}

func coinbaseProducts(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		base := strings.TrimSuffix(sym, "USDT")
		out = append(out, base+"-USD")
	}
	return out
}
