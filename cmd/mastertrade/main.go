// Command mastertrade runs every MasterTrade component in a single process:
// the load-env / init-logger / init-config / init-store / construct /
// start / block-on-signal / drain lifecycle the teacher's main.go follows,
// fanned out across the ten components SPEC_FULL.md describes instead of
// the teacher's single trader manager.
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

	"mastertrade/internal/alert"
	"mastertrade/internal/api"
	"mastertrade/internal/auth"
	"mastertrade/internal/bootstrap"
	"mastertrade/internal/cache"
	"mastertrade/internal/collector"
	"mastertrade/internal/collector/exchange"
	"mastertrade/internal/collector/macro"
	"mastertrade/internal/collector/onchain"
	"mastertrade/internal/collector/social"
	"mastertrade/internal/config"
	"mastertrade/internal/execution"
	"mastertrade/internal/execution/bybit"
	"mastertrade/internal/fabric"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/risk"
	"mastertrade/internal/signal"
	"mastertrade/internal/store"
	"mastertrade/internal/strategy"
	"mastertrade/internal/timeseries"
	"mastertrade/internal/wiring"
)

const seriesRetention = 90 * 24 * time.Hour

func main() {
	root := bootstrap.RootCommand("mastertrade", "Run every MasterTrade component in one process", run)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if err := logger.Init(&logger.Config{Level: os.Getenv("LOG_LEVEL")}); err != nil {
		panic(err)
	}
	logger.Info("MasterTrade starting")

	cfg := config.Init()
	logger.Info("configuration loaded")

	auth.SetJWTSecret(cfg.JWTSecret)

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
	auth.SetCache(c)
	series := timeseries.New(seriesRetention)

	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	registry := buildCollectors(cfg, db, c, bus, series, symbols)

	agg := signal.New(symbols, wiring.BuildSignalSources(series), bus, c)

	generator := strategy.NewGenerator(db.Strategy(), symbols, []string{"5m", "15m", "1h", "4h"}, nil)
	backtester := strategy.NewBacktester(db.Strategy(), db.Backtest(), series)
	goalFactorSrc := risk.NewGoalFactorSource(db.Goal())
	activator := strategy.NewActivator(db.Strategy(), db.ActivationLog(), goalFactorSrc, bus, cfg.MaxActiveStrategies)
	orchestrator := strategy.NewOrchestrator(generator, backtester, activator, db.Scheduler(), bootstrap.InstanceID())

	drawdown := risk.NewDrawdownTracker(db.Alert())
	valuer := wiring.PortfolioValuer{Orders: db.Order(), Positions: db.Position()}
	goalTracker := risk.NewGoalTracker(db.Goal(), valuer, bus)

	deliverer, err := alert.NewMultiDeliverer(alert.ChannelConfig{
		SMTPAddr:     cfg.SMTPAddr,
		TelegramChat: bootstrap.ParseTelegramChat(cfg.TelegramChatID),
		SlackWebhook: cfg.SlackWebhook,
	}, cfg.TelegramToken)
	if err != nil {
		logger.Fatalf("failed to init alert deliverer: %v", err)
	}
	alertBus := alert.NewBus(db.Alert(), deliverer)

	var liveAdaptor execution.Adaptor
	if cfg.BybitAPIKey != "" && cfg.BybitSecretKey != "" {
		liveAdaptor = bybit.New(cfg.BybitAPIKey, cfg.BybitSecretKey)
	}
	executor := execution.NewExecutor(db.Order(), db.Position(), wiring.TimeseriesTickers{Series: series}, liveAdaptor, bus)

	apiServer := api.NewServer(api.Deps{
		Store:        db,
		Cache:        c,
		Registry:     registry,
		Activator:    activator,
		Drawdown:     drawdown,
		AlertBus:     alertBus,
		Consumer:     bus,
		Port:         cfg.APIServerPort,
		RateLimitRPM: cfg.RateLimitRPM,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry.StartAll(ctx)
	go runLogged("signal aggregator", func() error { return agg.Run(ctx) })
	go orchestrator.Run(ctx)
	go runDailyGoalTracking(ctx, goalTracker)
	go runDrawdownChecks(ctx, drawdown, valuer)
	go alertBus.Run(ctx)
	go executor.RunTimeoutSweep(ctx)
	go runLogged("order executor", func() error { return bus.Consume(ctx, "order_requests", 4, executor.HandleRequest) })
	go runLogged("control api", func() error { return apiServer.Run(ctx) })

	logger.Info("system started, waiting for trading commands")

	quit := make(chan os.Signal, 1)
	osignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	cancel()
	registry.StopAll(context.Background())
	logger.Info("system shut down")
	return nil
}

func runLogged(name string, fn func() error) {
	if err := fn(); err != nil {
		logger.Errorf("%s exited: %v", name, err)
	}
}

// runDailyGoalTracking runs the goal tracker's daily sub-task at 23:59 UTC,
// per SPEC_FULL §4.7's goal-tracking schedule.
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

// drawdownCheckInterval matches the signal aggregator's fusion cadence so
// protective actions react within one signal cycle of a breach.
const drawdownCheckInterval = 60 * time.Second

// runDrawdownChecks polls portfolio value on a fixed cadence and feeds it
// into the monthly drawdown tracker, per SPEC_FULL §4.7's check_drawdown.
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

// buildCollectors registers every collector whose required credential is
// configured; an absent API key self-disables that collector rather than
// failing startup, per SPEC_FULL §4.2's "missing credentials never crash
// the process" rule.
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

// coinbaseProducts maps our BTCUSDT-style symbols to Coinbase's BTC-USD
// product IDs for the ticker-channel subscription.
func coinbaseProducts(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		base := strings.TrimSuffix(sym, "USDT")
		out = append(out, base+"-USD")
	}
	return out
}
