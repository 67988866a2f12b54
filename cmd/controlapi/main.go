// Command controlapi runs the HTTP control surface (C10) as its own
// process: authentication, strategy/collector inspection and override
// endpoints, and the whale-alert streaming websocket.
package main

import (
	"context"
	"os"
	osignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mastertrade/internal/alert"
	"mastertrade/internal/api"
	"mastertrade/internal/auth"
	"mastertrade/internal/bootstrap"
	"mastertrade/internal/cache"
	"mastertrade/internal/collector"
	"mastertrade/internal/config"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/risk"
	"mastertrade/internal/strategy"
)

func main() {
	root := bootstrap.RootCommand("controlapi", "Run the HTTP control surface", run)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if err := logger.Init(&logger.Config{Level: os.Getenv("LOG_LEVEL")}); err != nil {
		panic(err)
	}
	logger.Info("control API process starting")

	cfg := config.Init()
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

	// This process doesn't run any collectors or the activator itself; an
	// empty registry/activator still serves read-only inspection endpoints,
	// while control actions that target live components (enable/disable a
	// collector, force-activate a strategy) require those components to be
	// reachable over the same fabric, same as every split binary shares one
	// store and one bus.
	registry := collector.NewRegistry()
	goalFactorSrc := risk.NewGoalFactorSource(db.Goal())
	activator := strategy.NewActivator(db.Strategy(), db.ActivationLog(), goalFactorSrc, bus, cfg.MaxActiveStrategies)
	drawdown := risk.NewDrawdownTracker(db.Alert())

	deliverer, err := alert.NewMultiDeliverer(alert.ChannelConfig{
		SMTPAddr:     cfg.SMTPAddr,
		TelegramChat: bootstrap.ParseTelegramChat(cfg.TelegramChatID),
		SlackWebhook: cfg.SlackWebhook,
	}, cfg.TelegramToken)
	if err != nil {
		logger.Fatalf("failed to init alert deliverer: %v", err)
	}
	alertBus := alert.NewBus(db.Alert(), deliverer)

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

	go func() {
		if err := apiServer.Run(ctx); err != nil {
			logger.Errorf("control API exited: %v", err)
		}
	}()
	logger.Infof("control API listening on :%d", cfg.APIServerPort)

	quit := make(chan os.Signal, 1)
	osignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	cancel()
	logger.Info("control API process shut down")
	return nil
}
