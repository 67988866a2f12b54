// Command alertbus runs the alert delivery loop (C9) as its own process:
// alert.Bus.Run drains the bus's in-process delivery queue and dispatches
// each queued alert to its channel (log, email, Telegram, Slack/SMS
// webhook). That queue is filled only by Bus.Raise in the same process;
// alerts persisted to the store by other processes are not read back.
package main

import (
	"context"
	"os"
	osignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mastertrade/internal/alert"
	"mastertrade/internal/bootstrap"
	"mastertrade/internal/config"
	"mastertrade/internal/obs/logger"
)

func main() {
	root := bootstrap.RootCommand("alertbus", "Run the alert delivery loop", run)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if err := logger.Init(&logger.Config{Level: os.Getenv("LOG_LEVEL")}); err != nil {
		panic(err)
	}
	logger.Info("alert bus process starting")

	cfg := config.Init()

	db, err := bootstrap.OpenStore(cfg.DBURL)
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}

	deliverer, err := alert.NewMultiDeliverer(alert.ChannelConfig{
		SMTPAddr:     cfg.SMTPAddr,
		TelegramChat: bootstrap.ParseTelegramChat(cfg.TelegramChatID),
		SlackWebhook: cfg.SlackWebhook,
	}, cfg.TelegramToken)
	if err != nil {
		logger.Fatalf("failed to init alert deliverer: %v", err)
	}
	alertBus := alert.NewBus(db.Alert(), deliverer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go alertBus.Run(ctx)
	logger.Info("alert bus running")

	quit := make(chan os.Signal, 1)
	osignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	cancel()
	logger.Info("alert bus process shut down")
	return nil
}
