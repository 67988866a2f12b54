// Command fabric runs the standalone AMQP broker connection (C3): dials
// BROKER_URL, declares the full exchange/queue/binding topology from
// internal/fabric/topology.go, and holds the connection open so operators
// can bring the message bus up independently of any component that
// publishes or consumes on it. Running this is only meaningful with a real
// broker configured; the in-process fabric used by cmd/mastertrade has no
// standalone process of its own.
package main

import (
	"os"
	osignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mastertrade/internal/bootstrap"
	"mastertrade/internal/config"
	"mastertrade/internal/fabric/amqp"
	"mastertrade/internal/obs/logger"
)

func main() {
	root := bootstrap.RootCommand("fabric", "Dial the broker and hold the topology connection open", run)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if err := logger.Init(&logger.Config{Level: os.Getenv("LOG_LEVEL")}); err != nil {
		panic(err)
	}

	cfg := config.Init()
	if cfg.BrokerURL == "" {
		logger.Fatalf("fabric: BROKER_URL is required to run the standalone broker process")
	}

	bus, err := amqp.Dial(cfg.BrokerURL)
	if err != nil {
		logger.Fatalf("fabric: dial %s: %v", cfg.BrokerURL, err)
	}
	defer bus.Close()

	logger.Info("fabric: topology declared, broker connection established")

	quit := make(chan os.Signal, 1)
	osignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("fabric: shutdown signal received")
	return nil
}
