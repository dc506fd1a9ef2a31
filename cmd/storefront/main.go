package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/storefront/pkg/app"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/logger"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configPath := pflag.StringP("config", "c", "config/config.yaml", "path to the YAML config file")
	pflag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting storefront",
		zap.String("name", cfg.Server.Name),
		zap.Int("http_port", cfg.Gateway.Port),
		zap.Int("grpc_port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("ledger", cfg.Storage.LedgerDriver()))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Error("Storefront exited with error", zap.Error(err))
		os.Exit(1)
	}
}
