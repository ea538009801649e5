package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/app"
	"github.com/docker-production-aws/microtrader/pkg/config"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		log.Printf("Quote service failed: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	zl, err := logger.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("could not build logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inf, err := app.NewInfra(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer inf.Close()

	zl.Info("Quote service starting", zap.Int("instruments", len(cfg.Market.Companies)), zap.Duration("period", cfg.Market.Period))
	if err := app.RunQuote(ctx, cfg, inf); err != nil {
		return err
	}
	zl.Info("Quote service stopped")
	return nil
}
