package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/clinical-trial-matcher/internal/api"
	"github.com/clinical-trial-matcher/internal/config"
	"github.com/clinical-trial-matcher/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	configManager, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	pipeline, err := service.NewPipeline(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build matching pipeline")
	}
	defer pipeline.Close()

	server := api.NewServer(cfg, pipeline.Matcher, logger).WithRegistryStatus(pipeline.RegistryStatus)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.WithField("port", cfg.Server.Port).Info("Starting clinical trial matcher API")
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func loadConfig(path string) (*config.Manager, error) {
	if path != "" {
		return config.NewManagerFromFile(path)
	}
	return config.NewManager()
}
