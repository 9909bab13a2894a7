package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/clinical-trial-matcher/internal/config"
	"github.com/clinical-trial-matcher/internal/mcp"
	"github.com/clinical-trial-matcher/internal/service"
	"github.com/clinical-trial-matcher/internal/setup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.Run(os.Args[2:], os.Stdout); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	var (
		configManager *config.Manager
		err           error
	)
	if *configPath != "" {
		configManager, err = config.NewManagerFromFile(*configPath)
	} else {
		configManager, err = config.NewManager()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	// stdout carries the MCP protocol.
	cfg.Logging.Output = "stderr"
	logger := config.NewLogger(cfg.Logging)

	pipeline, err := service.NewPipeline(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build matching pipeline")
	}
	defer pipeline.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := mcp.NewServer(cfg.MCP, pipeline.Matcher, logger).Run(ctx); err != nil {
		logger.WithError(err).Fatal("MCP server failed")
	}

	logger.Info("MCP server stopped")
}
