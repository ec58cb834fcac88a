// Command apiserver runs the annotation platform's REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spanmark/spanmark/internal/bootstrap"
	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
)

const defaultConfigPath = "configs/config.yaml"

// Build-time variable injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	port := flag.Int("port", 0, "HTTP listen port (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	logger.Info("Starting API server",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port),
		logging.String("mode", cfg.Server.Mode))

	container, err := bootstrap.New(context.Background(), cfg, logger, version)
	if err != nil {
		logger.Error("Failed to assemble server stack", logging.Err(err))
		os.Exit(1)
	}
	defer container.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- container.HTTP.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", logging.Err(err))
			_ = container.Close()
			os.Exit(1)
		}
		return
	case sig := <-quit:
		logger.Info("Received shutdown signal", logging.String("signal", sig.String()))
	}

	if err := container.HTTP.Stop(context.Background()); err != nil {
		logger.Error("Shutdown failed", logging.Err(err))
	}
}

// loadConfig falls back to environment-only configuration when the file is
// absent, which is how containerised deployments run.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.LoadFromEnv()
		}
		return nil, err
	}
	return config.Load(path)
}
