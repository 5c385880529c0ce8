// Command apiserver serves the royalty HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/LicenseIQ-Royalty/internal/app"
	"github.com/turtacn/LicenseIQ-Royalty/internal/config"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	httpapi "github.com/turtacn/LicenseIQ-Royalty/internal/interfaces/http"
)

const defaultConfigPath = "configs/licenseiq.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	watch := flag.Bool("watch-config", false, "log configuration file changes; restart to apply them")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting LicenseIQ API server",
		logging.String("version", app.Version),
		logging.String("commit", app.GitCommit),
		logging.Int("port", cfg.Server.Port),
		logging.String("database", cfg.Database.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to assemble application", logging.Err(err))
		os.Exit(1)
	}
	defer application.Close()

	if *watch {
		if err := watchConfig(*configPath, logger); err != nil {
			logger.Warn("config watch disabled", logging.Err(err))
		}
	}

	srv := httpapi.NewServer(cfg.Server, application.Router(), logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", logging.Err(err))
			application.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if err := srv.Stop(context.Background()); err != nil {
		logger.Error("HTTP server shutdown error", logging.Err(err))
	}
	logger.Info("server stopped")
}

// loadConfig reads path when it exists and falls back to LICENSEIQ_*
// environment variables and defaults otherwise.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.LoadFromEnv()
		}
		return nil, err
	}
	return config.Load(path)
}

func watchConfig(path string, logger logging.Logger) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return config.Watch(path,
		func(cfg *config.Config) {
			logger.Info("configuration file changed; restart to apply",
				logging.String("path", path),
				logging.String("log_level", cfg.Log.Level))
		},
		func(err error) {
			logger.Warn("configuration file change rejected", logging.Err(err))
		})
}
