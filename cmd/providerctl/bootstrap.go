package main

import (
	"context"
	"fmt"
	"os"

	"trading-data-pipeline/internal/auth"
	"trading-data-pipeline/internal/config"
	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/logger"
	"trading-data-pipeline/internal/provider"
	"trading-data-pipeline/internal/provider/fyers"
	"trading-data-pipeline/internal/provider/kite"
	"trading-data-pipeline/internal/provider/mstock"
	"trading-data-pipeline/internal/provider/providerobs"
	"trading-data-pipeline/internal/provider/sample"
	"trading-data-pipeline/internal/provider/shoonya"
	"trading-data-pipeline/internal/trace"

	"github.com/joho/godotenv"
)

// initializeSystem initializes environment, logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*config.Config, error) {
	path := os.Getenv("PIPELINE_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// initializeManager mirrors the pipeline's provider registration so the tool
// sees the same stack the daemon would.
func initializeManager(ctx context.Context, cfg *config.Config) *provider.Manager {
	mgr := provider.NewManager(cfg)

	register := func(name string, p interfaces.DataProvider, credentials map[string]string) {
		if err := mgr.Register(ctx, providerobs.Wrap(p), credentials); err != nil {
			logger.Warn(ctx, "Provider not registered", "provider", name, "error", err)
		}
	}

	if creds := auth.Credentials("FYERS", "client_id", "access_token"); creds != nil && auth.NewEnvTokens("FYERS").TokenValid() {
		register("fyers", fyers.New(), creds)
	}
	if creds := auth.Credentials("SHOONYA", "user_id", "session_token"); creds != nil {
		register("shoonya", shoonya.New(), creds)
	}
	if creds := auth.Credentials("MSTOCK", "api_key", "access_token"); creds != nil && auth.NewEnvTokens("MSTOCK").TokenValid() {
		register("mstock", mstock.New(), creds)
	}
	if apiKey := os.Getenv("KITE_API_KEY"); apiKey != "" {
		if creds := auth.Credentials("KITE", "access_token"); creds != nil {
			register("kite", kite.New(apiKey), creds)
		}
	}
	register("sample", sample.New(), nil)

	if cfg.Providers.Health.StartupCheck {
		mgr.StartupHealthCheck(ctx)
	}
	return mgr
}
