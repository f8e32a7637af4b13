package main

import (
	"context"
	"fmt"
	"os"

	"trading-data-pipeline/internal/analysis"
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
	"trading-data-pipeline/internal/store"
	"trading-data-pipeline/internal/trace"

	"github.com/joho/godotenv"
)

// initializeSystem initializes environment, logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
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

// initializeStore opens the SQLite database
func initializeStore(ctx context.Context, cfg *config.Config) (interfaces.Store, error) {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open store", err, "path", cfg.Database.Path)
		return nil, err
	}
	logger.Info(ctx, "Store opened", "path", cfg.Database.Path)
	return st, nil
}

// initializeManager builds the failover manager and registers every broker
// whose credentials are present in the environment. A broker with missing or
// expired tokens is skipped, not fatal; the sample provider registers last
// and unconditionally so the pipeline always has a data source.
func initializeManager(ctx context.Context, cfg *config.Config) *provider.Manager {
	mgr := provider.NewManager(cfg)

	register := func(name string, p interfaces.DataProvider, credentials map[string]string) {
		if err := mgr.Register(ctx, providerobs.Wrap(p), credentials); err != nil {
			logger.Warn(ctx, "Provider not registered", "provider", name, "error", err)
		}
	}

	if creds := auth.Credentials("FYERS", "client_id", "access_token"); creds != nil {
		if auth.NewEnvTokens("FYERS").TokenValid() {
			register("fyers", fyers.New(), creds)
		} else {
			logger.Warn(ctx, "Fyers token expired, skipping registration")
		}
	} else {
		logger.Info(ctx, "Fyers credentials not configured")
	}

	if creds := auth.Credentials("SHOONYA", "user_id", "session_token"); creds != nil {
		register("shoonya", shoonya.New(), creds)
	} else {
		logger.Info(ctx, "Shoonya credentials not configured")
	}

	if creds := auth.Credentials("MSTOCK", "api_key", "access_token"); creds != nil {
		if auth.NewEnvTokens("MSTOCK").TokenValid() {
			register("mstock", mstock.New(), creds)
		} else {
			logger.Warn(ctx, "MStock token expired, skipping registration")
		}
	} else {
		logger.Info(ctx, "MStock credentials not configured")
	}

	if apiKey := os.Getenv("KITE_API_KEY"); apiKey != "" {
		if creds := auth.Credentials("KITE", "access_token"); creds != nil {
			register("kite", kite.New(apiKey), creds)
		} else {
			logger.Info(ctx, "Kite access token not configured")
		}
	} else {
		logger.Info(ctx, "Kite credentials not configured")
	}

	// Always present, always last in priority.
	register("sample", sample.New(), nil)

	if cfg.Providers.Health.StartupCheck {
		mgr.StartupHealthCheck(ctx)
	}
	return mgr
}

// initializeAnalyzer builds the technical analysis agent from config
func initializeAnalyzer(cfg *config.Config) interfaces.Analyzer {
	return analysis.NewAgent(analysis.Params{
		RSIPeriod:  cfg.Indicators.RSIPeriod,
		MACDFast:   cfg.Indicators.MACDFast,
		MACDSlow:   cfg.Indicators.MACDSlow,
		MACDSignal: cfg.Indicators.MACDSignal,
		BBWindow:   cfg.Indicators.BBWindow,
		BBStdDev:   cfg.Indicators.BBStdDev,
		Confidence: cfg.Indicators.Confidence,
	})
}
