package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-data-pipeline/internal/config"
	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/logger"
	"trading-data-pipeline/internal/provider"
	"trading-data-pipeline/internal/trace"
	"trading-data-pipeline/internal/types"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(initializeSystem())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	must(err)

	st, err := initializeStore(ctx, cfg)
	must(err)
	defer st.Close()

	mgr := initializeManager(ctx, cfg)
	analyzer := initializeAnalyzer(cfg)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	// Seed instrument metadata and backfill history once at startup, then
	// poll for fresh bars and re-analyze.
	seedUniverse(ctx, cfg, mgr, st)
	runCycle(ctx, cfg, mgr, st, analyzer)

	tick := time.NewTicker(time.Duration(cfg.PollSeconds) * time.Second)
	defer tick.Stop()

	logger.Info(ctx, "Pipeline started",
		"universe", len(cfg.Universe),
		"poll_seconds", cfg.PollSeconds,
		"provider", mgr.CurrentProviderName(),
	)

	for {
		select {
		case <-tick.C:
			runCycle(ctx, cfg, mgr, st, analyzer)
		case <-sigc:
			logger.Info(ctx, "Shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = trace.Shutdown(shutdownCtx)
			shutdownCancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// seedUniverse stores instrument metadata and backfills the configured
// history window for every symbol in the universe.
func seedUniverse(ctx context.Context, cfg *config.Config, mgr *provider.Manager, st interfaces.Store) {
	to := time.Now()
	from := to.AddDate(0, 0, -cfg.DaysBack)

	for _, sym := range cfg.Universe {
		info, err := mgr.StockInfo(ctx, sym, cfg.Exchange)
		if err != nil {
			logger.Warn(ctx, "Stock info fetch failed", "symbol", sym, "error", err)
		} else if info != nil {
			if err := st.StoreStockInfo(ctx, info); err != nil {
				logger.ErrorWithErr(ctx, "Failed to store stock info", err, "symbol", sym)
			}
		}

		res, err := mgr.HistoricalData(ctx, sym, from, to, types.IntervalDay, cfg.Exchange)
		if err != nil {
			logger.Warn(ctx, "Historical backfill failed", "symbol", sym, "error", err)
			continue
		}
		if res == nil {
			logger.Warn(ctx, "No historical data for symbol", "symbol", sym)
			continue
		}
		n, err := st.StorePriceData(ctx, sym, types.IntervalDay, res.Bars)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to store price data", err, "symbol", sym)
			continue
		}
		logger.Info(ctx, "Backfilled history", "symbol", sym, "bars", n, "provider", res.Provider)
	}
}

// runCycle is one poll iteration: fetch recent bars, persist them, analyze
// and record the recommendation.
func runCycle(ctx context.Context, cfg *config.Config, mgr *provider.Manager, st interfaces.Store, analyzer interfaces.Analyzer) {
	timer := logger.StartOperation(ctx, "pipeline.cycle", "universe", len(cfg.Universe))
	cycleCtx := timer.GetContext()

	to := time.Now()
	from := to.AddDate(0, 0, -7)

	for _, sym := range cfg.Universe {
		res, err := mgr.HistoricalData(cycleCtx, sym, from, to, types.IntervalDay, cfg.Exchange)
		if err != nil {
			logger.Warn(cycleCtx, "Bar refresh failed", "symbol", sym, "error", err)
			continue
		}
		if res != nil {
			if _, err := st.StorePriceData(cycleCtx, sym, types.IntervalDay, res.Bars); err != nil {
				logger.ErrorWithErr(cycleCtx, "Failed to store price data", err, "symbol", sym)
			}
		}

		bars, err := st.GetLatestPriceData(cycleCtx, sym, cfg.DaysBack)
		if err != nil {
			logger.ErrorWithErr(cycleCtx, "Failed to load price data", err, "symbol", sym)
			continue
		}
		rec, err := analyzer.Analyze(cycleCtx, sym, bars)
		if err != nil {
			logger.Warn(cycleCtx, "Analysis failed", "symbol", sym, "error", err)
			continue
		}
		logger.Recommendation(cycleCtx, rec.Symbol, rec.Action, rec.Confidence, rec.Reasoning, "price", rec.Price)
		if err := st.StoreRecommendation(cycleCtx, rec); err != nil {
			logger.ErrorWithErr(cycleCtx, "Failed to store recommendation", err, "symbol", sym)
		}
	}

	// A single batched quote call keeps the cycle cheap on request budgets.
	quotes, err := mgr.RealTimeData(cycleCtx, cfg.Universe, cfg.Exchange)
	if err != nil {
		logger.Warn(cycleCtx, "Quote refresh failed", "error", err)
	} else {
		for sym, q := range quotes {
			logger.Debug(cycleCtx, "Quote", "symbol", sym, "ltp", q.LTP, "change_pct", q.ChangePct, "provider", q.Provider)
		}
	}

	timer.End("provider", mgr.CurrentProviderName())
}
