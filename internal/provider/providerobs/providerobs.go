package providerobs

import (
	"context"
	"time"

	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/logger"
	"trading-data-pipeline/internal/trace"
	"trading-data-pipeline/internal/types"
)

// observableProvider wraps a DataProvider with observability (logging & tracing)
type observableProvider struct {
	p interfaces.DataProvider
}

// Compile-time interface check
var _ interfaces.DataProvider = (*observableProvider)(nil)

// Wrap wraps a data provider with observability middleware. Symbol
// normalization passes through untouched when the wrapped provider supports
// it, so the manager's type assertion still finds it.
func Wrap(p interfaces.DataProvider) interfaces.DataProvider {
	if _, ok := p.(interfaces.SymbolNormalizer); ok {
		return &observableNormalizingProvider{observableProvider{p: p}}
	}
	return &observableProvider{p: p}
}

type observableNormalizingProvider struct {
	observableProvider
}

var _ interfaces.SymbolNormalizer = (*observableNormalizingProvider)(nil)

func (op *observableNormalizingProvider) NormalizeSymbol(symbol, exchange string) string {
	return op.p.(interfaces.SymbolNormalizer).NormalizeSymbol(symbol, exchange)
}

func (op *observableNormalizingProvider) DenormalizeSymbol(providerSymbol string) string {
	return op.p.(interfaces.SymbolNormalizer).DenormalizeSymbol(providerSymbol)
}

func (op *observableProvider) Name() string { return op.p.Name() }

func (op *observableProvider) Available() bool { return op.p.Available() }

func (op *observableProvider) StatusInfo() types.ProviderStatusInfo { return op.p.StatusInfo() }

// Authenticate authenticates with observability
func (op *observableProvider) Authenticate(ctx context.Context, credentials map[string]string) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "provider.Authenticate")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Authenticating provider", "provider", op.p.Name())

	ok, err := op.p.Authenticate(ctx, credentials)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Provider authentication failed", err, "provider", op.p.Name())
		return false, err
	}

	logger.InfoSkip(ctx, 1, "Provider authenticated", "provider", op.p.Name(), "ok", ok)
	return ok, nil
}

// StockInfo fetches instrument metadata with observability
func (op *observableProvider) StockInfo(ctx context.Context, symbol string) (*types.StockInfo, error) {
	ctx, span := trace.StartSpan(ctx, "provider.StockInfo")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching stock info", "provider", op.p.Name(), "symbol", symbol)

	info, err := op.p.StockInfo(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch stock info", err, "provider", op.p.Name(), "symbol", symbol)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Stock info fetched", "provider", op.p.Name(), "symbol", symbol)
	return info, nil
}

// HistoricalData fetches bars with observability
func (op *observableProvider) HistoricalData(ctx context.Context, symbol string, from, to time.Time, interval types.Interval) ([]types.Bar, error) {
	ctx, span := trace.StartSpan(ctx, "provider.HistoricalData")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching historical data",
		"provider", op.p.Name(),
		"symbol", symbol,
		"from", from.Format("2006-01-02"),
		"to", to.Format("2006-01-02"),
		"interval", string(interval),
	)

	bars, err := op.p.HistoricalData(ctx, symbol, from, to, interval)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch historical data", err, "provider", op.p.Name(), "symbol", symbol)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Historical data fetched", "provider", op.p.Name(), "symbol", symbol, "bars", len(bars))
	return bars, nil
}

// RealTimeData fetches quotes with observability
func (op *observableProvider) RealTimeData(ctx context.Context, symbols []string) (map[string]types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "provider.RealTimeData")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching real-time data", "provider", op.p.Name(), "count", len(symbols))

	quotes, err := op.p.RealTimeData(ctx, symbols)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch real-time data", err, "provider", op.p.Name(), "count", len(symbols))
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Real-time data fetched", "provider", op.p.Name(), "quotes", len(quotes))
	return quotes, nil
}

// SearchStocks searches with observability
func (op *observableProvider) SearchStocks(ctx context.Context, query string) ([]types.SearchResult, error) {
	ctx, span := trace.StartSpan(ctx, "provider.SearchStocks")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Searching stocks", "provider", op.p.Name(), "query", query)

	results, err := op.p.SearchStocks(ctx, query)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Stock search failed", err, "provider", op.p.Name(), "query", query)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Stock search completed", "provider", op.p.Name(), "query", query, "results", len(results))
	return results, nil
}
