package interfaces

import (
	"context"
	"time"

	"trading-data-pipeline/internal/types"
)

// DataProvider is the capability contract every market data source implements.
//
// StockInfo, HistoricalData and RealTimeData return a provider error of kind
// NotFound (never a bare nil result) when the instrument is unknown to the
// provider; the failover manager converts that into an empty result without
// penalizing the provider's health.
type DataProvider interface {
	Name() string

	// Authenticate establishes a usable session. Expected failures (bad
	// credentials) return (false, nil) and flip the provider into its error
	// status; only infrastructure faults return a non-nil error.
	Authenticate(ctx context.Context, credentials map[string]string) (bool, error)

	StockInfo(ctx context.Context, symbol string) (*types.StockInfo, error)
	HistoricalData(ctx context.Context, symbol string, from, to time.Time, interval types.Interval) ([]types.Bar, error)
	RealTimeData(ctx context.Context, symbols []string) (map[string]types.Quote, error)

	// SearchStocks returns an empty slice, not an error, when nothing matches
	// or the provider has no search capability.
	SearchStocks(ctx context.Context, query string) ([]types.SearchResult, error)

	// Available reports whether the provider may serve a request right now:
	// status permits it and the rate limit gate passes.
	Available() bool

	StatusInfo() types.ProviderStatusInfo
}

// SymbolNormalizer is the optional capability of translating between the
// canonical ticker and a provider-specific representation. Both directions
// are total: an unknown symbol passes through unchanged rather than failing.
type SymbolNormalizer interface {
	NormalizeSymbol(symbol, exchange string) string
	DenormalizeSymbol(providerSymbol string) string
}
