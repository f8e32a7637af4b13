package interfaces

import (
	"context"

	"trading-data-pipeline/internal/types"
)

// Store is the persistence sink consumed by the pipeline. The core never
// depends on its schema beyond these calls.
type Store interface {
	StoreStockInfo(ctx context.Context, info *types.StockInfo) error
	StorePriceData(ctx context.Context, symbol string, interval types.Interval, bars []types.Bar) (int, error)
	GetStockBySymbol(ctx context.Context, symbol string) (*types.StockInfo, error)
	GetLatestPriceData(ctx context.Context, symbol string, days int) ([]types.Bar, error)
	StoreRecommendation(ctx context.Context, rec *types.Recommendation) error
	Close() error
}
