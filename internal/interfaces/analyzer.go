package interfaces

import (
	"context"

	"trading-data-pipeline/internal/types"
)

// Analyzer turns a price series into a trading recommendation.
type Analyzer interface {
	Analyze(ctx context.Context, symbol string, bars []types.Bar) (*types.Recommendation, error)
}
