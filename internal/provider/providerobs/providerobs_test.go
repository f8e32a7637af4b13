package providerobs

import (
	"context"
	"testing"
	"time"

	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/provider/sample"
	"trading-data-pipeline/internal/types"
)

type plainProvider struct{}

func (plainProvider) Name() string { return "plain" }
func (plainProvider) Authenticate(ctx context.Context, credentials map[string]string) (bool, error) {
	return true, nil
}
func (plainProvider) StockInfo(ctx context.Context, symbol string) (*types.StockInfo, error) {
	return &types.StockInfo{Symbol: symbol}, nil
}
func (plainProvider) HistoricalData(ctx context.Context, symbol string, from, to time.Time, interval types.Interval) ([]types.Bar, error) {
	return nil, nil
}
func (plainProvider) RealTimeData(ctx context.Context, symbols []string) (map[string]types.Quote, error) {
	return nil, nil
}
func (plainProvider) SearchStocks(ctx context.Context, query string) ([]types.SearchResult, error) {
	return nil, nil
}
func (plainProvider) Available() bool { return true }
func (plainProvider) StatusInfo() types.ProviderStatusInfo { return types.ProviderStatusInfo{} }

func TestWrapPreservesSymbolNormalizer(t *testing.T) {
	wrapped := Wrap(sample.New())
	n, ok := wrapped.(interfaces.SymbolNormalizer)
	if !ok {
		t.Fatal("wrapping must not hide the SymbolNormalizer capability")
	}
	if got := n.NormalizeSymbol("reliance", "NSE"); got != "RELIANCE" {
		t.Errorf("NormalizeSymbol = %q", got)
	}

	if _, ok := Wrap(plainProvider{}).(interfaces.SymbolNormalizer); ok {
		t.Error("a plain provider must not gain normalization through wrapping")
	}
}

func TestWrapDelegates(t *testing.T) {
	wrapped := Wrap(sample.New())
	if wrapped.Name() != "sample" {
		t.Errorf("Name = %q", wrapped.Name())
	}
	if !wrapped.Available() {
		t.Error("Available should pass through")
	}

	info, err := wrapped.StockInfo(context.Background(), "TCS")
	if err != nil {
		t.Fatalf("StockInfo: %v", err)
	}
	if info.Symbol != "TCS" {
		t.Errorf("info = %+v", info)
	}
}
