// Package sample is the always-available fallback data source. It serves
// deterministic synthetic data for a small universe of large-cap NSE stocks
// so the pipeline keeps working when every broker API is down or
// unauthenticated. It registers last in the priority order.
package sample

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/provider"
	"trading-data-pipeline/internal/symbols"
	"trading-data-pipeline/internal/types"
)

type stockSeed struct {
	name       string
	sector     string
	industry   string
	marketCap  float64 // crores
	basePrice  float64
	volatility float64
}

var stockDatabase = map[string]stockSeed{
	"RELIANCE":   {"Reliance Industries Limited", "Oil & Gas", "Petroleum Products", 1500000, 2800, 0.018},
	"TCS":        {"Tata Consultancy Services", "IT Services", "Software Services", 1200000, 3500, 0.015},
	"INFY":       {"Infosys Limited", "IT Services", "Software Services", 800000, 1800, 0.016},
	"HDFCBANK":   {"HDFC Bank Limited", "Banking", "Private Sector Bank", 900000, 1600, 0.020},
	"ICICIBANK":  {"ICICI Bank Limited", "Banking", "Private Sector Bank", 600000, 1200, 0.022},
	"ITC":        {"ITC Limited", "FMCG", "Tobacco & Cigarettes", 550000, 450, 0.014},
	"HINDUNILVR": {"Hindustan Unilever Limited", "FMCG", "Personal Care", 520000, 2200, 0.013},
	"SBIN":       {"State Bank of India", "Banking", "Public Sector Bank", 450000, 750, 0.025},
	"BHARTIARTL": {"Bharti Airtel Limited", "Telecom", "Telecom Services", 400000, 1100, 0.019},
	"KOTAKBANK":  {"Kotak Mahindra Bank Limited", "Banking", "Private Sector Bank", 380000, 1900, 0.021},
}

type Provider struct {
	*provider.Base
	mapper *symbols.Mapper
}

var _ interfaces.DataProvider = (*Provider)(nil)
var _ interfaces.SymbolNormalizer = (*Provider)(nil)

func New() *Provider {
	p := &Provider{
		Base:   provider.NewBase("sample", provider.PriorityBackup, 0, 0),
		mapper: symbols.NewMapper(),
	}
	// No credentials needed, usable from the start.
	p.SetStatus(provider.StatusActive)
	return p
}

func (p *Provider) Authenticate(ctx context.Context, credentials map[string]string) (bool, error) {
	p.SetStatus(provider.StatusActive)
	return true, nil
}

func (p *Provider) NormalizeSymbol(symbol, exchange string) string {
	canonical := symbols.Canonical(symbol)
	p.mapper.Put(canonical, exchange, canonical)
	return canonical
}

func (p *Provider) DenormalizeSymbol(providerSymbol string) string {
	return symbols.Canonical(providerSymbol)
}

func (p *Provider) StockInfo(ctx context.Context, symbol string) (*types.StockInfo, error) {
	p.RecordRequest()

	seed, ok := stockDatabase[symbols.Canonical(symbol)]
	if !ok {
		return nil, provider.NewNotFoundError(p.Name(), symbol)
	}
	return &types.StockInfo{
		Symbol:         symbols.Canonical(symbol),
		Name:           seed.name,
		Sector:         seed.sector,
		Industry:       seed.industry,
		Exchange:       "NSE",
		InstrumentType: "EQ",
		LotSize:        1,
		TickSize:       0.05,
		MarketCapCr:    seed.marketCap,
		Provider:       p.Name(),
	}, nil
}

// seededRand gives each symbol a stable price path across calls.
func seededRand(symbol string) *rand.Rand {
	var h int64
	for _, c := range symbol {
		h = h*31 + int64(c)
	}
	return rand.New(rand.NewSource(h))
}

func (p *Provider) HistoricalData(ctx context.Context, symbol string, from, to time.Time, interval types.Interval) ([]types.Bar, error) {
	p.RecordRequest()

	canonical := symbols.Canonical(symbol)
	seed, ok := stockDatabase[canonical]
	if !ok {
		return nil, provider.NewNotFoundError(p.Name(), symbol)
	}
	if to.Before(from) {
		return nil, nil
	}

	rng := seededRand(canonical)
	price := seed.basePrice
	bars := make([]types.Bar, 0, int(to.Sub(from).Hours()/24)+1)

	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		// Skip weekends, the exchange is closed.
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		drift := (rng.Float64() - 0.48) * seed.volatility
		open := price
		close := price * (1 + drift)
		high := math.Max(open, close) * (1 + rng.Float64()*seed.volatility/2)
		low := math.Min(open, close) * (1 - rng.Float64()*seed.volatility/2)
		vol := int64(500000 + rng.Intn(2000000))

		bars = append(bars, types.Bar{
			Date:   time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(close),
			Volume: vol,
		})
		price = close
	}
	return bars, nil
}

func (p *Provider) RealTimeData(ctx context.Context, syms []string) (map[string]types.Quote, error) {
	p.RecordRequest()

	out := make(map[string]types.Quote, len(syms))
	for _, s := range syms {
		canonical := symbols.Canonical(s)
		seed, ok := stockDatabase[canonical]
		if !ok {
			continue
		}
		rng := seededRand(canonical + time.Now().Format("2006-01-02"))
		prevClose := seed.basePrice
		ltp := prevClose * (1 + (rng.Float64()-0.5)*seed.volatility)
		change := ltp - prevClose

		out[canonical] = types.Quote{
			Symbol:    canonical,
			Exchange:  "NSE",
			LTP:       round2(ltp),
			Open:      round2(prevClose * (1 + (rng.Float64()-0.5)*seed.volatility/2)),
			High:      round2(math.Max(ltp, prevClose) * 1.005),
			Low:       round2(math.Min(ltp, prevClose) * 0.995),
			Close:     round2(prevClose),
			Volume:    int64(500000 + rng.Intn(2000000)),
			Change:    round2(change),
			ChangePct: round2(change / prevClose * 100),
			Provider:  p.Name(),
			Timestamp: time.Now(),
		}
	}
	if len(out) == 0 {
		return nil, provider.NewNotFoundError(p.Name(), strings.Join(syms, ","))
	}
	return out, nil
}

func (p *Provider) SearchStocks(ctx context.Context, query string) ([]types.SearchResult, error) {
	p.RecordRequest()

	q := strings.ToLower(query)
	var hits []types.SearchResult
	for sym, seed := range stockDatabase {
		if strings.Contains(strings.ToLower(sym), q) || strings.Contains(strings.ToLower(seed.name), q) {
			hits = append(hits, types.SearchResult{
				Symbol:   sym,
				Name:     seed.name,
				Exchange: "NSE",
				Provider: p.Name(),
			})
		}
	}
	return hits, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
