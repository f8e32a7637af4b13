// Package fyers implements the Fyers broker data provider. Fyers is the
// primary source: generous historical depth and a bulk quote endpoint, at the
// cost of a strict request budget (one request per second, 2000 per day).
//
// Fyers addresses instruments as "EXCHANGE:SYMBOL-EQ", e.g. "NSE:RELIANCE-EQ".
package fyers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/provider"
	"trading-data-pipeline/internal/symbols"
	"trading-data-pipeline/internal/types"
)

const (
	providerName = "fyers"

	rateLimitDelay = time.Second
	dailyLimit     = 2000

	// The bulk quote endpoint accepts at most this many symbols per call.
	maxQuoteSymbols = 50
)

var intervalMap = map[types.Interval]string{
	types.IntervalDay:      "D",
	types.IntervalHour:     "60",
	types.Interval30Minute: "30",
	types.Interval15Minute: "15",
	types.Interval5Minute:  "5",
	types.IntervalMinute:   "1",
}

type Provider struct {
	*provider.Base
	client *Client
	mapper *symbols.Mapper
}

var _ interfaces.DataProvider = (*Provider)(nil)
var _ interfaces.SymbolNormalizer = (*Provider)(nil)

func New(options ...ClientOption) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerName, provider.PriorityPrimary, rateLimitDelay, dailyLimit),
		client: NewClient(options...),
		mapper: symbols.NewMapper(),
	}
}

// Authenticate validates the client_id/access_token pair against the profile
// endpoint. A failed probe leaves the provider in error status so the manager
// routes around it.
func (p *Provider) Authenticate(ctx context.Context, credentials map[string]string) (bool, error) {
	for _, key := range []string{"client_id", "access_token"} {
		if credentials[key] == "" {
			return false, provider.NewAuthError(providerName, "missing required credential: "+key)
		}
	}
	p.client.SetCredentials(credentials["client_id"], credentials["access_token"])

	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := p.client.get(ctx, "/api/v3/profile", nil, &resp); err != nil {
		p.SetStatus(provider.StatusError)
		return false, err
	}
	p.RecordRequest()
	if resp.Code != 200 {
		p.SetStatus(provider.StatusError)
		return false, provider.NewAuthError(providerName, resp.Message)
	}
	p.SetStatus(provider.StatusActive)
	return true, nil
}

func (p *Provider) NormalizeSymbol(symbol, exchange string) string {
	canonical := symbols.Canonical(symbol)
	if exchange == "" {
		exchange = "NSE"
	}
	ps := fmt.Sprintf("%s:%s-EQ", strings.ToUpper(exchange), canonical)
	p.mapper.Put(canonical, exchange, ps)
	return ps
}

func (p *Provider) DenormalizeSymbol(providerSymbol string) string {
	if s, ok := p.mapper.Reverse(providerSymbol); ok {
		return s
	}
	// "NSE:RELIANCE-EQ" -> "RELIANCE" even when the cache is cold; the format
	// is mechanical.
	s := providerSymbol
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, "-EQ")
	return symbols.Canonical(s)
}

func (p *Provider) StockInfo(ctx context.Context, symbol string) (*types.StockInfo, error) {
	fs := p.NormalizeSymbol(symbol, "NSE")

	if !p.CheckRateLimit() {
		return nil, provider.NewRateLimitError(providerName)
	}
	var resp struct {
		Code int `json:"code"`
		Data struct {
			Description    string  `json:"description"`
			Sector         string  `json:"sector"`
			Industry       string  `json:"industry"`
			Exchange       string  `json:"exchange"`
			InstrumentType string  `json:"instrument_type"`
			LotSize        int     `json:"lot_size"`
			TickSize       float64 `json:"tick_size"`
		} `json:"data"`
	}
	err := p.client.get(ctx, "/api/v3/data/symbol-master", url.Values{"symbol": {fs}}, &resp)
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, err
	}
	if resp.Code != 200 || resp.Data.Description == "" {
		return nil, provider.NewNotFoundError(providerName, symbol)
	}
	p.ResetErrors()

	info := &types.StockInfo{
		Symbol:         symbols.Canonical(symbol),
		Name:           resp.Data.Description,
		Sector:         resp.Data.Sector,
		Industry:       resp.Data.Industry,
		Exchange:       resp.Data.Exchange,
		InstrumentType: resp.Data.InstrumentType,
		LotSize:        resp.Data.LotSize,
		TickSize:       resp.Data.TickSize,
		Provider:       providerName,
		ProviderSymbol: fs,
	}
	if info.Exchange == "" {
		info.Exchange = "NSE"
	}
	if info.LotSize == 0 {
		info.LotSize = 1
	}
	if info.TickSize == 0 {
		info.TickSize = 0.05
	}
	return info, nil
}

func (p *Provider) HistoricalData(ctx context.Context, symbol string, from, to time.Time, interval types.Interval) ([]types.Bar, error) {
	fs := p.NormalizeSymbol(symbol, "NSE")

	resolution, ok := intervalMap[interval]
	if !ok {
		resolution = "D"
	}
	if !p.CheckRateLimit() {
		return nil, provider.NewRateLimitError(providerName)
	}

	query := url.Values{
		"symbol":      {fs},
		"resolution":  {resolution},
		"date_format": {"0"},
		"range_from":  {strconv.FormatInt(from.Unix(), 10)},
		"range_to":    {strconv.FormatInt(to.Unix(), 10)},
		"cont_flag":   {"1"},
	}

	var resp struct {
		Code    int         `json:"code"`
		Candles [][]float64 `json:"candles"`
	}
	err := p.client.get(ctx, "/api/v3/data/history", query, &resp)
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, err
	}
	if resp.Code != 200 || len(resp.Candles) == 0 {
		return nil, provider.NewNotFoundError(providerName, symbol)
	}
	p.ResetErrors()

	bars := make([]types.Bar, 0, len(resp.Candles))
	for _, c := range resp.Candles {
		if len(c) < 5 {
			continue
		}
		bar := types.Bar{
			Date:  time.Unix(int64(c[0]), 0).UTC(),
			Open:  c[1],
			High:  c[2],
			Low:   c[3],
			Close: c[4],
		}
		if len(c) > 5 {
			bar.Volume = int64(c[5])
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (p *Provider) RealTimeData(ctx context.Context, syms []string) (map[string]types.Quote, error) {
	if len(syms) > maxQuoteSymbols {
		syms = syms[:maxQuoteSymbols]
	}
	fyersSyms := make([]string, len(syms))
	for i, s := range syms {
		fyersSyms[i] = p.NormalizeSymbol(s, "NSE")
	}

	if !p.CheckRateLimit() {
		return nil, provider.NewRateLimitError(providerName)
	}
	var resp struct {
		Code int `json:"code"`
		D    []struct {
			N string `json:"n"`
			V struct {
				LP  float64 `json:"lp"`
				O   float64 `json:"open_price"`
				H   float64 `json:"high_price"`
				L   float64 `json:"low_price"`
				C   float64 `json:"prev_close_price"`
				Vol int64   `json:"volume"`
				Ch  float64 `json:"ch"`
				Chp float64 `json:"chp"`
			} `json:"v"`
		} `json:"d"`
	}
	err := p.client.get(ctx, "/api/v3/data/quotes", url.Values{"symbols": {strings.Join(fyersSyms, ",")}}, &resp)
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, err
	}
	if resp.Code != 200 || len(resp.D) == 0 {
		return nil, provider.NewNotFoundError(providerName, strings.Join(syms, ","))
	}
	p.ResetErrors()

	now := time.Now()
	out := make(map[string]types.Quote, len(resp.D))
	for _, q := range resp.D {
		canonical := p.DenormalizeSymbol(q.N)
		out[canonical] = types.Quote{
			Symbol:    canonical,
			Exchange:  "NSE",
			LTP:       q.V.LP,
			Open:      q.V.O,
			High:      q.V.H,
			Low:       q.V.L,
			Close:     q.V.C,
			Volume:    q.V.Vol,
			Change:    q.V.Ch,
			ChangePct: q.V.Chp,
			Provider:  providerName,
			Timestamp: now,
		}
	}
	return out, nil
}

// SearchStocks is unsupported: Fyers has no search API short of downloading
// the full symbol master. Callers fall through to the next provider.
func (p *Provider) SearchStocks(ctx context.Context, query string) ([]types.SearchResult, error) {
	return nil, provider.NewNotFoundError(providerName, query)
}
