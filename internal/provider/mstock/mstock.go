// Package mstock implements the MStock (Mirae Asset) broker data provider.
// MStock addresses instruments by numeric instrument token. The tokens come
// from the script master, a CSV dump of every listed instrument fetched once
// per session; loading it fills the symbol mapper in both directions so
// tokens in later payloads resolve back to tickers without extra calls.
package mstock

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/provider"
	"trading-data-pipeline/internal/symbols"
	"trading-data-pipeline/internal/types"
)

const (
	providerName = "mstock"

	rateLimitDelay = time.Second
	dailyLimit     = 2000

	maxSearchResults = 20
)

var timeframeMap = map[types.Interval]string{
	types.IntervalDay:      "day",
	types.IntervalHour:     "60minute",
	types.Interval30Minute: "30minute",
	types.Interval15Minute: "15minute",
	types.Interval5Minute:  "5minute",
	types.IntervalMinute:   "1minute",
}

// instrument is one NSE equity row from the script master.
type instrument struct {
	Symbol   string
	Name     string
	Token    string
	LotSize  int
	TickSize float64
}

type Provider struct {
	*provider.Base
	client *Client
	mapper *symbols.Mapper

	mu          sync.RWMutex
	instruments map[string]instrument
	loaded      bool
}

var _ interfaces.DataProvider = (*Provider)(nil)
var _ interfaces.SymbolNormalizer = (*Provider)(nil)

func New(options ...ClientOption) *Provider {
	return &Provider{
		Base:        provider.NewBase(providerName, provider.PriorityTertiary, rateLimitDelay, dailyLimit),
		client:      NewClient(options...),
		mapper:      symbols.NewMapper(),
		instruments: make(map[string]instrument),
	}
}

// Authenticate installs the api_key/access_token pair and loads the script
// master, which doubles as the session probe.
func (p *Provider) Authenticate(ctx context.Context, credentials map[string]string) (bool, error) {
	for _, key := range []string{"api_key", "access_token"} {
		if credentials[key] == "" {
			return false, provider.NewAuthError(providerName, "missing required credential: "+key)
		}
	}
	p.client.SetCredentials(credentials["api_key"], credentials["access_token"])

	if err := p.loadScriptMaster(ctx); err != nil {
		p.SetStatus(provider.StatusError)
		return false, err
	}
	p.SetStatus(provider.StatusActive)
	return true, nil
}

// loadScriptMaster fetches and parses the instrument dump, keeping only NSE
// equities. Idempotent after the first successful load.
func (p *Provider) loadScriptMaster(ctx context.Context) error {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if loaded {
		return nil
	}

	body, err := p.client.getRaw(ctx, "/instruments/scriptmaster", nil)
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return err
	}

	instruments, err := parseScriptMaster(strings.NewReader(string(body)))
	if err != nil {
		p.RecordError()
		return provider.NewError(providerName, err)
	}
	if len(instruments) == 0 {
		p.RecordError()
		return provider.NewError(providerName, fmt.Errorf("script master contained no NSE equities"))
	}
	p.ResetErrors()

	p.mu.Lock()
	p.instruments = instruments
	p.loaded = true
	p.mu.Unlock()

	for sym, inst := range instruments {
		p.mapper.Put(sym, "NSE", inst.Token)
	}
	return nil
}

func parseScriptMaster(r io.Reader) (map[string]instrument, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading script master header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.ToLower(h))] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make(map[string]instrument)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed row should not sink the whole dump.
			continue
		}
		if !strings.EqualFold(field(row, "instrument_type"), "EQ") ||
			!strings.EqualFold(field(row, "segment"), "EQ") ||
			!strings.EqualFold(field(row, "exchange"), "NSE") {
			continue
		}
		sym := symbols.Canonical(field(row, "tradingsymbol"))
		token := field(row, "instrument_token")
		if sym == "" || token == "" {
			continue
		}
		inst := instrument{
			Symbol:   sym,
			Name:     field(row, "name"),
			Token:    token,
			LotSize:  1,
			TickSize: 0.05,
		}
		if n, err := strconv.Atoi(field(row, "lot_size")); err == nil && n > 0 {
			inst.LotSize = n
		}
		if f, err := strconv.ParseFloat(field(row, "tick_size"), 64); err == nil && f > 0 {
			inst.TickSize = f
		}
		out[sym] = inst
	}
	return out, nil
}

// pace blocks until the request gate opens. The script master load and the
// data call it precedes land back to back; failing the second on the spacing
// gate would read as a rate limit upstream. Only the exhausted daily cap
// fails.
func (p *Provider) pace(ctx context.Context) error {
	for !p.CheckRateLimit() {
		if p.Status() == provider.StatusRateLimited {
			return provider.NewRateLimitError(providerName)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

func (p *Provider) lookup(symbol string) (instrument, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	inst, ok := p.instruments[symbols.Canonical(symbol)]
	return inst, ok
}

// NormalizeSymbol returns the instrument token when the script master is
// loaded, otherwise the canonical ticker.
func (p *Provider) NormalizeSymbol(symbol, exchange string) string {
	if inst, ok := p.lookup(symbol); ok {
		return inst.Token
	}
	return symbols.Canonical(symbol)
}

func (p *Provider) DenormalizeSymbol(providerSymbol string) string {
	if s, ok := p.mapper.Reverse(providerSymbol); ok {
		return s
	}
	return symbols.Canonical(providerSymbol)
}

func (p *Provider) StockInfo(ctx context.Context, symbol string) (*types.StockInfo, error) {
	if err := p.loadScriptMaster(ctx); err != nil {
		return nil, err
	}
	inst, ok := p.lookup(symbol)
	if !ok {
		return nil, provider.NewNotFoundError(providerName, symbol)
	}
	return &types.StockInfo{
		Symbol:         inst.Symbol,
		Name:           inst.Name,
		Exchange:       "NSE",
		InstrumentType: "EQ",
		LotSize:        inst.LotSize,
		TickSize:       inst.TickSize,
		Provider:       providerName,
		ProviderSymbol: inst.Token,
	}, nil
}

func (p *Provider) HistoricalData(ctx context.Context, symbol string, from, to time.Time, interval types.Interval) ([]types.Bar, error) {
	if err := p.loadScriptMaster(ctx); err != nil {
		return nil, err
	}
	inst, ok := p.lookup(symbol)
	if !ok {
		return nil, provider.NewNotFoundError(providerName, symbol)
	}

	timeframe, ok := timeframeMap[interval]
	if !ok {
		timeframe = "day"
	}
	if err := p.pace(ctx); err != nil {
		return nil, err
	}

	query := url.Values{
		"from": {from.Format("2006-01-02 15:04:05")},
		"to":   {to.Format("2006-01-02 15:04:05")},
	}
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Candles [][]any `json:"candles"`
		} `json:"data"`
	}
	err := p.client.getJSON(ctx, "/instruments/historical/"+inst.Token+"/"+timeframe, query, &resp)
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, err
	}
	if resp.Status != "success" {
		p.RecordError()
		return nil, provider.NewError(providerName, fmt.Errorf("historical request returned status %q", resp.Status))
	}
	p.ResetErrors()
	if len(resp.Data.Candles) == 0 {
		return nil, provider.NewNotFoundError(providerName, symbol)
	}

	bars := make([]types.Bar, 0, len(resp.Data.Candles))
	for _, c := range resp.Data.Candles {
		if len(c) < 6 {
			continue
		}
		ts, ok := c[0].(string)
		if !ok {
			continue
		}
		date, err := parseCandleTime(ts)
		if err != nil {
			continue
		}
		bars = append(bars, types.Bar{
			Date:   date,
			Open:   toFloat(c[1]),
			High:   toFloat(c[2]),
			Low:    toFloat(c[3]),
			Close:  toFloat(c[4]),
			Volume: int64(toFloat(c[5])),
		})
	}
	return bars, nil
}

var candleTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseCandleTime(s string) (time.Time, error) {
	for _, layout := range candleTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable candle time %q", s)
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}

func (p *Provider) RealTimeData(ctx context.Context, syms []string) (map[string]types.Quote, error) {
	if err := p.pace(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	for _, s := range syms {
		query.Add("i", "NSE:"+symbols.Canonical(s))
	}
	var resp struct {
		Status string `json:"status"`
		Data   map[string]struct {
			LastPrice float64 `json:"last_price"`
			LTP       float64 `json:"ltp"`
		} `json:"data"`
	}
	err := p.client.getJSON(ctx, "/instruments/quote/ltp", query, &resp)
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, provider.NewNotFoundError(providerName, strings.Join(syms, ","))
	}
	p.ResetErrors()

	now := time.Now()
	out := make(map[string]types.Quote, len(resp.Data))
	for key, q := range resp.Data {
		canonical := symbols.Canonical(strings.TrimPrefix(key, "NSE:"))
		ltp := q.LastPrice
		if ltp == 0 {
			ltp = q.LTP
		}
		out[canonical] = types.Quote{
			Symbol:    canonical,
			Exchange:  "NSE",
			LTP:       ltp,
			Provider:  providerName,
			Timestamp: now,
		}
	}
	return out, nil
}

// SearchStocks scans the cached script master; no API call after the first
// load.
func (p *Provider) SearchStocks(ctx context.Context, query string) ([]types.SearchResult, error) {
	if err := p.loadScriptMaster(ctx); err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	p.mu.RLock()
	defer p.mu.RUnlock()

	var results []types.SearchResult
	for sym, inst := range p.instruments {
		if strings.Contains(strings.ToLower(sym), q) || strings.Contains(strings.ToLower(inst.Name), q) {
			results = append(results, types.SearchResult{
				Symbol:         sym,
				Name:           inst.Name,
				Exchange:       "NSE",
				Provider:       providerName,
				ProviderSymbol: inst.Token,
			})
			if len(results) >= maxSearchResults {
				break
			}
		}
	}
	return results, nil
}
