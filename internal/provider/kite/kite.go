// Package kite implements the Zerodha Kite Connect data provider. Quotes are
// keyed "EXCHANGE:SYMBOL"; historical data needs the numeric instrument
// token, which comes from the full instrument dump fetched once at
// authentication.
package kite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/provider"
	"trading-data-pipeline/internal/symbols"
	"trading-data-pipeline/internal/types"
)

const (
	providerName = "kite"

	rateLimitDelay = 350 * time.Millisecond
	dailyLimit     = 3000

	maxSearchResults = 20
)

var intervalMap = map[types.Interval]string{
	types.IntervalDay:      "day",
	types.IntervalHour:     "60minute",
	types.Interval30Minute: "30minute",
	types.Interval15Minute: "15minute",
	types.Interval5Minute:  "5minute",
	types.IntervalMinute:   "minute",
}

type Provider struct {
	*provider.Base
	kc     *kiteconnect.Client
	mapper *symbols.Mapper

	mu     sync.RWMutex
	tokens map[string]int    // canonical symbol -> instrument token
	names  map[string]string // canonical symbol -> company name
	loaded bool
}

var _ interfaces.DataProvider = (*Provider)(nil)
var _ interfaces.SymbolNormalizer = (*Provider)(nil)

// Option adjusts the underlying Kite Connect client, mainly for tests.
type Option func(*kiteconnect.Client)

// WithBaseURI points the client at an alternate API endpoint.
func WithBaseURI(uri string) Option {
	return func(kc *kiteconnect.Client) {
		kc.SetBaseURI(uri)
	}
}

// WithHTTPClient swaps the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(kc *kiteconnect.Client) {
		kc.SetHTTPClient(hc)
	}
}

func New(apiKey string, options ...Option) *Provider {
	kc := kiteconnect.New(apiKey)
	for _, option := range options {
		option(kc)
	}
	return &Provider{
		Base:   provider.NewBase(providerName, provider.PriorityTertiary, rateLimitDelay, dailyLimit),
		kc:     kc,
		mapper: symbols.NewMapper(),
		tokens: make(map[string]int),
		names:  make(map[string]string),
	}
}

// wrapErr maps a Kite Connect library error to the tagged error kinds.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var ke kiteconnect.Error
	if errors.As(err, &ke) {
		switch ke.ErrorType {
		case kiteconnect.TokenError, kiteconnect.TwoFAError, kiteconnect.PermissionError:
			return provider.NewAuthError(providerName, ke.Message)
		case kiteconnect.NetworkError:
			if ke.Code == http.StatusTooManyRequests {
				return provider.NewRateLimitError(providerName)
			}
		}
		if ke.Code == http.StatusTooManyRequests {
			return provider.NewRateLimitError(providerName)
		}
	}
	return provider.NewError(providerName, err)
}

// Authenticate installs the access token, verifies it against the user
// profile and loads the instrument dump that backs token lookup.
func (p *Provider) Authenticate(ctx context.Context, credentials map[string]string) (bool, error) {
	if credentials["access_token"] == "" {
		return false, provider.NewAuthError(providerName, "missing required credential: access_token")
	}
	p.kc.SetAccessToken(credentials["access_token"])

	if _, err := p.kc.GetUserProfile(); err != nil {
		p.SetStatus(provider.StatusError)
		return false, wrapErr(err)
	}
	p.RecordRequest()

	if err := p.loadInstruments(ctx); err != nil {
		p.SetStatus(provider.StatusError)
		return false, err
	}
	p.SetStatus(provider.StatusActive)
	return true, nil
}

func (p *Provider) loadInstruments(ctx context.Context) error {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if loaded {
		return nil
	}

	instruments, err := p.kc.GetInstrumentsByExchange("NSE")
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return wrapErr(err)
	}
	p.ResetErrors()

	p.mu.Lock()
	for _, inst := range instruments {
		if inst.InstrumentType != "EQ" {
			continue
		}
		sym := symbols.Canonical(inst.Tradingsymbol)
		p.tokens[sym] = inst.InstrumentToken
		p.names[sym] = inst.Name
		p.mapper.Put(sym, "NSE", "NSE:"+sym)
	}
	count := len(p.tokens)
	p.loaded = count > 0
	p.mu.Unlock()

	if count == 0 {
		return provider.NewError(providerName, fmt.Errorf("instrument dump contained no NSE equities"))
	}
	return nil
}

func (p *Provider) token(symbol string) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tokens[symbols.Canonical(symbol)]
	return t, ok
}

func (p *Provider) NormalizeSymbol(symbol, exchange string) string {
	if exchange == "" {
		exchange = "NSE"
	}
	canonical := symbols.Canonical(symbol)
	ps := strings.ToUpper(exchange) + ":" + canonical
	p.mapper.Put(canonical, exchange, ps)
	return ps
}

func (p *Provider) DenormalizeSymbol(providerSymbol string) string {
	if s, ok := p.mapper.Reverse(providerSymbol); ok {
		return s
	}
	s := providerSymbol
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	return symbols.Canonical(s)
}

func (p *Provider) StockInfo(ctx context.Context, symbol string) (*types.StockInfo, error) {
	if err := p.loadInstruments(ctx); err != nil {
		return nil, err
	}
	canonical := symbols.Canonical(symbol)
	token, ok := p.token(canonical)
	if !ok {
		return nil, provider.NewNotFoundError(providerName, symbol)
	}

	p.mu.RLock()
	name := p.names[canonical]
	p.mu.RUnlock()

	return &types.StockInfo{
		Symbol:         canonical,
		Name:           name,
		Exchange:       "NSE",
		InstrumentType: "EQ",
		LotSize:        1,
		TickSize:       0.05,
		Provider:       providerName,
		ProviderSymbol: fmt.Sprintf("%d", token),
	}, nil
}

func (p *Provider) HistoricalData(ctx context.Context, symbol string, from, to time.Time, interval types.Interval) ([]types.Bar, error) {
	if err := p.loadInstruments(ctx); err != nil {
		return nil, err
	}
	token, ok := p.token(symbol)
	if !ok {
		return nil, provider.NewNotFoundError(providerName, symbol)
	}
	kiteInterval, ok := intervalMap[interval]
	if !ok {
		kiteInterval = "day"
	}
	if !p.CheckRateLimit() {
		return nil, provider.NewRateLimitError(providerName)
	}

	data, err := p.kc.GetHistoricalData(token, kiteInterval, from, to, false, false)
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, wrapErr(err)
	}
	p.ResetErrors()
	if len(data) == 0 {
		return nil, provider.NewNotFoundError(providerName, symbol)
	}

	bars := make([]types.Bar, 0, len(data))
	for _, d := range data {
		bars = append(bars, types.Bar{
			Date:   d.Date.Time.UTC(),
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: int64(d.Volume),
		})
	}
	return bars, nil
}

func (p *Provider) RealTimeData(ctx context.Context, syms []string) (map[string]types.Quote, error) {
	if !p.CheckRateLimit() {
		return nil, provider.NewRateLimitError(providerName)
	}

	keys := make([]string, len(syms))
	for i, s := range syms {
		keys[i] = p.NormalizeSymbol(s, "NSE")
	}
	quotes, err := p.kc.GetQuote(keys...)
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, wrapErr(err)
	}
	p.ResetErrors()
	if len(quotes) == 0 {
		return nil, provider.NewNotFoundError(providerName, strings.Join(syms, ","))
	}

	now := time.Now()
	out := make(map[string]types.Quote, len(quotes))
	for key, q := range quotes {
		canonical := p.DenormalizeSymbol(key)
		prevClose := q.OHLC.Close
		var change, changePct float64
		if prevClose > 0 {
			change = q.LastPrice - prevClose
			changePct = change / prevClose * 100
		}
		out[canonical] = types.Quote{
			Symbol:    canonical,
			Exchange:  "NSE",
			LTP:       q.LastPrice,
			Open:      q.OHLC.Open,
			High:      q.OHLC.High,
			Low:       q.OHLC.Low,
			Close:     prevClose,
			Volume:    int64(q.Volume),
			Change:    change,
			ChangePct: changePct,
			Provider:  providerName,
			Timestamp: now,
		}
	}
	return out, nil
}

// SearchStocks scans the cached instrument dump.
func (p *Provider) SearchStocks(ctx context.Context, query string) ([]types.SearchResult, error) {
	if err := p.loadInstruments(ctx); err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	p.mu.RLock()
	defer p.mu.RUnlock()

	var results []types.SearchResult
	for sym, name := range p.names {
		if strings.Contains(strings.ToLower(sym), q) || strings.Contains(strings.ToLower(name), q) {
			results = append(results, types.SearchResult{
				Symbol:         sym,
				Name:           name,
				Exchange:       "NSE",
				Provider:       providerName,
				ProviderSymbol: "NSE:" + sym,
			})
			if len(results) >= maxSearchResults {
				break
			}
		}
	}
	return results, nil
}
