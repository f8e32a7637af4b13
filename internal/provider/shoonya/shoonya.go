// Package shoonya implements the Shoonya (Finvasia) broker data provider.
// Shoonya addresses instruments by numeric exchange token; the token comes
// from the SearchScrip endpoint and is cached per (symbol, exchange) so a
// steady-state quote costs one API call, not two.
package shoonya

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/provider"
	"trading-data-pipeline/internal/symbols"
	"trading-data-pipeline/internal/types"
)

const (
	providerName = "shoonya"

	rateLimitDelay = 500 * time.Millisecond
	dailyLimit     = 3000

	maxSearchResults = 20
)

type Provider struct {
	*provider.Base
	client *Client
	mapper *symbols.Mapper
}

var _ interfaces.DataProvider = (*Provider)(nil)
var _ interfaces.SymbolNormalizer = (*Provider)(nil)

func New(options ...ClientOption) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerName, provider.PrioritySecondary, rateLimitDelay, dailyLimit),
		client: NewClient(options...),
		mapper: symbols.NewMapper(),
	}
}

// Authenticate installs a pre-established session (user_id, session_token)
// and probes it with the limits endpoint. The interactive TOTP login flow
// lives outside the pipeline; by the time we run, the day token exists.
func (p *Provider) Authenticate(ctx context.Context, credentials map[string]string) (bool, error) {
	for _, key := range []string{"user_id", "session_token"} {
		if credentials[key] == "" {
			return false, provider.NewAuthError(providerName, "missing required credential: "+key)
		}
	}
	p.client.SetSession(credentials["user_id"], credentials["session_token"])

	body, err := p.client.post(ctx, "/Limits", map[string]string{
		"uid":   credentials["user_id"],
		"actid": credentials["user_id"],
	})
	p.RecordRequest()
	if err != nil {
		p.SetStatus(provider.StatusError)
		return false, err
	}
	var resp struct {
		Stat string `json:"stat"`
		Emsg string `json:"emsg"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		p.SetStatus(provider.StatusError)
		return false, provider.NewError(providerName, fmt.Errorf("decoding limits response: %w", err))
	}
	if resp.Stat != "Ok" {
		p.SetStatus(provider.StatusError)
		return false, statError(resp.Emsg)
	}
	p.SetStatus(provider.StatusActive)
	return true, nil
}

// NormalizeSymbol returns the cached exchange token when one exists. Before
// the first SearchScrip for a symbol the trading-symbol form is the best we
// can produce without an API call.
func (p *Provider) NormalizeSymbol(symbol, exchange string) string {
	if exchange == "" {
		exchange = "NSE"
	}
	if token, ok := p.mapper.Forward(symbol, exchange); ok {
		return token
	}
	return symbols.Canonical(symbol) + "-EQ"
}

func (p *Provider) DenormalizeSymbol(providerSymbol string) string {
	if s, ok := p.mapper.Reverse(providerSymbol); ok {
		return s
	}
	return symbols.Canonical(strings.TrimSuffix(providerSymbol, "-EQ"))
}

// pace blocks until the request gate opens. Several operations here need two
// or more API calls back to back (token lookup then quote); failing the
// second call on the spacing gate would look like a rate limit to the
// failover manager, so we wait instead. Only the exhausted daily cap fails.
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

type searchHit struct {
	Tsym  string `json:"tsym"`
	Token string `json:"token"`
	Exch  string `json:"exch"`
	Ls    string `json:"ls"`
	Ti    string `json:"ti"`
}

// token resolves the exchange token for a symbol, caching both directions so
// quote payloads keyed by token denormalize without another lookup.
func (p *Provider) token(ctx context.Context, symbol, exchange string) (string, error) {
	canonical := symbols.Canonical(symbol)
	if t, ok := p.mapper.Forward(canonical, exchange); ok {
		return t, nil
	}

	hits, err := p.searchScrip(ctx, canonical, exchange)
	if err != nil {
		return "", err
	}
	// Prefer the exact equity match, fall back to the first hit.
	var chosen *searchHit
	for i := range hits {
		if hits[i].Tsym == canonical+"-EQ" || hits[i].Tsym == canonical {
			chosen = &hits[i]
			break
		}
	}
	if chosen == nil && len(hits) > 0 {
		chosen = &hits[0]
	}
	if chosen == nil || chosen.Token == "" {
		return "", provider.NewNotFoundError(providerName, symbol)
	}
	p.mapper.Put(canonical, exchange, chosen.Token)
	return chosen.Token, nil
}

func (p *Provider) searchScrip(ctx context.Context, text, exchange string) ([]searchHit, error) {
	if err := p.pace(ctx); err != nil {
		return nil, err
	}
	body, err := p.client.post(ctx, "/SearchScrip", map[string]string{
		"uid":   p.client.userID,
		"exch":  exchange,
		"stext": text,
	})
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, err
	}
	var resp struct {
		Stat   string      `json:"stat"`
		Emsg   string      `json:"emsg"`
		Values []searchHit `json:"values"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		p.RecordError()
		return nil, provider.NewError(providerName, fmt.Errorf("decoding search response: %w", err))
	}
	if resp.Stat != "Ok" {
		if strings.Contains(strings.ToLower(resp.Emsg), "no data") {
			return nil, provider.NewNotFoundError(providerName, text)
		}
		p.RecordError()
		return nil, statError(resp.Emsg)
	}
	p.ResetErrors()
	return resp.Values, nil
}

func (p *Provider) StockInfo(ctx context.Context, symbol string) (*types.StockInfo, error) {
	token, err := p.token(ctx, symbol, "NSE")
	if err != nil {
		return nil, err
	}

	if err := p.pace(ctx); err != nil {
		return nil, err
	}
	body, err := p.client.post(ctx, "/GetSecurityInfo", map[string]string{
		"uid":   p.client.userID,
		"exch":  "NSE",
		"token": token,
	})
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, err
	}
	var resp struct {
		Stat     string `json:"stat"`
		Emsg     string `json:"emsg"`
		Cname    string `json:"cname"`
		Tsym     string `json:"tsym"`
		Exch     string `json:"exch"`
		Instname string `json:"instname"`
		Ls       string `json:"ls"`
		Ti       string `json:"ti"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		p.RecordError()
		return nil, provider.NewError(providerName, fmt.Errorf("decoding security info: %w", err))
	}
	if resp.Stat != "Ok" {
		return nil, provider.NewNotFoundError(providerName, symbol)
	}
	p.ResetErrors()

	canonical := symbols.Canonical(symbol)
	info := &types.StockInfo{
		Symbol:         canonical,
		Name:           resp.Cname,
		Exchange:       resp.Exch,
		InstrumentType: resp.Instname,
		LotSize:        atoiDefault(resp.Ls, 1),
		TickSize:       atofDefault(resp.Ti, 0.05),
		Provider:       providerName,
		ProviderSymbol: token,
	}
	if info.Name == "" {
		info.Name = canonical
	}
	if info.Exchange == "" {
		info.Exchange = "NSE"
	}
	return info, nil
}

// HistoricalData uses the EOD series endpoint for daily bars and falls back
// to the intraday time/price series for everything else. Both return arrays
// of JSON-encoded strings, a quirk of the Noren wire format.
func (p *Provider) HistoricalData(ctx context.Context, symbol string, from, to time.Time, interval types.Interval) ([]types.Bar, error) {
	if interval == types.IntervalDay || interval == "" {
		bars, err := p.dailySeries(ctx, symbol, from, to)
		if err == nil && len(bars) > 0 {
			return bars, nil
		}
		if provider.IsRateLimit(err) || provider.IsAuth(err) {
			return nil, err
		}
		// Daily endpoint is flaky for recent listings; the intraday series
		// aggregated to daily covers the gap.
	}
	return p.timeSeries(ctx, symbol, from, to, interval)
}

func (p *Provider) dailySeries(ctx context.Context, symbol string, from, to time.Time) ([]types.Bar, error) {
	if err := p.pace(ctx); err != nil {
		return nil, err
	}
	body, err := p.client.post(ctx, "/EODChartData", map[string]string{
		"uid":  p.client.userID,
		"exch": "NSE",
		"sym":  symbols.Canonical(symbol) + "-EQ",
		"from": strconv.FormatInt(from.Unix(), 10),
		"to":   strconv.FormatInt(to.Unix(), 10),
	})
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, err
	}

	var rows []string
	if err := json.Unmarshal(body, &rows); err != nil {
		// Error envelopes come back as an object, not an array.
		var envelope struct {
			Stat string `json:"stat"`
			Emsg string `json:"emsg"`
		}
		if jerr := json.Unmarshal(body, &envelope); jerr == nil && envelope.Stat != "" {
			return nil, statError(envelope.Emsg)
		}
		p.RecordError()
		return nil, provider.NewError(providerName, fmt.Errorf("decoding daily series: %w", err))
	}
	p.ResetErrors()
	if len(rows) == 0 {
		return nil, provider.NewNotFoundError(providerName, symbol)
	}
	return parseBarRows(rows)
}

func (p *Provider) timeSeries(ctx context.Context, symbol string, from, to time.Time, interval types.Interval) ([]types.Bar, error) {
	token, err := p.token(ctx, symbol, "NSE")
	if err != nil {
		return nil, err
	}

	if err := p.pace(ctx); err != nil {
		return nil, err
	}
	body, err := p.client.post(ctx, "/TPSeries", map[string]string{
		"uid":   p.client.userID,
		"exch":  "NSE",
		"token": token,
		"st":    strconv.FormatInt(from.Unix(), 10),
		"et":    strconv.FormatInt(to.Unix(), 10),
		"intrv": intervalMinutes(interval),
	})
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		var envelope struct {
			Stat string `json:"stat"`
			Emsg string `json:"emsg"`
		}
		if jerr := json.Unmarshal(body, &envelope); jerr == nil && envelope.Stat != "" {
			return nil, statError(envelope.Emsg)
		}
		p.RecordError()
		return nil, provider.NewError(providerName, fmt.Errorf("decoding time series: %w", err))
	}
	p.ResetErrors()
	if len(rows) == 0 {
		return nil, provider.NewNotFoundError(providerName, symbol)
	}

	bars := make([]types.Bar, 0, len(rows))
	for _, raw := range rows {
		var row barRow
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		if bar, ok := row.toBar(); ok {
			bars = append(bars, bar)
		}
	}
	sortBars(bars)
	return bars, nil
}

func intervalMinutes(interval types.Interval) string {
	switch interval {
	case types.IntervalMinute:
		return "1"
	case types.Interval5Minute:
		return "5"
	case types.Interval15Minute:
		return "15"
	case types.Interval30Minute:
		return "30"
	case types.IntervalHour:
		return "60"
	default:
		return "1440"
	}
}

// barRow is one candle in either Noren series shape. Daily rows use
// into/inth/intl/intc too; everything arrives as strings.
type barRow struct {
	Time string `json:"time"`
	Into string `json:"into"`
	Inth string `json:"inth"`
	Intl string `json:"intl"`
	Intc string `json:"intc"`
	Intv string `json:"intv"`
}

func (r barRow) toBar() (types.Bar, bool) {
	date, err := parseNorenTime(r.Time)
	if err != nil {
		return types.Bar{}, false
	}
	bar := types.Bar{
		Date:   date,
		Open:   atofDefault(r.Into, 0),
		High:   atofDefault(r.Inth, 0),
		Low:    atofDefault(r.Intl, 0),
		Close:  atofDefault(r.Intc, 0),
		Volume: int64(atofDefault(r.Intv, 0)),
	}
	if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
		return types.Bar{}, false
	}
	return bar, true
}

func parseBarRows(rows []string) ([]types.Bar, error) {
	bars := make([]types.Bar, 0, len(rows))
	for _, s := range rows {
		var row barRow
		if err := json.Unmarshal([]byte(s), &row); err != nil {
			continue
		}
		if bar, ok := row.toBar(); ok {
			bars = append(bars, bar)
		}
	}
	if len(bars) == 0 {
		return nil, provider.NewError(providerName, fmt.Errorf("no parseable candles"))
	}
	sortBars(bars)
	return bars, nil
}

var norenTimeLayouts = []string{
	"02-Jan-2006",
	"02-Jan-2006 15:04:05",
	"02-01-2006",
	"02-01-2006 15:04:05",
}

func parseNorenTime(s string) (time.Time, error) {
	for _, layout := range norenTimeLayouts {
		// Shoonya writes month abbreviations in upper case ("27-MAY-2025").
		if t, err := time.Parse(layout, normalizeMonthCase(s)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

func normalizeMonthCase(s string) string {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) == 3 && len(parts[1]) == 3 {
		parts[1] = strings.ToUpper(parts[1][:1]) + strings.ToLower(parts[1][1:])
		return strings.Join(parts, "-")
	}
	return s
}

func sortBars(bars []types.Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}

// RealTimeData fetches quotes one symbol at a time; Shoonya has no bulk quote
// endpoint. The per-request delay in the rate limit gate keeps this polite.
func (p *Provider) RealTimeData(ctx context.Context, syms []string) (map[string]types.Quote, error) {
	out := make(map[string]types.Quote, len(syms))
	var lastErr error
	for _, s := range syms {
		q, err := p.quote(ctx, s, "NSE")
		if err != nil {
			if provider.IsRateLimit(err) || provider.IsAuth(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		out[q.Symbol] = *q
	}
	if len(out) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, provider.NewNotFoundError(providerName, strings.Join(syms, ","))
	}
	return out, nil
}

func (p *Provider) quote(ctx context.Context, symbol, exchange string) (*types.Quote, error) {
	token, err := p.token(ctx, symbol, exchange)
	if err != nil {
		return nil, err
	}

	if err := p.pace(ctx); err != nil {
		return nil, err
	}
	body, err := p.client.post(ctx, "/GetQuotes", map[string]string{
		"uid":   p.client.userID,
		"exch":  exchange,
		"token": token,
	})
	p.RecordRequest()
	if err != nil {
		p.RecordError()
		return nil, err
	}
	var resp struct {
		Stat string `json:"stat"`
		Emsg string `json:"emsg"`
		Lp   string `json:"lp"`
		O    string `json:"o"`
		H    string `json:"h"`
		L    string `json:"l"`
		C    string `json:"c"`
		V    string `json:"v"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		p.RecordError()
		return nil, provider.NewError(providerName, fmt.Errorf("decoding quote: %w", err))
	}
	if resp.Stat != "Ok" {
		return nil, statError(resp.Emsg)
	}
	p.ResetErrors()

	ltp := atofDefault(resp.Lp, 0)
	prevClose := atofDefault(resp.C, 0)
	var change, changePct float64
	if prevClose > 0 {
		change = ltp - prevClose
		changePct = change / prevClose * 100
	}
	return &types.Quote{
		Symbol:    symbols.Canonical(symbol),
		Exchange:  exchange,
		LTP:       ltp,
		Open:      atofDefault(resp.O, 0),
		High:      atofDefault(resp.H, 0),
		Low:       atofDefault(resp.L, 0),
		Close:     prevClose,
		Volume:    int64(atofDefault(resp.V, 0)),
		Change:    change,
		ChangePct: changePct,
		Provider:  providerName,
		Timestamp: time.Now(),
	}, nil
}

// SearchStocks surfaces equity hits from SearchScrip, feeding the token cache
// as a side effect.
func (p *Provider) SearchStocks(ctx context.Context, query string) ([]types.SearchResult, error) {
	hits, err := p.searchScrip(ctx, query, "NSE")
	if err != nil {
		if provider.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		if !strings.HasSuffix(h.Tsym, "-EQ") {
			continue
		}
		canonical := symbols.Canonical(strings.TrimSuffix(h.Tsym, "-EQ"))
		if h.Token != "" {
			p.mapper.Put(canonical, "NSE", h.Token)
		}
		results = append(results, types.SearchResult{
			Symbol:         canonical,
			Name:           canonical,
			Exchange:       h.Exch,
			Provider:       providerName,
			ProviderSymbol: h.Token,
		})
		if len(results) >= maxSearchResults {
			break
		}
	}
	return results, nil
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return def
}

func atofDefault(s string, def float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f
	}
	return def
}
