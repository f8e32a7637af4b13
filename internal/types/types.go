package types

import "time"

// Interval is a bar interval understood by all providers. Each provider maps
// it to its own API representation.
type Interval string

const (
	IntervalDay      Interval = "1D"
	IntervalHour     Interval = "1H"
	Interval30Minute Interval = "30M"
	Interval15Minute Interval = "15M"
	Interval5Minute  Interval = "5M"
	IntervalMinute   Interval = "1M"
)

// Bar is one OHLCV record keyed by its session date.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Quote is a real-time snapshot for one instrument. Close is the previous
// session close; Change and ChangePct are derived from it.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	LTP       float64   `json:"ltp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	Provider  string    `json:"provider"`
	Timestamp time.Time `json:"timestamp"`
}

// StockInfo is descriptive instrument metadata.
type StockInfo struct {
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Sector         string  `json:"sector,omitempty"`
	Industry       string  `json:"industry,omitempty"`
	Exchange       string  `json:"exchange"`
	InstrumentType string  `json:"instrument_type,omitempty"`
	LotSize        int     `json:"lot_size,omitempty"`
	TickSize       float64 `json:"tick_size,omitempty"`
	MarketCapCr    float64 `json:"market_cap_cr,omitempty"`
	Provider       string  `json:"provider,omitempty"`
	ProviderSymbol string  `json:"provider_symbol,omitempty"`
}

// SearchResult is one free-text search hit.
type SearchResult struct {
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	Exchange       string `json:"exchange,omitempty"`
	Provider       string `json:"provider"`
	ProviderSymbol string `json:"provider_symbol,omitempty"`
}

// HistoricalResult carries bars annotated with the canonical symbol and the
// provider that actually served the request.
type HistoricalResult struct {
	Symbol         string   `json:"symbol"`
	Exchange       string   `json:"exchange"`
	Interval       Interval `json:"interval"`
	Provider       string   `json:"provider"`
	ProviderSymbol string   `json:"provider_symbol,omitempty"`
	Bars           []Bar    `json:"bars"`
}

// ProviderStatusInfo is the per-provider slice of the status report.
type ProviderStatusInfo struct {
	Name            string    `json:"name"`
	Status          string    `json:"status"`
	Priority        int       `json:"priority"`
	ErrorCount      int       `json:"error_count"`
	RequestsToday   int       `json:"requests_today"`
	DailyLimit      int       `json:"daily_limit"`
	Available       bool      `json:"is_available"`
	LastRequestTime time.Time `json:"last_request_time"`
}

// Recommendation is the output of the technical analysis agent.
type Recommendation struct {
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"` // BUY, SELL or HOLD
	Confidence float64   `json:"confidence"`
	Score      float64   `json:"score"`
	Reasoning  string    `json:"reasoning"`
	Price      float64   `json:"price"`
	Time       time.Time `json:"time"`
}
