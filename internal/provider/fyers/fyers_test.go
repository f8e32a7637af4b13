package fyers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trading-data-pipeline/internal/provider"
	"trading-data-pipeline/internal/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	p.SetStatus(provider.StatusActive)
	p.client.SetCredentials("APP-100", "token")
	return p
}

func TestAuthenticate(t *testing.T) {
	var gotAuth string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/profile", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"code":200,"message":"ok"}`))
	})

	ok, err := p.Authenticate(context.Background(), map[string]string{
		"client_id":    "APP-100",
		"access_token": "token",
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "APP-100:token", gotAuth)
	require.Equal(t, provider.StatusActive, p.Status())
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	p := New()
	ok, err := p.Authenticate(context.Background(), map[string]string{"client_id": "APP-100"})
	require.False(t, ok)
	require.True(t, provider.IsAuth(err))
}

func TestAuthenticateRejected(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":-16,"message":"Could not authenticate"}`))
	})
	ok, err := p.Authenticate(context.Background(), map[string]string{
		"client_id":    "APP-100",
		"access_token": "stale",
	})
	require.False(t, ok)
	require.True(t, provider.IsAuth(err))
	require.Equal(t, provider.StatusError, p.Status())
}

func TestNormalizeDenormalizeRoundTrip(t *testing.T) {
	p := New()
	ps := p.NormalizeSymbol("reliance", "nse")
	require.Equal(t, "NSE:RELIANCE-EQ", ps)
	require.Equal(t, "RELIANCE", p.DenormalizeSymbol(ps))

	// Cold cache still works because the format is mechanical.
	require.Equal(t, "TCS", New().DenormalizeSymbol("NSE:TCS-EQ"))
}

func TestStockInfo(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/data/symbol-master", r.URL.Path)
		require.Equal(t, "NSE:RELIANCE-EQ", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"code":200,"data":{"description":"Reliance Industries Limited","sector":"Energy","lot_size":1,"tick_size":0.05}}`))
	})

	info, err := p.StockInfo(context.Background(), "RELIANCE")
	require.NoError(t, err)
	require.Equal(t, "RELIANCE", info.Symbol)
	require.Equal(t, "Reliance Industries Limited", info.Name)
	require.Equal(t, "NSE", info.Exchange)
	require.Equal(t, "NSE:RELIANCE-EQ", info.ProviderSymbol)
}

func TestStockInfoNotFound(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"data":{}}`))
	})
	_, err := p.StockInfo(context.Background(), "NOSUCH")
	require.True(t, provider.IsNotFound(err))
}

func TestHistoricalData(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/data/history", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "D", q.Get("resolution"))
		require.Equal(t, "0", q.Get("date_format"))
		w.Write([]byte(`{"code":200,"candles":[[1716768000,2900.5,2925,2890,2910.25,1500000],[1716854400,2910,2950,2905,2945.1,1800000]]}`))
	})

	from := time.Date(2024, 5, 27, 0, 0, 0, 0, time.UTC)
	bars, err := p.HistoricalData(context.Background(), "RELIANCE", from, from.AddDate(0, 0, 2), types.IntervalDay)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, 2900.5, bars[0].Open)
	require.Equal(t, 2910.25, bars[0].Close)
	require.Equal(t, int64(1500000), bars[0].Volume)
	require.Equal(t, time.Unix(1716768000, 0).UTC(), bars[0].Date)
}

func TestRealTimeData(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/data/quotes", r.URL.Path)
		require.Equal(t, "NSE:RELIANCE-EQ,NSE:TCS-EQ", r.URL.Query().Get("symbols"))
		w.Write([]byte(`{"code":200,"d":[
			{"n":"NSE:RELIANCE-EQ","v":{"lp":2910.5,"open_price":2900,"high_price":2925,"low_price":2890,"prev_close_price":2895,"volume":1500000,"ch":15.5,"chp":0.54}},
			{"n":"NSE:TCS-EQ","v":{"lp":3850,"open_price":3840,"high_price":3860,"low_price":3830,"prev_close_price":3845,"volume":900000,"ch":5,"chp":0.13}}
		]}`))
	})

	quotes, err := p.RealTimeData(context.Background(), []string{"RELIANCE", "TCS"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	require.Equal(t, 2910.5, quotes["RELIANCE"].LTP)
	require.Equal(t, 2895.0, quotes["RELIANCE"].Close)
	require.Equal(t, int64(900000), quotes["TCS"].Volume)
}

func TestRateLimitResponse(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := p.StockInfo(context.Background(), "RELIANCE")
	require.True(t, provider.IsRateLimit(err))
}

func TestUnauthorizedResponse(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := p.StockInfo(context.Background(), "RELIANCE")
	require.True(t, provider.IsAuth(err))
}

func TestSearchUnsupported(t *testing.T) {
	p := New()
	_, err := p.SearchStocks(context.Background(), "reliance")
	require.True(t, provider.IsNotFound(err))
}
