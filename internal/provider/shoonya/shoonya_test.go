package shoonya

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trading-data-pipeline/internal/provider"
	"trading-data-pipeline/internal/types"
)

func TestParseNorenTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"27-MAY-2025", time.Date(2025, 5, 27, 0, 0, 0, 0, time.UTC)},
		{"27-May-2025", time.Date(2025, 5, 27, 0, 0, 0, 0, time.UTC)},
		{"27-05-2025 15:29:00", time.Date(2025, 5, 27, 15, 29, 0, 0, time.UTC)},
		{"03-JAN-2024 09:15:00", time.Date(2024, 1, 3, 9, 15, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := parseNorenTime(c.in)
		require.NoError(t, err, c.in)
		require.True(t, got.Equal(c.want), "parseNorenTime(%q) = %v", c.in, got)
	}

	_, err := parseNorenTime("yesterday")
	require.Error(t, err)
}

func TestBarRowRejectsEmptyCandles(t *testing.T) {
	row := barRow{Time: "27-MAY-2025", Into: "0", Inth: "0", Intl: "0", Intc: "0"}
	if _, ok := row.toBar(); ok {
		t.Error("zero OHLC row should be dropped")
	}

	row = barRow{Time: "27-MAY-2025", Into: "100", Inth: "101", Intl: "99", Intc: "100.5", Intv: "12000"}
	bar, ok := row.toBar()
	require.True(t, ok)
	require.Equal(t, 100.5, bar.Close)
	require.Equal(t, int64(12000), bar.Volume)
}

func TestParseBarRowsSortsAscending(t *testing.T) {
	rows := []string{
		`{"time":"28-MAY-2025","into":"101","inth":"102","intl":"100","intc":"101.5","intv":"100"}`,
		`{"time":"27-MAY-2025","into":"100","inth":"101","intl":"99","intc":"100.5","intv":"200"}`,
	}
	bars, err := parseBarRows(rows)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.True(t, bars[0].Date.Before(bars[1].Date))
}

func TestStatError(t *testing.T) {
	require.True(t, provider.IsAuth(statError("Session Expired :: Invalid Session Key")))
	require.True(t, provider.IsAuth(statError("invalid session")))
	err := statError("market closed")
	require.False(t, provider.IsAuth(err))
	require.False(t, provider.IsRateLimit(err))
}

func TestIntervalMinutes(t *testing.T) {
	cases := map[types.Interval]string{
		types.IntervalMinute:  "1",
		types.Interval5Minute: "5",
		types.IntervalHour:    "60",
		types.IntervalDay:     "1440",
	}
	for in, want := range cases {
		require.Equal(t, want, intervalMinutes(in))
	}
}

// jData decodes the Noren form payload of a test request.
func jData(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	require.NoError(t, r.ParseForm())
	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("jData")), &out))
	return out
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	p.SetStatus(provider.StatusActive)
	p.client.SetSession("FA0001", "day-token")
	return p
}

func TestTokenCachedAcrossQuotes(t *testing.T) {
	var searches int
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/SearchScrip":
			searches++
			require.Equal(t, "RELIANCE", jData(t, r)["stext"])
			w.Write([]byte(`{"stat":"Ok","values":[{"tsym":"RELIANCE-EQ","token":"2885","exch":"NSE"}]}`))
		case "/GetQuotes":
			require.Equal(t, "2885", jData(t, r)["token"])
			w.Write([]byte(`{"stat":"Ok","lp":"2910.50","o":"2900","h":"2925","l":"2890","c":"2895","v":"1500000"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		q, err := p.quote(ctx, "RELIANCE", "NSE")
		require.NoError(t, err)
		require.Equal(t, "RELIANCE", q.Symbol)
		require.Equal(t, 2910.50, q.LTP)
		require.InDelta(t, 15.5, q.Change, 1e-9)
	}
	require.Equal(t, 1, searches, "token should be resolved once and cached")
}

func TestDailySeries(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/EODChartData", r.URL.Path)
		require.Equal(t, "RELIANCE-EQ", jData(t, r)["sym"])
		w.Write([]byte(`[
			"{\"time\":\"28-MAY-2025\",\"into\":\"2905\",\"inth\":\"2950\",\"intl\":\"2900\",\"intc\":\"2945.10\",\"intv\":\"1800000\"}",
			"{\"time\":\"27-MAY-2025\",\"into\":\"2900.5\",\"inth\":\"2925\",\"intl\":\"2890\",\"intc\":\"2910.25\",\"intv\":\"1500000\"}"
		]`))
	})

	from := time.Date(2025, 5, 27, 0, 0, 0, 0, time.UTC)
	bars, err := p.HistoricalData(context.Background(), "RELIANCE", from, from.AddDate(0, 0, 2), types.IntervalDay)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, 2910.25, bars[0].Close, "bars must be ascending")
	require.Equal(t, 2945.10, bars[1].Close)
}

func TestDailyFallsBackToTimeSeries(t *testing.T) {
	var eodCalls, tpCalls int
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/EODChartData":
			eodCalls++
			w.Write([]byte(`{"stat":"Not_Ok","emsg":"no data"}`))
		case "/SearchScrip":
			w.Write([]byte(`{"stat":"Ok","values":[{"tsym":"NEWIPO-EQ","token":"99001","exch":"NSE"}]}`))
		case "/TPSeries":
			tpCalls++
			body := jData(t, r)
			require.Equal(t, "99001", body["token"])
			require.Equal(t, "1440", body["intrv"])
			w.Write([]byte(`[{"time":"27-05-2025 00:00:00","into":"150","inth":"155","intl":"149","intc":"153","intv":"50000"}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	from := time.Date(2025, 5, 27, 0, 0, 0, 0, time.UTC)
	bars, err := p.HistoricalData(context.Background(), "NEWIPO", from, from.AddDate(0, 0, 1), types.IntervalDay)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	require.Equal(t, 153.0, bars[0].Close)
	require.Equal(t, 1, eodCalls)
	require.Equal(t, 1, tpCalls)
}

func TestSessionExpiryIsAuthError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/SearchScrip":
			w.Write([]byte(`{"stat":"Ok","values":[{"tsym":"TCS-EQ","token":"11536","exch":"NSE"}]}`))
		default:
			w.Write([]byte(`{"stat":"Not_Ok","emsg":"Session Expired :: Invalid Session Key"}`))
		}
	})

	_, err := p.RealTimeData(context.Background(), []string{"TCS"})
	require.True(t, provider.IsAuth(err))
}

func TestStockInfo(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/SearchScrip":
			w.Write([]byte(`{"stat":"Ok","values":[{"tsym":"TCS-EQ","token":"11536","exch":"NSE"}]}`))
		case "/GetSecurityInfo":
			require.Equal(t, "11536", jData(t, r)["token"])
			w.Write([]byte(`{"stat":"Ok","cname":"Tata Consultancy Services","tsym":"TCS-EQ","exch":"NSE","instname":"EQ","ls":"1","ti":"0.05"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	info, err := p.StockInfo(context.Background(), "tcs")
	require.NoError(t, err)
	require.Equal(t, "TCS", info.Symbol)
	require.Equal(t, "Tata Consultancy Services", info.Name)
	require.Equal(t, "11536", info.ProviderSymbol)
	require.Equal(t, 1, info.LotSize)
}

func TestSearchStocksFiltersEquity(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stat":"Ok","values":[
			{"tsym":"RELIANCE-EQ","token":"2885","exch":"NSE"},
			{"tsym":"RELIANCE24JUNFUT","token":"55555","exch":"NFO"},
			{"tsym":"RELINFRA-EQ","token":"553","exch":"NSE"}
		]}`))
	})

	hits, err := p.SearchStocks(context.Background(), "reliance")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "RELIANCE", hits[0].Symbol)
	require.Equal(t, "2885", hits[0].ProviderSymbol)

	// The search fed the token cache.
	require.Equal(t, "2885", p.NormalizeSymbol("RELIANCE", "NSE"))
	require.Equal(t, "RELIANCE", p.DenormalizeSymbol("2885"))
}
