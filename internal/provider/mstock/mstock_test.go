package mstock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trading-data-pipeline/internal/provider"
	"trading-data-pipeline/internal/types"
)

const scriptMasterCSV = `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
2885,11,RELIANCE,Reliance Industries Limited,0,,0,0.05,1,EQ,EQ,NSE
11536,45,TCS,Tata Consultancy Services,0,,0,0.05,1,EQ,EQ,NSE
55555,217,RELIANCE24JUNFUT,Reliance June Future,0,2024-06-27,0,0.05,250,FUT,NFO-FUT,NFO
500325,1953,RELIANCE,Reliance Industries Limited,0,,0,0.05,1,EQ,EQ,BSE
`

func TestParseScriptMaster(t *testing.T) {
	instruments, err := parseScriptMaster(strings.NewReader(scriptMasterCSV))
	require.NoError(t, err)
	require.Len(t, instruments, 2, "only NSE equities survive the filter")

	rel, ok := instruments["RELIANCE"]
	require.True(t, ok)
	require.Equal(t, "2885", rel.Token)
	require.Equal(t, "Reliance Industries Limited", rel.Name)
	require.Equal(t, 1, rel.LotSize)
	require.Equal(t, 0.05, rel.TickSize)

	_, ok = instruments["RELIANCE24JUNFUT"]
	require.False(t, ok, "derivatives must be filtered out")
}

func TestParseCandleTime(t *testing.T) {
	for _, s := range []string{
		"2025-05-27T00:00:00+05:30",
		"2025-05-27T00:00:00+0530",
		"2025-05-27 00:00:00",
		"2025-05-27",
	} {
		if _, err := parseCandleTime(s); err != nil {
			t.Errorf("parseCandleTime(%q): %v", s, err)
		}
	}
	if _, err := parseCandleTime("27/05/2025"); err == nil {
		t.Error("expected failure for unknown layout")
	}
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func authCredentials() map[string]string {
	return map[string]string{"api_key": "key", "access_token": "token"}
}

func TestAuthenticateLoadsScriptMaster(t *testing.T) {
	var masterCalls int
	var gotAuth, gotVersion string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/instruments/scriptmaster", r.URL.Path)
		masterCalls++
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("X-Mirae-Version")
		w.Write([]byte(scriptMasterCSV))
	})

	ok, err := p.Authenticate(context.Background(), authCredentials())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "token key:token", gotAuth)
	require.Equal(t, "1", gotVersion)
	require.Equal(t, provider.StatusActive, p.Status())

	// Symbol resolution and stock info come from the cache, no further calls.
	require.Equal(t, "2885", p.NormalizeSymbol("reliance", "NSE"))
	require.Equal(t, "RELIANCE", p.DenormalizeSymbol("2885"))

	info, err := p.StockInfo(context.Background(), "TCS")
	require.NoError(t, err)
	require.Equal(t, "Tata Consultancy Services", info.Name)
	require.Equal(t, "11536", info.ProviderSymbol)
	require.Equal(t, 1, masterCalls)
}

func TestUnknownSymbolIsNotFound(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(scriptMasterCSV))
	})
	_, err := p.Authenticate(context.Background(), authCredentials())
	require.NoError(t, err)

	_, err = p.StockInfo(context.Background(), "NOSUCH")
	require.True(t, provider.IsNotFound(err))
}

func TestAuthenticateRejectedToken(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	ok, err := p.Authenticate(context.Background(), authCredentials())
	require.False(t, ok)
	require.True(t, provider.IsAuth(err))
	require.Equal(t, provider.StatusError, p.Status())
}

func TestHistoricalData(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/instruments/scriptmaster":
			w.Write([]byte(scriptMasterCSV))
		case strings.HasPrefix(r.URL.Path, "/instruments/historical/"):
			require.Equal(t, "/instruments/historical/2885/day", r.URL.Path)
			require.NotEmpty(t, r.URL.Query().Get("from"))
			w.Write([]byte(`{"status":"success","data":{"candles":[
				["2025-05-27T00:00:00+05:30",2900.5,2925,2890,2910.25,1500000],
				["2025-05-28T00:00:00+05:30",2905,2950,2900,2945.1,1800000]
			]}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	_, err := p.Authenticate(context.Background(), authCredentials())
	require.NoError(t, err)

	from := time.Date(2025, 5, 27, 0, 0, 0, 0, time.UTC)
	bars, err := p.HistoricalData(context.Background(), "RELIANCE", from, from.AddDate(0, 0, 2), types.IntervalDay)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, 2910.25, bars[0].Close)
	require.Equal(t, int64(1800000), bars[1].Volume)
}

func TestRealTimeData(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/instruments/quote/ltp", r.URL.Path)
		require.Equal(t, []string{"NSE:RELIANCE", "NSE:TCS"}, r.URL.Query()["i"])
		w.Write([]byte(`{"status":"success","data":{"NSE:RELIANCE":{"last_price":2910.5},"NSE:TCS":{"ltp":3850}}}`))
	})

	quotes, err := p.RealTimeData(context.Background(), []string{"reliance", "tcs"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	require.Equal(t, 2910.5, quotes["RELIANCE"].LTP)
	require.Equal(t, 3850.0, quotes["TCS"].LTP, "ltp field is the fallback price key")
}

func TestSearchScansCache(t *testing.T) {
	var calls int
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(scriptMasterCSV))
	})
	_, err := p.Authenticate(context.Background(), authCredentials())
	require.NoError(t, err)

	hits, err := p.SearchStocks(context.Background(), "tata")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "TCS", hits[0].Symbol)
	require.Equal(t, 1, calls, "search must not refetch the script master")
}
