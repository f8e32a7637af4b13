package kite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/stretchr/testify/require"

	"trading-data-pipeline/internal/provider"
)

func TestWrapErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want func(error) bool
	}{
		{"token error", kiteconnect.Error{ErrorType: kiteconnect.TokenError, Message: "token expired"}, provider.IsAuth},
		{"2fa error", kiteconnect.Error{ErrorType: kiteconnect.TwoFAError, Message: "2fa required"}, provider.IsAuth},
		{"permission error", kiteconnect.Error{ErrorType: kiteconnect.PermissionError, Message: "no access"}, provider.IsAuth},
		{"throttled", kiteconnect.Error{ErrorType: kiteconnect.NetworkError, Code: http.StatusTooManyRequests}, provider.IsRateLimit},
		{"general 429", kiteconnect.Error{ErrorType: kiteconnect.GeneralError, Code: http.StatusTooManyRequests}, provider.IsRateLimit},
	}
	for _, c := range cases {
		if !c.want(wrapErr(c.err)) {
			t.Errorf("%s: misclassified as %v", c.name, wrapErr(c.err))
		}
	}

	plain := wrapErr(errors.New("dial tcp: refused"))
	require.False(t, provider.IsAuth(plain))
	require.False(t, provider.IsRateLimit(plain))
	require.False(t, provider.IsNotFound(plain))

	require.NoError(t, wrapErr(nil))
}

func TestWrapErrThroughWrapping(t *testing.T) {
	inner := kiteconnect.Error{ErrorType: kiteconnect.TokenError, Message: "expired"}
	wrapped := fmt.Errorf("fetching profile: %w", inner)
	require.True(t, provider.IsAuth(wrapErr(wrapped)))
}

func TestNormalizeDenormalize(t *testing.T) {
	p := New("apikey")
	require.Equal(t, "NSE:RELIANCE", p.NormalizeSymbol("reliance", "nse"))
	require.Equal(t, "RELIANCE", p.DenormalizeSymbol("NSE:RELIANCE"))

	// Cold cache falls back to stripping the exchange prefix.
	require.Equal(t, "TCS", New("apikey").DenormalizeSymbol("NSE:TCS"))
}

func TestAuthenticateRequiresAccessToken(t *testing.T) {
	p := New("apikey")
	ok, err := p.Authenticate(context.Background(), map[string]string{})
	require.False(t, ok)
	require.True(t, provider.IsAuth(err))
}

// seed pretends the instrument dump was already loaded.
func seed(p *Provider, entries map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sym, token := range entries {
		p.tokens[sym] = token
		p.names[sym] = sym + " Limited"
		p.mapper.Put(sym, "NSE", "NSE:"+sym)
	}
	p.loaded = true
}

func TestStockInfoFromInstrumentCache(t *testing.T) {
	p := New("apikey")
	seed(p, map[string]int{"RELIANCE": 738561})

	info, err := p.StockInfo(context.Background(), "reliance")
	require.NoError(t, err)
	require.Equal(t, "RELIANCE", info.Symbol)
	require.Equal(t, "738561", info.ProviderSymbol)
	require.Equal(t, "RELIANCE Limited", info.Name)

	_, err = p.StockInfo(context.Background(), "NOSUCH")
	require.True(t, provider.IsNotFound(err))
}

func TestSearchScansCache(t *testing.T) {
	p := New("apikey")
	seed(p, map[string]int{"RELIANCE": 738561, "TCS": 2953217})

	hits, err := p.SearchStocks(context.Background(), "rel")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "RELIANCE", hits[0].Symbol)
	require.Equal(t, "NSE:RELIANCE", hits[0].ProviderSymbol)
}
