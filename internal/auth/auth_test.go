package auth

import (
	"strconv"
	"testing"
	"time"
)

func TestExpiryAfter(t *testing.T) {
	cases := []struct {
		name   string
		issued time.Time
		want   time.Time
	}{
		{
			"issued during market hours expires next morning",
			time.Date(2025, 6, 2, 9, 30, 0, 0, ist),
			time.Date(2025, 6, 3, 6, 0, 0, 0, ist),
		},
		{
			"issued just after midnight expires same morning",
			time.Date(2025, 6, 2, 0, 30, 0, 0, ist),
			time.Date(2025, 6, 2, 6, 0, 0, 0, ist),
		},
		{
			"issued exactly at the boundary rolls to next day",
			time.Date(2025, 6, 2, 6, 0, 0, 0, ist),
			time.Date(2025, 6, 3, 6, 0, 0, 0, ist),
		},
	}
	for _, c := range cases {
		if got := expiryAfter(c.issued); !got.Equal(c.want) {
			t.Errorf("%s: expiryAfter = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestTokenValid(t *testing.T) {
	issued := time.Date(2025, 6, 2, 9, 30, 0, 0, ist)

	t.Setenv("FYERS_ACCESS_TOKEN", "token")
	t.Setenv("FYERS_TOKEN_TIME", strconv.FormatInt(issued.Unix(), 10))

	e := NewEnvTokens("fyers")

	e.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if !e.TokenValid() {
		t.Error("token should be valid the same afternoon")
	}

	e.now = func() time.Time { return time.Date(2025, 6, 3, 7, 0, 0, 0, ist) }
	if e.TokenValid() {
		t.Error("token should expire after the next 06:00 IST boundary")
	}
}

func TestTokenValidWithoutIssueTime(t *testing.T) {
	t.Setenv("SHOONYA_ACCESS_TOKEN", "token")
	t.Setenv("SHOONYA_TOKEN_TIME", "")

	if !NewEnvTokens("SHOONYA").TokenValid() {
		t.Error("token without an issue time should be trusted")
	}
}

func TestTokenValidMissingToken(t *testing.T) {
	t.Setenv("MSTOCK_ACCESS_TOKEN", "")
	if NewEnvTokens("MSTOCK").TokenValid() {
		t.Error("missing token must not be valid")
	}
}

func TestAccessToken(t *testing.T) {
	t.Setenv("KITE_ACCESS_TOKEN", "day-token")
	t.Setenv("KITE_TOKEN_TIME", "")

	token, err := NewEnvTokens("kite").AccessToken()
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "day-token" {
		t.Errorf("token = %q", token)
	}

	t.Setenv("KITE_ACCESS_TOKEN", "")
	if _, err := NewEnvTokens("kite").AccessToken(); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestParseTokenTime(t *testing.T) {
	if _, ok := parseTokenTime("1748842200"); !ok {
		t.Error("unix seconds should parse")
	}
	if _, ok := parseTokenTime("2025-06-02T09:30:00+05:30"); !ok {
		t.Error("RFC 3339 should parse")
	}
	if _, ok := parseTokenTime("yesterday"); ok {
		t.Error("garbage should not parse")
	}
}

func TestCredentials(t *testing.T) {
	t.Setenv("FYERS_CLIENT_ID", "APP-100")
	t.Setenv("FYERS_ACCESS_TOKEN", "token")

	creds := Credentials("fyers", "client_id", "access_token")
	if creds == nil {
		t.Fatal("expected credentials map")
	}
	if creds["client_id"] != "APP-100" || creds["access_token"] != "token" {
		t.Errorf("creds = %v", creds)
	}

	t.Setenv("FYERS_ACCESS_TOKEN", "")
	if Credentials("fyers", "client_id", "access_token") != nil {
		t.Error("missing key should yield nil (broker not configured)")
	}
}
