// Package auth supplies broker session tokens to the pipeline. The
// interactive login flows (browser OAuth, TOTP) run outside this process;
// tokens land in the environment, usually via the .env file, and this package
// answers whether they are still usable. Indian broker day tokens expire at
// the next session boundary, taken here as 06:00 IST.
package auth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"trading-data-pipeline/internal/interfaces"
)

var ist = time.FixedZone("IST", 19800)

// EnvTokens reads one broker's token from environment variables with a
// common prefix: <PREFIX>_ACCESS_TOKEN and optionally <PREFIX>_TOKEN_TIME
// (unix seconds or RFC 3339) recording when the token was issued.
type EnvTokens struct {
	prefix string
	now    func() time.Time
}

var _ interfaces.Authenticator = (*EnvTokens)(nil)

func NewEnvTokens(prefix string) *EnvTokens {
	return &EnvTokens{
		prefix: strings.ToUpper(prefix),
		now:    time.Now,
	}
}

func (e *EnvTokens) AccessToken() (string, error) {
	token := os.Getenv(e.prefix + "_ACCESS_TOKEN")
	if token == "" {
		return "", fmt.Errorf("%s_ACCESS_TOKEN not set", e.prefix)
	}
	if !e.TokenValid() {
		return "", fmt.Errorf("%s token expired", strings.ToLower(e.prefix))
	}
	return token, nil
}

// TokenValid reports whether the token exists and has not crossed the 06:00
// IST boundary following its issue time. Without an issue time the token is
// trusted; the broker API rejects it soon enough if it is stale.
func (e *EnvTokens) TokenValid() bool {
	if os.Getenv(e.prefix+"_ACCESS_TOKEN") == "" {
		return false
	}
	issued, ok := parseTokenTime(os.Getenv(e.prefix + "_TOKEN_TIME"))
	if !ok {
		return true
	}
	return e.now().Before(expiryAfter(issued))
}

// expiryAfter returns the 06:00 IST boundary following the issue time.
func expiryAfter(issued time.Time) time.Time {
	t := issued.In(ist)
	expiry := time.Date(t.Year(), t.Month(), t.Day(), 6, 0, 0, 0, ist)
	if !t.Before(expiry) {
		expiry = expiry.AddDate(0, 0, 1)
	}
	return expiry
}

func parseTokenTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Credentials assembles a provider credentials map from prefixed environment
// variables: Credentials("FYERS", "client_id", "access_token") reads
// FYERS_CLIENT_ID and FYERS_ACCESS_TOKEN. Returns nil when any key is
// missing, which callers treat as "this broker is not configured".
func Credentials(prefix string, keys ...string) map[string]string {
	prefix = strings.ToUpper(prefix)
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		v := os.Getenv(prefix + "_" + strings.ToUpper(key))
		if v == "" {
			return nil
		}
		out[key] = v
	}
	return out
}
