package shoonya

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"trading-data-pipeline/internal/provider"
)

const defaultBaseURL = "https://api.shoonya.com/NorenWClientTP"

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client speaks the Noren wire protocol: every call is a POST of
// "jData=<json>&jKey=<session token>" and every response carries a "stat"
// field that is "Ok" on success.
type Client struct {
	baseURL      string
	httpClient   HTTPClient
	sessionToken string
	userID       string
}

// ClientOption is a configuration option for the Shoonya client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Shoonya API client.
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// SetSession installs the authenticated session.
func (c *Client) SetSession(userID, sessionToken string) {
	c.userID = userID
	c.sessionToken = sessionToken
}

// post sends a Noren request and returns the raw response body. Session
// expiry surfaces as an auth error so the manager switches instead of
// retrying locally.
func (c *Client) post(ctx context.Context, endpoint string, jData map[string]string) ([]byte, error) {
	payload, err := json.Marshal(jData)
	if err != nil {
		return nil, provider.NewError(providerName, fmt.Errorf("encoding request: %w", err))
	}

	form := url.Values{}
	form.Set("jData", string(payload))
	form.Set("jKey", c.sessionToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, provider.NewError(providerName, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewError(providerName, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, provider.NewRateLimitError(providerName)
	case http.StatusUnauthorized:
		return nil, provider.NewAuthError(providerName, "invalid session")
	default:
		return nil, provider.NewError(providerName, fmt.Errorf("unexpected status code: %d", res.StatusCode))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, provider.NewError(providerName, fmt.Errorf("reading response: %w", err))
	}
	return body, nil
}

// statError maps a Noren error envelope to a tagged error.
func statError(emsg string) error {
	msg := strings.ToLower(emsg)
	if strings.Contains(msg, "session expired") || strings.Contains(msg, "invalid session") {
		return provider.NewAuthError(providerName, emsg)
	}
	return provider.NewError(providerName, fmt.Errorf("api error: %s", emsg))
}
