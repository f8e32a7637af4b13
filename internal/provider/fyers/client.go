package fyers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"trading-data-pipeline/internal/provider"
)

const defaultBaseURL = "https://api-t1.fyers.in"

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a thin client for the Fyers v3 data API. Authentication uses the
// "<client_id>:<access_token>" Authorization header scheme.
type Client struct {
	baseURL     string
	httpClient  HTTPClient
	clientID    string
	accessToken string
}

// ClientOption is a configuration option for the Fyers client.
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

// NewClient creates a Fyers API client.
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

// SetCredentials installs the session used for the Authorization header.
func (c *Client) SetCredentials(clientID, accessToken string) {
	c.clientID = clientID
	c.accessToken = accessToken
}

// get performs a GET against endpoint with query and decodes the JSON body
// into out. HTTP 429 and 401 map to the tagged rate-limit and auth errors so
// the failover manager can react without string matching.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return provider.NewError(providerName, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Authorization", c.clientID+":"+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.NewError(providerName, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return provider.NewRateLimitError(providerName)
	case http.StatusUnauthorized:
		return provider.NewAuthError(providerName, "invalid or expired token")
	default:
		return provider.NewError(providerName, fmt.Errorf("unexpected status code: %d", res.StatusCode))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return provider.NewError(providerName, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
