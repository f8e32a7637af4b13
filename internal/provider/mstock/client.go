package mstock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"trading-data-pipeline/internal/provider"
)

const defaultBaseURL = "https://api.mstock.trade/openapi/typea"

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the MStock (Mirae Asset) Type A open API.
// Every request carries the "token <api_key>:<access_token>" Authorization
// header and the X-Mirae-Version header.
type Client struct {
	baseURL     string
	httpClient  HTTPClient
	apiKey      string
	accessToken string
}

// ClientOption is a configuration option for the MStock client.
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

// NewClient creates an MStock API client.
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

// SetCredentials installs the API key and session token.
func (c *Client) SetCredentials(apiKey, accessToken string) {
	c.apiKey = apiKey
	c.accessToken = accessToken
}

func (c *Client) getRaw(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, provider.NewError(providerName, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("X-Mirae-Version", "1")
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewError(providerName, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, provider.NewRateLimitError(providerName)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, provider.NewAuthError(providerName, "invalid or expired token")
	default:
		return nil, provider.NewError(providerName, fmt.Errorf("unexpected status code: %d", res.StatusCode))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, provider.NewError(providerName, fmt.Errorf("reading response: %w", err))
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	body, err := c.getRaw(ctx, endpoint, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return provider.NewError(providerName, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
