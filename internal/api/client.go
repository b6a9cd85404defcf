// Package api is the REST client for the Synapse backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/synapse/internal/errors"
	"github.com/p-blackswan/synapse/internal/metrics"
	"github.com/p-blackswan/synapse/internal/requestid"
	"github.com/p-blackswan/synapse/pkg/tokenstore"
)

// ServiceName labels errors raised by this client.
const ServiceName = "synapse-api"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps the Synapse REST API.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	auth       Authenticator
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient = &http.Client{Timeout: d} }
}

// WithMetrics records request latency by method and status.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates an API client. tokens supplies the bearer credential; it
// may be nil for anonymous calls.
func NewClient(baseURL string, tokens tokenstore.Source, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       &BearerAuth{Tokens: tokens},
		logger:     logger.With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post sends body as JSON and decodes the response into out (if non-nil).
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

// Get decodes the response of a GET into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Put sends body as JSON and decodes the response into out (if non-nil).
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE and decodes the response into out (if non-nil).
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	resp, err := c.do(ctx, method, path, reader, "application/json")
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

// do executes an authenticated request. Non-2xx responses become *perrors.APIError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if id, ok := requestid.FromContext(ctx); ok {
		req.Header.Set(requestid.Header, id)
	}

	if err := c.auth.Apply(req); err != nil {
		return nil, fmt.Errorf("applying auth: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveAPIRequest(method, 0, time.Since(start))
		return nil, fmt.Errorf("executing request: %w", err)
	}
	c.metrics.ObserveAPIRequest(method, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := newAPIError(resp)
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", apiErr.StatusCode).
			Str("detail", apiErr.Message).
			Msg("remote API request failed")
		return nil, apiErr
	}

	return resp, nil
}

// newAPIError builds the structured error for a failed response, keeping the
// status code as-is and preferring the server's "detail" field as the message.
func newAPIError(resp *http.Response) *perrors.APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := &perrors.APIError{
		Service:    ServiceName,
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}
	if len(raw) == 0 {
		return apiErr
	}
	if json.Valid(raw) {
		apiErr.Data = json.RawMessage(raw)
		var body struct {
			Detail json.RawMessage `json:"detail"`
		}
		if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
			var detail string
			if err := json.Unmarshal(body.Detail, &detail); err == nil {
				apiErr.Message = detail
			} else {
				// Validation errors carry structured detail.
				apiErr.Message = string(body.Detail)
			}
		}
	}
	return apiErr
}

// decodeResponse reads and decodes a JSON response. Empty bodies are fine.
func decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
