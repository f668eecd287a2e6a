// Package api wraps a standard HTTP client with the small JSON
// request/response surface remote instances expose. Every non-2xx
// response or malformed body becomes a typed *Error carrying the
// method, URL, status code, and a best-effort message extracted from
// the response payload.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const apiKeyHeader = "X-Api-Key"

// Client issues JSON requests against a single instance's base URL.
type Client struct {
	base   string
	apiKey string
	hc     *http.Client
	log    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey authenticates every request with the given key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout bounds each individual request. Zero means no timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.hc.Timeout = timeout
	}
}

// WithLogger routes request logging to the given logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a client for the given base URL (scheme://host:port).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{},
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get issues a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// GetText issues a GET request and returns the raw response body, for
// the few endpoints that do not speak JSON.
func (c *Client) GetText(ctx context.Context, path string) (string, error) {
	url := c.url(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &Error{Method: http.MethodGet, URL: url, Message: err.Error()}
	}
	c.setHeaders(req, false)

	c.log.Debug("api request", "method", http.MethodGet, "url", url)
	res, err := c.hc.Do(req)
	if err != nil {
		return "", &Error{Method: http.MethodGet, URL: url, Message: err.Error()}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", &Error{Method: http.MethodGet, URL: url, StatusCode: res.StatusCode, Message: err.Error()}
	}
	c.log.Debug("api response", "method", http.MethodGet, "url", url, "status", res.StatusCode)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", &Error{Method: http.MethodGet, URL: url, StatusCode: res.StatusCode, Message: extractMessage(raw)}
	}
	return string(raw), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	url := c.url(path)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &Error{Method: method, URL: url, Message: fmt.Sprintf("encoding request body: %v", err)}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &Error{Method: method, URL: url, Message: err.Error()}
	}
	c.setHeaders(req, body != nil)

	c.log.Debug("api request", "method", method, "url", url)
	res, err := c.hc.Do(req)
	if err != nil {
		return &Error{Method: method, URL: url, Message: err.Error()}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &Error{Method: method, URL: url, StatusCode: res.StatusCode, Message: err.Error()}
	}
	c.log.Debug("api response", "method", method, "url", url, "status", res.StatusCode)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &Error{Method: method, URL: url, StatusCode: res.StatusCode, Message: extractMessage(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Method: method, URL: url, StatusCode: res.StatusCode, Message: fmt.Sprintf("malformed JSON response: %v", err)}
	}
	return nil
}

func (c *Client) url(path string) string {
	return c.base + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
}

// extractMessage pulls a human-readable error out of a response body:
// the conventional {"message": ...} or {"error": ...} JSON keys, else
// a truncated copy of the body itself.
func extractMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	body := strings.TrimSpace(string(raw))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return "(empty response body)"
	}
	return body
}
