// Package remote provides adapters for the HTTP APIs of each foundation:
// the app usage service and the cloud controller.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tola-labs/cfusage/domain/usage"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 64 << 20

// Observer receives one call per upstream request. status is 0 when no
// response arrived.
type Observer interface {
	ObserveUpstream(foundation, endpoint string, status int, d time.Duration)
	UpstreamError(foundation, kind string)
}

// Client performs authenticated GETs against one base URL of one foundation.
type Client struct {
	httpClient *http.Client
	foundation string
	baseURL    string
	tokens     TokenSource
	timeout    time.Duration
	headers    map[string]string
	observer   Observer
}

// ClientConfig configures the remote client.
type ClientConfig struct {
	Foundation string
	BaseURL    string
	Tokens     TokenSource
	Timeout    time.Duration
	Headers    map[string]string
	HTTPClient *http.Client
	Observer   Observer
}

// NewClient creates a new remote HTTP client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		foundation: cfg.Foundation,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokens:     cfg.Tokens,
		timeout:    timeout,
		headers:    cfg.Headers,
		observer:   cfg.Observer,
	}
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get fetches baseURL+path with query and returns the raw body.
// endpoint labels the call for metrics.
func (c *Client) Get(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.GetURL(ctx, endpoint, target)
}

// GetURL fetches an absolute URL, used to follow pagination links.
// Every call is bounded by the client timeout. Failures are *usage.UpstreamError.
func (c *Client) GetURL(ctx context.Context, endpoint, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		auth, err := c.tokens.Token(ctx)
		if err != nil {
			c.recordError("token")
			return nil, c.upstreamErr(target, 0, "", err)
		}
		req.Header.Set("Authorization", auth)
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, 0, time.Since(start))
		c.recordError("transport")
		return nil, c.upstreamErr(target, 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.observe(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		c.recordError("read")
		return nil, c.upstreamErr(target, resp.StatusCode, "", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.recordError("status")
		return nil, c.upstreamErr(target, resp.StatusCode, string(body), nil)
	}

	return body, nil
}

func (c *Client) upstreamErr(target string, status int, body string, err error) *usage.UpstreamError {
	return &usage.UpstreamError{
		Foundation: c.foundation,
		URL:        redact(target),
		Status:     status,
		Body:       body,
		Timeout:    isTimeout(err),
		Err:        err,
	}
}

func (c *Client) observe(endpoint string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveUpstream(c.foundation, endpoint, status, d)
	}
}

func (c *Client) recordError(kind string) {
	if c.observer != nil {
		c.observer.UpstreamError(c.foundation, kind)
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// redact strips userinfo so credentials never reach logs or error bodies.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.User == nil {
		return target
	}
	u.User = nil
	return u.String()
}
