// Package http provides the HTTP transport adapters: the upstream client
// that performs the real remote calls, a RoundTripper middleware so any
// http.Client can be governed in-process, and the local proxy handler
// used by `apiward serve`.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/artpar/apiward/domain/govern"
	"github.com/artpar/apiward/ports"
)

// Client implements ports.Upstream over net/http.
type Client struct {
	client  *http.Client
	baseURL *url.URL // optional; resolves relative request URLs
}

// ClientConfig contains configuration for the upstream client.
type ClientConfig struct {
	BaseURL         string // optional; required when requests carry relative URLs
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// NewClient creates a new upstream HTTP client.
func NewClient(cfg ClientConfig) (*Client, error) {
	var base *url.URL
	if cfg.BaseURL != "" {
		parsed, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base URL: %w", err)
		}
		base = parsed
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}
	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout == 0 {
		idleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &Client{
		client:  &http.Client{Transport: transport, Timeout: timeout},
		baseURL: base,
	}, nil
}

// hop-by-hop headers that must not be forwarded either direction.
var skipHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Forward sends the request to the remote API and returns its response.
func (c *Client) Forward(ctx context.Context, req govern.Request) (govern.Response, error) {
	start := time.Now()

	target, err := c.resolveURL(req.URL)
	if err != nil {
		return govern.Response{}, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return govern.Response{}, fmt.Errorf("create request: %w", err)
	}
	for k, v := range req.Headers {
		if !skipHeaders[http.CanonicalHeaderKey(k)] {
			httpReq.Header.Set(k, v)
		}
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return govern.Response{}, fmt.Errorf("forward request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return govern.Response{}, fmt.Errorf("read response body: %w", err)
	}

	headers := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		if !skipHeaders[k] {
			headers[k] = httpResp.Header.Get(k)
		}
	}

	return govern.Response{
		Status:    httpResp.StatusCode,
		Headers:   headers,
		Body:      respBody,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (c *Client) resolveURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse request URL: %w", err)
	}
	if u.IsAbs() {
		return raw, nil
	}
	if c.baseURL == nil {
		return "", fmt.Errorf("relative URL %q without a base URL", raw)
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

// Ensure interface compliance.
var _ ports.Upstream = (*Client)(nil)
