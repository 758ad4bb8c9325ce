// Package upstream provides a client for the incident-management API.
//
// DESIGN: The client is the only component that talks to the upstream
// service. It reports transport outcomes, not protocol opinions: any HTTP
// response, success or error, comes back as a Result{Status, Body} for the
// caller to translate, and only a failure to obtain a response at all
// becomes an error (ErrUnreachable). One Client, and therefore one
// http.Client connection pool, serves all requests.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsboard/incident-gateway/internal/httpx"
)

// ErrUnreachable marks a request that produced no upstream response:
// connection refused, DNS failure, timeout, or a dropped connection.
var ErrUnreachable = errors.New("incident service unreachable")

// MaxResponseSize caps how much of an upstream body the gateway will buffer.
const MaxResponseSize = 10 * 1024 * 1024

// Result is one upstream HTTP exchange, whatever its status.
type Result struct {
	Status int
	Body   []byte
}

// Success reports whether the upstream answered 2xx.
func (r *Result) Success() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client is the incident-management API client.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// NewClient creates an incident API client. timeout bounds each upstream
// call; the per-request context can only shorten it, never extend it.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		// Timeout is enforced per-request via context, not here, so a
		// shorter caller deadline always wins.
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// =============================================================================
// API Methods
// =============================================================================

// Register creates an account. No token: registration is public.
func (c *Client) Register(ctx context.Context, body []byte) (*Result, error) {
	return c.do(ctx, http.MethodPost, "/register", "", body)
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, body []byte) (*Result, error) {
	return c.do(ctx, http.MethodPost, "/login", "", body)
}

// ListIncidents fetches all incidents visible to the token.
func (c *Client) ListIncidents(ctx context.Context, token string) (*Result, error) {
	return c.do(ctx, http.MethodGet, "/incidents", token, nil)
}

// GetIncident fetches one incident by ID.
func (c *Client) GetIncident(ctx context.Context, token, id string) (*Result, error) {
	return c.do(ctx, http.MethodGet, "/incidents/"+url.PathEscape(id), token, nil)
}

// CreateIncident files a new incident.
func (c *Client) CreateIncident(ctx context.Context, token string, body []byte) (*Result, error) {
	return c.do(ctx, http.MethodPost, "/incidents", token, body)
}

// UpdateIncident replaces fields on an existing incident.
func (c *Client) UpdateIncident(ctx context.Context, token, id string, body []byte) (*Result, error) {
	return c.do(ctx, http.MethodPut, "/incidents/"+url.PathEscape(id), token, body)
}

// DeleteIncident removes an incident.
func (c *Client) DeleteIncident(ctx context.Context, token, id string) (*Result, error) {
	return c.do(ctx, http.MethodDelete, "/incidents/"+url.PathEscape(id), token, nil)
}

// EscalateIncident raises an incident's severity. The upstream models this
// as a verb endpoint, POST /escalate/{id}, with no request body.
func (c *Client) EscalateIncident(ctx context.Context, token, id string) (*Result, error) {
	return c.do(ctx, http.MethodPost, "/escalate/"+url.PathEscape(id), token, nil)
}

// =============================================================================
// HTTP Helpers
// =============================================================================

func (c *Client) do(ctx context.Context, method, path, token string, body []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "incident-gateway/1.0")

	log.Debug().
		Str("method", method).
		Str("path", path).
		Str("token", httpx.MaskToken(token)).
		Msg("forwarding request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("path", path).Msg("upstream request failed")
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnreachable)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("path", path).Msg("upstream body read failed")
		return nil, fmt.Errorf("%s %s: reading response: %w", method, path, ErrUnreachable)
	}

	if resp.StatusCode >= 400 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("path", path).
			Msg("upstream error response")
	}

	return &Result{Status: resp.StatusCode, Body: respBody}, nil
}
