// Package upstream sends encoded requests to the Responses backend and
// retries transient failures.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"codexrelay/internal/types"
)

// Options configures the upstream client.
type Options struct {
	BaseURL    string // e.g. https://host/codex; /v1/responses is appended
	APIKey     string
	Timeout    time.Duration
	MaxRetries int // extra attempts after the first
	Retry429   bool
	Verbose    bool
}

// Client posts payloads to the Responses endpoint. The bearer token rides
// on the oauth2 transport.
type Client struct {
	url        string
	httpClient *http.Client
	maxRetries int
	retry429   bool
	verbose    bool

	// sleep is replaced in tests to observe backoff without waiting.
	sleep func(context.Context, time.Duration)
}

// NewClient builds a client from options.
func NewClient(opts Options) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey, TokenType: "Bearer"})
	hc := oauth2.NewClient(context.Background(), src)
	hc.Timeout = opts.Timeout
	return &Client{
		url:        strings.TrimRight(opts.BaseURL, "/") + "/v1/responses",
		httpClient: hc,
		maxRetries: opts.MaxRetries,
		retry429:   opts.Retry429,
		verbose:    opts.Verbose,
		sleep:      sleepContext,
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Do sends one request without retries.
func (c *Client) Do(ctx context.Context, payload *types.UpstreamPayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream payload: %w", err)
	}
	return c.doRaw(ctx, body)
}

func (c *Client) doRaw(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("OpenAI-Organization", "openai")

	if c.verbose {
		slog.Debug("upstream request", "url", c.url, "bytes", len(body))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	if c.verbose {
		slog.Debug("upstream response", "status", resp.StatusCode)
	}
	return resp, nil
}
