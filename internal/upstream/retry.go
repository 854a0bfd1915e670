package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"codexrelay/internal/types"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 8 * time.Second
	maxJitter   = 250 * time.Millisecond
)

// Error is a terminal upstream failure. Message is bounded so client error
// envelopes stay small.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream HTTP %d: %s", e.StatusCode, e.Message)
}

// backoffDelay computes the jittered exponential delay before retry
// attempt n (1-based).
func backoffDelay(attempt int) time.Duration {
	exp := backoffBase
	for i := 1; i < attempt; i++ {
		exp *= 2
		if exp >= backoffCap {
			exp = backoffCap
			break
		}
	}
	jitterCeil := maxJitter
	if exp < jitterCeil {
		jitterCeil = exp
	}
	return exp + rand.N(jitterCeil)
}

func (c *Client) retryable(status int) bool {
	if status == http.StatusTooManyRequests {
		return c.retry429
	}
	return status >= 500 && status <= 599
}

// fetch runs the attempt loop for one payload shape. On success the
// response body is live and unread; on failure the body has been drained
// into the returned error text.
func (c *Client) fetch(ctx context.Context, body []byte) (*http.Response, int, string, error) {
	maxAttempts := c.maxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastStatus int
	var lastErrText string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.doRaw(ctx, body)
		if err != nil {
			return nil, 0, "", err
		}
		if resp.StatusCode < 400 {
			return resp, resp.StatusCode, "", nil
		}

		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		lastStatus = resp.StatusCode
		lastErrText = string(errBody)

		if !c.retryable(resp.StatusCode) || attempt == maxAttempts {
			break
		}
		delay := backoffDelay(attempt)
		slog.Warn("upstream retry",
			"status", resp.StatusCode,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"wait", delay)
		c.sleep(ctx, delay)
		if ctx.Err() != nil {
			return nil, 0, "", ctx.Err()
		}
	}
	return nil, lastStatus, lastErrText, nil
}

// DoWithRetry sends the payload, retrying 5xx (and optionally 429) with
// jittered exponential backoff. If the final error looks like a tools or
// tool_choice rejection, one downgrade pass retries the request with those
// fields stripped; on downgrade failure the original error is reported.
// Retries only ever happen before any stream bytes reach the client.
func (c *Client) DoWithRetry(ctx context.Context, payload *types.UpstreamPayload) (*http.Response, *Error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{StatusCode: http.StatusInternalServerError, Message: err.Error()}
	}

	resp, status, errText, err := c.fetch(ctx, body)
	if err != nil {
		return nil, transportError(err)
	}
	if resp != nil {
		return resp, nil
	}

	hadTools := len(payload.Tools) > 0
	hadChoice := payload.ToolChoice != nil
	toolsRejected := (hadTools && strings.Contains(errText, "tools")) ||
		(hadChoice && (strings.Contains(errText, "tool_choice") || strings.Contains(errText, "tool choice")))
	if toolsRejected {
		downgraded := body
		if downgraded, err = sjson.DeleteBytes(downgraded, "tools"); err == nil {
			downgraded, err = sjson.DeleteBytes(downgraded, "tool_choice")
		}
		if err == nil {
			// a single extra attempt, no further retry loop
			slog.Warn("retrying without tools/tool_choice", "status", status)
			dresp, derr := c.doRaw(ctx, downgraded)
			if derr != nil {
				return nil, transportError(derr)
			}
			if dresp.StatusCode < 400 {
				return dresp, nil
			}
			io.Copy(io.Discard, io.LimitReader(dresp.Body, 4096))
			dresp.Body.Close()
			// keep the original error; it reflects what the client sent
		}
	}

	return nil, &Error{StatusCode: status, Message: truncate(errText, 500)}
}

func transportError(err error) *Error {
	if errors.Is(err, context.Canceled) {
		return &Error{StatusCode: 499, Message: "client closed request"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{StatusCode: http.StatusGatewayTimeout, Message: "upstream timeout"}
	}
	return &Error{StatusCode: http.StatusBadGateway, Message: err.Error()}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
