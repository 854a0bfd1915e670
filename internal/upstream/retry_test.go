package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"codexrelay/internal/types"
)

func testClient(t *testing.T, url string, maxRetries int, retry429 bool) (*Client, *[]time.Duration) {
	t.Helper()
	c := NewClient(Options{
		BaseURL:    url,
		APIKey:     "test-key",
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		Retry429:   retry429,
	})
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) { delays = append(delays, d) }
	return c, &delays
}

func simplePayload() *types.UpstreamPayload {
	return &types.UpstreamPayload{
		Model:  "gpt-5.2-codex",
		Input:  []types.InputMessage{{Type: "message", Role: "user", Content: "hi"}},
		Stream: true,
	}
}

func TestDoWithRetryExhausts429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(429)
		io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	c, delays := testClient(t, srv.URL, 3, true)
	resp, uerr := c.DoWithRetry(context.Background(), simplePayload())
	if resp != nil {
		t.Fatal("expected failure")
	}
	if uerr.StatusCode != 429 || !strings.Contains(uerr.Message, "rate limited") {
		t.Errorf("error: %+v", uerr)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("attempts: %d, want 4", got)
	}
	if len(*delays) != 3 {
		t.Fatalf("delays: %v", *delays)
	}
	for i := 1; i < len(*delays); i++ {
		// jitter is at most 250ms on top of a doubling base, so delays
		// never shrink between attempts
		if (*delays)[i] < (*delays)[i-1] {
			t.Errorf("delay %d (%v) shorter than delay %d (%v)", i, (*delays)[i], i-1, (*delays)[i-1])
		}
	}
}

func TestDoWithRetry429Disabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(429)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL, 3, false)
	if resp, _ := c.DoWithRetry(context.Background(), simplePayload()); resp != nil {
		t.Fatal("expected failure")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts: %d, want 1", got)
	}
}

func TestDoWithRetry5xxThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(503)
			return
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, delays := testClient(t, srv.URL, 3, true)
	resp, uerr := c.DoWithRetry(context.Background(), simplePayload())
	if uerr != nil {
		t.Fatal(uerr)
	}
	resp.Body.Close()
	if calls.Load() != 2 || len(*delays) != 1 {
		t.Errorf("calls=%d delays=%v", calls.Load(), *delays)
	}
}

func TestDoWithRetryNonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(400)
		io.WriteString(w, "bad request")
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL, 3, true)
	_, uerr := c.DoWithRetry(context.Background(), simplePayload())
	if uerr == nil || uerr.StatusCode != 400 {
		t.Fatalf("error: %+v", uerr)
	}
	if calls.Load() != 1 {
		t.Errorf("attempts: %d", calls.Load())
	}
}

func TestDoWithRetryCancelDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(500)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c, _ := testClient(t, srv.URL, 3, true)
	c.sleep = func(ctx context.Context, d time.Duration) { cancel() }

	_, uerr := c.DoWithRetry(ctx, simplePayload())
	if uerr == nil || uerr.StatusCode != 499 {
		t.Fatalf("error: %+v", uerr)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts after cancel: %d, want 1", got)
	}
}

func TestDoWithRetryToolDowngrade(t *testing.T) {
	var sawDowngraded atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "tools").Exists() {
			w.WriteHeader(400)
			io.WriteString(w, `{"error":{"message":"tools is not supported"}}`)
			return
		}
		sawDowngraded.Store(true)
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	payload := simplePayload()
	payload.Tools = []types.ResponsesTool{{Type: "function", Name: "Bash", Parameters: map[string]any{}}}
	payload.ToolChoice = "auto"

	c, _ := testClient(t, srv.URL, 0, true)
	resp, uerr := c.DoWithRetry(context.Background(), payload)
	if uerr != nil {
		t.Fatal(uerr)
	}
	resp.Body.Close()
	if !sawDowngraded.Load() {
		t.Error("downgraded request never sent")
	}
}

func TestDoWithRetryDowngradeIsSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(500)
		io.WriteString(w, `{"error":{"message":"tools is not supported"}}`)
	}))
	defer srv.Close()

	payload := simplePayload()
	payload.Tools = []types.ResponsesTool{{Type: "function", Name: "Bash"}}

	// 2 attempts in the main loop, then exactly one downgraded call
	c, _ := testClient(t, srv.URL, 1, true)
	_, uerr := c.DoWithRetry(context.Background(), payload)
	if uerr == nil || uerr.StatusCode != 500 {
		t.Fatalf("error: %+v", uerr)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts: %d, want 3", got)
	}
}

func TestDoWithRetryDowngradeFailureKeepsOriginalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(400)
		if gjson.GetBytes(body, "tools").Exists() {
			io.WriteString(w, "tools rejected here")
		} else {
			io.WriteString(w, "still broken")
		}
	}))
	defer srv.Close()

	payload := simplePayload()
	payload.Tools = []types.ResponsesTool{{Type: "function", Name: "Bash"}}

	c, _ := testClient(t, srv.URL, 0, true)
	_, uerr := c.DoWithRetry(context.Background(), payload)
	if uerr == nil || !strings.Contains(uerr.Message, "tools rejected here") {
		t.Errorf("error: %+v", uerr)
	}
}

func TestDoSendsBearerAndHeaders(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL, 0, true)
	resp, err := c.Do(context.Background(), simplePayload())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization: %q", gotAuth)
	}
	if gotAccept != "text/event-stream" {
		t.Errorf("accept: %q", gotAccept)
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		for i := 0; i < 50; i++ {
			d := backoffDelay(attempt)
			if d < backoffBase {
				t.Fatalf("attempt %d: delay %v below base", attempt, d)
			}
			if d > backoffCap+maxJitter {
				t.Fatalf("attempt %d: delay %v above cap", attempt, d)
			}
		}
	}
}
