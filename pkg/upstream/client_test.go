package upstream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/callisto/pkg/proxyerr"
	"mercator-hq/callisto/pkg/translate"
)

const completionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "meta-llama/Llama-2-7b",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
}`

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	c := NewClient(Config{
		BaseURL:        url,
		APIKey:         "sk-test",
		Timeout:        5 * time.Second,
		MaxConnections: 4,
	}, slog.New(slog.DiscardHandler))
	t.Cleanup(c.Close)
	return c
}

func chatRequest() *translate.NormalizedRequest {
	return &translate.NormalizedRequest{
		Model:    "meta-llama/Llama-2-7b",
		Messages: []translate.Message{{Role: translate.RoleUser, Content: "Hi"}},
	}
}

func TestClientComplete(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	resp, err := testClient(t, srv.URL).Complete(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestClientStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   proxyerr.Kind
	}{
		{"server error is transient", http.StatusBadGateway, proxyerr.KindUpstreamConnection},
		{"unavailable is transient", http.StatusServiceUnavailable, proxyerr.KindUpstreamConnection},
		{"auth failure is terminal", http.StatusUnauthorized, proxyerr.KindInternal},
		{"bad request is terminal", http.StatusBadRequest, proxyerr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := testClient(t, srv.URL).Complete(context.Background(), chatRequest())
			if got := proxyerr.KindOf(err); got != tt.kind {
				t.Errorf("kind = %v, want %v", got, tt.kind)
			}
		})
	}
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can observe the client
		// disconnect and cancel the request context.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:        srv.URL,
		Timeout:        50 * time.Millisecond,
		MaxConnections: 1,
	}, slog.New(slog.DiscardHandler))
	defer c.Close()

	_, err := c.Complete(context.Background(), chatRequest())
	if !proxyerr.IsKind(err, proxyerr.KindUpstreamTimeout) {
		t.Errorf("kind = %v, want upstream timeout", proxyerr.KindOf(err))
	}
}

func TestClientConnectionRefused(t *testing.T) {
	// A closed server yields a connection-level failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testClient(t, srv.URL).Complete(context.Background(), chatRequest())
	if !proxyerr.IsKind(err, proxyerr.KindUpstreamConnection) {
		t.Errorf("kind = %v, want upstream connection", proxyerr.KindOf(err))
	}
}

func TestClientCancellationPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can observe the client
		// disconnect and cancel the request context.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := testClient(t, srv.URL).Complete(ctx, chatRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if proxyerr.KindOf(err) != proxyerr.KindInternal {
		// Caller cancellation must not be dressed up as an upstream fault.
		t.Errorf("kind = %v, want plain cancellation", proxyerr.KindOf(err))
	}
	if Retryable(err) {
		t.Error("cancellation must not be retryable")
	}
}

func TestClientOpenStreamReleasesSlotOnClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 10; i++ {
			io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":"x"}}]}`+"\n\n")
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	stream, err := c.OpenStream(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if c.InFlight() != 1 {
		t.Fatalf("InFlight = %d during stream, want 1", c.InFlight())
	}

	// Consume three chunks, then disconnect without draining.
	for i := 0; i < 3; i++ {
		chunk, err := stream.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if chunk.Index != i {
			t.Errorf("chunk index = %d, want %d", chunk.Index, i)
		}
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if c.InFlight() != 0 {
		t.Errorf("InFlight = %d after Close, want 0", c.InFlight())
	}
}

func TestClientOpenStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	_, err := c.OpenStream(context.Background(), chatRequest())
	if !proxyerr.IsKind(err, proxyerr.KindUpstreamConnection) {
		t.Errorf("kind = %v, want upstream connection", proxyerr.KindOf(err))
	}
	if c.InFlight() != 0 {
		t.Errorf("InFlight = %d after failed establishment, want 0", c.InFlight())
	}
}

func TestClientConnectionCapWaits(t *testing.T) {
	var active, peak atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:        srv.URL,
		Timeout:        5 * time.Second,
		MaxConnections: 2,
	}, slog.New(slog.DiscardHandler))
	defer c.Close()

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := c.Complete(context.Background(), chatRequest())
			done <- err
		}()
	}

	// Let the first two occupy their slots, then free everyone.
	time.Sleep(100 * time.Millisecond)
	close(release)
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Errorf("request %d: %v", i, err)
		}
	}

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrent upstream requests = %d, want at most 2", got)
	}
}
