package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/callisto/pkg/modelmap"
	"mercator-hq/callisto/pkg/proxy"
	"mercator-hq/callisto/pkg/telemetry/metrics"
	"mercator-hq/callisto/pkg/translate"
	"mercator-hq/callisto/pkg/upstream"
)

// newTestMux builds the full API handler backed by a fake upstream.
func newTestMux(t *testing.T, fakeUpstream http.HandlerFunc) *http.ServeMux {
	t.Helper()

	up := httptest.NewServer(fakeUpstream)
	t.Cleanup(up.Close)

	logger := slog.New(slog.DiscardHandler)
	client := upstream.NewClient(upstream.Config{
		BaseURL:        up.URL,
		Timeout:        5 * time.Second,
		MaxConnections: 8,
	}, logger)
	breaker := upstream.NewBreaker(5, time.Minute, 1)
	forwarder := upstream.NewForwarder(client, breaker, upstream.RetryPolicy{
		MaxRetries:   0,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	}, logger)

	table := modelmap.New(map[string]string{"llama3": "gpt-4o-mini"})

	h := New(Options{
		Translator: translate.NewRequestTranslator(table),
		Forwarder:  forwarder,
		Models:     table,
		Metrics:    metrics.New(),
		Logger:     logger,
		Version:    "0.0.0-test",
	})

	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func completionJSON(model, content string) string {
	return fmt.Sprintf(`{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": %q,
		"choices": [{"index": 0, "message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
	}`, model, content)
}

func sseBody(events ...string) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString("data: " + e + "\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func deltaEvent(content, finishReason string) string {
	choice := map[string]any{
		"index": 0,
		"delta": map[string]any{"content": content},
	}
	if finishReason != "" {
		choice["finish_reason"] = finishReason
	}
	event := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"model":   "gpt-4o-mini",
		"choices": []any{choice},
	}
	data, _ := json.Marshal(event)
	return string(data)
}

func TestGenerateNonStreaming(t *testing.T) {
	var upstreamBody translate.NormalizedRequest
	mux := newTestMux(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("upstream path = %q, want /chat/completions", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&upstreamBody); err != nil {
			t.Errorf("upstream body decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionJSON("gpt-4o-mini", "Hello there"))
	})

	body := `{"model": "llama3", "prompt": "Hi", "stream": false}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/generate", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if upstreamBody.Model != "gpt-4o-mini" {
		t.Errorf("upstream model = %q, want mapped gpt-4o-mini", upstreamBody.Model)
	}
	if upstreamBody.Stream {
		t.Error("upstream request has stream=true for a non-streaming call")
	}

	var resp translate.GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if resp.Model != "llama3" {
		t.Errorf("response model = %q, want requested name llama3", resp.Model)
	}
	if resp.Response != "Hello there" {
		t.Errorf("response = %q", resp.Response)
	}
	if !resp.Done || resp.DoneReason != "stop" {
		t.Errorf("done = %v, done_reason = %q", resp.Done, resp.DoneReason)
	}
	if resp.PromptEvalCount != 7 || resp.EvalCount != 3 {
		t.Errorf("token counts = %d/%d, want 7/3", resp.PromptEvalCount, resp.EvalCount)
	}
}

func TestChatStreaming(t *testing.T) {
	mux := newTestMux(t, func(w http.ResponseWriter, r *http.Request) {
		var req translate.NormalizedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("upstream body decode: %v", err)
		}
		if !req.Stream {
			t.Error("upstream request has stream=false for a streaming call")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseBody(
			deltaEvent("Hello", ""),
			deltaEvent(" world", ""),
			deltaEvent("", "stop"),
		))
	})

	body := `{"model": "llama3", "messages": [{"role": "user", "content": "Hi"}]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/chat", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q, want application/x-ndjson", ct)
	}

	var lines []translate.ChatResponse
	scanner := bufio.NewScanner(bytes.NewReader(rec.Body.Bytes()))
	for scanner.Scan() {
		var line translate.ChatResponse
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", len(lines), err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %s", len(lines), rec.Body.String())
	}

	var content strings.Builder
	for i, line := range lines {
		if line.Model != "llama3" {
			t.Errorf("line %d model = %q, want llama3", i, line.Model)
		}
		content.WriteString(line.Message.Content)
		if line.Done != (i == len(lines)-1) {
			t.Errorf("line %d done = %v", i, line.Done)
		}
	}
	if content.String() != "Hello world" {
		t.Errorf("assembled content = %q, want %q", content.String(), "Hello world")
	}
	final := lines[len(lines)-1]
	if final.DoneReason != "stop" {
		t.Errorf("final done_reason = %q, want stop", final.DoneReason)
	}
}

func TestGenerateStreamingDefault(t *testing.T) {
	mux := newTestMux(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseBody(deltaEvent("Hi", ""), deltaEvent("", "stop")))
	})

	// No stream field: the Ollama default is streaming.
	body := `{"model": "llama3", "prompt": "Hi"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/generate", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q, want NDJSON for the default streaming mode", ct)
	}
}

func TestValidationErrors(t *testing.T) {
	mux := newTestMux(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called for invalid requests")
	})

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "generate missing model",
			path:       "/api/generate",
			body:       `{"prompt": "Hi"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_value",
		},
		{
			name:       "generate malformed body",
			path:       "/api/generate",
			body:       `{"model":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_value",
		},
		{
			name:       "chat empty messages",
			path:       "/api/chat",
			body:       `{"model": "llama3", "messages": []}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_value",
		},
		{
			name:       "chat unsupported role",
			path:       "/api/chat",
			body:       `{"model": "llama3", "messages": [{"role": "tool", "content": "x"}]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "unsupported_role",
		},
		{
			name:       "chat with tools",
			path:       "/api/chat",
			body:       `{"model": "llama3", "messages": [{"role": "user", "content": "x"}], "tools": [{"type": "function"}]}`,
			wantStatus: http.StatusNotImplemented,
			wantCode:   "not_implemented",
		},
		{
			name:       "generate with images",
			path:       "/api/generate",
			body:       `{"model": "llama3", "prompt": "x", "images": ["aGk="]}`,
			wantStatus: http.StatusNotImplemented,
			wantCode:   "not_implemented",
		},
		{
			name:       "embeddings missing prompt",
			path:       "/api/embeddings",
			body:       `{"model": "llama3"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("POST", tt.path, strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var env proxy.ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("body is not an error envelope: %v", err)
			}
			if env.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", env.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestEmbeddings(t *testing.T) {
	mux := newTestMux(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("upstream path = %q, want /embeddings", r.URL.Path)
		}
		var req translate.UpstreamEmbeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("upstream body decode: %v", err)
		}
		if req.Model != "gpt-4o-mini" || req.Input != "embed me" {
			t.Errorf("upstream request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data": [{"index": 0, "embedding": [0.1, 0.2, 0.3]}], "model": "gpt-4o-mini", "usage": {"prompt_tokens": 2, "total_tokens": 2}}`)
	})

	body := `{"model": "llama3", "prompt": "embed me"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/embeddings", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp translate.EmbeddingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if len(resp.Embedding) != 3 || resp.Embedding[0] != 0.1 {
		t.Errorf("embedding = %v", resp.Embedding)
	}
}

func TestTags(t *testing.T) {
	mux := newTestMux(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called for /api/tags")
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/tags", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp TagsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if len(resp.Models) != 1 || resp.Models[0].Name != "llama3" {
		t.Errorf("models = %+v, want [llama3]", resp.Models)
	}
}

func TestVersionEndpoint(t *testing.T) {
	mux := newTestMux(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/version", nil))

	var resp VersionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if resp.Version != "0.0.0-test" {
		t.Errorf("version = %q", resp.Version)
	}
}

func TestHealth(t *testing.T) {
	mux := newTestMux(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if resp.Status != "ok" || resp.Breaker != "closed" {
		t.Errorf("health = %+v", resp)
	}
}

func TestModelManagementNotImplemented(t *testing.T) {
	mux := newTestMux(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called for model management")
	})

	paths := []struct{ method, path string }{
		{"POST", "/api/show"},
		{"POST", "/api/create"},
		{"POST", "/api/pull"},
		{"POST", "/api/push"},
		{"POST", "/api/copy"},
		{"DELETE", "/api/delete"},
	}
	for _, p := range paths {
		t.Run(p.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(p.method, p.path, strings.NewReader(`{}`)))
			if rec.Code != http.StatusNotImplemented {
				t.Errorf("status = %d, want 501", rec.Code)
			}
		})
	}
}

func TestNewDefaultsOptionalDependencies(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionJSON("gpt-4o-mini", "ok"))
	}))
	t.Cleanup(up.Close)

	logger := slog.New(slog.DiscardHandler)
	client := upstream.NewClient(upstream.Config{BaseURL: up.URL, Timeout: 5 * time.Second, MaxConnections: 2}, logger)
	forwarder := upstream.NewForwarder(client, upstream.NewBreaker(5, time.Minute, 1), upstream.RetryPolicy{}, logger)

	// Models, Metrics, Recorder, and Logger are all optional.
	h := New(Options{
		Translator: translate.NewRequestTranslator(nil),
		Forwarder:  forwarder,
	})
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/generate",
		strings.NewReader(`{"model": "m", "prompt": "Hi", "stream": false}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/tags", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("tags status = %d", rec.Code)
	}
}

func TestUpstreamErrorEnvelope(t *testing.T) {
	mux := newTestMux(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "secret internal detail"}}`, http.StatusInternalServerError)
	})

	body := `{"model": "llama3", "prompt": "Hi", "stream": false}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/generate", strings.NewReader(body)))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var env proxy.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("body is not an error envelope: %v", err)
	}
	if strings.Contains(env.Error.Message, "secret internal detail") {
		t.Errorf("upstream error body leaked to client: %q", env.Error.Message)
	}
}

func TestClientCancellationReleasesUpstream(t *testing.T) {
	release := make(chan struct{})
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			io.WriteString(w, "data: "+deltaEvent("chunk", "")+"\n\n")
			flusher.Flush()
		}
		// Hold the stream open until the client goes away.
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer up.Close()
	defer close(release)

	logger := slog.New(slog.DiscardHandler)
	client := upstream.NewClient(upstream.Config{
		BaseURL:        up.URL,
		Timeout:        5 * time.Second,
		MaxConnections: 2,
	}, logger)
	breaker := upstream.NewBreaker(5, time.Minute, 1)
	forwarder := upstream.NewForwarder(client, breaker, upstream.RetryPolicy{}, logger)

	h := New(Options{
		Translator: translate.NewRequestTranslator(nil),
		Forwarder:  forwarder,
		Metrics:    metrics.New(),
		Logger:     logger,
	})
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, "POST", srv.URL+"/api/chat",
		strings.NewReader(`{"model": "m", "messages": [{"role": "user", "content": "Hi"}]}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// Read a few chunks, then walk away mid-stream.
	reader := bufio.NewReader(resp.Body)
	for i := 0; i < 3; i++ {
		if _, err := reader.ReadString('\n'); err != nil {
			t.Fatalf("reading chunk %d: %v", i, err)
		}
	}
	cancel()

	// The handler must notice the disconnect and close the upstream
	// stream, returning the connection slot.
	deadline := time.Now().Add(2 * time.Second)
	for client.InFlight() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("upstream slot not released after client cancellation, in flight = %d", client.InFlight())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
