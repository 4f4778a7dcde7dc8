package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"mercator-hq/callisto/pkg/proxyerr"
	"mercator-hq/callisto/pkg/translate"
)

// maxErrorBodySize bounds how much of an upstream error body is carried
// into error messages.
const maxErrorBodySize = 4 * 1024

// Config contains the settings for the upstream HTTP client.
type Config struct {
	// BaseURL is the base URL of the upstream API, e.g.
	// "https://api.openai.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout is the wall-clock budget for a single attempt. For
	// streaming requests it covers establishment only; the body may then
	// flow for as long as the request context allows.
	Timeout time.Duration

	// MaxConnections caps concurrent upstream requests. Callers beyond
	// the cap wait for a slot.
	MaxConnections int
}

// Client performs HTTP calls against the upstream endpoint with
// connection pooling and a hard cap on concurrent requests.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	slots      chan struct{}
	logger     *slog.Logger
}

// NewClient creates an upstream client with a pooled transport.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxConnections,
		MaxIdleConnsPerHost: cfg.MaxConnections,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		// Bounds stream establishment. Body reads after the headers are
		// governed by the request context, not this timeout.
		ResponseHeaderTimeout: cfg.Timeout,
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Transport: transport},
		slots:      make(chan struct{}, cfg.MaxConnections),
		logger:     logger,
	}
}

// Complete sends a non-streaming chat completion request.
func (c *Client) Complete(ctx context.Context, req *translate.NormalizedRequest) (*translate.NormalizedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.doJSON(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	return translate.ParseUpstreamResponse(body)
}

// Embed sends an embeddings request.
func (c *Client) Embed(ctx context.Context, req *translate.UpstreamEmbeddingsRequest) (*translate.EmbeddingsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.doJSON(ctx, "/embeddings", req)
	if err != nil {
		return nil, err
	}
	return translate.ParseUpstreamEmbeddings(body)
}

// OpenStream establishes a streaming chat completion and returns a
// translator over the event stream. The caller owns the translator and
// must Close it on every path; Close releases the connection slot.
//
// The attempt timeout covers establishment only. Once the stream is open
// it runs until the terminal sentinel, an error, or the request context
// is cancelled.
func (c *Client) OpenStream(ctx context.Context, req *translate.NormalizedRequest) (*translate.StreamTranslator, error) {
	streaming := *req
	streaming.Stream = true

	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, "/chat/completions", &streaming)
	if err != nil {
		c.release()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer c.release()
		defer resp.Body.Close()
		return nil, c.statusError(resp)
	}

	body := &slotReleaser{body: resp.Body, release: c.release}
	return translate.NewStreamTranslator(body), nil
}

// doJSON performs a request holding a connection slot for its full
// duration and returns the raw response body.
func (c *Client) doJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	resp, err := c.send(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, path string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, proxyerr.Wrap(proxyerr.KindInternal, "failed to encode upstream request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, proxyerr.Wrap(proxyerr.KindInternal, "failed to build upstream request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("sending upstream request", "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return resp, nil
}

// acquire takes a connection slot, waiting when all slots are busy.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return proxyerr.New(proxyerr.KindUpstreamTimeout, "timed out waiting for an upstream connection slot")
		}
		return ctx.Err()
	}
}

func (c *Client) release() {
	<-c.slots
}

// InFlight reports the number of connection slots currently held.
func (c *Client) InFlight() int {
	return len(c.slots)
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// statusError converts a non-200 upstream reply into a tagged error.
// Server-side failures are connection-kind so the retry layer treats
// them as transient; anything else is terminal. The upstream error body
// is logged, never placed in the client-visible message.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	c.logger.Warn("upstream returned error status",
		"status", resp.StatusCode,
		"body", strings.TrimSpace(string(body)),
	)

	if resp.StatusCode >= 500 {
		return proxyerr.Newf(proxyerr.KindUpstreamConnection, "upstream returned status %d", resp.StatusCode)
	}
	return proxyerr.Newf(proxyerr.KindInternal, "upstream rejected request (status %d)", resp.StatusCode)
}

// classifyTransportError maps transport-level failures into the tagged
// error set. Caller cancellation passes through untouched so it is never
// mistaken for an upstream fault.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return proxyerr.Wrap(proxyerr.KindUpstreamTimeout, "upstream request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return proxyerr.Wrap(proxyerr.KindUpstreamTimeout, "upstream request timed out", err)
	}
	return proxyerr.Wrap(proxyerr.KindUpstreamConnection, fmt.Sprintf("upstream connection failed: %v", err), err)
}

// slotReleaser ties a connection slot to the lifetime of a streaming
// response body.
type slotReleaser struct {
	body     io.ReadCloser
	release  func()
	released bool
}

func (s *slotReleaser) Read(p []byte) (int, error) {
	return s.body.Read(p)
}

func (s *slotReleaser) Close() error {
	err := s.body.Close()
	if !s.released {
		s.released = true
		s.release()
	}
	return err
}
