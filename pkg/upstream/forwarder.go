package upstream

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/callisto/pkg/translate"
)

// Forwarder composes the circuit breaker, retry policy, and client into
// the single entry point handlers call.
//
// Control flow per request: the breaker is consulted before every
// attempt, each attempt runs under the client's per-attempt timeout, and
// transient failures are retried with exponential backoff. For streaming
// requests, retries cover stream establishment only; once the first
// chunk can flow, a failure surfaces to the consumer as-is.
type Forwarder struct {
	client  *Client
	breaker *Breaker
	retry   RetryPolicy
	logger  *slog.Logger
	onRetry func()
}

// NewForwarder creates a forwarder. The breaker may be shared with other
// forwarders pointing at the same upstream.
func NewForwarder(client *Client, breaker *Breaker, retry RetryPolicy, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		client:  client,
		breaker: breaker,
		retry:   retry,
		logger:  logger,
	}
}

// Breaker returns the forwarder's circuit breaker.
func (f *Forwarder) Breaker() *Breaker {
	return f.breaker
}

// OnRetry registers an observer called once per retry attempt. Must be
// set before the forwarder is shared.
func (f *Forwarder) OnRetry(fn func()) {
	f.onRetry = fn
}

// Complete sends a non-streaming chat completion with full resilience.
func (f *Forwarder) Complete(ctx context.Context, req *translate.NormalizedRequest) (*translate.NormalizedResponse, error) {
	var resp *translate.NormalizedResponse
	err := f.do(ctx, "chat", func(ctx context.Context) error {
		var attemptErr error
		resp, attemptErr = f.client.Complete(ctx, req)
		return attemptErr
	})
	return resp, err
}

// Embed sends an embeddings request with full resilience.
func (f *Forwarder) Embed(ctx context.Context, req *translate.UpstreamEmbeddingsRequest) (*translate.EmbeddingsResponse, error) {
	var resp *translate.EmbeddingsResponse
	err := f.do(ctx, "embeddings", func(ctx context.Context) error {
		var attemptErr error
		resp, attemptErr = f.client.Embed(ctx, req)
		return attemptErr
	})
	return resp, err
}

// OpenStream establishes a streaming chat completion. Establishment
// failures go through breaker and retry like any attempt; once the
// translator is returned, mid-stream failures are terminal and are
// reported through its Next method only.
func (f *Forwarder) OpenStream(ctx context.Context, req *translate.NormalizedRequest) (*translate.StreamTranslator, error) {
	var stream *translate.StreamTranslator
	err := f.do(ctx, "stream", func(ctx context.Context) error {
		var attemptErr error
		stream, attemptErr = f.client.OpenStream(ctx, req)
		return attemptErr
	})
	return stream, err
}

// do runs fn under breaker admission and the retry policy.
func (f *Forwarder) do(ctx context.Context, op string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if f.onRetry != nil {
				f.onRetry()
			}
			delay := f.retry.Delay(attempt - 1)
			f.logger.Debug("retrying upstream request",
				"op", op,
				"attempt", attempt,
				"max_retries", f.retry.MaxRetries,
				"delay", delay,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := f.breaker.Allow(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			f.breaker.RecordSuccess()
			return nil
		}

		if !Retryable(err) {
			// Client-side faults say nothing about upstream health, but
			// the admitted attempt must still report back so a half-open
			// probe slot is never left dangling.
			f.breaker.RecordNeutral()
			return err
		}

		f.breaker.RecordFailure()
		if attempt >= f.retry.MaxRetries || ctx.Err() != nil {
			return err
		}

		f.logger.Warn("upstream request failed, will retry",
			"op", op,
			"attempt", attempt+1,
			"error", err,
		)
	}
}
