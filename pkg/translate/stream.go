package translate

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"mercator-hq/callisto/pkg/proxyerr"
)

// maxEventSize bounds a single SSE event line. Events beyond this are
// malformed by any reasonable upstream.
const maxEventSize = 1024 * 1024

// StreamTranslator converts an upstream SSE event stream into a pull-based
// sequence of StreamChunk values.
//
// The translator owns the upstream response body. It reads no faster than
// the consumer calls Next, so a slow consumer throttles the upstream read
// and no unbounded buffering occurs. The line scanner assembles complete
// `data: ` frames across arbitrary network read boundaries; a frame is
// parsed only once fully assembled.
//
// The chunk sequence is finite and non-restartable: indices increase
// strictly from zero, and the sequence terminates with exactly one final
// chunk (on the upstream `data: [DONE]` sentinel) or with an error. After
// either, Next returns io.EOF.
//
// Close releases the upstream connection. Closing before the terminal
// sentinel abandons the body mid-read instead of draining it, which is the
// required behavior when the consumer disconnects early.
type StreamTranslator struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	index    int
	finished bool
	closed   bool
	failed   bool

	content      strings.Builder
	finishReason string
	usage        *TokenUsage
}

// NewStreamTranslator creates a translator reading SSE events from body.
// The translator takes ownership of body; the caller must call Close when
// done, on every path.
func NewStreamTranslator(body io.ReadCloser) *StreamTranslator {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)
	return &StreamTranslator{
		body:    body,
		scanner: scanner,
	}
}

// Next returns the next translated chunk.
//
// It returns (chunk, nil) for each delta and once more for the final
// chunk, then (nil, io.EOF). A malformed frame returns a translation error
// and terminates the sequence; chunks already emitted are not retracted.
func (s *StreamTranslator) Next(ctx context.Context) (*StreamChunk, error) {
	if s.closed || s.finished || s.failed {
		return nil, io.EOF
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !s.scanner.Scan() {
			s.failed = true
			if err := s.scanner.Err(); err != nil {
				return nil, proxyerr.Wrap(proxyerr.KindUpstreamConnection, "upstream stream read failed", err)
			}
			// EOF before the [DONE] sentinel: the stream was truncated.
			return nil, proxyerr.New(proxyerr.KindTranslation, "upstream stream ended without terminal sentinel")
		}

		line := s.scanner.Text()
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			// Comments and event-type lines carry no payload.
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			return s.finalChunk(), nil
		}

		var event UpstreamStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			s.failed = true
			return nil, proxyerr.Wrap(proxyerr.KindTranslation, "malformed upstream stream event", err)
		}

		if event.Usage != nil {
			s.usage = &TokenUsage{
				PromptTokens:     event.Usage.PromptTokens,
				CompletionTokens: event.Usage.CompletionTokens,
				TotalTokens:      event.Usage.TotalTokens,
			}
		}
		if len(event.Choices) == 0 {
			// Usage-only events precede the sentinel on some upstreams.
			continue
		}

		choice := event.Choices[0]
		if choice.FinishReason != "" {
			s.finishReason = normalizeFinishReason(choice.FinishReason)
		}
		if choice.Delta.Content == "" {
			// Role announcements and finish-only events emit no chunk.
			continue
		}

		s.content.WriteString(choice.Delta.Content)
		chunk := &StreamChunk{
			Delta: choice.Delta.Content,
			Index: s.index,
		}
		s.index++
		return chunk, nil
	}
}

// finalChunk builds the single terminal chunk. Usage defaults to zero
// counts when the upstream reported none; counts are never fabricated.
func (s *StreamTranslator) finalChunk() *StreamChunk {
	s.finished = true
	usage := s.usage
	if usage == nil {
		usage = &TokenUsage{}
	}
	chunk := &StreamChunk{
		Index:        s.index,
		Final:        true,
		FinishReason: s.finishReason,
		Usage:        usage,
	}
	s.index++
	return chunk
}

// Content returns the completion text accumulated from all deltas emitted
// so far. After the final chunk it equals the complete message, which is
// what a non-streaming call against the same upstream reply would return.
func (s *StreamTranslator) Content() string {
	return s.content.String()
}

// FinishReason returns the normalized finish reason observed so far.
func (s *StreamTranslator) FinishReason() string {
	return s.finishReason
}

// Usage returns the cumulative usage reported by the upstream, or nil.
func (s *StreamTranslator) Usage() *TokenUsage {
	return s.usage
}

// Close releases the upstream connection. It is idempotent and safe to
// call from any point in the sequence, including mid-stream after a
// consumer disconnect.
func (s *StreamTranslator) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
