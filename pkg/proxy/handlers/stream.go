package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"mercator-hq/callisto/pkg/proxy"
	"mercator-hq/callisto/pkg/proxyerr"
	"mercator-hq/callisto/pkg/translate"
)

// streamCompletion runs a streaming completion: it opens the upstream
// stream, pulls chunks, and writes each as one NDJSON line. format
// renders a chunk into the endpoint's wire shape.
//
// Errors before the first line use the normal error envelope. Once lines
// are on the wire the status is committed, so a mid-stream failure can
// only terminate the response; chunks already sent stand.
func (h *Handler) streamCompletion(w http.ResponseWriter, r *http.Request, endpoint, model string, normalized *translate.NormalizedRequest, start time.Time, format func(*translate.StreamChunk) any) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	stream, err := h.forwarder.OpenStream(ctx, normalized)
	if err != nil {
		h.fail(w, r, endpoint, model, start, err)
		return
	}
	defer stream.Close()

	sw := proxy.NewStreamWriter(w)
	var finalUsage *translate.TokenUsage

	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, ctx.Err()) {
				// Client went away; closing the stream releases the
				// upstream connection.
				logger.Debug("client disconnected mid-stream", "endpoint", endpoint)
				h.observe(r, endpoint, model, normalized.Model, true, start, finalUsage, "cancelled", "499")
				return
			}
			if !sw.Started() {
				h.fail(w, r, endpoint, model, start, err)
				return
			}
			logger.Error("stream failed mid-flight",
				"endpoint", endpoint,
				"kind", proxyerr.KindOf(err).Code(),
				"error", err,
			)
			h.observe(r, endpoint, model, normalized.Model, true, start, finalUsage, proxyerr.KindOf(err).Code(), "200")
			return
		}

		if chunk.Final {
			finalUsage = chunk.Usage
		}
		if err := sw.WriteLine(format(chunk)); err != nil {
			logger.Debug("failed to write stream line", "endpoint", endpoint, "error", err)
			h.observe(r, endpoint, model, normalized.Model, true, start, finalUsage, "write_failed", "200")
			return
		}
		h.metrics.RecordStreamChunk()
	}

	h.observe(r, endpoint, model, normalized.Model, true, start, finalUsage, "ok", "200")
}
