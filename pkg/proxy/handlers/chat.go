package handlers

import (
	"net/http"
	"time"

	"mercator-hq/callisto/pkg/proxy"
	"mercator-hq/callisto/pkg/translate"
)

// Chat serves POST /api/chat: multi-message conversation, streaming by
// default.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := "/api/chat"

	var req translate.ChatRequest
	if err := proxy.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, endpoint, req.Model, start, err)
		return
	}

	normalized, warnings, err := h.translator.TranslateChat(&req)
	if err != nil {
		h.fail(w, r, endpoint, req.Model, start, err)
		return
	}
	h.logWarnings(r, endpoint, warnings)

	if req.Streaming() {
		h.streamCompletion(w, r, endpoint, req.Model, normalized, start, func(chunk *translate.StreamChunk) any {
			return translate.FormatChatChunk(chunk, req.Model, time.Since(start))
		})
		return
	}

	resp, err := h.forwarder.Complete(r.Context(), normalized)
	if err != nil {
		h.fail(w, r, endpoint, req.Model, start, err)
		return
	}

	out := translate.FormatChatResponse(resp, req.Model, time.Since(start))
	if err := proxy.WriteJSON(w, http.StatusOK, out); err != nil {
		h.requestLogger(r).Error("failed to write response", "endpoint", endpoint, "error", err)
		return
	}
	h.observe(r, endpoint, req.Model, normalized.Model, false, start, &resp.Usage, "ok", "200")
}
