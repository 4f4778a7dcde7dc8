package handlers

import (
	"net/http"
	"time"

	"mercator-hq/callisto/pkg/proxy"
	"mercator-hq/callisto/pkg/translate"
)

// Embeddings serves POST /api/embeddings.
func (h *Handler) Embeddings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := "/api/embeddings"

	var req translate.EmbeddingsRequest
	if err := proxy.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, endpoint, req.Model, start, err)
		return
	}

	upstreamReq, err := h.translator.TranslateEmbeddings(&req)
	if err != nil {
		h.fail(w, r, endpoint, req.Model, start, err)
		return
	}

	resp, err := h.forwarder.Embed(r.Context(), upstreamReq)
	if err != nil {
		h.fail(w, r, endpoint, req.Model, start, err)
		return
	}

	if err := proxy.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.requestLogger(r).Error("failed to write response", "endpoint", endpoint, "error", err)
		return
	}
	h.observe(r, endpoint, req.Model, upstreamReq.Model, false, start, nil, "ok", "200")
}
