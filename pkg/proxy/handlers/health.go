package handlers

import (
	"net/http"

	"mercator-hq/callisto/pkg/proxy"
)

// HealthResponse is the health endpoint reply.
type HealthResponse struct {
	Status  string `json:"status"`
	Breaker string `json:"breaker"`
}

// Health serves GET /health. The process is "ok" whenever it can answer;
// the breaker state tells operators whether the upstream is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Breaker: h.forwarder.Breaker().State().String(),
	}
	if err := proxy.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.requestLogger(r).Error("failed to write response", "endpoint", "/health", "error", err)
	}
}
