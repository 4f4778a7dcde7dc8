package handlers

import (
	"net/http"

	"mercator-hq/callisto/pkg/proxy"
	"mercator-hq/callisto/pkg/proxyerr"
)

// TagsResponse is the model listing reply.
type TagsResponse struct {
	Models []ModelTag `json:"models"`
}

// ModelTag describes one model known to the proxy.
type ModelTag struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Tags serves GET /api/tags. The listing is the model map: these are the
// names the proxy can translate, not models held locally.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	resp := TagsResponse{Models: []ModelTag{}}
	if h.models != nil {
		for _, name := range h.models.Names() {
			resp.Models = append(resp.Models, ModelTag{Name: name, Model: name})
		}
	}
	if err := proxy.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.requestLogger(r).Error("failed to write response", "endpoint", "/api/tags", "error", err)
	}
}

// VersionResponse is the version reply.
type VersionResponse struct {
	Version string `json:"version"`
}

// Version serves GET /api/version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	if err := proxy.WriteJSON(w, http.StatusOK, VersionResponse{Version: h.version}); err != nil {
		h.requestLogger(r).Error("failed to write response", "endpoint", "/api/version", "error", err)
	}
}

// notImplemented rejects model management endpoints. The proxy holds no
// models, so show, create, pull, push, copy, and delete cannot be
// translated.
func (h *Handler) notImplemented(w http.ResponseWriter, r *http.Request) {
	proxy.WriteError(w, h.requestLogger(r),
		proxyerr.New(proxyerr.KindUnsupportedFeature, "model management is not available through this proxy"))
}
