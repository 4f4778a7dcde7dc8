package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/callisto/pkg/modelmap"
	"mercator-hq/callisto/pkg/proxy"
	"mercator-hq/callisto/pkg/proxy/middleware"
	"mercator-hq/callisto/pkg/proxyerr"
	"mercator-hq/callisto/pkg/telemetry/metrics"
	"mercator-hq/callisto/pkg/translate"
	"mercator-hq/callisto/pkg/upstream"
	"mercator-hq/callisto/pkg/usage"
)

// Handler serves the Ollama-compatible API.
type Handler struct {
	translator *translate.RequestTranslator
	forwarder  *upstream.Forwarder
	models     *modelmap.Table
	metrics    *metrics.Metrics
	recorder   *usage.Recorder
	logger     *slog.Logger
	version    string
}

// Options configures a Handler.
type Options struct {
	// Translator converts client requests to the upstream format.
	Translator *translate.RequestTranslator

	// Forwarder sends translated requests upstream.
	Forwarder *upstream.Forwarder

	// Models backs the model listing endpoint. May be nil.
	Models *modelmap.Table

	// Metrics receives request instrumentation. Nil allocates a
	// standalone collector that is never scraped.
	Metrics *metrics.Metrics

	// Recorder receives usage records. Nil disables accounting.
	Recorder *usage.Recorder

	// Logger is the handler's structured logger.
	Logger *slog.Logger

	// Version is reported by the version endpoint.
	Version string
}

// New creates the API handler.
func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Handler{
		translator: opts.Translator,
		forwarder:  opts.Forwarder,
		models:     opts.Models,
		metrics:    opts.Metrics,
		recorder:   opts.Recorder,
		logger:     logger,
		version:    opts.Version,
	}
}

// Register mounts all endpoints on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/generate", h.Generate)
	mux.HandleFunc("POST /api/chat", h.Chat)
	mux.HandleFunc("POST /api/embeddings", h.Embeddings)
	mux.HandleFunc("GET /api/tags", h.Tags)
	mux.HandleFunc("GET /api/version", h.Version)
	mux.HandleFunc("GET /health", h.Health)

	// Model management endpoints have no upstream equivalent.
	for _, path := range []string{
		"POST /api/show",
		"POST /api/create",
		"POST /api/pull",
		"POST /api/push",
		"POST /api/copy",
		"DELETE /api/delete",
	} {
		mux.HandleFunc(path, h.notImplemented)
	}
}

// fail writes the error envelope and records the failed request.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint, model string, start time.Time, err error) {
	kind := proxyerr.KindOf(err)
	proxy.WriteError(w, h.requestLogger(r), err)
	h.observe(r, endpoint, model, "", false, start, nil, kind.Code(), strconv.Itoa(kind.HTTPStatus()))
}

// observe records metrics and, when enabled, a usage record for a
// finished request. status is the usage outcome ("ok" or an error code);
// httpStatus is the metric label.
func (h *Handler) observe(r *http.Request, endpoint, model, upstreamModel string, streamed bool, start time.Time, tokens *translate.TokenUsage, status, httpStatus string) {
	elapsed := time.Since(start)

	h.metrics.RecordRequest(endpoint, httpStatus, elapsed)
	if tokens != nil {
		h.metrics.RecordTokens(model, tokens.PromptTokens, tokens.CompletionTokens)
	}

	if h.recorder == nil {
		return
	}
	rec := &usage.Record{
		ID:            middleware.GetRequestID(r.Context()),
		Endpoint:      endpoint,
		Model:         model,
		UpstreamModel: upstreamModel,
		Streamed:      streamed,
		Status:        status,
		Duration:      elapsed,
	}
	if tokens != nil {
		rec.PromptTokens = tokens.PromptTokens
		rec.CompletionTokens = tokens.CompletionTokens
		rec.TotalTokens = tokens.TotalTokens
	}
	h.recorder.Record(rec)
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		return h.logger.With("request_id", id)
	}
	return h.logger
}

func (h *Handler) logWarnings(r *http.Request, endpoint string, warnings []string) {
	for _, warning := range warnings {
		h.requestLogger(r).Warn("request option dropped", "endpoint", endpoint, "detail", warning)
	}
}
