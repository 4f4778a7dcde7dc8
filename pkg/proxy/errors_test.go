package proxy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/callisto/pkg/proxyerr"
)

func TestNewErrorEnvelope(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
		wantType    string
		wantCode    string
	}{
		{
			name:        "validation error",
			err:         proxyerr.New(proxyerr.KindValidation, "model is required"),
			wantMessage: "model is required",
			wantType:    "invalid_request_error",
			wantCode:    "invalid_value",
		},
		{
			name:        "circuit open",
			err:         proxyerr.New(proxyerr.KindCircuitOpen, "upstream unavailable, requests are being rejected"),
			wantMessage: "upstream unavailable, requests are being rejected",
			wantType:    "service_unavailable",
			wantCode:    "circuit_open",
		},
		{
			name:        "wrapped classified error",
			err:         errors.Join(errors.New("outer"), proxyerr.New(proxyerr.KindUpstreamTimeout, "upstream timed out")),
			wantMessage: "upstream timed out",
			wantType:    "gateway_timeout",
			wantCode:    "upstream_timeout",
		},
		{
			name:        "unclassified error hides details",
			err:         errors.New("dial tcp 10.0.0.1:443: connection refused"),
			wantMessage: "an internal error occurred",
			wantType:    "server_error",
			wantCode:    "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewErrorEnvelope(tt.err)
			if env.Error.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", env.Error.Message, tt.wantMessage)
			}
			if env.Error.Type != tt.wantType {
				t.Errorf("type = %q, want %q", env.Error.Type, tt.wantType)
			}
			if env.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", env.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", proxyerr.New(proxyerr.KindValidation, "bad request"), http.StatusBadRequest},
		{"unsupported feature", proxyerr.New(proxyerr.KindUnsupportedFeature, "no tools"), http.StatusNotImplemented},
		{"upstream timeout", proxyerr.New(proxyerr.KindUpstreamTimeout, "timed out"), http.StatusGatewayTimeout},
		{"upstream connection", proxyerr.New(proxyerr.KindUpstreamConnection, "refused"), http.StatusBadGateway},
		{"circuit open", proxyerr.New(proxyerr.KindCircuitOpen, "rejecting"), http.StatusServiceUnavailable},
		{"translation", proxyerr.New(proxyerr.KindTranslation, "garbled"), http.StatusBadGateway},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	logger := slog.New(slog.DiscardHandler)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, logger, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			var env ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("body is not a valid envelope: %v", err)
			}
			if env.Error.Message == "" || env.Error.Type == "" || env.Error.Code == "" {
				t.Errorf("envelope has empty fields: %+v", env)
			}
		})
	}
}
