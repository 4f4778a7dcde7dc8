package proxy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mercator-hq/callisto/pkg/proxyerr"
)

// ErrorEnvelope is the wire shape of an error reply.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the client-visible failure description.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewErrorEnvelope builds the envelope for an error. Unclassified errors
// render as a generic internal failure; their details stay in the logs.
func NewErrorEnvelope(err error) ErrorEnvelope {
	kind := proxyerr.KindOf(err)

	message := "an internal error occurred"
	var pe *proxyerr.Error
	if errors.As(err, &pe) {
		message = pe.Message
	}

	return ErrorEnvelope{
		Error: ErrorBody{
			Message: message,
			Type:    kind.String(),
			Code:    kind.Code(),
		},
	}
}

// WriteError renders err as the error envelope with the status mapped
// from its kind. It must not be called once the response body has been
// started; streaming failures mid-body are handled by the stream writer.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := proxyerr.KindOf(err)
	status := kind.HTTPStatus()

	if status >= 500 {
		logger.Error("request failed", "kind", kind.Code(), "error", err)
	} else {
		logger.Warn("request rejected", "kind", kind.Code(), "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(NewErrorEnvelope(err)); encodeErr != nil {
		logger.Error("failed to write error envelope", "error", encodeErr)
	}
}
