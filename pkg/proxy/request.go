package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"mercator-hq/callisto/pkg/proxyerr"
)

// maxRequestBodySize bounds client request bodies.
const maxRequestBodySize = 10 * 1024 * 1024

// DecodeJSON reads and decodes a JSON request body into dst. Malformed
// bodies become validation errors; oversized bodies are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return proxyerr.New(proxyerr.KindValidation, "request body too large")
		}
		return proxyerr.Wrap(proxyerr.KindValidation, "failed to read request body", err)
	}
	if len(body) == 0 {
		return proxyerr.New(proxyerr.KindValidation, "request body is empty")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return proxyerr.Wrap(proxyerr.KindValidation, "request body is not valid JSON", err)
	}
	return nil
}
