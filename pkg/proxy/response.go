package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// WriteJSON writes a buffered JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// StreamWriter emits newline-delimited JSON, flushing after every line
// so each chunk reaches the client as soon as it is translated.
type StreamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewStreamWriter prepares an NDJSON stream over w. Headers are not sent
// until the first line, so an error before any chunk can still use the
// normal error envelope.
func NewStreamWriter(w http.ResponseWriter) *StreamWriter {
	flusher, _ := w.(http.Flusher)
	return &StreamWriter{w: w, flusher: flusher}
}

// Started reports whether any line has been written. Once true, the
// status line is on the wire and error replies can no longer change it.
func (s *StreamWriter) Started() bool {
	return s.started
}

// WriteLine encodes one value as a JSON line and flushes it.
func (s *StreamWriter) WriteLine(v any) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "application/x-ndjson")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode stream line: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("failed to write stream line: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
