// Package proxyerr defines the closed error taxonomy shared by the
// translation core, the upstream transport, and the HTTP boundary.
//
// Every failure in the request path is represented by a single Error type
// carrying a Kind. Components classify failures at the point they occur;
// the boundary maps kinds to HTTP status codes and the wire error envelope
// without inspecting component internals.
package proxyerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a proxy error. The set is closed: new
// failure modes get a new constant here, not a new error type.
type Kind int

const (
	// KindInternal is an unclassified failure (HTTP 500).
	KindInternal Kind = iota

	// KindValidation is a malformed or incomplete client request (HTTP 400).
	KindValidation

	// KindUnsupportedRole is a chat message role outside the supported
	// system/user/assistant set (HTTP 400).
	KindUnsupportedRole

	// KindUnsupportedFeature is a request using a capability the proxy does
	// not translate, such as tool definitions or image payloads (HTTP 501).
	KindUnsupportedFeature

	// KindUpstreamTimeout is an attempt that exceeded its wall-clock
	// timeout budget (HTTP 504).
	KindUpstreamTimeout

	// KindUpstreamConnection is a transport-level failure reaching the
	// upstream: refused, reset, DNS, or a 5xx status (HTTP 502).
	KindUpstreamConnection

	// KindCircuitOpen is a request rejected by the circuit breaker before
	// any upstream attempt (HTTP 503).
	KindCircuitOpen

	// KindTranslation is a malformed upstream payload that could not be
	// translated back to the caller's format (HTTP 502).
	KindTranslation
)

// String returns the wire-level error type for the kind, used in the
// {"error":{"type":...}} envelope.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "invalid_request_error"
	case KindUnsupportedRole:
		return "invalid_request_error"
	case KindUnsupportedFeature:
		return "not_implemented"
	case KindUpstreamTimeout:
		return "gateway_timeout"
	case KindUpstreamConnection:
		return "bad_gateway"
	case KindCircuitOpen:
		return "service_unavailable"
	case KindTranslation:
		return "bad_gateway"
	default:
		return "server_error"
	}
}

// Code returns the machine-readable error code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "invalid_value"
	case KindUnsupportedRole:
		return "unsupported_role"
	case KindUnsupportedFeature:
		return "not_implemented"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamConnection:
		return "upstream_error"
	case KindCircuitOpen:
		return "circuit_open"
	case KindTranslation:
		return "translation_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus returns the HTTP status code the boundary renders for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindUnsupportedRole:
		return 400
	case KindUnsupportedFeature:
		return 501
	case KindUpstreamTimeout:
		return 504
	case KindUpstreamConnection, KindTranslation:
		return 502
	case KindCircuitOpen:
		return 503
	default:
		return 500
	}
}

// Error is the single error value used across the proxy.
type Error struct {
	// Kind categorizes the failure.
	Kind Kind

	// Message is a human-readable description. It is safe to return to
	// clients; upstream response bodies must not be embedded here.
	Message string

	// Cause is the underlying error, if any. It is logged but never
	// rendered into the client envelope.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf classifies an arbitrary error. Errors created by this package keep
// their kind; anything else is KindInternal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
