// Package middleware provides the HTTP middleware chain: request IDs,
// structured request logging, and panic recovery.
package middleware

type contextKey string

// requestIDKey carries the request ID through the request context.
const requestIDKey contextKey = "request_id"
