// Package upstream sends translated requests to the OpenAI-compatible
// endpoint and shields it from failure storms.
//
// The package is layered: Client owns the HTTP transport, connection
// limiting, and per-attempt timeouts; RetryPolicy decides how transient
// failures are retried; Breaker trips after consecutive failures; and
// Forwarder composes the three so handlers see a single call.
package upstream
