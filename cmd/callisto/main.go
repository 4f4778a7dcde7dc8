// Callisto is a bidirectional protocol translation proxy that presents
// an Ollama-compatible API and forwards requests to an OpenAI-compatible
// upstream.
//
// It translates requests, responses, and streaming formats in both
// directions, providing:
//   - Ollama NDJSON streaming backed by upstream SSE streams
//   - Model name mapping with hot reload
//   - Retry with exponential backoff and a circuit breaker
//   - Prometheus metrics and per-request usage accounting
//
// Usage:
//
//	# Start the proxy with default configuration
//	callisto run
//
//	# Start with a custom configuration file
//	callisto run --config /path/to/config.yaml
//
//	# Validate a configuration file
//	callisto validate --config /path/to/config.yaml
//
//	# Show version information
//	callisto version
package main

func main() {
	Execute()
}
