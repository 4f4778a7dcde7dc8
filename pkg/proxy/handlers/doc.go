// Package handlers implements the Ollama-compatible HTTP endpoints:
// /api/generate, /api/chat, /api/embeddings, the model listing and
// version endpoints, and health.
package handlers
