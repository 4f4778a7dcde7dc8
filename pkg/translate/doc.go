// Package translate implements the bidirectional translation core between
// the Ollama wire format spoken by callers and the OpenAI chat completion
// format spoken by the upstream.
//
// The package owns three things:
//
//   - The normalized request/response model shared by both directions
//     (NormalizedRequest, NormalizedResponse, StreamChunk).
//   - Request translation: Ollama generate/chat/embeddings requests into
//     normalized upstream requests, including sampling-option mapping and
//     model-name resolution.
//   - Response translation: normalized responses and upstream SSE streams
//     back into Ollama responses and NDJSON chunk sequences.
//
// Translation is pure except for the StreamTranslator, which owns an
// upstream body reader and yields chunks under consumer pull. All failures
// are classified through the proxyerr taxonomy.
package translate
