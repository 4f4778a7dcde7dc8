package translate

// Ollama wire format: the caller-facing request and response shapes.
// Field names follow the Ollama API exactly; unsupported fields are kept in
// the request types so the translator can reject them explicitly instead of
// silently dropping them.

// Options is the Ollama sampling-options bag attached to generate and chat
// requests. Pointer fields distinguish "not set" from zero values.
type Options struct {
	// Temperature controls sampling randomness.
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP is the nucleus-sampling probability mass.
	TopP *float64 `json:"top_p,omitempty"`

	// TopK limits sampling to the K most likely tokens. The upstream
	// format has no equivalent; it is dropped with a warning.
	TopK *int `json:"top_k,omitempty"`

	// NumPredict is the maximum number of tokens to generate.
	NumPredict *int `json:"num_predict,omitempty"`

	// Stop lists sequences that halt generation.
	Stop []string `json:"stop,omitempty"`

	// Seed requests deterministic sampling.
	Seed *int `json:"seed,omitempty"`
}

// GenerateRequest is the Ollama /api/generate request body.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`

	// System is an optional system prompt prepended to the conversation.
	System string `json:"system,omitempty"`

	// Images carries base64 image payloads. Image translation is not
	// supported; a non-empty value is rejected with not_implemented.
	Images []string `json:"images,omitempty"`

	// Stream defaults to true in the Ollama API, so it is a pointer to
	// distinguish an explicit false from an absent field.
	Stream *bool `json:"stream,omitempty"`

	Options *Options `json:"options,omitempty"`
}

// Streaming reports the effective stream flag, applying the Ollama default
// of true when the field was absent.
func (r *GenerateRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// ChatMessage is a single message in an Ollama chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// Images carries base64 image payloads; rejected, as in GenerateRequest.
	Images []string `json:"images,omitempty"`
}

// ChatRequest is the Ollama /api/chat request body.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`

	// Tools carries tool/function definitions. Tool translation is not
	// supported; a non-empty value is rejected with not_implemented.
	Tools []map[string]any `json:"tools,omitempty"`

	Stream  *bool    `json:"stream,omitempty"`
	Options *Options `json:"options,omitempty"`
}

// Streaming reports the effective stream flag (Ollama default: true).
func (r *ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// EmbeddingsRequest is the Ollama /api/embeddings request body.
type EmbeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// GenerateResponse is the Ollama /api/generate response body, used both for
// the non-streaming reply and for each NDJSON line of a streamed reply.
type GenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`

	// DoneReason is set only when Done is true.
	DoneReason string `json:"done_reason,omitempty"`

	// Timing and token accounting, present only on the final message.
	// Durations are best-effort wall-clock nanoseconds measured in the
	// proxy; the upstream does not report them.
	TotalDuration   int64 `json:"total_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
}

// ChatResponse is the Ollama /api/chat response body, used both for the
// non-streaming reply and for each NDJSON line of a streamed reply.
type ChatResponse struct {
	Model     string      `json:"model"`
	CreatedAt string      `json:"created_at"`
	Message   ChatMessage `json:"message"`
	Done      bool        `json:"done"`

	DoneReason string `json:"done_reason,omitempty"`

	TotalDuration   int64 `json:"total_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
}

// EmbeddingsResponse is the Ollama /api/embeddings response body.
type EmbeddingsResponse struct {
	Embedding []float64 `json:"embedding"`
}
