package translate

import "time"

// Message role constants shared by both wire formats.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reason constants for the normalized model.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
	FinishReasonError         = "error"
)

// Message is a single (role, content) pair in a conversation.
type Message struct {
	// Role identifies the message sender (system, user, assistant).
	Role string `json:"role"`

	// Content is the message text content.
	Content string `json:"content"`
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is prompt + completion.
	TotalTokens int `json:"total_tokens"`
}

// NormalizedRequest is the format-agnostic upstream chat request built by
// the request translator. Its JSON encoding is exactly the upstream chat
// completion request shape, so the transport marshals it directly.
//
// A NormalizedRequest is immutable once built; the transport and retry
// layers never modify it between attempts.
type NormalizedRequest struct {
	// Model is the resolved upstream model identifier.
	Model string `json:"model"`

	// Messages is the ordered conversation. Single-prompt requests are a
	// one-element sequence with role "user".
	Messages []Message `json:"messages"`

	// Stream requests token-by-token delivery from the upstream.
	Stream bool `json:"stream"`

	// Temperature controls sampling randomness. Nil means upstream default.
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling. Nil means upstream default.
	TopP *float64 `json:"top_p,omitempty"`

	// MaxTokens caps the completion length. Zero means upstream default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Stop lists sequences that halt generation.
	Stop []string `json:"stop,omitempty"`

	// Seed requests deterministic sampling where the upstream supports it.
	Seed *int `json:"seed,omitempty"`
}

// NormalizedResponse is the format-agnostic completion response decoded
// from a non-streaming upstream reply.
type NormalizedResponse struct {
	// Model is the model that generated the response.
	Model string

	// Content is the full completion text.
	Content string

	// FinishReason is one of the FinishReason* constants.
	FinishReason string

	// Usage contains token consumption reported by the upstream.
	Usage TokenUsage

	// Created is the upstream-reported creation timestamp.
	Created time.Time
}

// StreamChunk is one element of a translated streaming response.
//
// Within a single stream, Index is strictly increasing from zero, exactly
// one chunk has Final set, and no chunk is duplicated or reordered.
type StreamChunk struct {
	// Delta is the incremental text fragment. Empty on the final chunk.
	Delta string

	// Index is the zero-based position of this chunk in the stream.
	Index int

	// Final marks the terminal chunk of the stream.
	Final bool

	// FinishReason is set only on the final chunk.
	FinishReason string

	// Usage is set only on the final chunk. Zero counts mean the upstream
	// did not report usage; counts are never synthesized.
	Usage *TokenUsage
}
