package translate

import (
	"encoding/json"
	"time"

	"mercator-hq/callisto/pkg/proxyerr"
)

// Upstream (OpenAI-style) wire format. NormalizedRequest already encodes to
// the upstream request shape; these types cover the response direction.

// UpstreamResponse is a non-streaming upstream chat completion response.
type UpstreamResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Created int64            `json:"created"`
	Model   string           `json:"model"`
	Choices []UpstreamChoice `json:"choices"`
	Usage   UpstreamUsage    `json:"usage"`
}

// UpstreamChoice is a completion choice in the upstream response.
type UpstreamChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// UpstreamUsage is the upstream token usage block.
type UpstreamUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UpstreamStreamEvent is one parsed SSE event of an upstream stream.
type UpstreamStreamEvent struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []UpstreamStreamChoice `json:"choices"`

	// Usage is populated by some upstreams on the last event before the
	// terminal sentinel.
	Usage *UpstreamUsage `json:"usage,omitempty"`
}

// UpstreamStreamChoice is a choice within a stream event.
type UpstreamStreamChoice struct {
	Index        int                 `json:"index"`
	Delta        UpstreamStreamDelta `json:"delta"`
	FinishReason string              `json:"finish_reason,omitempty"`
}

// UpstreamStreamDelta is the incremental content of a stream event.
type UpstreamStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// UpstreamEmbeddingsRequest is the upstream /embeddings request body.
type UpstreamEmbeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// UpstreamEmbeddingsResponse is the upstream /embeddings response body.
type UpstreamEmbeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string        `json:"model"`
	Usage UpstreamUsage `json:"usage"`
}

// ParseUpstreamResponse decodes a non-streaming upstream reply into the
// normalized model. A body that does not parse, or that carries no choices,
// is a translation failure.
func ParseUpstreamResponse(body []byte) (*NormalizedResponse, error) {
	var resp UpstreamResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, proxyerr.Wrap(proxyerr.KindTranslation, "upstream response is not valid JSON", err)
	}
	if len(resp.Choices) == 0 {
		return nil, proxyerr.New(proxyerr.KindTranslation, "upstream response has no choices")
	}

	choice := resp.Choices[0]
	created := time.Unix(resp.Created, 0).UTC()
	if resp.Created == 0 {
		created = time.Now().UTC()
	}

	return &NormalizedResponse{
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: normalizeFinishReason(choice.FinishReason),
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Created: created,
	}, nil
}

// ParseUpstreamEmbeddings decodes an upstream embeddings reply into the
// Ollama embeddings response shape.
func ParseUpstreamEmbeddings(body []byte) (*EmbeddingsResponse, error) {
	var resp UpstreamEmbeddingsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, proxyerr.Wrap(proxyerr.KindTranslation, "upstream embeddings response is not valid JSON", err)
	}
	if len(resp.Data) == 0 {
		return nil, proxyerr.New(proxyerr.KindTranslation, "upstream embeddings response has no data")
	}
	return &EmbeddingsResponse{Embedding: resp.Data[0].Embedding}, nil
}

// normalizeFinishReason maps upstream finish reasons into the normalized
// set through a fixed table. Unknown values pass through unchanged.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "stop":
		return FinishReasonStop
	case "length", "max_tokens":
		return FinishReasonLength
	case "content_filter":
		return FinishReasonContentFilter
	default:
		return reason
	}
}
