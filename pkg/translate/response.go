package translate

import "time"

// Response translation: normalized responses back into the Ollama format.
// The requested (unresolved) model name is echoed so callers see the name
// they asked for, not the upstream identifier.

// FormatGenerateResponse renders a normalized response as an Ollama
// generate response. elapsed is the wall-clock duration of the whole proxy
// call and is reported as total_duration; the upstream does not supply
// timing, so the value is best-effort, not contractual.
func FormatGenerateResponse(resp *NormalizedResponse, requestedModel string, elapsed time.Duration) *GenerateResponse {
	return &GenerateResponse{
		Model:           requestedModel,
		CreatedAt:       resp.Created.Format(time.RFC3339Nano),
		Response:        resp.Content,
		Done:            true,
		DoneReason:      doneReason(resp.FinishReason),
		TotalDuration:   elapsed.Nanoseconds(),
		PromptEvalCount: resp.Usage.PromptTokens,
		EvalCount:       resp.Usage.CompletionTokens,
	}
}

// FormatChatResponse renders a normalized response as an Ollama chat
// response with a single assistant message carrying the full completion.
func FormatChatResponse(resp *NormalizedResponse, requestedModel string, elapsed time.Duration) *ChatResponse {
	return &ChatResponse{
		Model:     requestedModel,
		CreatedAt: resp.Created.Format(time.RFC3339Nano),
		Message: ChatMessage{
			Role:    RoleAssistant,
			Content: resp.Content,
		},
		Done:            true,
		DoneReason:      doneReason(resp.FinishReason),
		TotalDuration:   elapsed.Nanoseconds(),
		PromptEvalCount: resp.Usage.PromptTokens,
		EvalCount:       resp.Usage.CompletionTokens,
	}
}

// FormatGenerateChunk renders a stream chunk as one NDJSON line of a
// streamed generate response.
func FormatGenerateChunk(chunk *StreamChunk, requestedModel string, elapsed time.Duration) *GenerateResponse {
	out := &GenerateResponse{
		Model:     requestedModel,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Response:  chunk.Delta,
		Done:      chunk.Final,
	}
	if chunk.Final {
		out.DoneReason = doneReason(chunk.FinishReason)
		out.TotalDuration = elapsed.Nanoseconds()
		if chunk.Usage != nil {
			out.PromptEvalCount = chunk.Usage.PromptTokens
			out.EvalCount = chunk.Usage.CompletionTokens
		}
	}
	return out
}

// FormatChatChunk renders a stream chunk as one NDJSON line of a streamed
// chat response. Non-final lines carry the delta as the message content;
// the final line carries an empty message, matching the Ollama stream
// framing where the terminal record closes the message rather than
// restating it.
func FormatChatChunk(chunk *StreamChunk, requestedModel string, elapsed time.Duration) *ChatResponse {
	out := &ChatResponse{
		Model:     requestedModel,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Message: ChatMessage{
			Role:    RoleAssistant,
			Content: chunk.Delta,
		},
		Done: chunk.Final,
	}
	if chunk.Final {
		out.DoneReason = doneReason(chunk.FinishReason)
		out.TotalDuration = elapsed.Nanoseconds()
		if chunk.Usage != nil {
			out.PromptEvalCount = chunk.Usage.PromptTokens
			out.EvalCount = chunk.Usage.CompletionTokens
		}
	}
	return out
}

// doneReason maps a normalized finish reason to the Ollama done_reason
// field through a fixed table. An empty reason defaults to "stop" so the
// final record always explains termination.
func doneReason(finishReason string) string {
	switch finishReason {
	case FinishReasonStop:
		return "stop"
	case FinishReasonLength:
		return "length"
	case FinishReasonContentFilter:
		return "content_filter"
	case FinishReasonError:
		return "error"
	case "":
		return "stop"
	default:
		return finishReason
	}
}
