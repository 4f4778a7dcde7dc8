package translate

import (
	"mercator-hq/callisto/pkg/proxyerr"
)

// ModelResolver resolves a caller-supplied model name to the upstream model
// identifier. Implementations return the input unchanged when no mapping
// exists; resolution never fails.
type ModelResolver interface {
	Resolve(name string) string
}

// passthroughResolver returns every name unchanged.
type passthroughResolver struct{}

func (passthroughResolver) Resolve(name string) string { return name }

// RequestTranslator builds normalized upstream requests from Ollama
// generate, chat, and embeddings requests.
type RequestTranslator struct {
	models ModelResolver
}

// NewRequestTranslator creates a translator using the given model resolver.
// A nil resolver means all model names pass through unchanged.
func NewRequestTranslator(models ModelResolver) *RequestTranslator {
	if models == nil {
		models = passthroughResolver{}
	}
	return &RequestTranslator{models: models}
}

// TranslateGenerate builds a normalized chat request from a single-prompt
// generate request. The prompt becomes the sole message with role "user";
// an optional system prompt is prepended with role "system".
//
// The returned warnings list records dropped options; it is empty for fully
// mappable requests.
func (t *RequestTranslator) TranslateGenerate(req *GenerateRequest) (*NormalizedRequest, []string, error) {
	if req.Model == "" {
		return nil, nil, proxyerr.New(proxyerr.KindValidation, "model is required")
	}
	if req.Prompt == "" {
		return nil, nil, proxyerr.New(proxyerr.KindValidation, "prompt is required")
	}
	if len(req.Images) > 0 {
		return nil, nil, proxyerr.New(proxyerr.KindUnsupportedFeature, "image payloads are not supported")
	}

	messages := make([]Message, 0, 2)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.Prompt})

	normalized := &NormalizedRequest{
		Model:    t.models.Resolve(req.Model),
		Messages: messages,
		Stream:   req.Streaming(),
	}
	mapped, warnings := MapOptions(req.Options)
	mapped.apply(normalized)

	return normalized, warnings, nil
}

// TranslateChat builds a normalized chat request from a multi-message chat
// request. Message order is preserved exactly. Roles map 1:1 for system,
// user, and assistant; any other role is rejected.
func (t *RequestTranslator) TranslateChat(req *ChatRequest) (*NormalizedRequest, []string, error) {
	if req.Model == "" {
		return nil, nil, proxyerr.New(proxyerr.KindValidation, "model is required")
	}
	if len(req.Messages) == 0 {
		return nil, nil, proxyerr.New(proxyerr.KindValidation, "messages must not be empty")
	}
	if len(req.Tools) > 0 {
		return nil, nil, proxyerr.New(proxyerr.KindUnsupportedFeature, "tool definitions are not supported")
	}

	messages := make([]Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return nil, nil, proxyerr.Newf(proxyerr.KindUnsupportedRole, "unsupported message role %q", msg.Role)
		}
		if len(msg.Images) > 0 {
			return nil, nil, proxyerr.New(proxyerr.KindUnsupportedFeature, "image payloads are not supported")
		}
		messages = append(messages, Message{Role: msg.Role, Content: msg.Content})
	}

	normalized := &NormalizedRequest{
		Model:    t.models.Resolve(req.Model),
		Messages: messages,
		Stream:   req.Streaming(),
	}
	mapped, warnings := MapOptions(req.Options)
	mapped.apply(normalized)

	return normalized, warnings, nil
}

// TranslateEmbeddings builds an upstream embeddings request from an Ollama
// embeddings request.
func (t *RequestTranslator) TranslateEmbeddings(req *EmbeddingsRequest) (*UpstreamEmbeddingsRequest, error) {
	if req.Model == "" {
		return nil, proxyerr.New(proxyerr.KindValidation, "model is required")
	}
	if req.Prompt == "" {
		return nil, proxyerr.New(proxyerr.KindValidation, "prompt is required")
	}
	return &UpstreamEmbeddingsRequest{
		Model: t.models.Resolve(req.Model),
		Input: req.Prompt,
	}, nil
}
