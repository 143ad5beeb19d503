package assist

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
)

// LangChainProvider adapts a langchaingo model to Provider. It backs the
// ollama and anthropic provider identifiers.
type LangChainProvider struct {
	model llms.Model
	name  string
}

// NewLangChainProvider wraps an existing langchaingo model. name is used in
// error messages.
func NewLangChainProvider(name string, model llms.Model) *LangChainProvider {
	return &LangChainProvider{model: model, name: name}
}

// NewOllamaProvider connects to an Ollama server. An empty serverURL uses
// the langchaingo default (OLLAMA_HOST or localhost:11434).
func NewOllamaProvider(model, serverURL string) (*LangChainProvider, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	return NewLangChainProvider(ProviderOllama, llm), nil
}

// NewAnthropicProvider creates an Anthropic client. An empty token falls
// back to ANTHROPIC_API_KEY.
func NewAnthropicProvider(model, token, baseURL string) (*LangChainProvider, error) {
	opts := []anthropic.Option{anthropic.WithModel(model)}
	if token != "" {
		opts = append(opts, anthropic.WithToken(token))
	}
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	llm, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating anthropic client: %w", err)
	}
	return NewLangChainProvider(ProviderAnthropic, llm), nil
}

// Complete sends the conversation through the wrapped model.
func (p *LangChainProvider) Complete(ctx context.Context, messages []Message) (*Response, error) {
	resp, err := p.model.GenerateContent(ctx, toLangChainMessages(messages))
	if err != nil {
		return nil, fmt.Errorf("%s generate content: %w", p.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	choice := resp.Choices[0]
	return &Response{
		Content:          choice.Content,
		PromptTokens:     infoInt(choice.GenerationInfo, "PromptTokens", "InputTokens"),
		CompletionTokens: infoInt(choice.GenerationInfo, "CompletionTokens", "OutputTokens"),
	}, nil
}

func toLangChainMessages(msgs []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out[i] = llms.TextParts(llms.ChatMessageTypeSystem, m.Content)
		case RoleAssistant:
			out[i] = llms.TextParts(llms.ChatMessageTypeAI, m.Content)
		default:
			out[i] = llms.TextParts(llms.ChatMessageTypeHuman, m.Content)
		}
	}
	return out
}

// infoInt returns the first integer generation-info value found under keys.
// Backends disagree on both key names and numeric types.
func infoInt(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
