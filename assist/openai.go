package assist

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider sends chat completions to OpenAI or to any gateway that
// speaks its API (vLLM, LiteLLM, OpenRouter) when baseURL is set.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider returns a provider for model. An empty apiKey falls back
// to OPENAI_API_KEY. SDK retries are off, so one Complete is one request.
func NewOpenAIProvider(model, apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: model}
}

// Complete returns the first choice. A refusal is an error: it is not an
// explanation of the warning.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (*Response, error) {
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai: %s returned HTTP %d: %w", p.model, apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}

	msg := completion.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("openai: model refused: %s", msg.Refusal)
	}
	return &Response{
		Content:          msg.Content,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
