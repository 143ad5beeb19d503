package assist

import (
	"context"
	"strings"
)

// NewProvider builds the backend named by cfg.Provider, routing the API key
// and base URL to it. Identifiers without a dedicated backend are served by
// the OpenAI client, so any OpenAI-compatible gateway works given APIBase.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg.Model, cfg.APIKey, cfg.APIBase)
	case ProviderOllama:
		return NewOllamaProvider(cfg.Model, cfg.APIBase)
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.Model, cfg.APIKey, cfg.APIBase)
	default:
		return NewOpenAIProvider(cfg.Model, cfg.APIKey, cfg.APIBase), nil
	}
}
