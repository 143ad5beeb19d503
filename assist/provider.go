package assist

import "context"

// Role identifies the sender of a message in the chat conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the chat conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Response holds the model's reply along with token usage metadata.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Provider is the interface for model backends. Implementations must be safe
// for concurrent use and must not retry failed requests.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (*Response, error)
}

// Provider identifiers with a dedicated backend. Any other identifier is
// treated as an OpenAI-compatible endpoint.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)
