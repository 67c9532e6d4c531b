package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	Model            string // model that served the call
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIServiceAdapter is the port for the interpretation model.
type AIServiceAdapter interface {
	ListModels(ctx context.Context) ([]string, error)

	// ChatWithUsage returns assistant text + usage as reported by the provider.
	// Providers that report no usage return a best-effort estimate.
	ChatWithUsage(ctx context.Context, model string, messages []Message) (string, Usage, error)
}
