// Package llm abstracts the language model behind the agents. The
// pipeline only ever needs one operation: turn a conversation into a
// completion with a token count.
package llm

import "context"

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is a completion plus the tokens it cost, which the
// orchestrator charges against the run budget.
type Response struct {
	Content    string         `json:"content"`
	TokensUsed int            `json:"tokens_used"`
	Model      string         `json:"model,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Client generates completions. Implementations must be safe for
// concurrent use.
type Client interface {
	Generate(ctx context.Context, messages []Message, systemPrompt string) (Response, error)
}
