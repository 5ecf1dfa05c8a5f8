package domain

import (
	"context"
	"time"
)

// Role names the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation. An assistant turn may request tool
// calls. A tool turn answers the call named by ToolCalls[0].ID.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Name      string     `json:"name,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	IsError   bool       `json:"is_error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// LLMProvider is a chat-completion backend.
type LLMProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name is the configured provider name, used in logs and metrics.
	Name() string
}

// ChatRequest is one completion call. Zero Model and MaxTokens take the
// provider's configured values.
type ChatRequest struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage counts the tokens billed for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LatestUserMessage is the text of the last user turn in history, or "".
func LatestUserMessage(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if m := history[i]; m.Role == RoleUser {
			return m.Content
		}
	}
	return ""
}

// CloneMessages copies history into a fresh backing array.
func CloneMessages(history []Message) []Message {
	return append(make([]Message, 0, len(history)), history...)
}
