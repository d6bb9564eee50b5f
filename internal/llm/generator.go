// Package llm wraps the chat-completion backends behind a narrow Generator interface.
package llm

import "context"

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Options tunes a single generation call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Response is the model output.
type Response struct {
	Text         string
	FinishReason string
}

// Generator produces a completion for a message list.
// Implementations return *Error for provider failures.
type Generator interface {
	Generate(ctx context.Context, messages []Message, opts Options) (*Response, error)
}

// UserMessage is a shorthand for a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage is a shorthand for an assistant turn.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemMessage is a shorthand for a system turn.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}
