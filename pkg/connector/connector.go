// Package connector speaks to language-model providers. It consumes the
// processed messages the orchestration engine produced; it knows nothing
// about tools or placeholders.
package connector

import (
	"context"
	"fmt"
)

// Message is one role-tagged entry of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request contains the parameters for one completion call.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a completed (non-streaming) answer.
type Response struct {
	Content string      `json:"content"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}

// StreamChunk is one incremental piece of a streaming answer.
type StreamChunk struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// StreamHandler receives chunks as they arrive. Returning an error stops the
// stream.
type StreamHandler func(chunk StreamChunk) error

// Connector is the language-model interface the completion pipeline uses.
type Connector interface {
	Complete(ctx context.Context, request Request) (*Response, error)
	Stream(ctx context.Context, request Request, handler StreamHandler) (*Response, error)
	Provider() string
}

// New creates a connector for the named provider.
func New(provider, apiKey string) (Connector, error) {
	switch provider {
	case "openai":
		return NewOpenAIConnector(apiKey), nil
	case "anthropic":
		return NewAnthropicConnector(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// splitSystem separates system messages (joined into one prompt) from the
// conversational turns; Anthropic takes the system prompt out of band.
func splitSystem(messages []Message) (string, []Message) {
	system := ""
	turns := make([]Message, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		turns = append(turns, msg)
	}

	return system, turns
}
