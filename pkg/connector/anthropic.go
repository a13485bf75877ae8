package connector

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5"
	defaultAnthropicMaxTokens = 4096
)

// AnthropicConnector talks to the Anthropic messages API.
type AnthropicConnector struct {
	client anthropic.Client
}

// NewAnthropicConnector creates an Anthropic connector.
func NewAnthropicConnector(apiKey string) *AnthropicConnector {
	return &AnthropicConnector{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name.
func (c *AnthropicConnector) Provider() string {
	return "anthropic"
}

// Complete sends a messages request and waits for the full answer.
func (c *AnthropicConnector) Complete(ctx context.Context, request Request) (*Response, error) {
	response, err := c.client.Messages.New(ctx, c.buildParams(request))
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}

	content := ""
	for _, block := range response.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}

	return &Response{
		Content: content,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

// Stream sends a messages request and forwards text deltas to the handler as
// they arrive. The accumulated response is returned once the stream ends.
func (c *AnthropicConnector) Stream(ctx context.Context, request Request, handler StreamHandler) (*Response, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.buildParams(request))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("anthropic stream accumulate failed: %w", err)
		}

		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				if err := handler(StreamChunk{Text: text.Text}); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream failed: %w", err)
	}

	if err := handler(StreamChunk{Done: true}); err != nil {
		return nil, err
	}

	content := ""
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}

	return &Response{
		Content: content,
		Usage: &TokenUsage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

func (c *AnthropicConnector) buildParams(request Request) anthropic.MessageNewParams {
	system, turns := splitSystem(request.Messages)

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	model := request.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if request.Temperature > 0 {
		params.Temperature = anthropic.Float(request.Temperature)
	}

	return params
}
