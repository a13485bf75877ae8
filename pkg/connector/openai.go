package connector

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIConnector talks to the OpenAI chat completions API.
type OpenAIConnector struct {
	client openai.Client
}

// NewOpenAIConnector creates an OpenAI connector.
func NewOpenAIConnector(apiKey string) *OpenAIConnector {
	return &OpenAIConnector{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name.
func (c *OpenAIConnector) Provider() string {
	return "openai"
}

// Complete sends a completion request and waits for the full answer.
func (c *OpenAIConnector) Complete(ctx context.Context, request Request) (*Response, error) {
	response, err := c.client.Chat.Completions.New(ctx, c.buildParams(request))
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return &Response{
		Content: response.Choices[0].Message.Content,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}

// Stream sends a completion request and forwards chunks to the handler as
// they arrive. The accumulated response is returned once the stream ends.
func (c *OpenAIConnector) Stream(ctx context.Context, request Request, handler StreamHandler) (*Response, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.buildParams(request))
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if err := handler(StreamChunk{Text: chunk.Choices[0].Delta.Content}); err != nil {
				return nil, err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai stream failed: %w", err)
	}

	if err := handler(StreamChunk{Done: true}); err != nil {
		return nil, err
	}

	content := ""
	if len(acc.Choices) > 0 {
		content = acc.Choices[0].Message.Content
	}

	return &Response{
		Content: content,
		Usage: &TokenUsage{
			InputTokens:  int(acc.Usage.PromptTokens),
			OutputTokens: int(acc.Usage.CompletionTokens),
		},
	}, nil
}

func (c *OpenAIConnector) buildParams(request Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(request.Messages))
	for _, msg := range request.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	model := request.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}

	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}

	return params
}
