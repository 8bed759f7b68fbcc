package synthesizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// OpenAIChat implements ChatClient on the OpenAI chat completions API.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

// NewOpenAIChat creates a chat client for the given model. The client is
// shared with the embedding layer.
func NewOpenAIChat(client *openai.Client, model string) *OpenAIChat {
	return &OpenAIChat{client: client, model: model}
}

var _ ChatClient = (*OpenAIChat)(nil)

func (c *OpenAIChat) params(system, user string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: openai.ChatModel(c.model),
	}
}

// Complete performs a one-shot completion and returns text plus usage.
func (c *OpenAIChat) Complete(ctx context.Context, system, user string) (string, Usage, string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(system, user))
	if err != nil {
		return "", Usage{}, "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, "", fmt.Errorf("chat completion returned no choices")
	}

	usage := Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}
	return resp.Choices[0].Message.Content, usage, string(resp.Choices[0].FinishReason), nil
}

// Stream performs a streaming completion, invoking onToken per text delta.
// Usage arrives in the final frame when IncludeUsage is set.
func (c *OpenAIChat) Stream(ctx context.Context, system, user string, onToken func(string) error) (string, Usage, string, error) {
	params := c.params(system, user)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var text strings.Builder
	var usage Usage
	finish := ""

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if err := onToken(delta); err != nil {
					return text.String(), usage, finish, err
				}
				text.WriteString(delta)
			}
			if fr := chunk.Choices[0].FinishReason; fr != "" {
				finish = string(fr)
			}
		}
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage = Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
			}
		}
	}
	if err := stream.Err(); err != nil {
		return text.String(), usage, finish, fmt.Errorf("chat stream failed: %w", err)
	}

	return text.String(), usage, finish, nil
}
