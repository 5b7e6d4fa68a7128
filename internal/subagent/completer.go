package subagent

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient is the slice of the OpenAI client workers need, kept as an
// interface for testability.
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAICompleter satisfies Completer with single-shot chat completions.
type OpenAICompleter struct {
	client OpenAIClient
	model  string
}

// NewOpenAICompleter wraps an OpenAI-compatible client.
func NewOpenAICompleter(client OpenAIClient, model string) *OpenAICompleter {
	return &OpenAICompleter{client: client, model: model}
}

// Complete runs one non-streaming completion.
func (c *OpenAICompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
