// Package llm provides the answer generation client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion indicates the provider returned no choices.
var ErrEmptyCompletion = errors.New("provider returned empty completion")

// Client generates answers through an OpenAI-compatible chat completion API.
// No streaming and no retries: the pipeline must not consume quota unless a
// final answer was obtained, so one request either yields an answer or fails.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates a generation client.
// baseURL may be empty to use the provider default; any OpenAI-compatible
// endpoint works.
func NewClient(apiKey, baseURL, model string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
	}
}

// Generate sends the fully composed prompt and returns the answer text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}
