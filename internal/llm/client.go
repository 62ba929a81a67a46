// Package llm wraps the single call the consolidation pipeline needs: a
// JSON-mode chat completion, plus a token estimator used to keep prompts
// within budget.
package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkoukk/tiktoken-go"
)

// Client is the language-model collaborator the Consolidator drives.
type Client struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
	encoding    *tiktoken.Tiktoken
}

// NewClient builds a Client against an OpenAI-compatible endpoint. The
// endpoint must include the API version path segment (e.g. ".../v1").
func NewClient(endpoint, apiKey, model string, maxTokens int, temperature float64) *Client {
	c := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(endpoint),
	)
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Client{
		client:      c,
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
		encoding:    enc,
	}
}

// CountTokens estimates the token cost of text, used to keep the
// consolidation prompt within budget before it is sent.
func (c *Client) CountTokens(text string) int {
	if c.encoding == nil {
		return len(text) / 4 // rough fallback if the encoder failed to load
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// CompleteJSON performs a single JSON-mode chat completion with the given
// system and user prompts, returning the raw JSON text of the reply.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Ping issues a minimal completion to verify the endpoint and key are
// reachable, used by system_health.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("ping"),
		},
		MaxTokens: openai.Int(1),
	})
	return err
}
