// Package ai wraps the chat-completion API as an opaque text transformer:
// one synchronous call per request, no retry, no streaming.
package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
}

type Client struct {
	client *openai.Client
	cfg    Config
}

func New(cfg Config) *Client {
	return &Client{client: openai.NewClient(cfg.APIKey), cfg: cfg}
}

// Expand lengthens the passage while preserving its voice.
func (c *Client) Expand(ctx context.Context, text, amount, option string) (string, error) {
	system, user := expandPrompt(text, amount, option)
	return c.complete(ctx, system, user, 0.7)
}

// Shorten condenses the passage without losing meaning.
func (c *Client) Shorten(ctx context.Context, text, option string) (string, error) {
	system, user := shortenPrompt(text, option)
	return c.complete(ctx, system, user, 0.4)
}

func (c *Client) complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func expandPrompt(text, amount, option string) (system, user string) {
	system = "You are a writing assistant for an author. Expand the passage you are given while preserving its voice, tense, and point of view. Return only the expanded passage with no commentary."
	var b strings.Builder
	fmt.Fprintf(&b, "Expand the following passage by %s.", amount)
	if option != "" {
		fmt.Fprintf(&b, " Style guidance: %s.", option)
	}
	b.WriteString("\n\n")
	b.WriteString(text)
	return system, b.String()
}

func shortenPrompt(text, option string) (system, user string) {
	system = "You are a writing assistant for an author. Shorten the passage you are given without losing its meaning, voice, or point of view. Return only the shortened passage with no commentary."
	var b strings.Builder
	b.WriteString("Shorten the following passage.")
	if option != "" {
		fmt.Fprintf(&b, " Style guidance: %s.", option)
	}
	b.WriteString("\n\n")
	b.WriteString(text)
	return system, b.String()
}
