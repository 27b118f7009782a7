// Package llm wraps an OpenAI-compatible chat-completion endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Config configures the chat client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Stream      bool
	Timeout     time.Duration
}

// Client calls the language-model service.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	stream      bool
	log         *logrus.Logger
}

// New creates a chat client for the given endpoint.
func New(cfg Config, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		stream:      cfg.Stream,
		log:         log,
	}
}

// Complete sends the prompt (with an optional system prompt) and returns the
// model's reply with any reasoning-trace markup stripped.
func (c *Client) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
	}

	var text string
	var err error
	if c.stream {
		text, err = c.completeStreaming(ctx, req)
	} else {
		text, err = c.completeBlocking(ctx, req)
	}
	if err != nil {
		return "", err
	}
	return StripReasoning(text), nil
}

func (c *Client) completeBlocking(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) completeStreaming(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion stream: %w", err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, rerr := stream.Recv()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("read stream: %w", rerr)
		}
		if len(chunk.Choices) > 0 {
			b.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	return b.String(), nil
}

var reasoningBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes <think>...</think> wrappers that reasoning models
// emit around their answer. An unterminated block (stream cut mid-thought)
// drops everything from the opening tag.
func StripReasoning(s string) string {
	s = reasoningBlock.ReplaceAllString(s, "")
	if i := strings.Index(s, "<think>"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
