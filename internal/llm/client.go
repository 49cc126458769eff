// Package llm wraps the model gateway used by synthesis and advisory
// agents. Calls are deterministic for identical inputs from the
// pipeline's point of view because they are memoized through the cache.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/SyncPort-ai/nps-insight-engine/internal/cache"
	"github.com/SyncPort-ai/nps-insight-engine/internal/logging"
)

// Gateway is the capability agents depend on. A nil Gateway is valid:
// agents fall back to deterministic summaries.
type Gateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Cache       *cache.Manager
	Logger      *logging.Logger
}

// Client calls the gateway through go-openai, memoizing responses by a
// content hash of {model, prompt, temperature}.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	cache       *cache.Manager
	logger      *logging.Logger
}

// NewClient creates a gateway client.
func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: float32(opts.Temperature),
		timeout:     timeout,
		cache:       opts.Cache,
		logger:      logger,
	}
}

// Complete returns the model's completion for the prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.cache == nil {
		return c.complete(ctx, prompt)
	}

	key, err := cache.ContentKey("llm", map[string]any{
		"model":       c.model,
		"prompt":      prompt,
		"temperature": c.temperature,
	})
	if err != nil {
		// Key derivation failing must not block the call.
		c.logger.Warn("llm cache key derivation failed", "error", err)
		return c.complete(ctx, prompt)
	}

	out, err := c.cache.Do(key, 0, func() ([]byte, error) {
		text, err := c.complete(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("gateway completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("gateway returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// EstimateTokens gives a rough token count for accounting purposes.
// Four characters per token is a serviceable approximation for mixed
// English and Chinese text.
func EstimateTokens(texts ...string) int {
	var chars int
	for _, t := range texts {
		chars += len(t)
	}
	return chars / 4
}
