// Package genai provides GenAI-enhanced operations using the OpenAI API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default client configuration constants
const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = openai.ChatModelGPT4oMini
	// DefaultTimeout bounds a single generation call. A slow generator must
	// not block customer-visible delivery indefinitely.
	DefaultTimeout = 20 * time.Second
)

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the per-call generation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion API for generating replies.
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewClient initializes a new GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	slog.Debug("GenAI client config loaded", "APIKey_set", cfg.APIKey != "", "model", cfg.Model)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = string(DefaultModel)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{client: cli, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// GenerateWithMessages sends the full message sequence to the chat model and
// returns the generated text. The call is bounded by the configured timeout.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		slog.Error("GenAI chat completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	slog.Debug("GenAI chat completion succeeded", "model", c.model, "length", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}
