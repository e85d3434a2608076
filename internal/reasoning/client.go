package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var errEmptyCompletion = errors.New("empty completion")

// Config holds configuration for the reasoning client.
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
}

// DefaultConfig returns default reasoning client configuration.
func DefaultConfig() Config {
	return Config{
		Model:          "gpt-4o-mini",
		Temperature:    0.2,
		MaxTokens:      4096,
		RequestTimeout: 120 * time.Second,
	}
}

// Client invokes an OpenAI-compatible chat completion endpoint.
type Client struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewClient builds a reasoning client from cfg. The API key is required;
// BaseURL is optional and allows pointing at any OpenAI-compatible endpoint.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("reasoning API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create reasoning model: %w", err)
	}

	logger.Info("Reasoning client initialized", "model", cfg.Model, "base_url", cfg.BaseURL)

	return &Client{
		model:       llm,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.RequestTimeout,
		logger:      logger,
	}, nil
}

// Invoke sends a prompt and returns the trimmed completion text.
func (c *Client) Invoke(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("reasoning request failed: %w", err)
	}

	completion = strings.TrimSpace(completion)
	if completion == "" {
		return "", errEmptyCompletion
	}
	return completion, nil
}
