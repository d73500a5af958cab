package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
)

// ClaudeCompleter backs the enrichment engine with the Anthropic API.
type ClaudeCompleter struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	logger      arbor.ILogger
}

var _ interfaces.Completer = (*ClaudeCompleter)(nil)

// NewClaudeCompleter creates a Claude-backed completer.
func NewClaudeCompleter(cfg *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("claude API key is required")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	logger.Debug().Str("model", cfg.Model).Msg("Claude completer initialized")

	return &ClaudeCompleter{
		client:      &client,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     common.Duration(cfg.Timeout, 2*time.Minute),
		logger:      logger,
	}, nil
}

// Complete sends the prompt and returns the concatenated response text.
func (c *ClaudeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.temperature))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude completion failed: %w", err)
	}

	var builder strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}

	if builder.Len() == 0 {
		return "", fmt.Errorf("claude returned an empty response")
	}

	return builder.String(), nil
}

// ModelID identifies the backing model.
func (c *ClaudeCompleter) ModelID() string {
	return c.model
}
