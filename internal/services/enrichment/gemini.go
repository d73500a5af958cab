package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
)

// GeminiCompleter backs the enrichment engine with the Google Gemini
// API.
type GeminiCompleter struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      arbor.ILogger
}

var _ interfaces.Completer = (*GeminiCompleter)(nil)

// NewGeminiCompleter creates a Gemini-backed completer.
func NewGeminiCompleter(ctx context.Context, cfg *common.GeminiConfig, logger arbor.ILogger) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger.Debug().Str("model", cfg.Model).Msg("Gemini completer initialized")

	return &GeminiCompleter{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     common.Duration(cfg.Timeout, 2*time.Minute),
		logger:      logger,
	}, nil
}

// Complete sends the prompt and returns the concatenated response text.
func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}

	var builder strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				builder.WriteString(part.Text)
			}
		}
	}

	if builder.Len() == 0 {
		return "", fmt.Errorf("gemini returned an empty response")
	}

	return builder.String(), nil
}

// ModelID identifies the backing model.
func (g *GeminiCompleter) ModelID() string {
	return g.model
}
