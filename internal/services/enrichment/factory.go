package enrichment

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
)

// NewCompleter creates the configured completion backend.
func NewCompleter(ctx context.Context, cfg *common.EnrichmentConfig, logger arbor.ILogger) (interfaces.Completer, error) {
	switch cfg.Provider {
	case common.LLMProviderGemini:
		return NewGeminiCompleter(ctx, &cfg.Gemini, logger)
	case common.LLMProviderClaude:
		return NewClaudeCompleter(&cfg.Claude, logger)
	default:
		return nil, fmt.Errorf("unknown enrichment provider: %s", cfg.Provider)
	}
}
