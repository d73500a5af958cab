// Package enrichment analyzes converted disclosure text with an LLM,
// producing a summary, sentiment, key insights and a confidence score.
package enrichment

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
)

// Service runs LLM analysis over disclosure text. Analysis failures
// never propagate as errors: a disclosure that cannot be analyzed gets
// the neutral fallback result so the pipeline keeps moving.
type Service struct {
	completer interfaces.Completer
	sem       *semaphore.Weighted
	policy    retryPolicy
	maxChars  int
	logger    arbor.ILogger
}

// NewService creates an enrichment service from configuration.
func NewService(cfg *common.EnrichmentConfig, completer interfaces.Completer, logger arbor.ILogger) *Service {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	policy := defaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	if d := common.Duration(cfg.InitialBackoff, 0); d > 0 {
		policy.InitialBackoff = d
	}
	if d := common.Duration(cfg.MaxBackoff, 0); d > 0 {
		policy.MaxBackoff = d
	}

	return &Service{
		completer: completer,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		policy:    policy,
		maxChars:  cfg.MaxDocumentChars,
		logger:    logger,
	}
}

// Enrich analyzes one disclosure. The returned result always has a
// valid sentiment; when the model fails or returns garbage the neutral
// fallback is returned with the failure reason recorded.
func (s *Service) Enrich(ctx context.Context, disclosureID, title, text string) *models.EnrichmentResult {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return models.NeutralEnrichment(disclosureID, "canceled before analysis: "+err.Error())
	}
	defer s.sem.Release(1)

	start := time.Now()
	prompt := buildPrompt(title, text, s.maxChars)

	raw, err := s.completeWithRetry(ctx, prompt)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("disclosure_id", disclosureID).
			Msg("Analysis failed, recording neutral fallback")
		result := models.NeutralEnrichment(disclosureID, err.Error())
		result.ModelID = s.completer.ModelID()
		result.PromptVersion = promptVersion
		result.LatencyMS = time.Since(start).Milliseconds()
		return result
	}

	payload, err := parseResponse(raw)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("disclosure_id", disclosureID).
			Int("response_chars", len(raw)).
			Msg("Model response unusable, recording neutral fallback")
		result := models.NeutralEnrichment(disclosureID, err.Error())
		result.ModelID = s.completer.ModelID()
		result.PromptVersion = promptVersion
		result.LatencyMS = time.Since(start).Milliseconds()
		return result
	}

	s.logger.Info().
		Str("disclosure_id", disclosureID).
		Str("sentiment", payload.Sentiment).
		Float64("confidence", payload.ConfidenceScore).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("Disclosure enriched")

	return &models.EnrichmentResult{
		DisclosureID:    disclosureID,
		Summary:         payload.Summary,
		Sentiment:       models.Sentiment(payload.Sentiment),
		KeyInsights:     payload.KeyInsights,
		FinancialImpact: payload.FinancialImpact,
		Confidence:      payload.ConfidenceScore,
		ModelID:         s.completer.ModelID(),
		PromptVersion:   promptVersion,
		LatencyMS:       time.Since(start).Milliseconds(),
		CreatedAt:       time.Now(),
	}
}

// completeWithRetry calls the completer, backing off and retrying when
// the provider reports quota exhaustion. Other errors fail immediately.
func (s *Service) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= s.policy.MaxRetries; attempt++ {
		raw, err := s.completer.Complete(ctx, prompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if !isResourceExhausted(err) {
			return "", err
		}

		if attempt == s.policy.MaxRetries {
			break
		}

		wait := s.policy.backoff(attempt, extractRetryDelay(err))
		s.logger.Warn().
			Int("attempt", attempt+1).
			Int("max_retries", s.policy.MaxRetries).
			Str("backoff", wait.String()).
			Msg("Model rate limited, backing off")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}

	return "", lastErr
}
