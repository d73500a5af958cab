package models

import "time"

// Sentiment is the market-direction classification assigned by the
// enrichment stage.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// IsValid reports whether s is one of the three recognized values.
func (s Sentiment) IsValid() bool {
	switch s {
	case SentimentBullish, SentimentBearish, SentimentNeutral:
		return true
	}
	return false
}

// EnrichmentResult is the persisted analysis of one disclosure. When the
// model could not produce a usable analysis the Fallback flag is set and
// the remaining fields hold the neutral defaults.
type EnrichmentResult struct {
	DisclosureID    string    `json:"disclosure_id" badgerhold:"key"`
	Summary         string    `json:"summary"`
	Sentiment       Sentiment `json:"sentiment"`
	KeyInsights     []string  `json:"key_insights"`
	FinancialImpact string    `json:"financial_impact,omitempty"`
	Confidence      float64   `json:"confidence"` // 0.0 - 1.0

	ModelID        string `json:"model_id,omitempty"`
	PromptVersion  string `json:"prompt_version,omitempty"`
	Fallback       bool   `json:"fallback"`
	FallbackReason string `json:"fallback_reason,omitempty"`

	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// NeutralEnrichment returns the fallback result recorded when analysis
// fails for a disclosure. The pipeline treats it as a completed stage so
// a bad model response never blocks the document.
func NeutralEnrichment(disclosureID, reason string) *EnrichmentResult {
	return &EnrichmentResult{
		DisclosureID:   disclosureID,
		Summary:        "",
		Sentiment:      SentimentNeutral,
		KeyInsights:    []string{},
		Confidence:     0,
		Fallback:       true,
		FallbackReason: reason,
		CreatedAt:      time.Now(),
	}
}
