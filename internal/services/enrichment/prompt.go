package enrichment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/praeco/internal/models"
)

// promptVersion is recorded on every result so analyses produced by
// different prompt revisions can be told apart.
const promptVersion = "v1"

// buildPrompt assembles the analysis instruction for one disclosure.
func buildPrompt(title, text string, maxChars int) string {
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}

	return fmt.Sprintf(`You are a financial analyst reviewing a regulatory disclosure from an ASX-listed company.

Disclosure title: %s

Disclosure text:
%s

Analyze the disclosure and respond with ONLY a JSON object in this exact format:
{
  "summary": "2-3 sentence summary of the disclosure",
  "sentiment": "bullish, bearish or neutral",
  "key_insights": ["insight 1", "insight 2", "insight 3"],
  "financial_impact": "expected impact on the company's financials, one sentence",
  "confidence_score": 0.0
}

confidence_score is your confidence in the analysis between 0.0 and 1.0.
Do not include any text outside the JSON object.`, title, text)
}

// analysisPayload mirrors the JSON shape the model is instructed to
// return.
type analysisPayload struct {
	Summary         string   `json:"summary"`
	Sentiment       string   `json:"sentiment"`
	KeyInsights     []string `json:"key_insights"`
	FinancialImpact string   `json:"financial_impact"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// parseResponse extracts the analysis from a raw model response.
// Models often wrap JSON in markdown fences; those are stripped before
// unmarshalling.
func parseResponse(raw string) (*analysisPayload, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload analysisPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("model response is not valid JSON: %w", err)
	}

	payload.Sentiment = strings.ToLower(strings.TrimSpace(payload.Sentiment))
	if !models.Sentiment(payload.Sentiment).IsValid() {
		return nil, fmt.Errorf("model returned unknown sentiment %q", payload.Sentiment)
	}
	if payload.ConfidenceScore < 0 || payload.ConfidenceScore > 1 {
		return nil, fmt.Errorf("confidence score %.2f out of range", payload.ConfidenceScore)
	}
	if payload.KeyInsights == nil {
		payload.KeyInsights = []string{}
	}

	return &payload, nil
}
