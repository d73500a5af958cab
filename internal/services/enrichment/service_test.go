package enrichment

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/models"
)

// stubCompleter returns canned responses, optionally failing the first
// N calls.
type stubCompleter struct {
	response  string
	err       error
	failFirst int64
	calls     int64
}

func (c *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	n := atomic.AddInt64(&c.calls, 1)
	if c.err != nil && n <= c.failFirst {
		return "", c.err
	}
	if c.err != nil && c.failFirst == 0 {
		return "", c.err
	}
	return c.response, nil
}

func (c *stubCompleter) ModelID() string { return "stub-model" }

func newTestEnrichment(completer *stubCompleter) *Service {
	return NewService(&common.EnrichmentConfig{
		MaxConcurrent:  2,
		MaxRetries:     2,
		InitialBackoff: "1ms",
		MaxBackoff:     "5ms",
	}, completer, arbor.NewLogger())
}

const goodResponse = `{
  "summary": "The company reported record quarterly production.",
  "sentiment": "Bullish",
  "key_insights": ["Production up 12%", "Costs flat"],
  "financial_impact": "Revenue likely to exceed guidance.",
  "confidence_score": 0.85
}`

func TestEnrichParsesModelResponse(t *testing.T) {
	svc := newTestEnrichment(&stubCompleter{response: goodResponse})

	result := svc.Enrich(context.Background(), "doc1", "Quarterly Report", "body text")

	require.False(t, result.Fallback)
	assert.Equal(t, models.SentimentBullish, result.Sentiment)
	assert.Equal(t, "The company reported record quarterly production.", result.Summary)
	assert.Len(t, result.KeyInsights, 2)
	assert.Equal(t, "Revenue likely to exceed guidance.", result.FinancialImpact)
	assert.InDelta(t, 0.85, result.Confidence, 0.001)
	assert.Equal(t, "stub-model", result.ModelID)
	assert.Equal(t, promptVersion, result.PromptVersion)
}

func TestEnrichStripsMarkdownFences(t *testing.T) {
	svc := newTestEnrichment(&stubCompleter{response: "```json\n" + goodResponse + "\n```"})

	result := svc.Enrich(context.Background(), "doc1", "Quarterly Report", "body text")

	require.False(t, result.Fallback)
	assert.Equal(t, models.SentimentBullish, result.Sentiment)
}

func TestEnrichFallsBackOnBadOutput(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "I'm sorry, I can't analyze this document."},
		{"unknown sentiment", `{"summary":"x","sentiment":"positive","key_insights":[],"confidence_score":0.5}`},
		{"confidence out of range", `{"summary":"x","sentiment":"neutral","key_insights":[],"confidence_score":1.7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestEnrichment(&stubCompleter{response: tt.response})

			result := svc.Enrich(context.Background(), "doc1", "Title", "text")

			require.True(t, result.Fallback)
			assert.Equal(t, models.SentimentNeutral, result.Sentiment)
			assert.Empty(t, result.Summary)
			assert.Zero(t, result.Confidence)
			assert.NotEmpty(t, result.FallbackReason)
		})
	}
}

func TestEnrichFallsBackOnModelError(t *testing.T) {
	svc := newTestEnrichment(&stubCompleter{err: errors.New("connection reset")})

	result := svc.Enrich(context.Background(), "doc1", "Title", "text")

	require.True(t, result.Fallback)
	assert.Equal(t, models.SentimentNeutral, result.Sentiment)
}

func TestEnrichRetriesRateLimit(t *testing.T) {
	completer := &stubCompleter{
		response:  goodResponse,
		err:       errors.New("Error 429: RESOURCE_EXHAUSTED, please slow down"),
		failFirst: 2,
	}
	svc := newTestEnrichment(completer)

	result := svc.Enrich(context.Background(), "doc1", "Title", "text")

	require.False(t, result.Fallback, "should succeed after rate limit retries")
	assert.Equal(t, int64(3), atomic.LoadInt64(&completer.calls))
}

func TestEnrichExhaustsRateLimitRetries(t *testing.T) {
	completer := &stubCompleter{
		err:       errors.New("Error 429: quota exceeded"),
		failFirst: 100,
	}
	svc := newTestEnrichment(completer)

	result := svc.Enrich(context.Background(), "doc1", "Title", "text")

	require.True(t, result.Fallback)
	// initial attempt plus MaxRetries
	assert.Equal(t, int64(3), atomic.LoadInt64(&completer.calls))
}

func TestBuildPromptTruncatesDocument(t *testing.T) {
	long := make([]byte, 20000)
	for i := range long {
		long[i] = 'a'
	}

	prompt := buildPrompt("Title", string(long), 1000)
	assert.Less(t, len(prompt), 3000)
}

func TestParseResponseNormalizesSentiment(t *testing.T) {
	payload, err := parseResponse(`{"summary":"s","sentiment":"  BEARISH ","key_insights":null,"confidence_score":0.4}`)
	require.NoError(t, err)
	assert.Equal(t, "bearish", payload.Sentiment)
	assert.NotNil(t, payload.KeyInsights)
}
