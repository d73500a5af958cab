package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
)

// stubProvider returns a canned quote, optionally failing the first N
// lookups.
type stubProvider struct {
	quote     *Quote
	err       error
	failFirst int
	calls     int
}

func (p *stubProvider) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	p.calls++
	if p.err != nil && (p.failFirst == 0 || p.calls <= p.failFirst) {
		return nil, p.err
	}
	return p.quote, nil
}

func newTestService(provider Provider) *Service {
	return NewService(&common.MarketConfig{
		SymbolSuffix:  ".AU",
		RetryAttempts: 3,
		RetryDelay:    "1ms",
	}, provider, arbor.NewLogger())
}

func historyQuote(price float64) *Quote {
	now := time.Now()
	return &Quote{
		Symbol:    "BHP.AU",
		Price:     price,
		MarketCap: 150e9,
		PERatio:   12.5,
		History: []PriceBar{
			{Date: now.AddDate(0, -7, 0), Close: 40},
			{Date: now.AddDate(0, -6, -1), Close: 42},
			{Date: now.AddDate(0, -3, -1), Close: 48},
			{Date: now.AddDate(0, -1, -1), Close: 50},
			{Date: now.AddDate(0, 0, -1), Close: price},
		},
	}
}

func TestFetchMetricsComputesPerformance(t *testing.T) {
	svc := newTestService(&stubProvider{quote: historyQuote(55)})

	outcome := svc.FetchMetrics(context.Background(), "doc1", "bhp")

	require.True(t, outcome.Available)
	snapshot := outcome.Snapshot
	require.NotNil(t, snapshot)

	assert.Equal(t, "BHP", snapshot.IssuerCode)
	assert.Equal(t, "BHP.AU", snapshot.Symbol)
	assert.Equal(t, 55.0, snapshot.Price)
	assert.Equal(t, 150e9, snapshot.MarketCap)

	require.NotNil(t, snapshot.PerfOneMonth)
	assert.InDelta(t, (55.0-50.0)/50.0*100, *snapshot.PerfOneMonth, 0.001)
	require.NotNil(t, snapshot.PerfThreeMonth)
	assert.InDelta(t, (55.0-48.0)/48.0*100, *snapshot.PerfThreeMonth, 0.001)
	require.NotNil(t, snapshot.PerfSixMonth)
	assert.InDelta(t, (55.0-42.0)/42.0*100, *snapshot.PerfSixMonth, 0.001)
}

func TestFetchMetricsShortHistory(t *testing.T) {
	now := time.Now()
	quote := &Quote{
		Symbol: "NEW.AU",
		Price:  2.5,
		History: []PriceBar{
			{Date: now.AddDate(0, 0, -10), Close: 2.0},
		},
	}
	svc := newTestService(&stubProvider{quote: quote})

	outcome := svc.FetchMetrics(context.Background(), "doc1", "NEW")

	require.True(t, outcome.Available)
	assert.Nil(t, outcome.Snapshot.PerfOneMonth,
		"windows the history cannot cover stay unset")
	assert.Nil(t, outcome.Snapshot.PerfThreeMonth)
	assert.Nil(t, outcome.Snapshot.PerfSixMonth)
}

func TestFetchMetricsTickerNotFound(t *testing.T) {
	provider := &stubProvider{err: ErrTickerNotFound}
	svc := newTestService(provider)

	outcome := svc.FetchMetrics(context.Background(), "doc1", "XYZ")

	assert.False(t, outcome.Available)
	assert.Contains(t, outcome.Reason, "ticker not found")
	assert.Equal(t, 1, provider.calls, "unknown tickers are not retried")
}

func TestFetchMetricsRetriesTransientErrors(t *testing.T) {
	provider := &stubProvider{
		quote:     historyQuote(10),
		err:       errors.New("connection refused"),
		failFirst: 2,
	}
	svc := newTestService(provider)

	outcome := svc.FetchMetrics(context.Background(), "doc1", "BHP")

	require.True(t, outcome.Available)
	assert.Equal(t, 3, provider.calls)
}

func TestFetchMetricsExhaustsRetries(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused"), failFirst: 100}
	svc := newTestService(provider)

	outcome := svc.FetchMetrics(context.Background(), "doc1", "BHP")

	assert.False(t, outcome.Available)
	assert.Contains(t, outcome.Reason, "connection refused")
	assert.Equal(t, 3, provider.calls)
}
