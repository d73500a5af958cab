package market

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/models"
)

// Service resolves market metrics for issuers. Transient provider
// failures are retried; unavailable data is an explicit recorded
// outcome, never an error that fails the document.
type Service struct {
	provider      Provider
	symbolSuffix  string
	retryAttempts int
	retryDelay    time.Duration
	logger        arbor.ILogger
}

// NewService creates a market data service from configuration.
func NewService(cfg *common.MarketConfig, provider Provider, logger arbor.ILogger) *Service {
	retryAttempts := cfg.RetryAttempts
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &Service{
		provider:      provider,
		symbolSuffix:  cfg.SymbolSuffix,
		retryAttempts: retryAttempts,
		retryDelay:    common.Duration(cfg.RetryDelay, 5*time.Second),
		logger:        logger,
	}
}

// Symbol maps an issuer code to the provider's symbol format.
func (s *Service) Symbol(issuerCode string) string {
	return strings.ToUpper(issuerCode) + s.symbolSuffix
}

// FetchMetrics resolves the market snapshot for one disclosure. An
// unknown ticker or an exhausted retry budget yields an unavailable
// outcome with the reason recorded.
func (s *Service) FetchMetrics(ctx context.Context, disclosureID, issuerCode string) models.MarketOutcome {
	symbol := s.Symbol(issuerCode)

	var quote *Quote
	var err error
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		quote, err = s.provider.Lookup(ctx, symbol)
		if err == nil {
			break
		}
		if errors.Is(err, ErrTickerNotFound) {
			s.logger.Debug().Str("symbol", symbol).Msg("Ticker not listed with provider")
			return models.MarketUnavailable("ticker not found: " + symbol)
		}
		if attempt == s.retryAttempts {
			break
		}

		s.logger.Warn().
			Err(err).
			Str("symbol", symbol).
			Int("attempt", attempt).
			Int("max_attempts", s.retryAttempts).
			Msg("Market data fetch failed, retrying")

		select {
		case <-ctx.Done():
			return models.MarketUnavailable("canceled: " + ctx.Err().Error())
		case <-time.After(s.retryDelay):
		}
	}
	if err != nil {
		return models.MarketUnavailable(err.Error())
	}

	snapshot := &models.MarketSnapshot{
		DisclosureID: disclosureID,
		IssuerCode:   strings.ToUpper(issuerCode),
		Symbol:       symbol,
		Price:        quote.Price,
		MarketCap:    quote.MarketCap,
		PERatio:      quote.PERatio,
		FetchedAt:    time.Now(),
	}

	now := time.Now()
	snapshot.PerfOneMonth = performance(quote, now.AddDate(0, -1, 0))
	snapshot.PerfThreeMonth = performance(quote, now.AddDate(0, -3, 0))
	snapshot.PerfSixMonth = performance(quote, now.AddDate(0, -6, 0))

	s.logger.Info().
		Str("symbol", symbol).
		Float64("price", quote.Price).
		Msg("Market metrics fetched")

	return models.MarketOutcome{Available: true, Snapshot: snapshot}
}

// performance returns the percentage change between the last close at
// or before target and the quote's current price. Nil when the history
// does not reach back far enough.
func performance(quote *Quote, target time.Time) *float64 {
	if quote.Price == 0 || len(quote.History) == 0 {
		return nil
	}

	var base *PriceBar
	for i := range quote.History {
		bar := &quote.History[i]
		if bar.Date.After(target) {
			break
		}
		base = bar
	}
	if base == nil || base.Close == 0 {
		return nil
	}

	pct := (quote.Price - base.Close) / base.Close * 100
	return &pct
}
