package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/praeco/internal/common"
)

const historyWindow = 190 * 24 * time.Hour // a bit over six months of bars

// EODHDProvider fetches quotes from the EODHD API. Requests are spaced
// by a rate limiter shared across all lookups.
type EODHDProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

var _ Provider = (*EODHDProvider)(nil)

// NewEODHDProvider creates an EODHD-backed market data provider.
func NewEODHDProvider(cfg *common.MarketConfig, logger arbor.ILogger) *EODHDProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://eodhd.com/api"
	}

	interval := common.Duration(cfg.RateLimit, time.Second)

	return &EODHDProvider{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: common.Duration(cfg.RequestTimeout, 30*time.Second)},
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		logger:     logger,
	}
}

// realTimeResponse is the /real-time payload subset we consume.
type realTimeResponse struct {
	Code  string      `json:"code"`
	Close json.Number `json:"close"`
}

// fundamentalsResponse is the /fundamentals payload subset we consume.
type fundamentalsResponse struct {
	Highlights struct {
		MarketCapitalization float64 `json:"MarketCapitalization"`
		PERatio              float64 `json:"PERatio"`
	} `json:"Highlights"`
}

// eodBar is one row of the /eod payload.
type eodBar struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// Lookup fetches price, fundamentals and trailing price history for a
// symbol (TICKER.EXCHANGE format, e.g. "BHP.AU").
func (p *EODHDProvider) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	quote := &Quote{Symbol: symbol}

	var rt realTimeResponse
	if err := p.get(ctx, "/real-time/"+symbol, nil, &rt); err != nil {
		return nil, err
	}
	if price, err := rt.Close.Float64(); err == nil {
		quote.Price = price
	} else {
		// "NA" close means the ticker exists but has no current price
		return nil, fmt.Errorf("%w: no current price for %s", ErrTickerNotFound, symbol)
	}

	// Fundamentals are nice to have; a failure here does not void the
	// quote.
	var fund fundamentalsResponse
	if err := p.get(ctx, "/fundamentals/"+symbol, nil, &fund); err != nil {
		p.logger.Debug().Err(err).Str("symbol", symbol).Msg("Fundamentals unavailable")
	} else {
		quote.MarketCap = fund.Highlights.MarketCapitalization
		quote.PERatio = fund.Highlights.PERatio
	}

	params := url.Values{}
	params.Set("from", time.Now().Add(-historyWindow).Format("2006-01-02"))
	params.Set("period", "d")
	params.Set("order", "a")

	var bars []eodBar
	if err := p.get(ctx, "/eod/"+symbol, params, &bars); err != nil {
		p.logger.Debug().Err(err).Str("symbol", symbol).Msg("Price history unavailable")
	} else {
		for _, bar := range bars {
			if date, err := time.Parse("2006-01-02", bar.Date); err == nil {
				quote.History = append(quote.History, PriceBar{Date: date, Close: bar.Close})
			}
		}
	}

	return quote, nil
}

// get performs a rate-limited GET against the API.
func (p *EODHDProvider) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", p.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", p.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	p.logger.Debug().Str("path", path).Msg("Market API request")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrTickerNotFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("market API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
