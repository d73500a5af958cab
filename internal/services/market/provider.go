// Package market fetches issuer price and performance data at
// disclosure time.
package market

import (
	"context"
	"errors"
	"time"
)

// ErrTickerNotFound indicates the provider has no listing for the
// symbol. This is a final answer, not a transient failure: the fetch
// is recorded as unavailable without retrying.
var ErrTickerNotFound = errors.New("ticker not found")

// PriceBar is one day of closing price history.
type PriceBar struct {
	Date  time.Time
	Close float64
}

// Quote is a provider's view of an issuer at fetch time. History is
// ordered oldest first and spans roughly six months when available.
type Quote struct {
	Symbol    string
	Price     float64
	MarketCap float64
	PERatio   float64
	History   []PriceBar
}

// Provider looks up market data for a symbol. Implementations wrap a
// specific data vendor.
type Provider interface {
	Lookup(ctx context.Context, symbol string) (*Quote, error)
}
