package models

import "time"

// MarketSnapshot captures the issuer's market state at the time a
// disclosure was processed. Performance fields are percentage changes
// over the trailing window and are nil when the provider's history did
// not cover the window.
type MarketSnapshot struct {
	DisclosureID string  `json:"disclosure_id" badgerhold:"key"`
	IssuerCode   string  `json:"issuer_code" badgerhold:"index"`
	Symbol       string  `json:"symbol"` // provider symbol, e.g. "BHP.AU"
	Price        float64 `json:"price"`
	MarketCap    float64 `json:"market_cap,omitempty"`
	PERatio      float64 `json:"pe_ratio,omitempty"`

	PerfOneMonth   *float64 `json:"perf_one_month,omitempty"`
	PerfThreeMonth *float64 `json:"perf_three_month,omitempty"`
	PerfSixMonth   *float64 `json:"perf_six_month,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// MarketOutcome is the result of a market data fetch. Unavailable data
// is an explicit, recorded state rather than an error: the snapshot is
// nil and Reason says why.
type MarketOutcome struct {
	Available bool            `json:"available"`
	Snapshot  *MarketSnapshot `json:"snapshot,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// MarketUnavailable returns the outcome recorded when no market data
// could be obtained for an issuer.
func MarketUnavailable(reason string) MarketOutcome {
	return MarketOutcome{Available: false, Reason: reason}
}
