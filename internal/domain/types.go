// Package domain holds the core value types shared by every stage of the
// arbitrage pipeline: ingestion, state store, spread calculator, opportunity
// finder, display engine and history recorder all operate on these types.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a single venue's top-of-book snapshot for one symbol.
type Quote struct {
	Venue     string
	Symbol    string
	Bid       decimal.Decimal
	BidSize   decimal.Decimal
	Ask       decimal.Decimal
	AskSize   decimal.Decimal
	Timestamp time.Time
}

// Mid returns the arithmetic mid of bid/ask. Callers must check Valid first.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Valid reports whether the quote has a crossable, non-degenerate book.
func (q Quote) Valid() bool {
	if q.Bid.IsZero() || q.Ask.IsZero() {
		return false
	}
	if q.Bid.IsNegative() || q.Ask.IsNegative() {
		return false
	}
	return q.Ask.GreaterThan(q.Bid)
}

// Ticker carries derivatives-specific fields not present on a plain quote:
// funding rate and open interest, sampled independently of the order book.
type Ticker struct {
	Venue         string
	Symbol        string
	FundingRate   decimal.Decimal // period rate, e.g. 8h rate as a fraction
	FundingPeriod time.Duration
	OpenInterest  decimal.Decimal
	MarkPrice     decimal.Decimal
	Timestamp     time.Time
}

// Spread is the computed price/funding difference between two venues for one
// symbol at one instant. Produced by internal/spread, consumed by
// internal/opportunity.
type Spread struct {
	Symbol          string
	VenueBuy        string
	VenueSell       string
	PriceBuy        decimal.Decimal
	PriceSell       decimal.Decimal
	SizeBuy         decimal.Decimal // ask size at the buy venue
	SizeSell        decimal.Decimal // bid size at the sell venue
	SpreadPct       float64         // display-only, derived from decimal inputs
	FundingRateBuy  decimal.Decimal
	FundingRateSell decimal.Decimal
	FundingDiff     decimal.Decimal // sell - buy, period-rate units
	Timestamp       time.Time
}

// OpportunityKey identifies a tracked opportunity across ticks.
type OpportunityKey struct {
	Symbol    string
	VenueBuy  string
	VenueSell string
}

// Opportunity is a tracked, possibly multi-tick arbitrage window between a
// buy venue and a sell venue for one symbol.
type Opportunity struct {
	Key             OpportunityKey
	PriceBuy        decimal.Decimal
	PriceSell       decimal.Decimal
	SizeBuy         decimal.Decimal
	SizeSell        decimal.Decimal
	SpreadPct       float64
	FundingRateBuy  decimal.Decimal
	FundingRateSell decimal.Decimal
	FundingDiff     decimal.Decimal
	FirstSeen       time.Time
	LastSeen        time.Time
}

// Duration reports how long the opportunity has persisted.
func (o Opportunity) Duration() time.Duration {
	return o.LastSeen.Sub(o.FirstSeen)
}

// SampleReducer names how a bucketed sample of a metric is reduced before
// being written to the history store.
type SampleReducer string

const (
	ReduceMax    SampleReducer = "max"
	ReduceMean   SampleReducer = "mean"
	ReduceLatest SampleReducer = "latest"
)

// SampledRecord is one bucketed, reduced observation of an Opportunity,
// matching the spread_history_sampled row schema exactly: bucket start,
// symbol, the two venues, prices/sizes, spread_pct, and both the raw 8h
// funding-rate diff and its annualized percentage. Destined for
// internal/persistence/postgres and the CSV archival sidecar.
type SampledRecord struct {
	BucketStart            time.Time
	Symbol                 string
	VenueBuy               string
	VenueSell              string
	PriceBuy               decimal.Decimal
	PriceSell              decimal.Decimal
	SizeBuy                decimal.Decimal
	SizeSell               decimal.Decimal
	SpreadPct              float64
	FundingRateDiff8h      decimal.Decimal
	FundingRateDiffAnnual  float64
	SampleCount            int
}
