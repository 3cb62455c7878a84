package models

import (
	"encoding/json"
	"sort"
)

// MaxTimeSeriesPoints caps a price history to roughly one year of trading days
const MaxTimeSeriesPoints = 252

// NewsTimeLayout is the layout of NewsItem.TimePublished
const NewsTimeLayout = "20060102T150405"

// Quote represents the latest quote for a stock as reported by a provider.
// Numeric fields are zero when the provider omits them.
type Quote struct {
	Symbol           string  `json:"symbol"`
	CurrentPrice     float64 `json:"current_price"`
	Change           float64 `json:"change"`
	ChangePercent    string  `json:"change_percent"`
	Volume           int64   `json:"volume"`
	LatestTradingDay string  `json:"latest_trading_day"`
	PreviousClose    float64 `json:"previous_close"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
}

// CompanyOverview represents company fundamentals. Nil numeric fields mean the
// provider had no value.
type CompanyOverview struct {
	CompanyName      string   `json:"company_name"`
	Sector           string   `json:"sector"`
	Industry         string   `json:"industry"`
	MarketCap        *int64   `json:"market_cap"`
	PERatio          *float64 `json:"pe_ratio"`
	DividendYield    *float64 `json:"dividend_yield"`
	FiftyTwoWeekHigh *float64 `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  *float64 `json:"fifty_two_week_low"`
	Summary          string   `json:"summary"`
}

// TimeSeries holds daily closing prices in ascending date order.
// Dates and Prices always have the same length.
type TimeSeries struct {
	Dates  []string  `json:"dates"`
	Prices []float64 `json:"prices"`
}

// EmptyTimeSeries returns a time series with empty, non-nil slices
func EmptyTimeSeries() TimeSeries {
	return TimeSeries{Dates: []string{}, Prices: []float64{}}
}

// NewTimeSeries builds a series from closing prices keyed by YYYY-MM-DD date.
// Only the most recent MaxTimeSeriesPoints dates are kept, in ascending order.
func NewTimeSeries(closes map[string]float64) TimeSeries {
	dates := make([]string, 0, len(closes))
	for d := range closes {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > MaxTimeSeriesPoints {
		dates = dates[:MaxTimeSeriesPoints]
	}

	ts := TimeSeries{
		Dates:  make([]string, len(dates)),
		Prices: make([]float64, len(dates)),
	}
	for i, d := range dates {
		j := len(dates) - 1 - i
		ts.Dates[j] = d
		ts.Prices[j] = closes[d]
	}
	return ts
}

// Len returns the number of points in the series
func (ts TimeSeries) Len() int {
	return len(ts.Dates)
}

// MarshalJSON always emits both arrays, never null
func (ts TimeSeries) MarshalJSON() ([]byte, error) {
	type alias TimeSeries
	if ts.Dates == nil {
		ts.Dates = []string{}
	}
	if ts.Prices == nil {
		ts.Prices = []float64{}
	}
	return json.Marshal(alias(ts))
}

// NewsItem represents a provider news article with its sentiment
type NewsItem struct {
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	TimePublished  string   `json:"time_published"`
	Summary        string   `json:"summary"`
	Source         string   `json:"source"`
	SentimentScore *float64 `json:"sentiment_score"`
	SentimentLabel string   `json:"sentiment_label"`
}

// SymbolSearchResult is a single symbol match from a provider search
type SymbolSearchResult struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Region      string  `json:"region"`
	Exchange    string  `json:"exchange,omitempty"`
	MarketOpen  string  `json:"market_open"`
	MarketClose string  `json:"market_close"`
	Timezone    string  `json:"timezone"`
	Currency    string  `json:"currency"`
	MatchScore  float64 `json:"match_score"`
}
