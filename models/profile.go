package models

import "encoding/json"

// Display limits applied to aggregated responses
const (
	ProfileNewsLimit    = 5
	ContextNewsLimit    = 3
	SearchLimit         = 10
	RecommendationLimit = 10
)

// StockProfile is the canonical aggregate returned for a symbol regardless of
// which provider produced it. Every key is always serialized.
type StockProfile struct {
	Symbol           string            `json:"symbol"`
	CurrentPrice     float64           `json:"current_price"`
	CompanyName      string            `json:"company_name"`
	MarketCap        *int64            `json:"market_cap"`
	PERatio          *float64          `json:"pe_ratio"`
	DividendYield    *float64          `json:"dividend_yield"`
	Volume           int64             `json:"volume"`
	DayHigh          float64           `json:"day_high"`
	DayLow           float64           `json:"day_low"`
	FiftyTwoWeekHigh *float64          `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  *float64          `json:"fifty_two_week_low"`
	Sector           string            `json:"sector"`
	Industry         string            `json:"industry"`
	Summary          string            `json:"summary"`
	News             []ProfileNewsItem `json:"news"`
	Recommendations  []Recommendation  `json:"recommendations"`
	PriceHistory     TimeSeries        `json:"price_history"`
	Change           float64           `json:"change"`
	ChangePercent    string            `json:"change_percent"`
	PreviousClose    float64           `json:"previous_close"`
	Open             float64           `json:"open"`
}

// MarshalJSON emits empty lists instead of null
func (p StockProfile) MarshalJSON() ([]byte, error) {
	type alias StockProfile
	if p.News == nil {
		p.News = []ProfileNewsItem{}
	}
	if p.Recommendations == nil {
		p.Recommendations = []Recommendation{}
	}
	return json.Marshal(alias(p))
}

// ProfileNewsItem is the news shape embedded in a StockProfile.
// ProviderPublishTime is a unix timestamp in seconds.
type ProfileNewsItem struct {
	Title               string `json:"title"`
	Link                string `json:"link"`
	Publisher           string `json:"publisher"`
	ProviderPublishTime int64  `json:"providerPublishTime"`
	Summary             string `json:"summary"`
}

// SearchResult is a search match as returned to API callers
type SearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Exchange string `json:"exchange"`
}

// StockContext is the reduced stock data attached to a natural-language query
type StockContext struct {
	Symbol   string           `json:"symbol"`
	Quote    *Quote           `json:"quote"`
	Overview *CompanyOverview `json:"overview"`
	News     []NewsItem       `json:"news"`
}

// NLPResponse is the result of answering a natural-language query
type NLPResponse struct {
	Response  string        `json:"response"`
	StockData *StockContext `json:"stock_data"`
	Query     string        `json:"query"`
	Success   bool          `json:"success"`
}
