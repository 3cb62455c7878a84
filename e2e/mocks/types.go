package mocks

import (
	"encoding/json"
	"strings"
)

// Stock is the fixture behind every Alpha Vantage endpoint for one symbol.
// A stock without a Name has no company overview.
type Stock struct {
	Symbol           string
	Name             string
	Description      string
	Exchange         string
	Currency         string
	Sector           string
	Industry         string
	MarketCap        string
	PERatio          string
	DividendYield    string
	Price            float64
	Open             float64
	High             float64
	Low              float64
	PreviousClose    float64
	Volume           int64
	LatestTradingDay string
	// Closes maps YYYY-MM-DD to the closing price
	Closes map[string]float64
	News   []NewsArticle
}

// NewsArticle is one NEWS_SENTIMENT feed entry.
type NewsArticle struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	TimePublished  string  `json:"time_published"`
	Summary        string  `json:"summary"`
	Source         string  `json:"source"`
	SentimentLabel string  `json:"overall_sentiment_label"`
	SentimentScore float64 `json:"overall_sentiment_score"`
}

// SearchMatch is one SYMBOL_SEARCH bestMatches entry.
type SearchMatch struct {
	Symbol      string `json:"1. symbol"`
	Name        string `json:"2. name"`
	Type        string `json:"3. type"`
	Region      string `json:"4. region"`
	MarketOpen  string `json:"5. marketOpen"`
	MarketClose string `json:"6. marketClose"`
	Timezone    string `json:"7. timezone"`
	Currency    string `json:"8. currency"`
	MatchScore  string `json:"9. matchScore"`
}

// ChatRequest is the subset of an OpenAI chat completion request the mock reads.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int64        `json:"max_tokens,omitempty"`
}

// ChatMessage is one chat turn.
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Text returns the message content, which is either a plain string or a
// list of typed parts.
func (m ChatMessage) Text() string {
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
