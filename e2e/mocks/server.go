// Package mocks provides an HTTP mock of the upstream APIs used in E2E tests:
// Alpha Vantage and the OpenAI chat completions endpoint.
package mocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	alphaVantagePath = "/query"
	openAIPrefix     = "/v1"

	throttleNote = "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute and 500 calls per day."
)

// MockServer provides configurable mock responses for all external APIs.
type MockServer struct {
	mu     sync.RWMutex
	server *httptest.Server

	// Response configurations
	stocks           map[string]Stock
	extractedSymbols string
	analysisReply    string

	// Error injection
	throttleRemaining int
	alphaVantageError int
	chatError         bool

	// Request tracking for assertions
	requestLog []RequestLog
}

// RequestLog records incoming requests for test assertions.
type RequestLog struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// NewMockServer creates a new mock server with default responses.
func NewMockServer() *MockServer {
	m := &MockServer{
		stocks:     make(map[string]Stock),
		requestLog: make([]RequestLog, 0),
	}
	m.setDefaults()
	m.server = httptest.NewServer(m)
	return m
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// AlphaVantageURL returns the value for ALPHA_VANTAGE_BASE_URL.
func (m *MockServer) AlphaVantageURL() string {
	return m.server.URL + alphaVantagePath
}

// OpenAIURL returns the value for OPENAI_BASE_URL.
func (m *MockServer) OpenAIURL() string {
	return m.server.URL + openAIPrefix + "/"
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// ServeHTTP implements http.Handler to route requests to appropriate mock handlers.
func (m *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	m.mu.Lock()
	m.requestLog = append(m.requestLog, RequestLog{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   string(body),
	})
	m.mu.Unlock()

	path := r.URL.Path

	switch {
	case path == alphaVantagePath:
		m.handleAlphaVantage(w, r)
	case path == openAIPrefix+"/chat/completions":
		m.handleChatCompletion(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GetRequestLog returns all logged requests for assertions.
func (m *MockServer) GetRequestLog() []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestLog{}, m.requestLog...)
}

// CountAlphaVantage returns how many Alpha Vantage calls used the function.
func (m *MockServer) CountAlphaVantage(function string) int {
	n := 0
	for _, req := range m.GetRequestLog() {
		if req.Path == alphaVantagePath && strings.Contains(req.Query, "function="+function) {
			n++
		}
	}
	return n
}

// ClearRequestLog clears the request log.
func (m *MockServer) ClearRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = make([]RequestLog, 0)
}

// SetStock adds or replaces the fixture for a symbol.
func (m *MockServer) SetStock(stock Stock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks[strings.ToUpper(stock.Symbol)] = stock
}

// RemoveStock makes every endpoint answer as for an unknown symbol.
func (m *MockServer) RemoveStock(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stocks, strings.ToUpper(symbol))
}

// SetAlphaVantageThrottle answers the next n Alpha Vantage calls with a
// call-frequency notice.
func (m *MockServer) SetAlphaVantageThrottle(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.throttleRemaining = n
}

// SetAlphaVantageError makes Alpha Vantage answer with the HTTP status.
// Zero restores normal responses.
func (m *MockServer) SetAlphaVantageError(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alphaVantageError = status
}

// SetExtractedSymbols configures the reply to symbol extraction prompts.
func (m *MockServer) SetExtractedSymbols(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractedSymbols = reply
}

// SetAnalysisReply configures the reply to answer prompts.
func (m *MockServer) SetAnalysisReply(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analysisReply = reply
}

// SetChatError makes the chat endpoint reject requests.
func (m *MockServer) SetChatError(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatError = fail
}

func (m *MockServer) setDefaults() {
	m.stocks["AAPL"] = Stock{
		Symbol:           "AAPL",
		Name:             "Apple Inc",
		Description:      "Apple Inc. designs, manufactures and markets smartphones, personal computers, tablets, wearables and accessories.",
		Exchange:         "NASDAQ",
		Currency:         "USD",
		Sector:           "TECHNOLOGY",
		Industry:         "ELECTRONIC COMPUTERS",
		MarketCap:        "3000000000000",
		PERatio:          "28.5",
		DividendYield:    "0.0052",
		Price:            189.84,
		Open:             187.5,
		High:             190.2,
		Low:              186.9,
		PreviousClose:    187.15,
		Volume:           52000000,
		LatestTradingDay: "2024-05-10",
		Closes:           generateDefaultCloses(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 30, 180),
		News:             generateDefaultNewsArticles("AAPL", 8),
	}
	m.stocks["MSFT"] = Stock{
		Symbol:           "MSFT",
		Name:             "Microsoft Corporation",
		Description:      "Microsoft Corporation develops and supports software, services, devices and solutions.",
		Exchange:         "NASDAQ",
		Currency:         "USD",
		Sector:           "TECHNOLOGY",
		Industry:         "SERVICES-PREPACKAGED SOFTWARE",
		MarketCap:        "3100000000000",
		PERatio:          "36.2",
		DividendYield:    "0.0072",
		Price:            414.74,
		Open:             412.0,
		High:             415.38,
		Low:              411.8,
		PreviousClose:    412.32,
		Volume:           17000000,
		LatestTradingDay: "2024-05-10",
		Closes:           generateDefaultCloses(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 30, 400),
	}

	m.extractedSymbols = "AAPL"
	m.analysisReply = "Apple is trading near the top of its recent range. Past performance does not guarantee future results."
}

func (m *MockServer) handleAlphaVantage(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	status := m.alphaVantageError
	throttled := m.throttleRemaining > 0
	if throttled {
		m.throttleRemaining--
	}
	m.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if throttled {
		writeJSON(w, map[string]string{"Note": throttleNote})
		return
	}

	q := r.URL.Query()
	symbol := strings.ToUpper(q.Get("symbol"))

	m.mu.RLock()
	stock, known := m.stocks[symbol]
	m.mu.RUnlock()

	switch q.Get("function") {
	case "GLOBAL_QUOTE":
		if !known {
			writeJSON(w, map[string]interface{}{"Global Quote": map[string]string{}})
			return
		}
		writeJSON(w, map[string]interface{}{"Global Quote": globalQuote(stock)})
	case "OVERVIEW":
		// Alpha Vantage answers {} for symbols it has no fundamentals for
		if !known || stock.Name == "" {
			writeJSON(w, map[string]string{})
			return
		}
		writeJSON(w, overview(stock))
	case "TIME_SERIES_DAILY":
		if !known {
			writeJSON(w, map[string]string{"Error Message": "Invalid API call. Please retry or visit the documentation for TIME_SERIES_DAILY."})
			return
		}
		writeJSON(w, timeSeries(stock))
	case "SYMBOL_SEARCH":
		writeJSON(w, map[string]interface{}{"bestMatches": m.search(q.Get("keywords"))})
	case "NEWS_SENTIMENT":
		writeJSON(w, map[string]interface{}{"items": "0", "feed": m.news(q.Get("tickers"), q.Get("limit"))})
	default:
		writeJSON(w, map[string]string{"Error Message": "This API function does not exist."})
	}
}

func (m *MockServer) search(keywords string) []SearchMatch {
	keywords = strings.ToLower(strings.TrimSpace(keywords))

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]SearchMatch, 0)
	if keywords == "" {
		return matches
	}
	for _, s := range m.stocks {
		if !strings.Contains(strings.ToLower(s.Symbol), keywords) && !strings.Contains(strings.ToLower(s.Name), keywords) {
			continue
		}
		matches = append(matches, SearchMatch{
			Symbol:      s.Symbol,
			Name:        s.Name,
			Type:        "Equity",
			Region:      "United States",
			MarketOpen:  "09:30",
			MarketClose: "16:00",
			Timezone:    "UTC-04",
			Currency:    s.Currency,
			MatchScore:  "1.0000",
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Symbol < matches[j].Symbol })
	return matches
}

func (m *MockServer) news(tickers, limit string) []NewsArticle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	feed := make([]NewsArticle, 0)
	for _, t := range strings.Split(tickers, ",") {
		if s, ok := m.stocks[strings.ToUpper(strings.TrimSpace(t))]; ok {
			feed = append(feed, s.News...)
		}
	}
	if n, err := strconv.Atoi(limit); err == nil && n >= 0 && len(feed) > n {
		feed = feed[:n]
	}
	return feed
}

func (m *MockServer) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	fail := m.chatError
	symbols := m.extractedSymbols
	analysis := m.analysisReply
	m.mu.RUnlock()

	if fail {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"message": "Incorrect API key provided.",
				"type":    "invalid_request_error",
				"code":    "invalid_api_key",
			},
		})
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Extraction prompts are sent without a system message
	reply := symbols
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			reply = analysis
			break
		}
	}

	writeJSON(w, map[string]interface{}{
		"id":      fmt.Sprintf("chatcmpl-%d", len(m.GetRequestLog())),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]string{
					"role":    "assistant",
					"content": reply,
				},
			},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 10, "total_tokens": 20},
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func globalQuote(s Stock) map[string]string {
	change := s.Price - s.PreviousClose
	changePercent := 0.0
	if s.PreviousClose != 0 {
		changePercent = change / s.PreviousClose * 100
	}
	return map[string]string{
		"01. symbol":             s.Symbol,
		"02. open":               formatPrice(s.Open),
		"03. high":               formatPrice(s.High),
		"04. low":                formatPrice(s.Low),
		"05. price":              formatPrice(s.Price),
		"06. volume":             strconv.FormatInt(s.Volume, 10),
		"07. latest trading day": s.LatestTradingDay,
		"08. previous close":     formatPrice(s.PreviousClose),
		"09. change":             formatPrice(change),
		"10. change percent":     strconv.FormatFloat(changePercent, 'f', 4, 64) + "%",
	}
}

func overview(s Stock) map[string]string {
	return map[string]string{
		"Symbol":               s.Symbol,
		"AssetType":            "Common Stock",
		"Name":                 s.Name,
		"Description":          s.Description,
		"Exchange":             s.Exchange,
		"Currency":             s.Currency,
		"Country":              "USA",
		"Sector":               s.Sector,
		"Industry":             s.Industry,
		"MarketCapitalization": s.MarketCap,
		"PERatio":              s.PERatio,
		"DividendYield":        s.DividendYield,
	}
}

func timeSeries(s Stock) map[string]interface{} {
	days := make(map[string]map[string]string, len(s.Closes))
	for date, price := range s.Closes {
		days[date] = map[string]string{
			"1. open":   formatPrice(price),
			"2. high":   formatPrice(price),
			"3. low":    formatPrice(price),
			"4. close":  formatPrice(price),
			"5. volume": "1000000",
		}
	}
	return map[string]interface{}{
		"Meta Data": map[string]string{
			"1. Information": "Daily Prices (open, high, low, close) and Volumes",
			"2. Symbol":      s.Symbol,
		},
		"Time Series (Daily)": days,
	}
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func generateDefaultCloses(start time.Time, count int, basePrice float64) map[string]float64 {
	closes := make(map[string]float64, count)
	for i := 0; i < count; i++ {
		// Generate slightly varying prices
		variance := float64(i%10) - 5
		closes[start.AddDate(0, 0, i).Format("2006-01-02")] = basePrice + variance
	}
	return closes
}

func generateDefaultNewsArticles(symbol string, count int) []NewsArticle {
	articles := make([]NewsArticle, count)
	titles := []string{
		"Company Reports Strong Quarterly Earnings",
		"New Product Launch Expected to Boost Sales",
		"Analyst Upgrades Stock to Buy",
		"Market Share Continues to Grow",
		"Innovation Pipeline Looks Promising",
	}
	labels := []string{"Bullish", "Somewhat-Bullish", "Neutral"}
	published := time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		articles[i] = NewsArticle{
			Title:          symbol + ": " + titles[i%len(titles)],
			URL:            fmt.Sprintf("https://example.com/%s/article/%d", strings.ToLower(symbol), i),
			TimePublished:  published.Add(-time.Duration(i) * time.Hour).Format("20060102T150405"),
			Summary:        "This is a test article summary for E2E testing.",
			Source:         "Financial Times",
			SentimentLabel: labels[i%len(labels)],
			SentimentScore: 0.35 - float64(i%3)*0.15,
		}
	}
	return articles
}
