package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stock-insight/models"
	"stock-insight/observability"
)

const (
	alphaVantageName        = ProviderAlphaVantage
	alphaVantageDisplayName = "Alpha Vantage"

	defaultAlphaVantageURL = "https://www.alphavantage.co/query"
	defaultHTTPTimeout     = 30 * time.Second

	// rawBodyLogLimit bounds how much of an unexpected body is logged
	rawBodyLogLimit = 500
)

// AlphaVantageService handles communication with Alpha Vantage API
type AlphaVantageService struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// AlphaVantageOption configures an AlphaVantageService
type AlphaVantageOption func(*AlphaVantageService)

// WithAlphaVantageBaseURL points the client at a different endpoint
func WithAlphaVantageBaseURL(baseURL string) AlphaVantageOption {
	return func(s *AlphaVantageService) {
		if baseURL != "" {
			s.baseURL = baseURL
		}
	}
}

// WithAlphaVantageTimeout sets the HTTP timeout
func WithAlphaVantageTimeout(timeout time.Duration) AlphaVantageOption {
	return func(s *AlphaVantageService) {
		if timeout > 0 {
			s.httpClient.Timeout = timeout
		}
	}
}

// WithAlphaVantageRateLimit caps calls at requestsPerMinute. The full
// minute's quota may be spent as a burst. Zero disables client-side limiting.
func WithAlphaVantageRateLimit(requestsPerMinute int) AlphaVantageOption {
	return func(s *AlphaVantageService) {
		if requestsPerMinute <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
	}
}

// NewAlphaVantageService creates a new AlphaVantageService instance. An empty
// key falls back to the public demo key.
func NewAlphaVantageService(apiKey string, opts ...AlphaVantageOption) *AlphaVantageService {
	if apiKey == "" {
		apiKey = "demo"
	}
	s := &AlphaVantageService{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:    defaultAlphaVantageURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AlphaVantageService) Name() string        { return alphaVantageName }
func (s *AlphaVantageService) DisplayName() string { return alphaVantageDisplayName }

// avResponse is a decoded Alpha Vantage body keyed by top-level field
type avResponse struct {
	raw    []byte
	fields map[string]json.RawMessage
}

// field returns a top-level key, treating an empty object as absent
func (r avResponse) field(key string) (json.RawMessage, bool) {
	v, ok := r.fields[key]
	if !ok {
		return nil, false
	}
	trimmed := strings.TrimSpace(string(v))
	if trimmed == "{}" || trimmed == "[]" || trimmed == "null" {
		return nil, false
	}
	return v, true
}

// call performs one rate-limited request through the circuit breaker. The
// quota wait happens before the breaker so a local wait never counts as an
// upstream failure.
func (s *AlphaVantageService) call(ctx context.Context, function string, params url.Values) (avResponse, error) {
	metrics := observability.GetMetrics()
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			metrics.RecordExternalAPIError(alphaVantageName, function, "quota_wait")
			return avResponse{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	metrics.RecordExternalAPIRequest(alphaVantageName, function)
	timer := metrics.NewTimer()
	defer timer.ObserveExternalAPI(alphaVantageName, function)

	resp, err := WithCircuitBreaker(ctx, BreakerAlphaVantage, func() (avResponse, error) {
		return s.do(ctx, function, params)
	})
	if err != nil {
		errorType := "transport"
		if IsRateLimited(err) {
			errorType = "rate_limit"
		}
		metrics.RecordExternalAPIError(alphaVantageName, function, errorType)
		return avResponse{}, err
	}
	return resp, nil
}

func (s *AlphaVantageService) do(ctx context.Context, function string, params url.Values) (avResponse, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("function", function)
	q.Set("apikey", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return avResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return avResponse{}, fmt.Errorf("failed to fetch %s: %w", function, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return avResponse{}, fmt.Errorf("failed to read %s response: %w", function, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return avResponse{}, &RateLimitError{
			Service:    alphaVantageName,
			Operation:  function,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(body), 200),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return avResponse{}, fmt.Errorf("alpha vantage %s returned status %d", function, resp.StatusCode)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return avResponse{}, fmt.Errorf("failed to decode %s: %w", function, err)
	}

	if notice := throttleNotice(fields); notice != "" {
		return avResponse{}, &RateLimitError{
			Service:   alphaVantageName,
			Operation: function,
			Message:   notice,
		}
	}

	return avResponse{raw: body, fields: fields}, nil
}

// throttleNotice returns the text of a quota notice. Alpha Vantage reports
// throttling with HTTP 200 and a "Note" or "Information" message.
func throttleNotice(fields map[string]json.RawMessage) string {
	for _, key := range []string{"Note", "Information"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "call frequency") || strings.Contains(lower, "rate limit") {
			return msg
		}
	}
	return ""
}

// miss logs an absent expected key and returns a NotFound result
func avMiss[T any](resp avResponse, function, subject, key string) Result[T] {
	observability.WithProvider(alphaVantageName).Warn("expected key missing from response",
		"operation", function,
		"subject", subject,
		"key", key,
		"body", truncate(string(resp.raw), rawBodyLogLimit))
	return NotFound[T](fmt.Sprintf("%s: %q absent for %s", function, key, subject))
}

// avFailure logs an outbound failure and classifies it
func avFailure[T any](err error, function, subject string) Result[T] {
	observability.WithProvider(alphaVantageName).Warn("request failed",
		"operation", function,
		"subject", subject,
		"error", err)
	return resultFromError[T](err)
}

// QuoteResponse represents a quote from Alpha Vantage
type QuoteResponse struct {
	Symbol        string `json:"01. symbol"`
	Open          string `json:"02. open"`
	High          string `json:"03. high"`
	Low           string `json:"04. low"`
	Price         string `json:"05. price"`
	Volume        string `json:"06. volume"`
	LatestDay     string `json:"07. latest trading day"`
	PrevClose     string `json:"08. previous close"`
	Change        string `json:"09. change"`
	ChangePercent string `json:"10. change percent"`
}

// GetQuote returns the latest quote for a symbol
func (s *AlphaVantageService) GetQuote(ctx context.Context, symbol string) Result[*models.Quote] {
	const function = "GLOBAL_QUOTE"
	resp, err := s.call(ctx, function, url.Values{"symbol": {symbol}})
	if err != nil {
		return avFailure[*models.Quote](err, function, symbol)
	}

	raw, ok := resp.field("Global Quote")
	if !ok {
		return avMiss[*models.Quote](resp, function, symbol, "Global Quote")
	}

	var q QuoteResponse
	if err := json.Unmarshal(raw, &q); err != nil {
		return avFailure[*models.Quote](fmt.Errorf("failed to decode quote: %w", err), function, symbol)
	}

	return Found(&models.Quote{
		Symbol:           q.Symbol,
		CurrentPrice:     floatOrZero(q.Price),
		Change:           floatOrZero(q.Change),
		ChangePercent:    changePercentOrZero(q.ChangePercent),
		Volume:           intOrZero(q.Volume),
		LatestTradingDay: q.LatestDay,
		PreviousClose:    floatOrZero(q.PrevClose),
		Open:             floatOrZero(q.Open),
		High:             floatOrZero(q.High),
		Low:              floatOrZero(q.Low),
	})
}

// OverviewResponse represents the company overview response from Alpha Vantage
type OverviewResponse struct {
	Symbol        string `json:"Symbol"`
	Name          string `json:"Name"`
	Description   string `json:"Description"`
	Exchange      string `json:"Exchange"`
	Currency      string `json:"Currency"`
	Sector        string `json:"Sector"`
	Industry      string `json:"Industry"`
	MarketCap     string `json:"MarketCapitalization"`
	PERatio       string `json:"PERatio"`
	DividendYield string `json:"DividendYield"`
	Week52High    string `json:"52WeekHigh"`
	Week52Low     string `json:"52WeekLow"`
}

// GetOverview returns company fundamentals for a symbol
func (s *AlphaVantageService) GetOverview(ctx context.Context, symbol string) Result[*models.CompanyOverview] {
	const function = "OVERVIEW"
	resp, err := s.call(ctx, function, url.Values{"symbol": {symbol}})
	if err != nil {
		return avFailure[*models.CompanyOverview](err, function, symbol)
	}

	if _, ok := resp.field("Symbol"); !ok {
		return avMiss[*models.CompanyOverview](resp, function, symbol, "Symbol")
	}

	var o OverviewResponse
	if err := json.Unmarshal(resp.raw, &o); err != nil {
		return avFailure[*models.CompanyOverview](fmt.Errorf("failed to decode overview: %w", err), function, symbol)
	}

	return Found(&models.CompanyOverview{
		CompanyName:      o.Name,
		Sector:           o.Sector,
		Industry:         o.Industry,
		MarketCap:        optionalInt(o.MarketCap),
		PERatio:          optionalFloat(o.PERatio),
		DividendYield:    optionalFloat(o.DividendYield),
		FiftyTwoWeekHigh: optionalFloat(o.Week52High),
		FiftyTwoWeekLow:  optionalFloat(o.Week52Low),
		Summary:          o.Description,
	})
}

// GetTimeSeries returns daily closes, most recent year at most, ascending
func (s *AlphaVantageService) GetTimeSeries(ctx context.Context, symbol string, size OutputSize) Result[models.TimeSeries] {
	const function = "TIME_SERIES_DAILY"
	if size == "" {
		size = OutputCompact
	}
	resp, err := s.call(ctx, function, url.Values{"symbol": {symbol}, "outputsize": {string(size)}})
	if err != nil {
		return avFailure[models.TimeSeries](err, function, symbol)
	}

	raw, ok := resp.field("Time Series (Daily)")
	if !ok {
		return avMiss[models.TimeSeries](resp, function, symbol, "Time Series (Daily)")
	}

	var days map[string]map[string]string
	if err := json.Unmarshal(raw, &days); err != nil {
		return avFailure[models.TimeSeries](fmt.Errorf("failed to decode time series: %w", err), function, symbol)
	}

	closes := make(map[string]float64, len(days))
	for date, bar := range days {
		closes[date] = floatOrZero(bar["4. close"])
	}
	return Found(models.NewTimeSeries(closes))
}

type avSearchMatch struct {
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

// Search returns up to ten symbols matching keywords
func (s *AlphaVantageService) Search(ctx context.Context, keywords string) Result[[]models.SymbolSearchResult] {
	const function = "SYMBOL_SEARCH"
	resp, err := s.call(ctx, function, url.Values{"keywords": {keywords}})
	if err != nil {
		return avFailure[[]models.SymbolSearchResult](err, function, keywords)
	}

	raw, ok := resp.fields["bestMatches"]
	if !ok {
		return avMiss[[]models.SymbolSearchResult](resp, function, keywords, "bestMatches")
	}

	var matches []avSearchMatch
	if err := json.Unmarshal(raw, &matches); err != nil {
		return avFailure[[]models.SymbolSearchResult](fmt.Errorf("failed to decode matches: %w", err), function, keywords)
	}
	if len(matches) > models.SearchLimit {
		matches = matches[:models.SearchLimit]
	}

	results := make([]models.SymbolSearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, models.SymbolSearchResult{
			Symbol:      m.Symbol,
			Name:        m.Name,
			Type:        m.Type,
			Region:      m.Region,
			MarketOpen:  m.MarketOpen,
			MarketClose: m.MarketClose,
			Timezone:    m.Timezone,
			Currency:    m.Currency,
			MatchScore:  floatOrZero(m.MatchScore),
		})
	}
	return Found(results)
}

// NewsResponse represents a NEWS_SENTIMENT feed entry
type NewsResponse struct {
	Title            string   `json:"title"`
	URL              string   `json:"url"`
	Summary          string   `json:"summary"`
	Source           string   `json:"source"`
	TimePublished    string   `json:"time_published"`
	OverallSentiment string   `json:"overall_sentiment_label"`
	SentimentScore   *float64 `json:"overall_sentiment_score"`
}

// GetNews returns news with sentiment for the given tickers and topics
func (s *AlphaVantageService) GetNews(ctx context.Context, query NewsQuery) Result[[]models.NewsItem] {
	const function = "NEWS_SENTIMENT"
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultNewsFetchLimit
	}

	params := url.Values{"limit": {strconv.Itoa(limit)}}
	if len(query.Tickers) > 0 {
		params.Set("tickers", strings.Join(query.Tickers, ","))
	}
	if len(query.Topics) > 0 {
		params.Set("topics", strings.Join(query.Topics, ","))
	}
	subject := strings.Join(append(append([]string{}, query.Tickers...), query.Topics...), ",")

	resp, err := s.call(ctx, function, params)
	if err != nil {
		return avFailure[[]models.NewsItem](err, function, subject)
	}

	raw, ok := resp.fields["feed"]
	if !ok {
		return avMiss[[]models.NewsItem](resp, function, subject, "feed")
	}

	var feed []NewsResponse
	if err := json.Unmarshal(raw, &feed); err != nil {
		return avFailure[[]models.NewsItem](fmt.Errorf("failed to decode news: %w", err), function, subject)
	}
	if len(feed) > limit {
		feed = feed[:limit]
	}

	items := make([]models.NewsItem, 0, len(feed))
	for _, f := range feed {
		items = append(items, models.NewsItem{
			Title:          f.Title,
			URL:            f.URL,
			TimePublished:  f.TimePublished,
			Summary:        f.Summary,
			Source:         f.Source,
			SentimentScore: f.SentimentScore,
			SentimentLabel: f.OverallSentiment,
		})
	}
	return Found(items)
}
