package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"stock-insight/models"
	"stock-insight/observability"
)

const (
	yahooName        = ProviderYahoo
	yahooDisplayName = "Yahoo Finance"

	defaultYahooURL = "https://query2.finance.yahoo.com"
	yahooUserAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// chartIterator is the subset of *chart.Iter used for history
type chartIterator interface {
	Next() bool
	Bar() *finance.ChartBar
	Err() error
}

// yahooMarketClient fetches quotes and daily bars
type yahooMarketClient interface {
	Quote(symbol string) (*finance.Quote, error)
	Chart(params *chart.Params) chartIterator
}

// financeGoClient backs yahooMarketClient with piquette/finance-go
type financeGoClient struct{}

func (financeGoClient) Quote(symbol string) (*finance.Quote, error) {
	return quote.Get(symbol)
}

func (financeGoClient) Chart(params *chart.Params) chartIterator {
	return chart.Get(params)
}

// YahooService is the primary market data provider
type YahooService struct {
	market yahooMarketClient
	client *resty.Client
	now    func() time.Time
}

// YahooOption configures a YahooService
type YahooOption func(*YahooService)

// WithYahooBaseURL sets the base URL of every Yahoo endpoint
func WithYahooBaseURL(baseURL string) YahooOption {
	return func(s *YahooService) {
		if baseURL != "" {
			s.client.SetBaseURL(strings.TrimRight(baseURL, "/"))
		}
	}
}

// WithYahooTimeout sets the HTTP timeout
func WithYahooTimeout(timeout time.Duration) YahooOption {
	return func(s *YahooService) {
		if timeout > 0 {
			s.client.SetTimeout(timeout)
		}
	}
}

func withYahooMarketClient(c yahooMarketClient) YahooOption {
	return func(s *YahooService) {
		s.market = c
	}
}

// NewYahooService creates a new YahooService
func NewYahooService(opts ...YahooOption) *YahooService {
	client := resty.New()
	client.SetBaseURL(defaultYahooURL)
	client.SetTimeout(defaultHTTPTimeout)
	client.SetHeader("User-Agent", yahooUserAgent)
	client.SetHeader("Accept", "application/json")

	s := &YahooService{
		client: client,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.market == nil {
		configureFinanceGo(s.client.BaseURL, s.client.GetClient().Timeout)
		s.market = financeGoClient{}
	}
	return s
}

// configureFinanceGo points finance-go's process-wide backend at baseURL with
// an explicit timeout. The library's own default is 80s.
func configureFinanceGo(baseURL string, timeout time.Duration) {
	finance.SetBackend(finance.YFinBackend, &finance.BackendConfiguration{
		Type:       finance.YFinBackend,
		URL:        baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	})
}

func (s *YahooService) Name() string        { return yahooName }
func (s *YahooService) DisplayName() string { return yahooDisplayName }

// yahooCall wraps an outbound call with metrics and the circuit breaker
func yahooCall[T any](ctx context.Context, operation string, fn func() (T, error)) (T, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(yahooName, operation)
	timer := metrics.NewTimer()
	defer timer.ObserveExternalAPI(yahooName, operation)

	result, err := WithCircuitBreaker(ctx, BreakerYahoo, fn)
	if err != nil {
		errorType := "transport"
		if IsRateLimited(err) {
			errorType = "rate_limit"
		}
		metrics.RecordExternalAPIError(yahooName, operation, errorType)
		observability.WithProvider(yahooName).Warn("request failed",
			"operation", operation,
			"error", err)
	}
	return result, err
}

func yahooMiss[T any](operation, subject, detail string) Result[T] {
	observability.WithProvider(yahooName).Warn("no data in response",
		"operation", operation,
		"subject", subject,
		"detail", truncate(detail, rawBodyLogLimit))
	return NotFound[T](fmt.Sprintf("%s: no data for %s", operation, subject))
}

// getJSON performs a GET through resty and returns the raw body
func (s *YahooService) getJSON(ctx context.Context, operation, path string, pathParams, query map[string]string) ([]byte, error) {
	return yahooCall(ctx, operation, func() ([]byte, error) {
		resp, err := s.client.R().
			SetContext(ctx).
			SetPathParams(pathParams).
			SetQueryParams(query).
			Get(path)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", operation, err)
		}
		if resp.StatusCode() == http.StatusTooManyRequests {
			return nil, &RateLimitError{
				Service:    yahooName,
				Operation:  operation,
				StatusCode: resp.StatusCode(),
				Message:    truncate(resp.String(), 200),
			}
		}
		if resp.StatusCode() == http.StatusNotFound {
			// quoteSummary answers unknown symbols with 404 and a JSON error body
			return resp.Body(), nil
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("yahoo %s returned status %d", operation, resp.StatusCode())
		}
		return resp.Body(), nil
	})
}

// GetQuote returns the latest quote for a symbol
func (s *YahooService) GetQuote(ctx context.Context, symbol string) Result[*models.Quote] {
	const operation = "quote"
	q, err := yahooCall(ctx, operation, func() (*finance.Quote, error) {
		q, err := s.market.Quote(symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
		}
		return q, nil
	})
	if err != nil {
		return resultFromError[*models.Quote](err)
	}
	if q == nil || q.Symbol == "" {
		return yahooMiss[*models.Quote](operation, symbol, "empty quote")
	}

	var tradingDay string
	if q.RegularMarketTime > 0 {
		tradingDay = time.Unix(int64(q.RegularMarketTime), 0).UTC().Format("2006-01-02")
	}

	return Found(&models.Quote{
		Symbol:           q.Symbol,
		CurrentPrice:     q.RegularMarketPrice,
		Change:           q.RegularMarketChange,
		ChangePercent:    strconv.FormatFloat(q.RegularMarketChangePercent, 'f', 4, 64) + "%",
		Volume:           int64(q.RegularMarketVolume),
		LatestTradingDay: tradingDay,
		PreviousClose:    q.RegularMarketPreviousClose,
		Open:             q.RegularMarketOpen,
		High:             q.RegularMarketDayHigh,
		Low:              q.RegularMarketDayLow,
	})
}

// GetTimeSeries returns daily closes. OutputFull covers one year, compact
// roughly the last hundred sessions.
func (s *YahooService) GetTimeSeries(ctx context.Context, symbol string, size OutputSize) Result[models.TimeSeries] {
	const operation = "chart"
	end := s.now()
	start := end.AddDate(-1, 0, 0)
	if size == OutputCompact {
		start = end.AddDate(0, 0, -145)
	}

	closes, err := yahooCall(ctx, operation, func() (map[string]float64, error) {
		iter := s.market.Chart(&chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		})
		closes := make(map[string]float64)
		for iter.Next() {
			bar := iter.Bar()
			if bar == nil {
				continue
			}
			date := time.Unix(int64(bar.Timestamp), 0).UTC().Format("2006-01-02")
			closes[date] = bar.Close.InexactFloat64()
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("failed to get history for %s: %w", symbol, err)
		}
		return closes, nil
	})
	if err != nil {
		return resultFromError[models.TimeSeries](err)
	}
	if len(closes) == 0 {
		return yahooMiss[models.TimeSeries](operation, symbol, "no bars")
	}
	return Found(models.NewTimeSeries(closes))
}

// yahooValue is the {"raw": ..., "fmt": ...} shape used by quoteSummary
type yahooValue struct {
	Raw *float64 `json:"raw"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []quoteSummaryResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

type quoteSummaryResult struct {
	AssetProfile *struct {
		Sector              string `json:"sector"`
		Industry            string `json:"industry"`
		LongBusinessSummary string `json:"longBusinessSummary"`
	} `json:"assetProfile"`
	SummaryDetail *struct {
		MarketCap        yahooValue `json:"marketCap"`
		TrailingPE       yahooValue `json:"trailingPE"`
		DividendYield    yahooValue `json:"dividendYield"`
		FiftyTwoWeekHigh yahooValue `json:"fiftyTwoWeekHigh"`
		FiftyTwoWeekLow  yahooValue `json:"fiftyTwoWeekLow"`
	} `json:"summaryDetail"`
	Price *struct {
		LongName  string     `json:"longName"`
		ShortName string     `json:"shortName"`
		MarketCap yahooValue `json:"marketCap"`
	} `json:"price"`
	UpgradeDowngradeHistory *struct {
		History []struct {
			EpochGradeDate int64  `json:"epochGradeDate"`
			Firm           string `json:"firm"`
			ToGrade        string `json:"toGrade"`
			FromGrade      string `json:"fromGrade"`
			Action         string `json:"action"`
		} `json:"history"`
	} `json:"upgradeDowngradeHistory"`
}

func (s *YahooService) quoteSummary(ctx context.Context, operation, symbol string, modules ...string) (*quoteSummaryResult, Status, error) {
	body, err := s.getJSON(ctx, operation, "/v10/finance/quoteSummary/{symbol}",
		map[string]string{"symbol": symbol},
		map[string]string{"modules": strings.Join(modules, ",")})
	if err != nil {
		return nil, StatusTransportError, err
	}

	var resp quoteSummaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, StatusTransportError, fmt.Errorf("failed to decode quoteSummary: %w", err)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		detail := string(body)
		if resp.QuoteSummary.Error != nil {
			detail = resp.QuoteSummary.Error.Description
		}
		return nil, StatusNotFound, fmt.Errorf("%s", detail)
	}
	return &resp.QuoteSummary.Result[0], StatusFound, nil
}

// GetOverview returns company fundamentals from quoteSummary
func (s *YahooService) GetOverview(ctx context.Context, symbol string) Result[*models.CompanyOverview] {
	const operation = "quote_summary"
	r, status, err := s.quoteSummary(ctx, operation, symbol, "assetProfile", "summaryDetail", "price")
	switch status {
	case StatusNotFound:
		return yahooMiss[*models.CompanyOverview](operation, symbol, err.Error())
	case StatusTransportError:
		return resultFromError[*models.CompanyOverview](err)
	}

	o := &models.CompanyOverview{}
	if r.Price != nil {
		o.CompanyName = r.Price.LongName
		if o.CompanyName == "" {
			o.CompanyName = r.Price.ShortName
		}
		o.MarketCap = rawInt(r.Price.MarketCap)
	}
	if r.AssetProfile != nil {
		o.Sector = r.AssetProfile.Sector
		o.Industry = r.AssetProfile.Industry
		o.Summary = r.AssetProfile.LongBusinessSummary
	}
	if d := r.SummaryDetail; d != nil {
		if o.MarketCap == nil {
			o.MarketCap = rawInt(d.MarketCap)
		}
		o.PERatio = d.TrailingPE.Raw
		o.DividendYield = d.DividendYield.Raw
		o.FiftyTwoWeekHigh = d.FiftyTwoWeekHigh.Raw
		o.FiftyTwoWeekLow = d.FiftyTwoWeekLow.Raw
	}
	return Found(o)
}

func rawInt(v yahooValue) *int64 {
	if v.Raw == nil {
		return nil
	}
	return int64Ptr(int64(*v.Raw))
}

// GetRecommendations returns the most recent analyst rating changes
func (s *YahooService) GetRecommendations(ctx context.Context, symbol string) Result[[]models.Recommendation] {
	const operation = "recommendations"
	r, status, err := s.quoteSummary(ctx, operation, symbol, "upgradeDowngradeHistory")
	switch status {
	case StatusNotFound:
		return yahooMiss[[]models.Recommendation](operation, symbol, err.Error())
	case StatusTransportError:
		return resultFromError[[]models.Recommendation](err)
	}
	if r.UpgradeDowngradeHistory == nil || len(r.UpgradeDowngradeHistory.History) == 0 {
		return yahooMiss[[]models.Recommendation](operation, symbol, "empty upgradeDowngradeHistory")
	}

	history := r.UpgradeDowngradeHistory.History
	if len(history) > models.RecommendationLimit {
		history = history[:models.RecommendationLimit]
	}
	recs := make([]models.Recommendation, 0, len(history))
	for _, h := range history {
		recs = append(recs, models.Recommendation{
			Firm:      h.Firm,
			ToGrade:   h.ToGrade,
			FromGrade: h.FromGrade,
			Action:    h.Action,
			Period:    time.Unix(h.EpochGradeDate, 0).UTC().Format("2006-01-02"),
		})
	}
	return Found(recs)
}

type yahooSearchResponse struct {
	Quotes *[]struct {
		Symbol    string  `json:"symbol"`
		ShortName string  `json:"shortname"`
		LongName  string  `json:"longname"`
		QuoteType string  `json:"quoteType"`
		Exchange  string  `json:"exchange"`
		ExchDisp  string  `json:"exchDisp"`
		Score     float64 `json:"score"`
	} `json:"quotes"`
	News *[]struct {
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
	} `json:"news"`
}

func (s *YahooService) search(ctx context.Context, operation, q string, quotes, news int) (*yahooSearchResponse, error) {
	body, err := s.getJSON(ctx, operation, "/v1/finance/search", nil, map[string]string{
		"q":           q,
		"quotesCount": strconv.Itoa(quotes),
		"newsCount":   strconv.Itoa(news),
	})
	if err != nil {
		return nil, err
	}
	var resp yahooSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search: %w", err)
	}
	return &resp, nil
}

// Search returns up to ten symbols matching keywords
func (s *YahooService) Search(ctx context.Context, keywords string) Result[[]models.SymbolSearchResult] {
	const operation = "search"
	resp, err := s.search(ctx, operation, keywords, models.SearchLimit, 0)
	if err != nil {
		return resultFromError[[]models.SymbolSearchResult](err)
	}
	if resp.Quotes == nil {
		return yahooMiss[[]models.SymbolSearchResult](operation, keywords, "quotes absent")
	}

	quotes := *resp.Quotes
	if len(quotes) > models.SearchLimit {
		quotes = quotes[:models.SearchLimit]
	}
	results := make([]models.SymbolSearchResult, 0, len(quotes))
	for _, q := range quotes {
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		results = append(results, models.SymbolSearchResult{
			Symbol:     q.Symbol,
			Name:       name,
			Type:       q.QuoteType,
			Exchange:   q.Exchange,
			MatchScore: q.Score,
		})
	}
	return Found(results)
}

// GetNews returns recent headlines for the first ticker (or topic)
func (s *YahooService) GetNews(ctx context.Context, query NewsQuery) Result[[]models.NewsItem] {
	const operation = "news"
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultNewsFetchLimit
	}
	terms := append(append([]string{}, query.Tickers...), query.Topics...)
	if len(terms) == 0 {
		return NotFound[[]models.NewsItem]("news: no ticker or topic")
	}

	resp, err := s.search(ctx, operation, terms[0], 0, limit)
	if err != nil {
		return resultFromError[[]models.NewsItem](err)
	}
	if resp.News == nil {
		return yahooMiss[[]models.NewsItem](operation, terms[0], "news absent")
	}

	news := *resp.News
	if len(news) > limit {
		news = news[:limit]
	}
	items := make([]models.NewsItem, 0, len(news))
	for _, n := range news {
		var published string
		if n.ProviderPublishTime > 0 {
			published = time.Unix(n.ProviderPublishTime, 0).UTC().Format(models.NewsTimeLayout)
		}
		items = append(items, models.NewsItem{
			Title:         n.Title,
			URL:           n.Link,
			TimePublished: published,
			Source:        n.Publisher,
		})
	}
	return Found(items)
}
