package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stock-insight/models"
	"stock-insight/observability"
)

const (
	alpacaName        = ProviderAlpaca
	alpacaDisplayName = "Alpaca Markets"

	// alpacaNewsSource publishes every article on Alpaca's news feed
	alpacaNewsSource = "Benzinga"
)

// alpacaDataClient is the subset of *marketdata.Client used here
type alpacaDataClient interface {
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error)
}

// AlpacaService serves quotes, daily history and news from Alpaca market data
type AlpacaService struct {
	dataClient alpacaDataClient
	now        func() time.Time
}

// AlpacaOption configures the market data client
type AlpacaOption func(*marketdata.ClientOpts)

// WithAlpacaBaseURL points the client at a different data endpoint
func WithAlpacaBaseURL(baseURL string) AlpacaOption {
	return func(o *marketdata.ClientOpts) {
		if baseURL != "" {
			o.BaseURL = baseURL
		}
	}
}

// WithAlpacaTimeout sets the HTTP timeout
func WithAlpacaTimeout(timeout time.Duration) AlpacaOption {
	return func(o *marketdata.ClientOpts) {
		if timeout > 0 {
			o.HTTPClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewAlpacaService creates a new AlpacaService instance
func NewAlpacaService(apiKey, apiSecret string, opts ...AlpacaOption) *AlpacaService {
	clientOpts := marketdata.ClientOpts{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(&clientOpts)
	}
	return newAlpacaServiceWithClient(marketdata.NewClient(clientOpts))
}

func newAlpacaServiceWithClient(client alpacaDataClient) *AlpacaService {
	return &AlpacaService{dataClient: client, now: time.Now}
}

func (s *AlpacaService) Name() string        { return alpacaName }
func (s *AlpacaService) DisplayName() string { return alpacaDisplayName }

func alpacaCall[T any](ctx context.Context, operation string, fn func() (T, error)) (T, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(alpacaName, operation)
	timer := metrics.NewTimer()
	defer timer.ObserveExternalAPI(alpacaName, operation)

	result, err := WithCircuitBreaker(ctx, BreakerAlpaca, fn)
	if err != nil {
		errorType := "transport"
		if IsRateLimited(err) {
			errorType = "rate_limit"
		}
		metrics.RecordExternalAPIError(alpacaName, operation, errorType)
		observability.WithProvider(alpacaName).Warn("request failed",
			"operation", operation,
			"error", err)
	}
	return result, err
}

// GetQuote builds a quote from the latest trade and daily bars
func (s *AlpacaService) GetQuote(ctx context.Context, symbol string) Result[*models.Quote] {
	snap, err := alpacaCall(ctx, "snapshot", func() (*marketdata.Snapshot, error) {
		snap, err := s.dataClient.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
		if err != nil {
			return nil, fmt.Errorf("failed to get snapshot for %s: %w", symbol, err)
		}
		return snap, nil
	})
	if err != nil {
		return resultFromError[*models.Quote](err)
	}
	if snap == nil || (snap.LatestTrade == nil && snap.DailyBar == nil) {
		return NotFound[*models.Quote]("snapshot: no trade or daily bar for " + symbol)
	}

	q := &models.Quote{Symbol: symbol, ChangePercent: "0%"}
	if snap.DailyBar != nil {
		q.Open = snap.DailyBar.Open
		q.High = snap.DailyBar.High
		q.Low = snap.DailyBar.Low
		q.Volume = int64(snap.DailyBar.Volume)
		q.CurrentPrice = snap.DailyBar.Close
		q.LatestTradingDay = snap.DailyBar.Timestamp.UTC().Format("2006-01-02")
	}
	if snap.LatestTrade != nil {
		q.CurrentPrice = snap.LatestTrade.Price
	}
	if snap.PrevDailyBar != nil {
		q.PreviousClose = snap.PrevDailyBar.Close
		q.Change = q.CurrentPrice - q.PreviousClose
		if q.PreviousClose != 0 {
			q.ChangePercent = strconv.FormatFloat(q.Change/q.PreviousClose*100, 'f', 4, 64) + "%"
		}
	}
	return Found(q)
}

// GetOverview is not offered by Alpaca market data
func (s *AlpacaService) GetOverview(ctx context.Context, symbol string) Result[*models.CompanyOverview] {
	return NotFound[*models.CompanyOverview]("alpaca does not provide company fundamentals")
}

// GetTimeSeries returns daily closes from Alpaca bars
func (s *AlpacaService) GetTimeSeries(ctx context.Context, symbol string, size OutputSize) Result[models.TimeSeries] {
	end := s.now()
	start := end.AddDate(-1, 0, 0)
	if size == OutputCompact {
		start = end.AddDate(0, 0, -145)
	}

	bars, err := alpacaCall(ctx, "bars", func() ([]marketdata.Bar, error) {
		bars, err := s.dataClient.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
		}
		return bars, nil
	})
	if err != nil {
		return resultFromError[models.TimeSeries](err)
	}
	if len(bars) == 0 {
		return NotFound[models.TimeSeries]("bars: none for " + symbol)
	}

	closes := make(map[string]float64, len(bars))
	for _, bar := range bars {
		closes[bar.Timestamp.UTC().Format("2006-01-02")] = bar.Close
	}
	return Found(models.NewTimeSeries(closes))
}

// Search is not offered by Alpaca market data
func (s *AlpacaService) Search(ctx context.Context, keywords string) Result[[]models.SymbolSearchResult] {
	return NotFound[[]models.SymbolSearchResult]("alpaca does not provide symbol search")
}

// GetNews returns Benzinga headlines via Alpaca. Articles carry no sentiment.
func (s *AlpacaService) GetNews(ctx context.Context, query NewsQuery) Result[[]models.NewsItem] {
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultNewsFetchLimit
	}

	news, err := alpacaCall(ctx, "news", func() ([]marketdata.News, error) {
		news, err := s.dataClient.GetNews(marketdata.GetNewsRequest{
			Symbols:    query.Tickers,
			TotalLimit: limit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get news: %w", err)
		}
		return news, nil
	})
	if err != nil {
		return resultFromError[[]models.NewsItem](err)
	}

	items := make([]models.NewsItem, 0, len(news))
	for _, n := range news {
		items = append(items, models.NewsItem{
			Title:         n.Headline,
			URL:           n.URL,
			TimePublished: n.CreatedAt.UTC().Format(models.NewsTimeLayout),
			Summary:       n.Summary,
			Source:        alpacaNewsSource,
		})
	}
	return Found(items)
}
