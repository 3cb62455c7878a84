package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stock-insight/models"
	"stock-insight/observability"
	"stock-insight/services"
)

// ErrNotFound is returned when a provider has no quote for the symbol
var ErrNotFound = errors.New("no quote data found")

const (
	defaultCompanySuffix = " Company"
	notAvailable         = "N/A"
	defaultSummary       = "No description available."
	sentimentFirmSuffix  = " Sentiment Analysis"
)

// Aggregator merges the sub-records of one provider into the canonical
// StockProfile. Sub-fetches run sequentially because providers share a
// per-key quota.
type Aggregator struct {
	provider        services.MarketDataProvider
	recommendations services.RecommendationSource
	historySize     services.OutputSize
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithHistorySize sets the time-series size requested for profiles
func WithHistorySize(size services.OutputSize) Option {
	return func(a *Aggregator) {
		a.historySize = size
	}
}

// New creates an Aggregator over provider. Providers that also implement
// services.RecommendationSource supply analyst ratings directly.
func New(provider services.MarketDataProvider, opts ...Option) *Aggregator {
	a := &Aggregator{
		provider:    provider,
		historySize: services.OutputFull,
	}
	if rs, ok := provider.(services.RecommendationSource); ok {
		a.recommendations = rs
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider returns the backing provider's short name
func (a *Aggregator) Provider() string {
	return a.provider.Name()
}

// NormalizeSymbol trims and uppercases a ticker
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// BuildProfile fetches quote, overview, history and news for symbol and
// merges them. Only a missing quote fails the build; a throttled quote
// returns the *services.RateLimitError so callers can retry.
func (a *Aggregator) BuildProfile(ctx context.Context, symbol string) (*models.StockProfile, error) {
	symbol = NormalizeSymbol(symbol)
	name := a.provider.Name()
	log := observability.WithContext(ctx).With("symbol", symbol, "provider", name)
	timer := observability.GetMetrics().NewTimer()

	quoteRes := a.provider.GetQuote(ctx, symbol)
	quote := quoteRes.Value()
	switch {
	case quoteRes.Status() == services.StatusRateLimited:
		timer.ObserveProfile(name, "rate_limited")
		return nil, quoteRes.Err()
	case !quoteRes.OK() || quote == nil:
		log.Warn("quote unavailable", "status", quoteRes.Status().String(), "detail", quoteRes.Detail())
		timer.ObserveProfile(name, "not_found")
		return nil, fmt.Errorf("%w for %s", ErrNotFound, symbol)
	}

	overview := softValue(log, "overview", a.provider.GetOverview(ctx, symbol))
	history := softValue(log, "time_series", a.provider.GetTimeSeries(ctx, symbol, a.historySize))
	news := softValue(log, "news", a.provider.GetNews(ctx, services.NewsQuery{
		Tickers: []string{symbol},
		Limit:   services.DefaultNewsFetchLimit,
	}))

	profile := &models.StockProfile{
		Symbol:        symbol,
		CurrentPrice:  quote.CurrentPrice,
		Volume:        quote.Volume,
		DayHigh:       quote.High,
		DayLow:        quote.Low,
		Change:        quote.Change,
		ChangePercent: quote.ChangePercent,
		PreviousClose: quote.PreviousClose,
		Open:          quote.Open,
		News:          profileNews(news, models.ProfileNewsLimit),
		PriceHistory:  history,
	}
	if quote.Symbol != "" {
		profile.Symbol = quote.Symbol
	}
	if profile.PriceHistory.Len() == 0 {
		profile.PriceHistory = models.EmptyTimeSeries()
	}
	applyOverview(profile, symbol, overview)
	profile.Recommendations = a.recommendationsFor(ctx, log, symbol, quote, news)

	timer.ObserveProfile(name, "success")
	log.Info("profile built",
		"news", len(profile.News),
		"history_points", profile.PriceHistory.Len(),
		"has_overview", overview != nil)
	return profile, nil
}

// applyOverview copies fundamentals, or the documented defaults when the
// overview is missing.
func applyOverview(p *models.StockProfile, symbol string, o *models.CompanyOverview) {
	if o == nil {
		p.CompanyName = symbol + defaultCompanySuffix
		p.Sector = notAvailable
		p.Industry = notAvailable
		p.Summary = defaultSummary
		return
	}
	p.CompanyName = o.CompanyName
	p.Sector = o.Sector
	p.Industry = o.Industry
	p.Summary = o.Summary
	p.MarketCap = o.MarketCap
	p.PERatio = o.PERatio
	p.DividendYield = o.DividendYield
	p.FiftyTwoWeekHigh = o.FiftyTwoWeekHigh
	p.FiftyTwoWeekLow = o.FiftyTwoWeekLow

	if p.CompanyName == "" {
		p.CompanyName = symbol + defaultCompanySuffix
	}
	if p.Sector == "" {
		p.Sector = notAvailable
	}
	if p.Industry == "" {
		p.Industry = notAvailable
	}
	if p.Summary == "" {
		p.Summary = defaultSummary
	}
}

func (a *Aggregator) recommendationsFor(ctx context.Context, log *slog.Logger, symbol string, quote *models.Quote, news []models.NewsItem) []models.Recommendation {
	if a.recommendations != nil {
		recs := softValue(log, "recommendations", a.recommendations.GetRecommendations(ctx, symbol))
		if len(recs) > models.RecommendationLimit {
			recs = recs[:models.RecommendationLimit]
		}
		if recs == nil {
			recs = []models.Recommendation{}
		}
		return recs
	}
	if len(news) == 0 {
		return []models.Recommendation{}
	}
	return []models.Recommendation{
		models.NewSentimentRecommendation(
			a.provider.DisplayName()+sentimentFirmSuffix,
			news[0].SentimentLabel,
			quote.LatestTradingDay,
		),
	}
}

// BuildContext performs the reduced fetch used to enrich a natural-language
// query: quote, overview and a few headlines. It never fails. Missing parts
// are left nil or empty, and nil is returned when nothing was found.
func (a *Aggregator) BuildContext(ctx context.Context, symbol string) *models.StockContext {
	symbol = NormalizeSymbol(symbol)
	log := observability.WithContext(ctx).With("symbol", symbol, "provider", a.provider.Name())

	quote := softValue(log, "quote", a.provider.GetQuote(ctx, symbol))
	overview := softValue(log, "overview", a.provider.GetOverview(ctx, symbol))
	news := softValue(log, "news", a.provider.GetNews(ctx, services.NewsQuery{
		Tickers: []string{symbol},
		Limit:   models.ContextNewsLimit,
	}))
	if len(news) > models.ContextNewsLimit {
		news = news[:models.ContextNewsLimit]
	}
	if quote == nil && overview == nil && len(news) == 0 {
		log.Info("no context data for symbol")
		return nil
	}
	if news == nil {
		news = []models.NewsItem{}
	}

	return &models.StockContext{
		Symbol:   symbol,
		Quote:    quote,
		Overview: overview,
		News:     news,
	}
}

// Search returns up to models.SearchLimit matches. Provider misses yield an
// empty list; only a rate limit is returned as an error.
func (a *Aggregator) Search(ctx context.Context, keywords string) ([]models.SearchResult, error) {
	name := a.provider.Name()
	metrics := observability.GetMetrics()

	res := a.provider.Search(ctx, strings.TrimSpace(keywords))
	if res.Status() == services.StatusRateLimited {
		metrics.RecordSearch(name, "rate_limited")
		return nil, res.Err()
	}
	if !res.OK() {
		observability.WithContext(ctx).Warn("search returned no data",
			"provider", name,
			"keywords", keywords,
			"status", res.Status().String(),
			"detail", res.Detail())
	}

	matches := res.Value()
	if len(matches) > models.SearchLimit {
		matches = matches[:models.SearchLimit]
	}
	results := make([]models.SearchResult, 0, len(matches))
	for _, m := range matches {
		exchange := m.Exchange
		if exchange == "" {
			exchange = m.Region + " - " + m.Currency
		}
		results = append(results, models.SearchResult{
			Symbol:   m.Symbol,
			Name:     m.Name,
			Type:     m.Type,
			Exchange: exchange,
		})
	}
	metrics.RecordSearch(name, res.Status().String())
	return results, nil
}

func profileNews(items []models.NewsItem, limit int) []models.ProfileNewsItem {
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]models.ProfileNewsItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.ProfileNewsItem{
			Title:               item.Title,
			Link:                item.URL,
			Publisher:           item.Source,
			ProviderPublishTime: publishTime(item.TimePublished),
			Summary:             item.Summary,
		})
	}
	return out
}

// publishTime converts a NewsItem timestamp to unix seconds, 0 when unparseable
func publishTime(s string) int64 {
	t, err := time.Parse(models.NewsTimeLayout, s)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// softValue logs a miss and returns the caller-visible empty value
func softValue[T any](log *slog.Logger, operation string, res services.Result[T]) T {
	if !res.OK() {
		log.Warn("sub-fetch returned no data",
			"operation", operation,
			"status", res.Status().String(),
			"detail", res.Detail())
	}
	return res.Value()
}
