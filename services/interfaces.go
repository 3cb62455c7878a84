package services

import (
	"context"

	"stock-insight/models"
)

// Provider names. They double as circuit breaker and metrics labels.
const (
	ProviderAlphaVantage = "alphavantage"
	ProviderYahoo        = "yahoo"
	ProviderAlpaca       = "alpaca"
)

// OutputSize is the history length hint passed to GetTimeSeries
type OutputSize string

const (
	// OutputCompact asks for the most recent ~100 points
	OutputCompact OutputSize = "compact"
	// OutputFull asks for the full history the provider offers
	OutputFull OutputSize = "full"
)

// DefaultNewsFetchLimit is how many articles are requested from a provider
// before the display caps in the aggregator apply
const DefaultNewsFetchLimit = 50

// NewsQuery selects articles by ticker and/or topic
type NewsQuery struct {
	Tickers []string
	Topics  []string
	Limit   int
}

// MarketDataProvider is implemented by every upstream market data backend.
// Operations never return errors: misses are reported through the Result
// status and collapse to an empty value.
type MarketDataProvider interface {
	Name() string
	DisplayName() string
	GetQuote(ctx context.Context, symbol string) Result[*models.Quote]
	GetOverview(ctx context.Context, symbol string) Result[*models.CompanyOverview]
	GetTimeSeries(ctx context.Context, symbol string, size OutputSize) Result[models.TimeSeries]
	Search(ctx context.Context, keywords string) Result[[]models.SymbolSearchResult]
	GetNews(ctx context.Context, query NewsQuery) Result[[]models.NewsItem]
}

// RecommendationSource is implemented by providers that expose analyst
// upgrades and downgrades
type RecommendationSource interface {
	GetRecommendations(ctx context.Context, symbol string) Result[[]models.Recommendation]
}

// CompletionRequest is a single-turn language model request
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Completer is an opaque text-completion capability
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Compile-time interface verification
var _ MarketDataProvider = (*AlphaVantageService)(nil)
var _ MarketDataProvider = (*YahooService)(nil)
var _ MarketDataProvider = (*AlpacaService)(nil)
var _ RecommendationSource = (*YahooService)(nil)
var _ Completer = (*OpenAIService)(nil)
var _ Completer = (*BedrockService)(nil)
