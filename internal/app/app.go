package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"stock-insight/config"
	"stock-insight/models"
	"stock-insight/observability"
	"stock-insight/services"
)

var (
	// ErrUnknownProvider is returned for a provider that is not configured
	ErrUnknownProvider = errors.New("market data provider not configured")
	// ErrNLPUnavailable is returned when no language model is configured
	ErrNLPUnavailable = errors.New("language model not configured")
	// ErrBusy is returned when too many natural-language queries are in flight
	ErrBusy = errors.New("too many concurrent queries - try again later")
)

// ProfileBuilder builds canonical profiles and searches from one provider
type ProfileBuilder interface {
	Provider() string
	BuildProfile(ctx context.Context, symbol string) (*models.StockProfile, error)
	Search(ctx context.Context, keywords string) ([]models.SearchResult, error)
}

// QueryProcessor answers natural-language questions
type QueryProcessor interface {
	Process(ctx context.Context, query string) models.NLPResponse
}

// App holds the request-handling dependencies. Profile builds and searches
// are retried here when an upstream reports a rate limit.
type App struct {
	builders map[string]ProfileBuilder
	nlp      QueryProcessor
	retry    services.RetryPolicy
	querySem chan struct{}
}

// New creates an App. nlp may be nil when no language model is configured.
func New(cfg *config.Config, nlp QueryProcessor, builders ...ProfileBuilder) *App {
	limit := cfg.LLM.ConcurrencyLimit
	if limit <= 0 {
		limit = 1
	}
	a := &App{
		builders: make(map[string]ProfileBuilder, len(builders)),
		nlp:      nlp,
		retry: services.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		},
		querySem: make(chan struct{}, limit),
	}
	for _, b := range builders {
		a.builders[b.Provider()] = b
	}
	return a
}

// SetRetrySleep replaces the backoff sleep (for testing)
func (a *App) SetRetrySleep(sleep func(ctx context.Context, d time.Duration) error) {
	a.retry.Sleep = sleep
}

// Providers returns the configured provider names in sorted order
func (a *App) Providers() []string {
	names := make([]string, 0, len(a.builders))
	for name := range a.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasProvider reports whether provider is configured
func (a *App) HasProvider(provider string) bool {
	_, ok := a.builders[provider]
	return ok
}

// NLPEnabled reports whether natural-language queries can be answered
func (a *App) NLPEnabled() bool {
	return a.nlp != nil
}

// Profile builds the canonical profile for symbol from provider
func (a *App) Profile(ctx context.Context, provider, symbol string) (*models.StockProfile, error) {
	b, ok := a.builders[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return services.Retry(ctx, a.policyFor(provider+"_profile"), func() (*models.StockProfile, error) {
		return b.BuildProfile(ctx, symbol)
	})
}

// Search looks up symbols matching query with provider
func (a *App) Search(ctx context.Context, provider, query string) ([]models.SearchResult, error) {
	b, ok := a.builders[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return services.Retry(ctx, a.policyFor(provider+"_search"), func() ([]models.SearchResult, error) {
		return b.Search(ctx, query)
	})
}

// Ask answers a natural-language query
func (a *App) Ask(ctx context.Context, query string) (models.NLPResponse, error) {
	if a.nlp == nil {
		return models.NLPResponse{}, ErrNLPUnavailable
	}

	select {
	case a.querySem <- struct{}{}:
		defer func() { <-a.querySem }()
	default:
		return models.NLPResponse{}, ErrBusy
	}

	return a.nlp.Process(ctx, query), nil
}

// QueryCapacity returns the concurrent query limit (for testing)
func (a *App) QueryCapacity() int {
	return cap(a.querySem)
}

func (a *App) policyFor(operation string) services.RetryPolicy {
	p := a.retry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		observability.GetMetrics().RecordRetry(operation)
		observability.Warn("rate limited, retrying",
			"operation", operation,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err)
	}
	return p
}
