package app

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"stock-insight/config"
	"stock-insight/models"
	"stock-insight/services"
)

// fakeBuilder is a hand-written ProfileBuilder that fails with the queued
// errors before succeeding
type fakeBuilder struct {
	name     string
	errs     []error
	calls    int
	keywords string
}

func (f *fakeBuilder) Provider() string { return f.name }

func (f *fakeBuilder) next() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeBuilder) BuildProfile(ctx context.Context, symbol string) (*models.StockProfile, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return &models.StockProfile{Symbol: symbol, CurrentPrice: 100}, nil
}

func (f *fakeBuilder) Search(ctx context.Context, keywords string) ([]models.SearchResult, error) {
	f.keywords = keywords
	if err := f.next(); err != nil {
		return nil, err
	}
	return []models.SearchResult{{Symbol: "IBM"}}, nil
}

// blockingProcessor holds every query until release is closed
type blockingProcessor struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingProcessor) Process(ctx context.Context, query string) models.NLPResponse {
	b.started <- struct{}{}
	<-b.release
	return models.NLPResponse{Query: query, Success: true}
}

type staticProcessor struct{}

func (staticProcessor) Process(ctx context.Context, query string) models.NLPResponse {
	return models.NLPResponse{Response: "answer", Query: query, Success: true}
}

func rateLimitErr() error {
	return &services.RateLimitError{Service: "alphavantage", StatusCode: 429, Message: "slow down"}
}

func newTestApp(nlp QueryProcessor, builders ...ProfileBuilder) (*App, *[]time.Duration) {
	a := New(config.NewTestConfig(), nlp, builders...)
	var delays []time.Duration
	a.SetRetrySleep(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})
	return a, &delays
}

func TestNew_Providers(t *testing.T) {
	a, _ := newTestApp(nil, &fakeBuilder{name: "yahoo"}, &fakeBuilder{name: "alphavantage"})

	if got := a.Providers(); !reflect.DeepEqual(got, []string{"alphavantage", "yahoo"}) {
		t.Errorf("Providers() = %v", got)
	}
	if !a.HasProvider("yahoo") || a.HasProvider("alpaca") {
		t.Error("HasProvider mismatch")
	}
	if a.NLPEnabled() {
		t.Error("NLP should be disabled without a processor")
	}
	if a.QueryCapacity() != 2 {
		t.Errorf("QueryCapacity() = %d, want 2", a.QueryCapacity())
	}
}

func TestApp_Profile_RetriesRateLimits(t *testing.T) {
	builder := &fakeBuilder{name: "alphavantage", errs: []error{rateLimitErr(), rateLimitErr()}}
	a, delays := newTestApp(nil, builder)

	profile, err := a.Profile(context.Background(), "alphavantage", "IBM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Symbol != "IBM" {
		t.Errorf("Symbol = %q", profile.Symbol)
	}
	if builder.calls != 3 {
		t.Errorf("calls = %d, want 3", builder.calls)
	}
	if !reflect.DeepEqual(*delays, []time.Duration{time.Millisecond, 2 * time.Millisecond}) {
		t.Errorf("delays = %v", *delays)
	}
}

func TestApp_Profile_RetriesExhausted(t *testing.T) {
	builder := &fakeBuilder{name: "alphavantage", errs: []error{rateLimitErr(), rateLimitErr(), rateLimitErr(), nil}}
	a, _ := newTestApp(nil, builder)

	_, err := a.Profile(context.Background(), "alphavantage", "IBM")
	if !services.IsRateLimited(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if builder.calls != 3 {
		t.Errorf("calls = %d, want 3", builder.calls)
	}
}

func TestApp_Profile_NoRetryOnOtherErrors(t *testing.T) {
	notFound := errors.New("no quote data found for NOPE")
	builder := &fakeBuilder{name: "yahoo", errs: []error{notFound}}
	a, delays := newTestApp(nil, builder)

	_, err := a.Profile(context.Background(), "yahoo", "NOPE")
	if !errors.Is(err, notFound) {
		t.Fatalf("expected original error, got %v", err)
	}
	if builder.calls != 1 || len(*delays) != 0 {
		t.Errorf("calls = %d, delays = %v", builder.calls, *delays)
	}
}

func TestApp_UnknownProvider(t *testing.T) {
	a, _ := newTestApp(nil)

	if _, err := a.Profile(context.Background(), "alpaca", "IBM"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Profile error = %v", err)
	}
	if _, err := a.Search(context.Background(), "alpaca", "ibm"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Search error = %v", err)
	}
}

func TestApp_Search(t *testing.T) {
	builder := &fakeBuilder{name: "alphavantage", errs: []error{rateLimitErr()}}
	a, _ := newTestApp(nil, builder)

	results, err := a.Search(context.Background(), "alphavantage", "ibm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || builder.keywords != "ibm" || builder.calls != 2 {
		t.Errorf("results = %v, keywords = %q, calls = %d", results, builder.keywords, builder.calls)
	}
}

func TestApp_Ask(t *testing.T) {
	a, _ := newTestApp(nil)
	if _, err := a.Ask(context.Background(), "hi"); !errors.Is(err, ErrNLPUnavailable) {
		t.Errorf("expected ErrNLPUnavailable, got %v", err)
	}

	a, _ = newTestApp(staticProcessor{})
	resp, err := a.Ask(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || resp.Response != "answer" || resp.Query != "hi" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestApp_Ask_ConcurrencyLimit(t *testing.T) {
	processor := &blockingProcessor{started: make(chan struct{}, 2), release: make(chan struct{})}
	a, _ := newTestApp(processor)

	var wg sync.WaitGroup
	for i := 0; i < a.QueryCapacity(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Ask(context.Background(), "q"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	for i := 0; i < a.QueryCapacity(); i++ {
		<-processor.started
	}

	if _, err := a.Ask(context.Background(), "one too many"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	close(processor.release)
	wg.Wait()
}

func TestNewCompleter(t *testing.T) {
	cfg := config.NewTestConfig()
	if _, err := NewCompleter(context.Background(), cfg); err == nil {
		t.Error("expected error without an OpenAI key")
	}

	cfg.OpenAI.APIKey = "sk-test"
	completer, err := NewCompleter(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := completer.(*services.OpenAIService); !ok {
		t.Errorf("expected *OpenAIService, got %T", completer)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.NewTestConfig()
	a, err := NewFromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := a.Providers(); !reflect.DeepEqual(got, []string{"alphavantage", "yahoo"}) {
		t.Errorf("Providers() = %v", got)
	}
	if a.NLPEnabled() {
		t.Error("NLP should be disabled without language model credentials")
	}

	cfg.Alpaca.APIKey = "key"
	cfg.Alpaca.APISecret = "secret"
	cfg.OpenAI.APIKey = "sk-test"
	a, err = NewFromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.HasProvider("alpaca") || !a.NLPEnabled() {
		t.Errorf("expected alpaca and nlp, got %v nlp=%v", a.Providers(), a.NLPEnabled())
	}
}

func TestConfigureBreakers(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.Breaker.MinRequests = 2
	cfg.Breaker.FailurePercent = 100
	ConfigureBreakers(cfg)
	t.Cleanup(func() {
		services.SetGlobalRegistry(services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig))
	})

	registry := services.GetGlobalRegistry()
	fail := func() (any, error) { return nil, errors.New("fail") }
	_, _ = registry.Execute(context.Background(), "configured", fail)
	if state := registry.Status()["configured"].State; state != "closed" {
		t.Fatalf("expected closed below the request minimum, got %s", state)
	}
	_, _ = registry.Execute(context.Background(), "configured", fail)
	if state := registry.Status()["configured"].State; state != "open" {
		t.Errorf("expected open once the minimum is reached, got %s", state)
	}
}
