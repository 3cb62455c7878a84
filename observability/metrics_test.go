package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.ProfileBuildsTotal == nil {
		t.Error("ProfileBuildsTotal is nil")
	}
	if m.NLPQueriesTotal == nil {
		t.Error("NLPQueriesTotal is nil")
	}
	if m.RetryAttemptsTotal == nil {
		t.Error("RetryAttemptsTotal is nil")
	}
	if m.ExternalAPIRequestsTotal == nil {
		t.Error("ExternalAPIRequestsTotal is nil")
	}
	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if m.CircuitBreakerState == nil {
		t.Error("CircuitBreakerState is nil")
	}
}

func TestRecordProfileBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordProfileBuild("yahoo", "success", 100*time.Millisecond)
	m.RecordProfileBuild("yahoo", "success", 50*time.Millisecond)
	m.RecordProfileBuild("alphavantage", "not_found", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.ProfileBuildsTotal.WithLabelValues("yahoo", "success")); got != 2 {
		t.Errorf("Expected yahoo success count to be 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.ProfileBuildsTotal.WithLabelValues("alphavantage", "not_found")); got != 1 {
		t.Errorf("Expected alphavantage not_found count to be 1, got %f", got)
	}
}

func TestRecordSearch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSearch("alphavantage", "success")

	if got := testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("alphavantage", "success")); got != 1 {
		t.Errorf("Expected search count to be 1, got %f", got)
	}
}

func TestRecordNLPQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordNLPQuery("success", true, time.Second)
	m.RecordNLPQuery("success", false, time.Second)
	m.RecordNLPQuery("error", false, time.Second)

	if got := testutil.ToFloat64(m.NLPQueriesTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("Expected success count to be 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.NLPSymbolsResolved); got != 1 {
		t.Errorf("Expected resolved count to be 1, got %f", got)
	}
}

func TestRecordRetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRetry("build_profile")
	m.RecordRetry("build_profile")

	if got := testutil.ToFloat64(m.RetryAttemptsTotal.WithLabelValues("build_profile")); got != 2 {
		t.Errorf("Expected retry count to be 2, got %f", got)
	}
}

func TestRecordExternalAPI(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordExternalAPIRequest("alphavantage", "GLOBAL_QUOTE")
	m.RecordExternalAPIRequest("alphavantage", "GLOBAL_QUOTE")
	m.RecordExternalAPIError("alphavantage", "GLOBAL_QUOTE", "rate_limit")
	m.RecordExternalAPIDuration("yahoo", "quote", 200*time.Millisecond)

	if got := testutil.ToFloat64(m.ExternalAPIRequestsTotal.WithLabelValues("alphavantage", "GLOBAL_QUOTE")); got != 2 {
		t.Errorf("Expected request count to be 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.ExternalAPIErrorsTotal.WithLabelValues("alphavantage", "GLOBAL_QUOTE", "rate_limit")); got != 1 {
		t.Errorf("Expected error count to be 1, got %f", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordHTTPRequest("GET", "/api/health", "200", 10*time.Millisecond, 256)
	m.RecordHTTPRequest("GET", "/api/stock/{symbol}", "500", 50*time.Millisecond, 128)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/health", "200")); got != 1 {
		t.Errorf("Expected GET /api/health 200 count to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/stock/{symbol}", "500")); got != 1 {
		t.Errorf("Expected stock 500 count to be 1, got %f", got)
	}
}

func TestCircuitBreakerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetCircuitBreakerState("openai", 0)
	m.SetCircuitBreakerState("yahoo", 2)

	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("yahoo")); got != 2 {
		t.Errorf("Expected yahoo state to be 2 (open), got %f", got)
	}

	m.RecordCircuitBreakerTrip("yahoo")
	m.RecordCircuitBreakerTrip("yahoo")

	if got := testutil.ToFloat64(m.CircuitBreakerTrips.WithLabelValues("yahoo")); got != 2 {
		t.Errorf("Expected yahoo trips to be 2, got %f", got)
	}
}

func TestTimer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	timer := m.NewTimer()
	time.Sleep(10 * time.Millisecond)

	if d := timer.Duration(); d < 10*time.Millisecond {
		t.Errorf("Expected duration to be at least 10ms, got %v", d)
	}

	timer.ObserveProfile("yahoo", "success")
	timer.ObserveExternalAPI("yahoo", "quote")

	if got := testutil.ToFloat64(m.ProfileBuildsTotal.WithLabelValues("yahoo", "success")); got != 1 {
		t.Errorf("Expected ObserveProfile to count the build, got %f", got)
	}
}

func TestGetMetrics_Singleton(t *testing.T) {
	const callers = 8
	got := make(chan *Metrics, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got <- GetMetrics()
		}()
	}
	wg.Wait()
	close(got)

	first := InitMetrics()
	if first == nil {
		t.Fatal("InitMetrics returned nil")
	}
	for m := range got {
		if m != first {
			t.Error("GetMetrics should return the same instance")
		}
	}
}
