// Package e2e provides end-to-end testing infrastructure for stock-insight.
// The full HTTP stack runs against a mock of the upstream APIs.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stock-insight/config"
	"stock-insight/e2e/mocks"
	"stock-insight/internal/api"
	"stock-insight/internal/app"
)

// TestHarness provides the infrastructure for running E2E tests.
type TestHarness struct {
	t          *testing.T
	ctx        context.Context
	cancel     context.CancelFunc
	mockServer *mocks.MockServer
	app        *app.App
	router     http.Handler
	config     *config.Config
}

// NewTestHarness creates a new test harness with all dependencies initialized.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	h := &TestHarness{
		t:      t,
		ctx:    ctx,
		cancel: cancel,
	}

	return h
}

// Setup initializes all test dependencies.
func (h *TestHarness) Setup() error {
	// Start mock server for external APIs
	h.mockServer = mocks.NewMockServer()

	h.config = h.createTestConfig()

	// Breaker state must not leak between harnesses
	app.ConfigureBreakers(h.config)

	var err error
	h.app, err = app.NewFromConfig(h.ctx, h.config)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	h.app.SetRetrySleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() })

	h.router = api.NewRouter(api.NewHandler(h.app), h.config)

	return nil
}

// Teardown cleans up all test resources.
func (h *TestHarness) Teardown() {
	if h.cancel != nil {
		h.cancel()
	}

	if h.mockServer != nil {
		h.mockServer.Close()
	}
}

// Context returns the test context.
func (h *TestHarness) Context() context.Context {
	return h.ctx
}

// MockServer returns the mock server for configuring responses.
func (h *TestHarness) MockServer() *mocks.MockServer {
	return h.mockServer
}

// App returns the application instance.
func (h *TestHarness) App() *app.App {
	return h.app
}

// Router returns the HTTP router for making requests.
func (h *TestHarness) Router() http.Handler {
	return h.router
}

// Config returns the test configuration.
func (h *TestHarness) Config() *config.Config {
	return h.config
}

// DoRequest performs an HTTP request and returns the response.
func (h *TestHarness) DoRequest(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// DecodeJSON decodes a response body, failing the test on error.
func (h *TestHarness) DecodeJSON(w *httptest.ResponseRecorder, v interface{}) {
	h.t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		h.t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func (h *TestHarness) createTestConfig() *config.Config {
	cfg := config.NewTestConfig()

	// Point every configurable upstream at the mock server
	cfg.AlphaVantage.BaseURL = h.mockServer.AlphaVantageURL()
	cfg.AlphaVantage.APIKey = "e2e-test-key"
	cfg.Yahoo.BaseURL = h.mockServer.URL()

	cfg.LLM.Provider = config.LLMProviderOpenAI
	cfg.OpenAI.APIKey = "sk-e2e-test"
	cfg.OpenAI.BaseURL = h.mockServer.OpenAIURL()

	cfg.HTTP.ClientTimeoutSeconds = 5

	return cfg
}
