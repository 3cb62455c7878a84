// Package main provides a standalone HTTP server for E2E testing.
// It runs the same routes and handlers as stock-insight serve, with every
// upstream API answered by the in-process mock server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-insight/config"
	"stock-insight/e2e/mocks"
	"stock-insight/internal/api"
	"stock-insight/internal/app"
	"stock-insight/observability"
)

func main() {
	observability.InitLoggerFromConfig("text", "debug")
	observability.InitMetrics()

	port := os.Getenv("E2E_SERVER_PORT")
	if port == "" {
		port = "9090"
	}

	upstream := mocks.NewMockServer()
	defer upstream.Close()
	observability.Info("mock upstream started", "url", upstream.URL())

	cfg := config.NewTestConfig()
	cfg.AlphaVantage.BaseURL = upstream.AlphaVantageURL()
	cfg.Yahoo.BaseURL = upstream.URL()
	cfg.OpenAI.APIKey = "sk-e2e-test"
	cfg.OpenAI.BaseURL = upstream.OpenAIURL()

	app.ConfigureBreakers(cfg)
	ctx := context.Background()

	application, err := app.NewFromConfig(ctx, cfg)
	if err != nil {
		observability.Fatal("failed to initialize application", "error", err)
	}

	// Create HTTP router
	router := api.NewRouter(api.NewHandler(application), cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		observability.Info("starting E2E test server", "port", port, "url", fmt.Sprintf("http://localhost:%s", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("shutting down E2E test server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Fatal("server forced to shutdown", "error", err)
	}

	observability.Info("E2E test server stopped")
}
