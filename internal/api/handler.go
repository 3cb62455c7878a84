package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"stock-insight/aggregator"
	"stock-insight/internal/app"
	"stock-insight/observability"
	"stock-insight/services"
)

const maxRequestBodyBytes = 64 << 10

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
}

// NewHandler creates a new Handler
func NewHandler(application *app.App) *Handler {
	return &Handler{app: application}
}

// NLPQueryRequest is the body of POST /api/nlp-query
type NLPQueryRequest struct {
	Query *string `json:"query"`
}

// HandleHealth returns the liveness flag and circuit breaker states
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	registry := services.GetGlobalRegistry()
	status := map[string]interface{}{
		"status":           "healthy",
		"providers":        h.app.Providers(),
		"nlp_enabled":      h.app.NLPEnabled(),
		"circuit_breakers": registry.Status(),
	}
	if len(registry.Open()) > 0 {
		status["status"] = "degraded"
	}

	h.jsonResponse(w, status)
}

// HandleGetStock returns the Yahoo-backed profile. Every failure is a 500.
func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	h.profile(w, r, services.ProviderYahoo, false)
}

// HandleGetAVStock returns the Alpha Vantage profile. A missing quote is a 404.
func (h *Handler) HandleGetAVStock(w http.ResponseWriter, r *http.Request) {
	h.profile(w, r, services.ProviderAlphaVantage, true)
}

// HandleGetAlpacaStock returns the Alpaca profile when Alpaca is configured
func (h *Handler) HandleGetAlpacaStock(w http.ResponseWriter, r *http.Request) {
	if !h.app.HasProvider(services.ProviderAlpaca) {
		h.jsonError(w, "Alpaca provider is not configured", http.StatusServiceUnavailable)
		return
	}
	h.profile(w, r, services.ProviderAlpaca, true)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request, provider string, notFoundIs404 bool) {
	symbol := chi.URLParam(r, "symbol")
	if err := ValidateSymbol(symbol); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile, err := h.app.Profile(r.Context(), provider, symbol)
	if err != nil {
		observability.WithSymbol(symbol).Error("profile request failed", "provider", provider, "error", err)
		if notFoundIs404 && errors.Is(err, aggregator.ErrNotFound) {
			h.jsonError(w, fmt.Sprintf("No quote data found for %s", symbol), http.StatusNotFound)
			return
		}
		h.jsonError(w, fmt.Sprintf("Failed to fetch data for %s", symbol), http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, profile)
}

// HandleSearch searches symbols with Yahoo
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, services.ProviderYahoo)
}

// HandleAVSearch searches symbols with Alpha Vantage
func (h *Handler) HandleAVSearch(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, services.ProviderAlphaVantage)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, provider string) {
	query := chi.URLParam(r, "query")
	if strings.TrimSpace(query) == "" {
		h.jsonError(w, "Query is required", http.StatusBadRequest)
		return
	}

	results, err := h.app.Search(r.Context(), provider, query)
	if err != nil {
		observability.Error("search request failed", "provider", provider, "query", query, "error", err)
		h.jsonError(w, fmt.Sprintf("Failed to search for %s", query), http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, results)
}

// HandleTestStock returns the fixed mock profile without calling any provider
func (h *Handler) HandleTestStock(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, aggregator.MockProfile(chi.URLParam(r, "symbol")))
}

// HandleNLPQuery answers a natural-language question about stocks
func (h *Handler) HandleNLPQuery(w http.ResponseWriter, r *http.Request) {
	var req NLPQueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		h.jsonError(w, "Query is required", http.StatusBadRequest)
		return
	}
	if req.Query == nil {
		h.jsonError(w, "Query is required", http.StatusBadRequest)
		return
	}
	query := strings.TrimSpace(*req.Query)
	if query == "" {
		h.jsonError(w, "Query cannot be empty", http.StatusBadRequest)
		return
	}

	resp, err := h.app.Ask(r.Context(), query)
	switch {
	case errors.Is(err, app.ErrNLPUnavailable):
		h.jsonError(w, "Natural language queries are not configured", http.StatusServiceUnavailable)
		return
	case errors.Is(err, app.ErrBusy):
		h.jsonError(w, "Too many concurrent queries, try again later", http.StatusTooManyRequests)
		return
	case err != nil:
		observability.Error("nlp query failed", "error", err)
		h.jsonError(w, "Failed to process query", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, resp)
}

// ValidateSymbol rejects blank or oversized symbols. The format is otherwise
// left to the provider.
func ValidateSymbol(symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long (max 20 characters)")
	}
	return nil
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
