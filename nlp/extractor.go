package nlp

import (
	"context"
	"fmt"
	"strings"

	"stock-insight/models"
	"stock-insight/observability"
	"stock-insight/services"
)

const (
	noSymbolsSentinel     = "NONE"
	extractionMaxTokens   = 50
	extractionTemperature = 0.1
)

const extractionPrompt = `Extract any stock symbols (ticker symbols) mentioned in this query.
Return only the symbol(s) in uppercase, separated by commas if multiple.
If no stock symbols are found, return "NONE".

Query: %s

Stock symbols:`

// ContextBuilder fetches the reduced stock data attached to a query
type ContextBuilder interface {
	BuildContext(ctx context.Context, symbol string) *models.StockContext
}

// Extractor finds the ticker a free-text query refers to and fetches context for it
type Extractor struct {
	llm      services.Completer
	profiles ContextBuilder
}

// NewExtractor creates an Extractor
func NewExtractor(llm services.Completer, profiles ContextBuilder) *Extractor {
	return &Extractor{llm: llm, profiles: profiles}
}

// Extract returns stock context for the first symbol mentioned in query, or
// nil when none is found or any step fails. Only the first symbol is used.
func (e *Extractor) Extract(ctx context.Context, query string) *models.StockContext {
	log := observability.WithContext(ctx)

	reply, err := e.llm.Complete(ctx, services.CompletionRequest{
		UserPrompt:  fmt.Sprintf(extractionPrompt, query),
		MaxTokens:   extractionMaxTokens,
		Temperature: extractionTemperature,
	})
	if err != nil {
		log.Warn("symbol extraction failed", "error", err)
		return nil
	}

	symbols := ExtractSymbols(reply)
	if len(symbols) == 0 {
		log.Debug("no symbols in query")
		return nil
	}

	log.Info("symbol extracted", "symbol", symbols[0], "candidates", len(symbols))
	return e.profiles.BuildContext(ctx, symbols[0])
}

// ExtractSymbols parses a comma-separated model reply into uppercase tickers.
// An empty reply or the NONE sentinel yields nil.
func ExtractSymbols(reply string) []string {
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, noSymbolsSentinel) {
		return nil
	}

	var symbols []string
	for _, part := range strings.Split(reply, ",") {
		symbol := strings.ToUpper(strings.TrimSpace(part))
		if symbol == "" || symbol == noSymbolsSentinel {
			continue
		}
		symbols = append(symbols, symbol)
	}
	return symbols
}
