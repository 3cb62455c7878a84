package nlp

import (
	"context"

	"github.com/google/uuid"

	"stock-insight/models"
	"stock-insight/observability"
	"stock-insight/services"
)

const (
	analysisMaxTokens   = 1000
	analysisTemperature = 0.7
	failureResponse     = "I'm sorry, I encountered an error processing your query. Please try again later."
)

// Service answers natural-language questions about stocks
type Service struct {
	llm       services.Completer
	extractor *Extractor
}

// NewService creates a Service. profiles supplies context for the symbol a
// query mentions.
func NewService(llm services.Completer, profiles ContextBuilder) *Service {
	return &Service{
		llm:       llm,
		extractor: NewExtractor(llm, profiles),
	}
}

// Process answers query. Context enrichment failures degrade to a
// context-free answer; a failed completion is reported with Success false.
func (s *Service) Process(ctx context.Context, query string) models.NLPResponse {
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	ctx = observability.ContextWithQueryID(ctx, uuid.NewString())
	log := observability.WithContext(ctx)

	log.Info("processing nlp query", "query_length", len(query))

	stockData := s.extractor.Extract(ctx, query)

	answer, err := s.llm.Complete(ctx, services.CompletionRequest{
		SystemPrompt: SystemPrompt,
		UserPrompt:   FormatUserMessage(query, stockData),
		MaxTokens:    analysisMaxTokens,
		Temperature:  analysisTemperature,
	})
	if err != nil {
		log.Error("nlp completion failed", "error", err)
		metrics.RecordNLPQuery("error", stockData != nil, timer.Duration())
		return models.NLPResponse{
			Response: failureResponse,
			Query:    query,
			Success:  false,
		}
	}

	metrics.RecordNLPQuery("success", stockData != nil, timer.Duration())
	return models.NLPResponse{
		Response:  answer,
		StockData: stockData,
		Query:     query,
		Success:   true,
	}
}
