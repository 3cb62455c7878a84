package app

import (
	"context"
	"fmt"

	"stock-insight/aggregator"
	"stock-insight/config"
	"stock-insight/nlp"
	"stock-insight/observability"
	"stock-insight/services"
)

// NewFromConfig constructs the production providers, the language model and
// the App. A missing language model leaves natural-language queries disabled.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	timeout := cfg.ClientTimeout()

	alphaVantage := aggregator.New(services.NewAlphaVantageService(cfg.AlphaVantage.APIKey,
		services.WithAlphaVantageBaseURL(cfg.AlphaVantage.BaseURL),
		services.WithAlphaVantageTimeout(timeout),
		services.WithAlphaVantageRateLimit(cfg.AlphaVantage.RequestsPerMinute),
	), aggregator.WithHistorySize(services.OutputCompact))

	yahoo := aggregator.New(services.NewYahooService(
		services.WithYahooBaseURL(cfg.Yahoo.BaseURL),
		services.WithYahooTimeout(timeout),
	))

	builders := []ProfileBuilder{alphaVantage, yahoo}
	if cfg.HasAlpaca() {
		builders = append(builders, aggregator.New(services.NewAlpacaService(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret,
			services.WithAlpacaTimeout(timeout),
		)))
	} else {
		observability.Info("alpaca credentials not set, alpaca provider disabled")
	}

	var processor QueryProcessor
	completer, err := NewCompleter(ctx, cfg)
	if err != nil {
		observability.Warn("language model unavailable, natural-language queries disabled", "error", err)
	} else {
		processor = nlp.NewService(completer, alphaVantage)
	}

	observability.Info("application wired",
		"alpha_vantage_demo_key", cfg.UsingDemoKey(),
		"llm_provider", cfg.LLM.Provider,
		"nlp_enabled", processor != nil)

	return New(cfg, processor, builders...), nil
}

// NewCompleter builds the language-model backend selected by LLM_PROVIDER
func NewCompleter(ctx context.Context, cfg *config.Config) (services.Completer, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}

	switch cfg.LLM.Provider {
	case config.LLMProviderBedrock:
		return services.NewBedrockService(ctx, cfg.Bedrock.Region, cfg.Bedrock.ModelID, cfg.Bedrock.AnthropicVersion)
	case config.LLMProviderOpenAI:
		return services.NewOpenAIService(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLM.Provider)
	}
}

// ConfigureBreakers installs a global breaker registry with the configured
// trip settings. It must run before any upstream call.
func ConfigureBreakers(cfg *config.Config) {
	services.SetGlobalRegistry(services.NewCircuitBreakerRegistry(services.CircuitBreakerConfig{
		MaxRequests:  services.DefaultCircuitBreakerConfig.MaxRequests,
		Interval:     services.DefaultCircuitBreakerConfig.Interval,
		Timeout:      cfg.BreakerOpenTimeout(),
		MinRequests:  uint32(cfg.Breaker.MinRequests),
		FailureRatio: float64(cfg.Breaker.FailurePercent) / 100,
	}))
}
