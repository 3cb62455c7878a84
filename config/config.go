package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DemoAlphaVantageKey is the shared key used when none is configured
const DemoAlphaVantageKey = "demo"

// Supported language-model backends
const (
	LLMProviderOpenAI  = "openai"
	LLMProviderBedrock = "bedrock"
)

// Config holds all application configuration
type Config struct {
	// Market data providers
	AlphaVantage AlphaVantageConfig
	Yahoo        YahooConfig
	Alpaca       AlpacaConfig

	// Language model configuration
	LLM     LLMConfig
	OpenAI  OpenAIConfig
	Bedrock BedrockConfig

	// Rate-limit retry configuration
	Retry RetryConfig

	// Upstream circuit breakers
	Breaker BreakerConfig

	// HTTP configuration
	HTTP HTTPConfig

	// Logging configuration
	Log LogConfig
}

// AlphaVantageConfig holds Alpha Vantage API configuration
type AlphaVantageConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
}

// YahooConfig holds Yahoo Finance configuration
type YahooConfig struct {
	BaseURL string
}

// AlpacaConfig holds Alpaca market data configuration
type AlpacaConfig struct {
	APIKey    string
	APISecret string
}

// LLMConfig selects the language-model backend
type LLMConfig struct {
	Provider string
	// ConcurrencyLimit bounds concurrent natural-language queries
	ConcurrencyLimit int
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, e.g. for a proxy or compatible gateway
	BaseURL string
}

// BedrockConfig holds AWS Bedrock configuration
type BedrockConfig struct {
	Region           string
	ModelID          string
	AnthropicVersion string
}

// RetryConfig controls retries of rate-limited upstream calls
type RetryConfig struct {
	MaxAttempts int
	BaseDelayMS int
}

// BreakerConfig controls when an upstream's circuit breaker opens
type BreakerConfig struct {
	MinRequests    int
	FailurePercent int
	OpenSeconds    int
}

// HTTPConfig holds HTTP server and client configuration
type HTTPConfig struct {
	Port                  int
	ClientTimeoutSeconds  int
	RequestTimeoutSeconds int
	CORSAllowedOrigins    []string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Format string // json or text
	Level  string // debug, info, warn, error
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		AlphaVantage: AlphaVantageConfig{
			APIKey:            getEnvString("ALPHA_VANTAGE_API_KEY", DemoAlphaVantageKey),
			BaseURL:           getEnvString("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
			RequestsPerMinute: getEnvNonNegativeInt("ALPHA_VANTAGE_REQUESTS_PER_MINUTE", 5),
		},
		Yahoo: YahooConfig{
			BaseURL: getEnvString("YAHOO_BASE_URL", "https://query2.finance.yahoo.com"),
		},
		Alpaca: AlpacaConfig{
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
		},
		LLM: LLMConfig{
			Provider:         strings.ToLower(getEnvString("LLM_PROVIDER", LLMProviderOpenAI)),
			ConcurrencyLimit: getEnvInt("LLM_CONCURRENCY_LIMIT", 5),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		Bedrock: BedrockConfig{
			Region:           os.Getenv("AWS_REGION"),
			ModelID:          getEnvString("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),
			AnthropicVersion: getEnvString("BEDROCK_ANTHROPIC_VERSION", "bedrock-2023-05-31"),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelayMS: getEnvInt("RETRY_BASE_DELAY_MS", 1000),
		},
		Breaker: BreakerConfig{
			MinRequests:    getEnvInt("CIRCUIT_BREAKER_MIN_REQUESTS", 5),
			FailurePercent: getEnvInt("CIRCUIT_BREAKER_FAILURE_PERCENT", 50),
			OpenSeconds:    getEnvInt("CIRCUIT_BREAKER_OPEN_SECONDS", 30),
		},
		HTTP: HTTPConfig{
			Port:                  getEnvInt("HTTP_PORT", 5001),
			ClientTimeoutSeconds:  getEnvInt("HTTP_TIMEOUT_SECONDS", 30),
			RequestTimeoutSeconds: getEnvInt("REQUEST_TIMEOUT_SECONDS", 120),
			CORSAllowedOrigins:    getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Format: strings.ToLower(getEnvString("LOG_FORMAT", "text")),
			Level:  strings.ToLower(getEnvString("LOG_LEVEL", "info")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case LLMProviderOpenAI, LLMProviderBedrock:
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", LLMProviderOpenAI, LLMProviderBedrock, c.LLM.Provider)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Breaker.FailurePercent > 100 {
		return fmt.Errorf("CIRCUIT_BREAKER_FAILURE_PERCENT must be at most 100, got %d", c.Breaker.FailurePercent)
	}
	if c.HTTP.ClientTimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive, got %d", c.HTTP.ClientTimeoutSeconds)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be a valid port, got %d", c.HTTP.Port)
	}

	return nil
}

// ValidateLLM reports whether the selected language-model backend has the
// credentials it needs. Without them serve runs with natural-language
// queries disabled and ask refuses to run.
func (c *Config) ValidateLLM() error {
	switch c.LLM.Provider {
	case LLMProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=%s", LLMProviderOpenAI)
		}
	case LLMProviderBedrock:
		if c.Bedrock.Region == "" || c.Bedrock.ModelID == "" {
			return fmt.Errorf("AWS_REGION and BEDROCK_MODEL_ID are required when LLM_PROVIDER=%s", LLMProviderBedrock)
		}
	default:
		return fmt.Errorf("unsupported LLM provider %q", c.LLM.Provider)
	}
	return nil
}

// HasAlpaca returns true if Alpaca configuration is available
func (c *Config) HasAlpaca() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// UsingDemoKey returns true when Alpha Vantage runs on the shared demo key
func (c *Config) UsingDemoKey() bool {
	return c.AlphaVantage.APIKey == DemoAlphaVantageKey
}

// ClientTimeout returns the outbound HTTP client timeout
func (c *Config) ClientTimeout() time.Duration {
	return time.Duration(c.HTTP.ClientTimeoutSeconds) * time.Second
}

// RequestTimeout returns the inbound request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.RequestTimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the first backoff delay
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
}

// BreakerOpenTimeout returns how long an open breaker rejects calls
func (c *Config) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.Breaker.OpenSeconds) * time.Second
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// getEnvNonNegativeInt is getEnvInt for keys where 0 means "off"
func getEnvNonNegativeInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		AlphaVantage: AlphaVantageConfig{
			APIKey:            DemoAlphaVantageKey,
			BaseURL:           "https://www.alphavantage.co/query",
			RequestsPerMinute: 0,
		},
		Yahoo: YahooConfig{
			BaseURL: "https://query2.finance.yahoo.com",
		},
		Alpaca: AlpacaConfig{
			APIKey:    "",
			APISecret: "",
		},
		LLM: LLMConfig{
			Provider:         LLMProviderOpenAI,
			ConcurrencyLimit: 2,
		},
		OpenAI: OpenAIConfig{
			APIKey: "",
			Model:  "gpt-4o-mini",
		},
		Bedrock: BedrockConfig{
			ModelID:          "anthropic.claude-3-haiku-20240307-v1:0",
			AnthropicVersion: "bedrock-2023-05-31",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelayMS: 1,
		},
		Breaker: BreakerConfig{
			MinRequests:    5,
			FailurePercent: 50,
			OpenSeconds:    30,
		},
		HTTP: HTTPConfig{
			Port:                  5001,
			ClientTimeoutSeconds:  5,
			RequestTimeoutSeconds: 30,
			CORSAllowedOrigins:    []string{"*"},
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}
