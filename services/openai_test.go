package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockOpenAIClient implements openaiClient for testing
type mockOpenAIClient struct {
	completionFunc func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

func (m *mockOpenAIClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return m.completionFunc(ctx, params)
}

func replyWith(content string) func(context.Context, openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
		return &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: content}},
			},
		}, nil
	}
}

func TestNewOpenAIService_MissingAPIKey(t *testing.T) {
	_, err := NewOpenAIService("", "gpt-3.5-turbo", "")
	if err == nil {
		t.Fatal("expected error when API key is missing")
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY is required") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestNewOpenAIService_WithAPIKey(t *testing.T) {
	service, err := NewOpenAIService("test-api-key", "gpt-4o-mini", "http://localhost:1/v1/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service.model != "gpt-4o-mini" {
		t.Errorf("model = %s, want gpt-4o-mini", service.model)
	}
}

func TestOpenAIComplete_Success(t *testing.T) {
	useTestRegistry(t)

	var got openai.ChatCompletionNewParams
	mockClient := &mockOpenAIClient{
		completionFunc: func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
			got = params
			return replyWith("AAPL")(ctx, params)
		},
	}
	service := newOpenAIServiceWithClient(mockClient, "gpt-3.5-turbo")

	result, err := service.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "extract",
		UserPrompt:   "How is Apple doing?",
		MaxTokens:    50,
		Temperature:  0.1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "AAPL" {
		t.Errorf("expected 'AAPL', got '%s'", result)
	}
	if len(got.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(got.Messages))
	}
	if string(got.Model) != "gpt-3.5-turbo" {
		t.Errorf("model = %s", got.Model)
	}
	if got.MaxTokens.Value != 50 {
		t.Errorf("max tokens = %d, want 50", got.MaxTokens.Value)
	}
	if got.Temperature.Value != 0.1 {
		t.Errorf("temperature = %v, want 0.1", got.Temperature.Value)
	}
}

func TestOpenAIComplete_NoSystemPrompt(t *testing.T) {
	useTestRegistry(t)

	mockClient := &mockOpenAIClient{
		completionFunc: func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
			if len(params.Messages) != 1 {
				t.Errorf("expected only the user message, got %d", len(params.Messages))
			}
			return replyWith("ok")(ctx, params)
		},
	}
	service := newOpenAIServiceWithClient(mockClient, "gpt-4o")

	if _, err := service.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenAIComplete_APIError(t *testing.T) {
	useTestRegistry(t)

	mockClient := &mockOpenAIClient{
		completionFunc: func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
			return nil, errors.New("API error")
		},
	}
	service := newOpenAIServiceWithClient(mockClient, "gpt-4o")

	_, err := service.Complete(context.Background(), CompletionRequest{UserPrompt: "user"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "failed to invoke OpenAI") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestOpenAIComplete_EmptyChoices(t *testing.T) {
	useTestRegistry(t)

	mockClient := &mockOpenAIClient{
		completionFunc: func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
			return &openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}, nil
		},
	}
	service := newOpenAIServiceWithClient(mockClient, "gpt-4o")

	_, err := service.Complete(context.Background(), CompletionRequest{UserPrompt: "user"})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
	if !strings.Contains(err.Error(), "empty response from OpenAI") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestCategorizeAPIError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{errors.New("context deadline exceeded"), "timeout"},
		{errors.New("429 Too Many Requests"), "rate_limit"},
		{errors.New("ThrottlingException: slow down"), "rate_limit"},
		{errors.New("401 Unauthorized"), "auth_error"},
		{errors.New("connection refused"), "connection_error"},
		{errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		if got := categorizeAPIError(tt.err); got != tt.want {
			t.Errorf("categorizeAPIError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
