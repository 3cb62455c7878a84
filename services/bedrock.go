package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"stock-insight/observability"
)

const defaultAnthropicVersion = "bedrock-2023-05-31"

// bedrockClient is the subset of *bedrockruntime.Client used here
type bedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockService completes prompts with Claude models hosted on AWS Bedrock
type BedrockService struct {
	client           bedrockClient
	model            string
	anthropicVersion string
}

// ClaudeRequest represents the request format for Claude models via Bedrock
type ClaudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      *float64        `json:"temperature,omitempty"`
	System           string          `json:"system,omitempty"`
	Messages         []ClaudeMessage `json:"messages"`
}

// ClaudeMessage represents a message in the Claude conversation
type ClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClaudeResponse represents the response from Claude models
type ClaudeResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewBedrockService creates a new BedrockService using the default AWS credential chain
func NewBedrockService(ctx context.Context, region, modelID, anthropicVersion string) (*BedrockService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return newBedrockServiceWithClient(bedrockruntime.NewFromConfig(cfg), modelID, anthropicVersion), nil
}

func newBedrockServiceWithClient(client bedrockClient, modelID, anthropicVersion string) *BedrockService {
	if anthropicVersion == "" {
		anthropicVersion = defaultAnthropicVersion
	}
	return &BedrockService{
		client:           client,
		model:            modelID,
		anthropicVersion: anthropicVersion,
	}
}

// Complete sends a single-turn request and returns the first text block
func (s *BedrockService) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerBedrock, "complete")
	timer := metrics.NewTimer()

	result, err := WithCircuitBreaker(ctx, BreakerBedrock, func() (string, error) {
		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 1000
		}
		temperature := req.Temperature

		reqBody, err := json.Marshal(ClaudeRequest{
			AnthropicVersion: s.anthropicVersion,
			MaxTokens:        maxTokens,
			Temperature:      &temperature,
			System:           req.SystemPrompt,
			Messages: []ClaudeMessage{
				{Role: "user", Content: req.UserPrompt},
			},
		})
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}

		output, err := s.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(s.model),
			Body:        reqBody,
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
		})
		if err != nil {
			return "", fmt.Errorf("failed to invoke model: %w", err)
		}

		var response ClaudeResponse
		if err := json.Unmarshal(output.Body, &response); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}

		for _, block := range response.Content {
			if block.Type == "" || block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", fmt.Errorf("empty response from model")
	})

	timer.ObserveExternalAPI(BreakerBedrock, "complete")
	if err != nil {
		metrics.RecordExternalAPIError(BreakerBedrock, "complete", categorizeAPIError(err))
	}
	return result, err
}
