package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/shared"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

const transcriptionPrompt = `You are an expert medical transcriptionist specializing in deciphering and accurately transcribing handwritten medical prescriptions. Analyze the provided prescription images and extract all relevant information with the highest degree of precision.

Extract the following details:
1. Patient's full name
2. Patient's age (handle formats like "42y", "42yrs", "42", "42 years")
3. Patient's gender
4. Doctor's full name
5. Doctor's license number
6. Prescription date (YYYY-MM-DD)
7. Medications, each with name, dosage, frequency, duration, purpose, usage_instruction, safety_warning (pregnancy and interaction safety) and dosage_suggestion
8. Additional notes or instructions, as detailed bullet points

Return a valid JSON object with the keys:
patient_name, patient_age, patient_gender, doctor_name, doctor_license, prescription_date, medications, additional_notes.

If a portion of the image is not clear, use the value "Not available". Do not make up values.`

// OpenAIClient wraps the Azure OpenAI SDK with retry logic and logging
type OpenAIClient struct {
	client      *openai.Client
	deployment  string
	logger      *zap.Logger
	maxRetries  int
	baseDelay   time.Duration
	temperature float64
}

// NewOpenAIClient creates a new Azure OpenAI client using the openai-go SDK with Azure extensions
func NewOpenAIClient(endpoint, apiKey, deployment string, logger *zap.Logger) (*OpenAIClient, error) {
	if endpoint == "" || apiKey == "" || deployment == "" {
		return nil, fmt.Errorf("endpoint, apiKey, and deployment are required")
	}

	client := openai.NewClient(
		azure.WithEndpoint(endpoint, "2024-08-01-preview"),
		azure.WithAPIKey(apiKey),
	)

	return &OpenAIClient{
		client:      &client,
		deployment:  deployment,
		logger:      logger,
		maxRetries:  3,
		baseDelay:   time.Second,
		temperature: 0.5,
	}, nil
}

// AnalyzePrescription transcribes one or more base64 encoded prescription
// images (no data-URI prefix) into a structured result.
func (c *OpenAIClient) AnalyzePrescription(ctx context.Context, images []string) (*model.AnalysisResult, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("at least one image is required")
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(transcriptionPrompt),
	}
	for _, img := range images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:image/jpeg;base64," + img,
		}))
	}

	content, err := c.Complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(parts),
	})
	if err != nil {
		return nil, err
	}

	return parseAnalysis(content)
}

// parseAnalysis decodes the model output, tolerating a fenced code block
func parseAnalysis(content string) (*model.AnalysisResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, fmt.Errorf("model output is not a JSON object: %w", err)
	}
	if _, ok := fields["medications"]; !ok {
		return nil, errors.New("model output has no medications field")
	}

	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("model output does not match analysis result: %w", err)
	}
	return &result, nil
}

// Complete sends a JSON-mode chat completion request with retry logic
func (c *OpenAIClient) Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	startTime := time.Now()
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Info("retrying Azure OpenAI request",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.complete(ctx, messages)
		if err == nil {
			c.logger.Info("Azure OpenAI request completed",
				zap.Duration("processing_time", time.Since(startTime)),
				zap.Int("attempts", attempt+1),
			)
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(ctx, err) {
			c.logger.Error("non-retryable Azure OpenAI error",
				zap.Error(err),
				zap.Int("attempt", attempt+1),
			)
			break
		}

		c.logger.Warn("Azure OpenAI request failed, will retry",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
		)
	}

	c.logger.Error("Azure OpenAI request failed",
		zap.Error(lastErr),
		zap.Duration("total_time", time.Since(startTime)),
	)

	return "", fmt.Errorf("Azure OpenAI request failed: %w", lastErr)
}

// complete performs a single chat completion request
func (c *OpenAIClient) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	requestStart := time.Now()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.deployment),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from Azure OpenAI")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty content in response")
	}

	c.logger.Info("Azure OpenAI token usage",
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("request_time", time.Since(requestStart)),
	)

	return content, nil
}

// isRetryable determines if an error should trigger a retry
func (c *OpenAIClient) isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{"authentication", "unauthorized", "401", "invalid", "bad request", "400"} {
		if strings.Contains(errStr, marker) {
			return false
		}
	}

	// rate limits, timeouts and network errors
	return true
}
