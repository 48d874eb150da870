package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
)

const defaultTemperature = 0.3

// reasoningFamilies are model families that reject an explicit temperature;
// requests to them send none and let the vendor default apply.
var reasoningFamilies = []string{"o1", "o3", "o4", "gpt-5"}

// OpenAICompatible adapts any vendor speaking the OpenAI chat-completion
// protocol. OpenAI itself, Groq and Together all differ only in base URL and
// API key.
type OpenAICompatible struct {
	name   string
	client *openai.Client
}

// NewOpenAICompatible creates an adapter for one OpenAI-protocol vendor.
// baseURL may be empty for OpenAI proper.
func NewOpenAICompatible(name, apiKey, baseURL string) (*OpenAICompatible, error) {
	if apiKey == "" {
		return nil, errors.New(name + " api key is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAICompatible{
		name:   name,
		client: openai.NewClientWithConfig(cfg),
	}, nil
}

// Name returns the provider identifier.
func (a *OpenAICompatible) Name() string {
	return a.name
}

// Enhance sends one chat completion and returns the generated text.
func (a *OpenAICompatible) Enhance(ctx context.Context, model *entities.ModelDescriptor, systemPrompt, userPrompt string, maxOutputTokens int) (string, error) {
	request := openai.ChatCompletionRequest{
		Model: model.ModelKey,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens: maxOutputTokens,
	}
	if !isReasoningModel(model.ModelKey) {
		request.Temperature = defaultTemperature
	}

	start := time.Now()
	response, err := a.client.CreateChatCompletion(ctx, request)
	duration := time.Since(start)

	if err != nil {
		statusCode, message := unwrapOpenAIError(err)
		recordLLMMetric(ctx, a.name, model.ModelKey, statusCode, duration, err)
		return "", normalizeError(a.name, statusCode, message, err)
	}
	recordLLMMetric(ctx, a.name, model.ModelKey, 200, duration, nil)

	if len(response.Choices) == 0 {
		return "", emptyResponseError(a.name)
	}
	text := strings.TrimSpace(response.Choices[0].Message.Content)
	if text == "" {
		return "", emptyResponseError(a.name)
	}
	return text, nil
}

// ListModels enumerates the vendor's live model catalog.
func (a *OpenAICompatible) ListModels(ctx context.Context) ([]string, error) {
	list, err := a.client.ListModels(ctx)
	if err != nil {
		statusCode, message := unwrapOpenAIError(err)
		return nil, normalizeError(a.name, statusCode, message, err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// unwrapOpenAIError pulls the HTTP status and vendor message out of the
// client library's error types.
func unwrapOpenAIError(err error) (int, string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, reqErr.Error()
	}
	return 0, err.Error()
}

func isReasoningModel(modelKey string) bool {
	lower := strings.ToLower(modelKey)
	for _, family := range reasoningFamilies {
		if lower == family || strings.HasPrefix(lower, family+"-") {
			return true
		}
	}
	return false
}
