package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// Gemini adapts Google's generative language API, which speaks its own
// protocol rather than the OpenAI one.
type Gemini struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGemini creates a Gemini adapter.
func NewGemini(apiKey, baseURL string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &Gemini{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}, nil
}

// Name returns the provider identifier.
func (g *Gemini) Name() string {
	return "gemini"
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

type geminiErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Enhance sends one generateContent call and returns the generated text.
func (g *Gemini) Enhance(ctx context.Context, model *entities.ModelDescriptor, systemPrompt, userPrompt string, maxOutputTokens int) (string, error) {
	payload := geminiGenerateRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userPrompt}}}},
	}
	payload.GenerationConfig.MaxOutputTokens = maxOutputTokens
	payload.GenerationConfig.Temperature = defaultTemperature

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, model.ModelKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		recordLLMMetric(ctx, "gemini", model.ModelKey, 0, time.Since(start), err)
		return "", normalizeError("gemini", 0, err.Error(), err)
	}
	defer resp.Body.Close()
	recordLLMMetric(ctx, "gemini", model.ModelKey, resp.StatusCode, time.Since(start), nil)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", normalizeError("gemini", resp.StatusCode, g.errorMessage(resp.Body), nil)
	}

	var envelope geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", normalizeError("gemini", resp.StatusCode, "failed to decode response", err)
	}

	var text strings.Builder
	for _, candidate := range envelope.Candidates {
		for _, part := range candidate.Content.Parts {
			text.WriteString(part.Text)
		}
		break
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", emptyResponseError("gemini")
	}
	return out, nil
}

// ListModels enumerates the vendor's live model catalog. Gemini names models
// "models/<key>"; the prefix is stripped so keys match the registry.
func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1beta/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, normalizeError("gemini", 0, err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, normalizeError("gemini", resp.StatusCode, g.errorMessage(resp.Body), nil)
	}

	var envelope struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, normalizeError("gemini", resp.StatusCode, "failed to decode model list", err)
	}

	ids := make([]string, 0, len(envelope.Models))
	for _, m := range envelope.Models {
		ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
	}
	return ids, nil
}

func (g *Gemini) errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var envelope geminiErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return string(raw)
}
