package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/providers"
)

// overflowMarkers are the phrases vendors use for a request that exceeded
// the model's context window. No vendor agrees on a status code for this, so
// the message is part of the contract.
var overflowMarkers = []string{
	"context length",
	"context window",
	"maximum context",
	"too many tokens",
	"token limit",
	"prompt is too long",
	"input too long",
}

// classifyStatus maps an HTTP status plus the vendor message into the closed
// error taxonomy. 5xx is treated as transient and retryable.
func classifyStatus(statusCode int, message string) entities.ErrorCode {
	if isOverflowMessage(message) {
		return entities.ErrCodeTokenOverflow
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return entities.ErrCodeAuthFailed
	case statusCode == http.StatusNotFound:
		return entities.ErrCodeModelUnavailable
	case statusCode == http.StatusTooManyRequests:
		return entities.ErrCodeRateLimited
	case statusCode == http.StatusRequestTimeout:
		return entities.ErrCodeUpstreamTimeout
	case statusCode == http.StatusRequestEntityTooLarge || statusCode == http.StatusUnprocessableEntity:
		return entities.ErrCodeTokenOverflow
	case statusCode >= 500:
		return entities.ErrCodeUpstreamTimeout
	}
	return entities.ErrCodeUnknown
}

func isOverflowMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range overflowMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// normalizeError wraps any adapter-level error as a *ProviderError. Context
// deadlines become UPSTREAM_TIMEOUT so a slow vendor is retried like a 5xx.
func normalizeError(provider string, statusCode int, message string, err error) *providers.ProviderError {
	code := classifyStatus(statusCode, message)
	if code == entities.ErrCodeUnknown {
		if errors.Is(err, context.DeadlineExceeded) {
			code = entities.ErrCodeUpstreamTimeout
		}
	}
	return &providers.ProviderError{
		Code:       code,
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// emptyResponseError is the failure for a 200 with no usable text.
func emptyResponseError(provider string) *providers.ProviderError {
	return &providers.ProviderError{
		Code:     entities.ErrCodeEmptyResponse,
		Provider: provider,
		Message:  "provider returned an empty completion",
	}
}
