package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
)

// ProviderAdapter normalizes one vendor's chat-completion API into a single
// request/response contract. One adapter serves all models of its vendor;
// vendor quirks (temperature-locked model families, response envelopes,
// error shapes) never leak past this interface.
type ProviderAdapter interface {
	// Enhance sends one prompt pair and returns the generated text. Errors
	// are always *ProviderError with a code from the closed taxonomy.
	Enhance(ctx context.Context, model *entities.ModelDescriptor, systemPrompt, userPrompt string, maxOutputTokens int) (string, error)
	// Name returns the provider identifier ("openai", "gemini", ...).
	Name() string
}

// CatalogLister is implemented by adapters that can enumerate the vendor's
// live model catalog, used by the pre-flight validation endpoint.
type CatalogLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// AdapterFactory resolves the adapter for a provider name.
type AdapterFactory interface {
	Adapter(provider string) (ProviderAdapter, error)
	Providers() []string
}

// ContextEnricher is an optional external collaborator (e.g. web search)
// that supplies extra context for a prompt. Only the first chunk of a run
// may use it, to bound latency and cost.
type ContextEnricher interface {
	Enrich(ctx context.Context, topic string) (string, error)
}

// ProviderError is the normalized vendor error.
type ProviderError struct {
	Code       entities.ErrorCode
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error is transient.
func (e *ProviderError) Retryable() bool {
	return e.Code.Retryable()
}

// CodeOf extracts the taxonomy code from any error. Errors that did not come
// through an adapter map to UNKNOWN.
func CodeOf(err error) entities.ErrorCode {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return entities.ErrCodeUpstreamTimeout
	}
	return entities.ErrCodeUnknown
}

// IsRetryable reports whether err is worth retrying with backoff.
func IsRetryable(err error) bool {
	return CodeOf(err).Retryable()
}
