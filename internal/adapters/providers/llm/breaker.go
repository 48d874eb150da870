package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/providers"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/observability"
)

// breakerAdapter wraps a provider adapter in a circuit breaker so a vendor
// outage sheds load fast instead of burning every request's full timeout.
// The registry's auto-quarantine works per model; the breaker works per
// vendor and recovers on its own.
type breakerAdapter struct {
	inner   providers.ProviderAdapter
	breaker *gobreaker.CircuitBreaker
}

func withBreaker(inner providers.ProviderAdapter) providers.ProviderAdapter {
	settings := gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// only transport-level failures trip the breaker; a 4xx means
			// the vendor is up and answering
			code := providers.CodeOf(err)
			return code != entities.ErrCodeUpstreamTimeout
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.GetLogger().Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Provider circuit breaker state changed")
		},
	}
	return &breakerAdapter{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerAdapter) Name() string {
	return b.inner.Name()
}

func (b *breakerAdapter) Enhance(ctx context.Context, model *entities.ModelDescriptor, systemPrompt, userPrompt string, maxOutputTokens int) (string, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Enhance(ctx, model, systemPrompt, userPrompt, maxOutputTokens)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", &providers.ProviderError{
				Code:     entities.ErrCodeUpstreamTimeout,
				Provider: b.inner.Name(),
				Message:  "provider circuit breaker is open",
				Err:      err,
			}
		}
		return "", err
	}
	return out.(string), nil
}

// ListModels passes through to the inner adapter when it supports catalogs.
func (b *breakerAdapter) ListModels(ctx context.Context) ([]string, error) {
	lister, ok := b.inner.(providers.CatalogLister)
	if !ok {
		return nil, errors.New(b.inner.Name() + " does not expose a model catalog")
	}
	return lister.ListModels(ctx)
}
