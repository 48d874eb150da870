package llm

import (
	"fmt"
	"sort"

	"github.com/scribeflow/scribeflow/backend/internal/domain/providers"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/observability"
	"github.com/scribeflow/scribeflow/backend/pkg/config"
)

// Factory holds one adapter per configured vendor. Vendors without an API
// key are simply absent; requests naming them fail at validation.
type Factory struct {
	adapters map[string]providers.ProviderAdapter
}

// NewFactory builds adapters for every vendor with credentials.
func NewFactory(cfg config.ProvidersConfig) *Factory {
	f := &Factory{adapters: make(map[string]providers.ProviderAdapter)}

	type vendor struct {
		name    string
		apiKey  string
		baseURL string
	}
	for _, v := range []vendor{
		{"openai", cfg.OpenAIAPIKey, cfg.OpenAIBaseURL},
		{"groq", cfg.GroqAPIKey, cfg.GroqBaseURL},
		{"together", cfg.TogetherAPIKey, cfg.TogetherBaseURL},
	} {
		if v.apiKey == "" {
			continue
		}
		adapter, err := NewOpenAICompatible(v.name, v.apiKey, v.baseURL)
		if err != nil {
			observability.GetLogger().Warn().Err(err).Str("provider", v.name).Msg("Skipping provider")
			continue
		}
		f.adapters[v.name] = withBreaker(adapter)
	}

	if cfg.GeminiAPIKey != "" {
		adapter, err := NewGemini(cfg.GeminiAPIKey, cfg.GeminiBaseURL)
		if err != nil {
			observability.GetLogger().Warn().Err(err).Str("provider", "gemini").Msg("Skipping provider")
		} else {
			f.adapters["gemini"] = withBreaker(adapter)
		}
	}

	return f
}

// Adapter resolves the adapter for a provider name.
func (f *Factory) Adapter(provider string) (providers.ProviderAdapter, error) {
	adapter, ok := f.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", provider)
	}
	return adapter, nil
}

// Providers lists the configured provider names, sorted.
func (f *Factory) Providers() []string {
	names := make([]string, 0, len(f.adapters))
	for name := range f.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
