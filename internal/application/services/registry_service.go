package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/providers"
	"github.com/scribeflow/scribeflow/backend/internal/domain/repositories"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/observability"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

const catalogCacheKeyPrefix = "model_catalog:"

// RegistryService fronts the model registry: usability checks before a call,
// outcome recording after, and pre-flight validation against the vendor's
// live catalog. Descriptors are read fresh on every check so an admin flip
// of is_active takes effect on the next request.
type RegistryService struct {
	repo            repositories.ModelRegistryRepository
	cache           providers.CacheProvider
	factory         providers.AdapterFactory
	catalogCacheTTL int
}

// NewRegistryService creates a registry service. cache may be nil, in which
// case catalog validation always hits the vendor.
func NewRegistryService(repo repositories.ModelRegistryRepository, cache providers.CacheProvider, factory providers.AdapterFactory, catalogCacheTTLSeconds int) *RegistryService {
	if catalogCacheTTLSeconds <= 0 {
		catalogCacheTTLSeconds = 3600
	}
	return &RegistryService{
		repo:            repo,
		cache:           cache,
		factory:         factory,
		catalogCacheTTL: catalogCacheTTLSeconds,
	}
}

// IsUsable returns the descriptor when the (provider, model) pair exists and
// is active. Inactive models fail with the stored disabled reason.
func (s *RegistryService) IsUsable(ctx context.Context, provider, modelKey string) (*entities.ModelDescriptor, error) {
	model, err := s.repo.GetByKey(ctx, provider, modelKey)
	if err != nil {
		return nil, err
	}
	if !model.IsActive {
		reason := model.DisabledReason
		if reason == "" {
			reason = "model is disabled"
		}
		return nil, apperrors.NewValidationError(fmt.Sprintf("model %s/%s is not available: %s", provider, modelKey, reason))
	}
	return model, nil
}

// ListActive returns every model currently enabled for selection.
func (s *RegistryService) ListActive(ctx context.Context) ([]*entities.ModelDescriptor, error) {
	return s.repo.ListActive(ctx)
}

// Create registers a new model descriptor.
func (s *RegistryService) Create(ctx context.Context, model *entities.ModelDescriptor) error {
	if model.Provider == "" || model.ModelKey == "" {
		return apperrors.NewValidationError("provider and model_key are required")
	}
	return s.repo.Create(ctx, model)
}

// RecordSuccess folds a successful call into the model's health statistics.
func (s *RegistryService) RecordSuccess(ctx context.Context, provider, modelKey string, latencyMS int) error {
	_, err := s.repo.UpdateOutcome(ctx, provider, modelKey, func(m *entities.ModelDescriptor) {
		m.RecordSuccess(latencyMS)
	})
	return err
}

// RecordFailure folds a failed call into the model's health statistics and
// applies the auto-quarantine policy.
func (s *RegistryService) RecordFailure(ctx context.Context, provider, modelKey string, code entities.ErrorCode) error {
	var quarantined bool
	model, err := s.repo.UpdateOutcome(ctx, provider, modelKey, func(m *entities.ModelDescriptor) {
		quarantined = m.RecordFailure(string(code))
	})
	if err != nil {
		return err
	}

	if quarantined {
		observability.LoggerFromContext(ctx).Warn().
			Str("provider", provider).
			Str("model_key", modelKey).
			Float64("error_rate", model.ErrorRate).
			Int("consecutive_errors", model.ConsecutiveErrors).
			Str("reason", model.DisabledReason).
			Msg("Model auto-quarantined")
	}
	return nil
}

// Validate checks a (provider, model) pair against the vendor's live catalog.
// The catalog is cached per provider; a vendor that cannot enumerate models
// validates as unknown rather than failing the request.
func (s *RegistryService) Validate(ctx context.Context, provider, modelKey string) (*ModelValidation, error) {
	adapter, err := s.factory.Adapter(provider)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown provider %q", provider))
	}

	lister, ok := adapter.(providers.CatalogLister)
	if !ok {
		return &ModelValidation{Provider: provider, ModelKey: modelKey, CatalogAvailable: false}, nil
	}

	catalog, err := s.vendorCatalog(ctx, provider, lister)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Str("provider", provider).
			Msg("Failed to fetch vendor model catalog")
		return &ModelValidation{Provider: provider, ModelKey: modelKey, CatalogAvailable: false}, nil
	}

	validation := &ModelValidation{Provider: provider, ModelKey: modelKey, CatalogAvailable: true}
	for _, id := range catalog {
		if strings.EqualFold(id, modelKey) {
			validation.Found = true
			break
		}
	}
	return validation, nil
}

// ModelValidation is the outcome of a pre-flight catalog check.
type ModelValidation struct {
	Provider         string `json:"provider"`
	ModelKey         string `json:"model_key"`
	CatalogAvailable bool   `json:"catalog_available"`
	Found            bool   `json:"found"`
}

func (s *RegistryService) vendorCatalog(ctx context.Context, provider string, lister providers.CatalogLister) ([]string, error) {
	cacheKey := catalogCacheKeyPrefix + provider

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && len(cached) > 0 {
			var catalog []string
			if err := json.Unmarshal(cached, &catalog); err == nil {
				return catalog, nil
			}
		}
	}

	catalog, err := lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(catalog); err == nil {
			if err := s.cache.Set(ctx, cacheKey, data, s.catalogCacheTTL); err != nil {
				observability.LoggerFromContext(ctx).Debug().Err(err).Msg("Failed to cache vendor model catalog")
			}
		}
	}
	return catalog, nil
}
