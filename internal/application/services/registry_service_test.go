package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

func TestIsUsableReturnsActiveModel(t *testing.T) {
	repo := new(MockModelRegistry)
	svc := NewRegistryService(repo, nil, nil, 3600)

	model := &entities.ModelDescriptor{Provider: "openai", ModelKey: "gpt-4o-mini", IsActive: true}
	repo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(model, nil)

	got, err := svc.IsUsable(context.Background(), "openai", "gpt-4o-mini")

	require.NoError(t, err)
	assert.Equal(t, model, got)
	repo.AssertExpectations(t)
}

func TestIsUsableRejectsDisabledModelWithReason(t *testing.T) {
	repo := new(MockModelRegistry)
	svc := NewRegistryService(repo, nil, nil, 3600)

	model := &entities.ModelDescriptor{
		Provider:       "groq",
		ModelKey:       "llama-3.1-8b",
		IsActive:       false,
		DisabledReason: "auto-quarantined: UPSTREAM_TIMEOUT",
	}
	repo.On("GetByKey", mock.Anything, "groq", "llama-3.1-8b").Return(model, nil)

	got, err := svc.IsUsable(context.Background(), "groq", "llama-3.1-8b")

	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.Contains(t, err.Error(), "auto-quarantined: UPSTREAM_TIMEOUT")
}

func TestIsUsablePropagatesLookupError(t *testing.T) {
	repo := new(MockModelRegistry)
	svc := NewRegistryService(repo, nil, nil, 3600)

	repo.On("GetByKey", mock.Anything, "openai", "nope").
		Return(nil, apperrors.NewNotFoundError("model not found"))

	_, err := svc.IsUsable(context.Background(), "openai", "nope")

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestRecordSuccessUpdatesStatistics(t *testing.T) {
	repo := new(MockModelRegistry)
	svc := NewRegistryService(repo, nil, nil, 3600)

	model := &entities.ModelDescriptor{Provider: "openai", ModelKey: "gpt-4o", IsActive: true}
	repo.On("UpdateOutcome", mock.Anything, "openai", "gpt-4o", mock.Anything).Return(model, nil)

	err := svc.RecordSuccess(context.Background(), "openai", "gpt-4o", 850)

	require.NoError(t, err)
	assert.Equal(t, int64(1), model.TotalRequests)
	assert.Equal(t, 850.0, model.AvgLatencyMS)
}

func TestRecordFailureAppliesQuarantine(t *testing.T) {
	repo := new(MockModelRegistry)
	svc := NewRegistryService(repo, nil, nil, 3600)

	model := &entities.ModelDescriptor{
		Provider:          "gemini",
		ModelKey:          "gemini-1.5-flash",
		IsActive:          true,
		TotalRequests:     9,
		TotalErrors:       9,
		ConsecutiveErrors: 9,
	}
	repo.On("UpdateOutcome", mock.Anything, "gemini", "gemini-1.5-flash", mock.Anything).Return(model, nil)

	err := svc.RecordFailure(context.Background(), "gemini", "gemini-1.5-flash", entities.ErrCodeUpstreamTimeout)

	require.NoError(t, err)
	assert.False(t, model.IsActive)
	assert.Equal(t, "auto-quarantined: UPSTREAM_TIMEOUT", model.DisabledReason)
}

func TestValidateUsesCachedCatalog(t *testing.T) {
	cache := new(MockCache)
	factory := new(MockFactory)
	adapter := new(MockCatalogAdapter)
	svc := NewRegistryService(new(MockModelRegistry), cache, factory, 3600)

	factory.On("Adapter", "openai").Return(adapter, nil)
	cache.On("Get", mock.Anything, "model_catalog:openai").
		Return([]byte(`["gpt-4o","gpt-4o-mini"]`), nil)

	validation, err := svc.Validate(context.Background(), "openai", "GPT-4o-Mini")

	require.NoError(t, err)
	assert.True(t, validation.CatalogAvailable)
	assert.True(t, validation.Found)
	adapter.AssertNotCalled(t, "ListModels", mock.Anything)
}

func TestValidateFetchesAndCachesCatalogOnMiss(t *testing.T) {
	cache := new(MockCache)
	factory := new(MockFactory)
	adapter := new(MockCatalogAdapter)
	svc := NewRegistryService(new(MockModelRegistry), cache, factory, 1800)

	factory.On("Adapter", "groq").Return(adapter, nil)
	cache.On("Get", mock.Anything, "model_catalog:groq").Return(nil, errors.New("miss"))
	adapter.On("ListModels", mock.Anything).Return([]string{"llama-3.1-8b-instant"}, nil)
	cache.On("Set", mock.Anything, "model_catalog:groq", mock.Anything, 1800).Return(nil)

	validation, err := svc.Validate(context.Background(), "groq", "llama-3.3-70b")

	require.NoError(t, err)
	assert.True(t, validation.CatalogAvailable)
	assert.False(t, validation.Found)
	cache.AssertExpectations(t)
}

func TestValidateWithoutCatalogSupport(t *testing.T) {
	factory := new(MockFactory)
	adapter := new(MockAdapter)
	svc := NewRegistryService(new(MockModelRegistry), nil, factory, 3600)

	factory.On("Adapter", "custom").Return(adapter, nil)

	validation, err := svc.Validate(context.Background(), "custom", "some-model")

	require.NoError(t, err)
	assert.False(t, validation.CatalogAvailable)
	assert.False(t, validation.Found)
}

func TestValidateUnknownProvider(t *testing.T) {
	factory := new(MockFactory)
	svc := NewRegistryService(new(MockModelRegistry), nil, factory, 3600)

	factory.On("Adapter", "bogus").Return(nil, errors.New("no such provider"))

	_, err := svc.Validate(context.Background(), "bogus", "model")

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestValidateDegradesWhenVendorCatalogFails(t *testing.T) {
	factory := new(MockFactory)
	adapter := new(MockCatalogAdapter)
	svc := NewRegistryService(new(MockModelRegistry), nil, factory, 3600)

	factory.On("Adapter", "openai").Return(adapter, nil)
	adapter.On("ListModels", mock.Anything).Return(nil, errors.New("vendor 500"))

	validation, err := svc.Validate(context.Background(), "openai", "gpt-4o")

	require.NoError(t, err)
	assert.False(t, validation.CatalogAvailable)
}
