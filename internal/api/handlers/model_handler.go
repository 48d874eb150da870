package handlers

import (
	"context"
	"net/http"

	"github.com/scribeflow/scribeflow/backend/internal/application/services"
	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

// ModelService defines the interface for model catalog operations
type ModelService interface {
	ListActive(ctx context.Context) ([]*entities.ModelDescriptor, error)
	IsUsable(ctx context.Context, provider, modelKey string) (*entities.ModelDescriptor, error)
	Validate(ctx context.Context, provider, modelKey string) (*services.ModelValidation, error)
}

// ModelHandler handles model catalog requests
type ModelHandler struct {
	service ModelService
}

// NewModelHandler creates a new model handler
func NewModelHandler(service ModelService) *ModelHandler {
	return &ModelHandler{
		service: service,
	}
}

// ListModels handles GET /api/models
func (h *ModelHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.service.ListActive(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"models": models,
	})
}

// ValidateModel handles GET /api/models/validate?provider=X&model=Y. It
// combines the registry's availability verdict with a live check against the
// vendor's own catalog.
func (h *ModelHandler) ValidateModel(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	modelKey := r.URL.Query().Get("model")
	if provider == "" || modelKey == "" {
		respondWithError(w, http.StatusBadRequest, "provider and model query parameters are required")
		return
	}

	response := map[string]interface{}{
		"provider":  provider,
		"model_key": modelKey,
		"available": false,
	}

	model, err := h.service.IsUsable(r.Context(), provider, modelKey)
	switch {
	case err == nil:
		response["available"] = true
		response["max_output_tokens"] = model.MaxOutputTokens
		response["context_length"] = model.ContextLength
	case apperrors.IsType(err, apperrors.ErrorTypeNotFound):
		response["reason"] = "model is not registered"
	case apperrors.IsType(err, apperrors.ErrorTypeValidation):
		if appErr, ok := err.(*apperrors.AppError); ok {
			response["reason"] = appErr.Message
		}
	default:
		respondWithServiceError(w, err)
		return
	}

	validation, err := h.service.Validate(r.Context(), provider, modelKey)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeValidation) {
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondWithServiceError(w, err)
		return
	}
	response["catalog_available"] = validation.CatalogAvailable
	if validation.CatalogAvailable {
		response["catalog_found"] = validation.Found
	}

	respondWithJSON(w, http.StatusOK, response)
}
