package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

// EnhancementService defines the interface for enhancement operations
type EnhancementService interface {
	Enqueue(ctx context.Context, req *entities.EnhancementRequest) (*entities.EnhancementJob, error)
	GetJob(ctx context.Context, id string) (*entities.EnhancementJob, error)
}

// EnhancementHandler handles enhancement requests
type EnhancementHandler struct {
	service EnhancementService
}

// NewEnhancementHandler creates a new enhancement handler
func NewEnhancementHandler(service EnhancementService) *EnhancementHandler {
	return &EnhancementHandler{
		service: service,
	}
}

// CreateEnhancement handles POST /api/enhancements. The request is queued and
// processed by background workers; the response carries the job id to poll or
// stream.
func (h *EnhancementHandler) CreateEnhancement(w http.ResponseWriter, r *http.Request) {
	var req entities.EnhancementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if req.TranscriptionID == "" {
		respondWithError(w, http.StatusUnprocessableEntity, "transcription_id is required")
		return
	}
	if req.Provider == "" || req.ModelKey == "" {
		respondWithError(w, http.StatusUnprocessableEntity, "provider and model_key are required")
		return
	}

	job, err := h.service.Enqueue(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"state":  job.State,
	})
}

// GetEnhancement handles GET /api/enhancements/{id}
func (h *EnhancementHandler) GetEnhancement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, job)
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithServiceError maps the error taxonomy onto HTTP status codes.
// Insufficient credits is 402 so clients can distinguish it from bad input.
func respondWithServiceError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		switch appErr.Type {
		case apperrors.ErrorTypeNotFound:
			respondWithError(w, http.StatusNotFound, appErr.Message)
		case apperrors.ErrorTypeValidation:
			respondWithError(w, http.StatusUnprocessableEntity, appErr.Message)
		case apperrors.ErrorTypeInsufficientCredits:
			respondWithError(w, http.StatusPaymentRequired, appErr.Message)
		case apperrors.ErrorTypeExternal:
			respondWithError(w, http.StatusBadGateway, appErr.Message)
		default:
			respondWithError(w, http.StatusInternalServerError, appErr.Message)
		}
		return
	}
	respondWithError(w, http.StatusInternalServerError, err.Error())
}
