package repositories

import (
	"context"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
)

// TranscriptionRepository reads completed transcriptions and writes
// enhancement outcomes back onto them. Creating transcriptions belongs to
// the transcription engine, not this service.
type TranscriptionRepository interface {
	// GetByID retrieves a transcription
	GetByID(ctx context.Context, id string) (*entities.Transcription, error)

	// SaveEnhancement writes the enhancement outcome. On failure the
	// enhanced text equals the source text and Enhanced stays false, so a
	// failed run is never presented as a successful one.
	SaveEnhancement(ctx context.Context, id string, result *entities.EnhancementResult) error
}
