package repositories

import (
	"context"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
)

// ErrorLogRepository persists terminal enhancement failures for monitoring.
type ErrorLogRepository interface {
	// Create appends one error record
	Create(ctx context.Context, record *entities.EnhancementErrorRecord) error

	// ListByTranscription retrieves all error records for a transcription,
	// newest first
	ListByTranscription(ctx context.Context, transcriptionID string) ([]*entities.EnhancementErrorRecord, error)
}
