package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/repositories"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

// TranscriptionAdapter implements the TranscriptionRepository interface
type TranscriptionAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewTranscriptionAdapter creates a new transcription adapter
func NewTranscriptionAdapter(client *postgres.Client) repositories.TranscriptionRepository {
	return &TranscriptionAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetByID retrieves a transcription
func (a *TranscriptionAdapter) GetByID(ctx context.Context, id string) (*entities.Transcription, error) {
	query, args, err := a.db.Select(
		"id", "user_id", "language", "source_text", "duration_seconds",
		"speaker_recognition", "enhanced_text", "enhancement_summary",
		"enhanced", "updated_at",
	).From("transcriptions").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	transcription := &entities.Transcription{}
	var enhancedText, enhancementSummary sql.NullString

	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&transcription.ID,
		&transcription.UserID,
		&transcription.Language,
		&transcription.SourceText,
		&transcription.DurationSeconds,
		&transcription.SpeakerRecognition,
		&enhancedText,
		&enhancementSummary,
		&transcription.Enhanced,
		&transcription.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("transcription with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get transcription", err)
	}

	transcription.EnhancedText = enhancedText.String
	transcription.EnhancementSummary = enhancementSummary.String
	return transcription, nil
}

// SaveEnhancement writes an enhancement outcome onto the transcription. A
// failed result stores the unmodified source text and leaves enhanced false,
// so the UI can show the original plus the error instead of a fake success.
func (a *TranscriptionAdapter) SaveEnhancement(ctx context.Context, id string, result *entities.EnhancementResult) error {
	record := goqu.Record{
		"enhanced_text":       result.EnhancedText,
		"enhancement_summary": result.Summary,
		"enhanced":            !result.Failed(),
		"updated_at":          time.Now().UTC(),
	}

	query, args, err := a.db.Update("transcriptions").
		Set(record).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	res, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to save enhancement", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("transcription with id %s not found", id))
	}
	return nil
}
