package database

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/repositories"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

// ErrorLogAdapter implements the ErrorLogRepository interface over the
// append-only enhancement_errors table.
type ErrorLogAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewErrorLogAdapter creates a new error log adapter
func NewErrorLogAdapter(client *postgres.Client) repositories.ErrorLogRepository {
	return &ErrorLogAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create appends one error record
func (a *ErrorLogAdapter) Create(ctx context.Context, record *entities.EnhancementErrorRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.Truncate()

	row := goqu.Record{
		"id":               record.ID,
		"transcription_id": record.TranscriptionID,
		"provider":         record.Provider,
		"model_key":        record.ModelKey,
		"operation":        string(record.Operation),
		"error_code":       string(record.ErrorCode),
		"message":          record.Message,
		"request_chars":    record.RequestChars,
		"chunk_index":      record.ChunkIndex,
		"created_at":       record.CreatedAt,
	}

	query, args, err := a.db.Insert("enhancement_errors").Rows(row).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create error record", err)
	}
	return nil
}

// ListByTranscription retrieves all error records for a transcription,
// newest first
func (a *ErrorLogAdapter) ListByTranscription(ctx context.Context, transcriptionID string) ([]*entities.EnhancementErrorRecord, error) {
	query, args, err := a.db.Select(
		"id", "transcription_id", "provider", "model_key", "operation",
		"error_code", "message", "request_chars", "chunk_index", "created_at",
	).From("enhancement_errors").
		Where(goqu.Ex{"transcription_id": transcriptionID}).
		Order(goqu.I("created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list error records", err)
	}
	defer rows.Close()

	var records []*entities.EnhancementErrorRecord
	for rows.Next() {
		record := &entities.EnhancementErrorRecord{}
		var operation, errorCode string
		err := rows.Scan(
			&record.ID,
			&record.TranscriptionID,
			&record.Provider,
			&record.ModelKey,
			&operation,
			&errorCode,
			&record.Message,
			&record.RequestChars,
			&record.ChunkIndex,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan error record", err)
		}
		record.Operation = entities.Operation(operation)
		record.ErrorCode = entities.ErrorCode(errorCode)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate error records", err)
	}
	return records, nil
}
