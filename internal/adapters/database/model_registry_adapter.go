package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/repositories"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

var modelColumns = []interface{}{
	"provider", "model_key", "display_name", "is_active", "price_multiplier",
	"max_output_tokens", "context_length", "total_requests", "total_errors",
	"consecutive_errors", "error_rate", "avg_latency_ms", "disabled_reason",
	"created_at", "updated_at",
}

// ModelRegistryAdapter implements the ModelRegistryRepository interface
type ModelRegistryAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewModelRegistryAdapter creates a new model registry adapter
func NewModelRegistryAdapter(client *postgres.Client) repositories.ModelRegistryRepository {
	return &ModelRegistryAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetByKey retrieves a model descriptor by (provider, model_key)
func (a *ModelRegistryAdapter) GetByKey(ctx context.Context, provider, modelKey string) (*entities.ModelDescriptor, error) {
	query, args, err := a.db.Select(modelColumns...).
		From("ai_models").
		Where(goqu.Ex{"provider": provider, "model_key": modelKey}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	model, err := scanModel(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("model %s/%s not found", provider, modelKey))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get model", err)
	}
	return model, nil
}

// ListActive retrieves all currently enabled model descriptors
func (a *ModelRegistryAdapter) ListActive(ctx context.Context) ([]*entities.ModelDescriptor, error) {
	query, args, err := a.db.Select(modelColumns...).
		From("ai_models").
		Where(goqu.Ex{"is_active": true}).
		Order(goqu.I("provider").Asc(), goqu.I("model_key").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list models", err)
	}
	defer rows.Close()

	var models []*entities.ModelDescriptor
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan model", err)
		}
		models = append(models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate models", err)
	}
	return models, nil
}

// Create inserts a new model descriptor
func (a *ModelRegistryAdapter) Create(ctx context.Context, model *entities.ModelDescriptor) error {
	now := time.Now().UTC()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	model.UpdatedAt = now

	record := goqu.Record{
		"provider":           model.Provider,
		"model_key":          model.ModelKey,
		"display_name":       model.DisplayName,
		"is_active":          model.IsActive,
		"price_multiplier":   model.PriceMultiplier,
		"max_output_tokens":  model.MaxOutputTokens,
		"context_length":     model.ContextLength,
		"total_requests":     model.TotalRequests,
		"total_errors":       model.TotalErrors,
		"consecutive_errors": model.ConsecutiveErrors,
		"error_rate":         model.ErrorRate,
		"avg_latency_ms":     model.AvgLatencyMS,
		"disabled_reason":    model.DisabledReason,
		"created_at":         model.CreatedAt,
		"updated_at":         model.UpdatedAt,
	}

	query, args, err := a.db.Insert("ai_models").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create model", err)
	}
	return nil
}

// UpdateOutcome applies mutate to the descriptor under a row lock and writes
// the changed health statistics back. Locking per (provider, model_key)
// serializes concurrent outcome recording for one model without blocking
// other models.
func (a *ModelRegistryAdapter) UpdateOutcome(ctx context.Context, provider, modelKey string, mutate func(*entities.ModelDescriptor)) (*entities.ModelDescriptor, error) {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	query, args, err := a.db.Select(modelColumns...).
		From("ai_models").
		Where(goqu.Ex{"provider": provider, "model_key": modelKey}).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build lock query", err)
	}

	model, err := scanModel(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("model %s/%s not found", provider, modelKey))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to lock model", err)
	}

	mutate(model)
	model.UpdatedAt = time.Now().UTC()

	record := goqu.Record{
		"is_active":          model.IsActive,
		"total_requests":     model.TotalRequests,
		"total_errors":       model.TotalErrors,
		"consecutive_errors": model.ConsecutiveErrors,
		"error_rate":         model.ErrorRate,
		"avg_latency_ms":     model.AvgLatencyMS,
		"disabled_reason":    model.DisabledReason,
		"updated_at":         model.UpdatedAt,
	}

	query, args, err = a.db.Update("ai_models").
		Set(record).
		Where(goqu.Ex{"provider": provider, "model_key": modelKey}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build update query", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to update model", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewInternalError("failed to commit model update", err)
	}
	return model, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanModel(row rowScanner) (*entities.ModelDescriptor, error) {
	model := &entities.ModelDescriptor{}
	var disabledReason sql.NullString

	err := row.Scan(
		&model.Provider,
		&model.ModelKey,
		&model.DisplayName,
		&model.IsActive,
		&model.PriceMultiplier,
		&model.MaxOutputTokens,
		&model.ContextLength,
		&model.TotalRequests,
		&model.TotalErrors,
		&model.ConsecutiveErrors,
		&model.ErrorRate,
		&model.AvgLatencyMS,
		&disabledReason,
		&model.CreatedAt,
		&model.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	model.DisabledReason = disabledReason.String
	return model, nil
}
