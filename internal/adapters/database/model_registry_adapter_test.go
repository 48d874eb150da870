package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

func newMockRegistry(t *testing.T) (*ModelRegistryAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	adapter := NewModelRegistryAdapter(postgres.NewClientFromDB(db)).(*ModelRegistryAdapter)
	return adapter, mock
}

func modelRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"provider", "model_key", "display_name", "is_active", "price_multiplier",
		"max_output_tokens", "context_length", "total_requests", "total_errors",
		"consecutive_errors", "error_rate", "avg_latency_ms", "disabled_reason",
		"created_at", "updated_at",
	})
}

func TestGetByKeyReturnsModel(t *testing.T) {
	adapter, mock := newMockRegistry(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM "ai_models"`).
		WillReturnRows(modelRows().AddRow(
			"openai", "gpt-4o-mini", "GPT-4o mini", true, 1.0,
			4096, 128000, 120, 3, 0, 0.025, 840.0, nil, now, now,
		))

	model, err := adapter.GetByKey(context.Background(), "openai", "gpt-4o-mini")

	require.NoError(t, err)
	assert.Equal(t, "openai", model.Provider)
	assert.Equal(t, "gpt-4o-mini", model.ModelKey)
	assert.True(t, model.IsActive)
	assert.Equal(t, int64(120), model.TotalRequests)
	assert.Empty(t, model.DisabledReason)
}

func TestGetByKeyNotFound(t *testing.T) {
	adapter, mock := newMockRegistry(t)

	mock.ExpectQuery(`SELECT .+ FROM "ai_models"`).
		WillReturnRows(modelRows())

	_, err := adapter.GetByKey(context.Background(), "openai", "no-such-model")

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestListActiveScansAllRows(t *testing.T) {
	adapter, mock := newMockRegistry(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM "ai_models"`).
		WillReturnRows(modelRows().
			AddRow("gemini", "gemini-2.0-flash", "Gemini 2.0 Flash", true, 0.8,
				8192, 1000000, 40, 0, 0, 0.0, 620.0, nil, now, now).
			AddRow("openai", "gpt-4o-mini", "GPT-4o mini", true, 1.0,
				4096, 128000, 120, 3, 0, 0.025, 840.0, nil, now, now))

	models, err := adapter.ListActive(context.Background())

	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gemini", models[0].Provider)
	assert.Equal(t, "openai", models[1].Provider)
}

func TestUpdateOutcomeLocksMutatesAndCommits(t *testing.T) {
	adapter, mock := newMockRegistry(t)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "ai_models".*FOR UPDATE`).
		WillReturnRows(modelRows().AddRow(
			"groq", "llama-3.3-70b", "Llama 3.3 70B", true, 0.5,
			4096, 32768, 50, 9, 9, 0.18, 400.0, nil, now, now,
		))
	mock.ExpectExec(`UPDATE "ai_models" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	model, err := adapter.UpdateOutcome(context.Background(), "groq", "llama-3.3-70b",
		func(m *entities.ModelDescriptor) {
			m.RecordFailure(string(entities.ErrCodeUpstreamTimeout))
		})

	require.NoError(t, err)
	assert.Equal(t, int64(51), model.TotalRequests)
	assert.Equal(t, 10, model.ConsecutiveErrors)
	assert.False(t, model.IsActive)
	assert.NotEmpty(t, model.DisabledReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOutcomeUnknownModelRollsBack(t *testing.T) {
	adapter, mock := newMockRegistry(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "ai_models".*FOR UPDATE`).
		WillReturnRows(modelRows())
	mock.ExpectRollback()

	_, err := adapter.UpdateOutcome(context.Background(), "openai", "ghost",
		func(m *entities.ModelDescriptor) { m.RecordSuccess(100) })

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
