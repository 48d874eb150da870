package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

func newMockJobs(t *testing.T) (*JobAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	adapter := NewJobAdapter(postgres.NewClientFromDB(db)).(*JobAdapter)
	return adapter, mock
}

func jobRow(t *testing.T, id string, state entities.JobState) *sqlmock.Rows {
	t.Helper()
	request, err := json.Marshal(entities.EnhancementRequest{
		TranscriptionID: "tr-1",
		UserID:          "user-1",
		Operation:       entities.OperationSummary,
		Provider:        "openai",
		ModelKey:        "gpt-4o-mini",
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "request", "state", "result", "created_at", "updated_at"}).
		AddRow(id, request, string(state), nil, now, now)
}

func TestClaimNextMovesJobToValidating(t *testing.T) {
	adapter, mock := newMockJobs(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "enhancement_jobs".*FOR UPDATE SKIP LOCKED`).
		WillReturnRows(jobRow(t, "job-1", entities.JobStateCreated))
	mock.ExpectExec(`UPDATE "enhancement_jobs" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := adapter.ClaimNext(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, entities.JobStateValidating, job.State)
	assert.Equal(t, "tr-1", job.Request.TranscriptionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextEmptyQueue(t *testing.T) {
	adapter, mock := newMockJobs(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "enhancement_jobs".*FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request", "state", "result", "created_at", "updated_at"}))
	mock.ExpectRollback()

	_, err := adapter.ClaimNext(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDUnmarshalsResult(t *testing.T) {
	adapter, mock := newMockJobs(t)

	request, err := json.Marshal(entities.EnhancementRequest{TranscriptionID: "tr-1", UserID: "user-1"})
	require.NoError(t, err)
	result, err := json.Marshal(entities.EnhancementResult{
		EnhancedText: "done", ProviderUsed: "openai", ModelUsed: "gpt-4o-mini", ChunksProcessed: 2,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM "enhancement_jobs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request", "state", "result", "created_at", "updated_at"}).
			AddRow("job-1", request, string(entities.JobStateDone), result, now, now))

	job, err := adapter.GetByID(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateDone, job.State)
	require.NotNil(t, job.Result)
	assert.Equal(t, "done", job.Result.EnhancedText)
	assert.Equal(t, 2, job.Result.ChunksProcessed)
}

func TestGetByIDNotFound(t *testing.T) {
	adapter, mock := newMockJobs(t)

	mock.ExpectQuery(`SELECT .+ FROM "enhancement_jobs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request", "state", "result", "created_at", "updated_at"}))

	_, err := adapter.GetByID(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestCreatePersistsRequestJSON(t *testing.T) {
	adapter, mock := newMockJobs(t)

	mock.ExpectExec(`INSERT INTO "enhancement_jobs"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now().UTC()
	err := adapter.Create(context.Background(), &entities.EnhancementJob{
		ID:        "job-1",
		Request:   entities.EnhancementRequest{TranscriptionID: "tr-1", UserID: "user-1"},
		State:     entities.JobStateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
