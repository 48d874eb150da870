package database

import (
	"context"
	"database/sql"
	"encoding/json"
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

// JobAdapter implements the JobRepository interface. The request and result
// are stored as JSON; the state column is what workers coordinate on.
type JobAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewJobAdapter creates a new job adapter
func NewJobAdapter(client *postgres.Client) repositories.JobRepository {
	return &JobAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts a new job in its current state
func (a *JobAdapter) Create(ctx context.Context, job *entities.EnhancementJob) error {
	requestJSON, err := json.Marshal(job.Request)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal job request", err)
	}

	record := goqu.Record{
		"id":         job.ID,
		"request":    requestJSON,
		"state":      string(job.State),
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if job.Result != nil {
		resultJSON, err := json.Marshal(job.Result)
		if err != nil {
			return apperrors.NewInternalError("failed to marshal job result", err)
		}
		record["result"] = resultJSON
	}

	query, args, err := a.db.Insert("enhancement_jobs").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create job", err)
	}
	return nil
}

// GetByID retrieves a job with its result, if any
func (a *JobAdapter) GetByID(ctx context.Context, id string) (*entities.EnhancementJob, error) {
	query, args, err := a.db.Select("id", "request", "state", "result", "created_at", "updated_at").
		From("enhancement_jobs").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	job, err := scanJob(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("job with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get job", err)
	}
	return job, nil
}

// UpdateState moves the job to a new state
func (a *JobAdapter) UpdateState(ctx context.Context, id string, state entities.JobState) error {
	query, args, err := a.db.Update("enhancement_jobs").
		Set(goqu.Record{"state": string(state), "updated_at": time.Now().UTC()}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to update job state", err)
	}
	return nil
}

// SaveResult writes the result and the terminal state together
func (a *JobAdapter) SaveResult(ctx context.Context, job *entities.EnhancementJob) error {
	resultJSON, err := json.Marshal(job.Result)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal job result", err)
	}

	query, args, err := a.db.Update("enhancement_jobs").
		Set(goqu.Record{
			"state":      string(job.State),
			"result":     resultJSON,
			"updated_at": time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": job.ID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to save job result", err)
	}
	return nil
}

// ClaimNext atomically claims the oldest CREATED job and moves it to
// VALIDATING. SKIP LOCKED lets any number of workers poll the same queue
// without blocking or double-claiming.
func (a *JobAdapter) ClaimNext(ctx context.Context) (*entities.EnhancementJob, error) {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	query, args, err := a.db.Select("id", "request", "state", "result", "created_at", "updated_at").
		From("enhancement_jobs").
		Where(goqu.Ex{"state": string(entities.JobStateCreated)}).
		Order(goqu.I("created_at").Asc()).
		Limit(1).
		ForUpdate(exp.SkipLocked).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build claim query", err)
	}

	job, err := scanJob(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("no queued jobs")
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to claim job", err)
	}

	job.State = entities.JobStateValidating
	job.UpdatedAt = time.Now().UTC()

	query, args, err = a.db.Update("enhancement_jobs").
		Set(goqu.Record{"state": string(job.State), "updated_at": job.UpdatedAt}).
		Where(goqu.Ex{"id": job.ID}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build claim update", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to mark job claimed", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewInternalError("failed to commit claim", err)
	}
	return job, nil
}

func scanJob(row rowScanner) (*entities.EnhancementJob, error) {
	job := &entities.EnhancementJob{}
	var state string
	var requestJSON []byte
	var resultJSON []byte

	err := row.Scan(&job.ID, &requestJSON, &state, &resultJSON, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job.State = entities.JobState(state)
	if err := json.Unmarshal(requestJSON, &job.Request); err != nil {
		return nil, err
	}
	if len(resultJSON) > 0 {
		job.Result = &entities.EnhancementResult{}
		if err := json.Unmarshal(resultJSON, job.Result); err != nil {
			return nil, err
		}
	}
	return job, nil
}
