package repositories

import (
	"context"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
)

// JobRepository persists enhancement jobs so results survive restarts and
// multiple workers can claim work without double-processing.
type JobRepository interface {
	// Create inserts a new job in its current state
	Create(ctx context.Context, job *entities.EnhancementJob) error

	// GetByID retrieves a job with its result, if any
	GetByID(ctx context.Context, id string) (*entities.EnhancementJob, error)

	// UpdateState moves the job to a new state
	UpdateState(ctx context.Context, id string, state entities.JobState) error

	// SaveResult writes the result and the terminal state together
	SaveResult(ctx context.Context, job *entities.EnhancementJob) error

	// ClaimNext atomically claims the oldest CREATED job and moves it to
	// VALIDATING, skipping rows locked by other workers. Returns a NotFound
	// AppError when the queue is empty.
	ClaimNext(ctx context.Context) (*entities.EnhancementJob, error)
}
