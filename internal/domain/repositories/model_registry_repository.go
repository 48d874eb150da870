package repositories

import (
	"context"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
)

// ModelRegistryRepository is the authoritative store of model descriptors.
// Admin tooling may flip is_active and price_multiplier out-of-band at any
// time, so callers must re-read per request and never cache descriptors.
type ModelRegistryRepository interface {
	// GetByKey retrieves one descriptor by (provider, model_key)
	GetByKey(ctx context.Context, provider, modelKey string) (*entities.ModelDescriptor, error)

	// ListActive retrieves all currently enabled descriptors
	ListActive(ctx context.Context) ([]*entities.ModelDescriptor, error)

	// Create inserts a new descriptor
	Create(ctx context.Context, model *entities.ModelDescriptor) error

	// UpdateOutcome applies mutate to the descriptor under a row lock and
	// persists the result, so concurrent health updates to the same
	// (provider, model_key) serialize without blocking other models.
	UpdateOutcome(ctx context.Context, provider, modelKey string, mutate func(*entities.ModelDescriptor)) (*entities.ModelDescriptor, error)
}
