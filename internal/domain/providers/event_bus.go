package providers

import (
	"context"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
)

// EventBus publishes job lifecycle events for live UI updates.
type EventBus interface {
	// Publish publishes an event to all subscribers of a channel
	Publish(ctx context.Context, channel string, event *entities.JobEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.JobEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// Event channels
const (
	// EventChannelEnhancements carries every job transition
	EventChannelEnhancements = "enhancements:updates"

	// EventChannelUserPrefix is the prefix for per-user channels
	EventChannelUserPrefix = "enhancements:user:"
)

// GetUserChannel returns the channel name for one user's jobs
func GetUserChannel(userID string) string {
	return EventChannelUserPrefix + userID
}
