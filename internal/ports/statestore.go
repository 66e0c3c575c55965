package ports

import (
	"context"

	"availsync/internal/types"
)

// StateStore persists the availability record and the pending action queue.
// Each logical group is written atomically: a reader never observes a record
// or a queue that is half old and half new.
type StateStore interface {
	// LoadAvailability returns the last saved record.
	// If nothing was saved yet, (zero, false, nil) MUST be returned.
	LoadAvailability(ctx context.Context) (types.AvailabilityRecord, bool, error)

	SaveAvailability(ctx context.Context, rec types.AvailabilityRecord) error

	// LoadQueue returns the queued actions in their original insertion order.
	LoadQueue(ctx context.Context) ([]types.PendingAction, error)

	// SaveQueue replaces the whole queue.
	SaveQueue(ctx context.Context, actions []types.PendingAction) error

	Close() error
}
