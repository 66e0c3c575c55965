package ports

import (
	"context"

	"availsync/internal/types"
)

// SyncClient talks to the remote availability authority.
type SyncClient interface {
	// Sync writes the target availability. It never returns a Go error: network
	// errors, timeouts and undecodable responses come back as a TransientFailure outcome.
	Sync(ctx context.Context, target bool, generation uint64) types.Outcome

	// Fetch reads the backend's current view. Used for reconciliation only.
	Fetch(ctx context.Context) (bool, error)
}

// Reconciler pushes locally pending state before the queue is drained.
type Reconciler interface {
	SyncPending(ctx context.Context) error
}
