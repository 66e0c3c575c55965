package ports

import (
	"context"

	"availsync/internal/types"
)

// Sender delivers one queued action of a given kind. It returns true only on
// confirmed delivery.
type Sender interface {
	Send(ctx context.Context, action types.PendingAction) bool
}

type SenderFunc func(ctx context.Context, action types.PendingAction) bool

func (f SenderFunc) Send(ctx context.Context, action types.PendingAction) bool {
	return f(ctx, action)
}

// Prober performs one best-effort reachability check.
type Prober interface {
	Probe(ctx context.Context) bool
}
