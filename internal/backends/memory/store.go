// Package memory is an in-process StateStore. Nothing survives the process;
// it backs tests and the "memory" backend.
package memory

import (
	"context"
	"sync"

	"availsync/internal/backends/codec"
	"availsync/internal/types"
)

type StateStore struct {
	mu     sync.RWMutex
	record *types.AvailabilityRecord
	queue  []types.PendingAction
	closed bool
}

func NewStateStore() *StateStore {
	return &StateStore{}
}

func (s *StateStore) LoadAvailability(ctx context.Context) (types.AvailabilityRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.AvailabilityRecord{}, false, types.ErrStoreAccess
	}
	if s.record == nil {
		return types.AvailabilityRecord{}, false, nil
	}
	return *s.record, true, nil
}

func (s *StateStore) SaveAvailability(ctx context.Context, rec types.AvailabilityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStoreAccess
	}
	s.record = &rec
	return nil
}

func (s *StateStore) LoadQueue(ctx context.Context) ([]types.PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.ErrStoreAccess
	}
	return codec.CloneQueue(s.queue), nil
}

func (s *StateStore) SaveQueue(ctx context.Context, actions []types.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStoreAccess
	}
	s.queue = codec.CloneQueue(actions)
	return nil
}

// Close marks the store unusable. Reopen makes it usable again with its data
// intact, which lets tests simulate a process restart.
func (s *StateStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *StateStore) Reopen() {
	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()
}
