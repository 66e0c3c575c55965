package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"availsync/internal/backends/codec"
	"availsync/internal/types"

	"github.com/redis/go-redis/v9"
)

const (
	availKeyNameTemplate = "_availsync_avail_%s"
	queueKeyNameTemplate = "_availsync_queue_%s"
)

// StateStore keeps the availability record in a hash and the queue as one
// encoded string, so each group is replaced by a single atomic write.
type StateStore struct {
	cli       *redis.Client
	namespace string
}

func NewStateStore(cli *redis.Client, namespace string) *StateStore {
	return &StateStore{cli: cli, namespace: namespace}
}

func (s *StateStore) LoadAvailability(ctx context.Context) (types.AvailabilityRecord, bool, error) {
	out := s.cli.HGetAll(ctx, getAvailKey(s.namespace))
	if out.Err() != nil {
		if errors.Is(out.Err(), redis.Nil) {
			return types.AvailabilityRecord{}, false, nil
		}
		return types.AvailabilityRecord{}, false, types.Err(types.ErrStoreAccess, out.Err(), "")
	}
	m := out.Val()
	if len(m) == 0 {
		return types.AvailabilityRecord{}, false, nil
	}
	avail, err := strconv.ParseBool(m["is_available"])
	if err != nil {
		return types.AvailabilityRecord{}, false, fmt.Errorf("invalid is_available: %w", err)
	}
	pending, err := strconv.ParseBool(m["pending_sync"])
	if err != nil {
		return types.AvailabilityRecord{}, false, fmt.Errorf("invalid pending_sync: %w", err)
	}
	updated, err := strconv.ParseInt(m["last_updated_at"], 10, 64)
	if err != nil {
		return types.AvailabilityRecord{}, false, fmt.Errorf("invalid last_updated_at: %w", err)
	}
	confirmed := avail
	if v, ok := m["last_confirmed"]; ok {
		if confirmed, err = strconv.ParseBool(v); err != nil {
			return types.AvailabilityRecord{}, false, fmt.Errorf("invalid last_confirmed: %w", err)
		}
	}
	return types.AvailabilityRecord{
		IsAvailable:   avail,
		LastUpdatedAt: time.Unix(0, updated).UTC(),
		PendingSync:   pending,
		LastConfirmed: confirmed,
	}, true, nil
}

// SaveAvailability sets every field and bumps "ver" inside one MULTI/EXEC.
func (s *StateStore) SaveAvailability(ctx context.Context, rec types.AvailabilityRecord) error {
	key := getAvailKey(s.namespace)
	_, err := s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"is_available":    strconv.FormatBool(rec.IsAvailable),
			"last_updated_at": rec.LastUpdatedAt.UnixNano(),
			"pending_sync":    strconv.FormatBool(rec.PendingSync),
			"last_confirmed":  strconv.FormatBool(rec.LastConfirmed),
		})
		pipe.HIncrBy(ctx, key, "ver", 1)
		return nil
	})
	if err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	return nil
}

func (s *StateStore) LoadQueue(ctx context.Context) ([]types.PendingAction, error) {
	out := s.cli.Get(ctx, getQueueKey(s.namespace))
	if out.Err() != nil {
		if errors.Is(out.Err(), redis.Nil) {
			return nil, nil
		}
		return nil, types.Err(types.ErrStoreAccess, out.Err(), "")
	}
	actions, err := codec.DecodeQueue(out.Val())
	if err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "decode queue")
	}
	return actions, nil
}

func (s *StateStore) SaveQueue(ctx context.Context, actions []types.PendingAction) error {
	blob, err := codec.EncodeQueue(actions)
	if err != nil {
		return err
	}
	if err := s.cli.Set(ctx, getQueueKey(s.namespace), blob, 0).Err(); err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	return nil
}

// ClearAll removes both groups. Used in tests only.
func (s *StateStore) ClearAll(ctx context.Context) error {
	return s.cli.Del(ctx, getAvailKey(s.namespace), getQueueKey(s.namespace)).Err()
}

func (s *StateStore) Close() error {
	return s.cli.Close()
}

func getAvailKey(ns string) string {
	return fmt.Sprintf(availKeyNameTemplate, ns)
}

func getQueueKey(ns string) string {
	return fmt.Sprintf(queueKeyNameTemplate, ns)
}
