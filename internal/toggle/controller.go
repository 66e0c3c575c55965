// Package toggle owns the user's availability flag. It applies changes
// optimistically, serializes the backend write behind a shared gate, reverts on
// explicit rejection and keeps the optimistic value on transient failures.
package toggle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"availsync/internal/ports"
	"availsync/internal/types"
	"availsync/internal/watch"

	log "github.com/sirupsen/logrus"
)

// DefaultCooldown is the lockout applied after every resolved attempt.
const DefaultCooldown = 2000 * time.Millisecond

// ErrOffline is the cause of a transient outcome when the write was never sent.
var ErrOffline = errors.New("offline")

// Options tunes a Controller. Zero values fall back to defaults.
type Options struct {
	// Cooldown is the minimum lockout after every resolved attempt. A longer
	// backend-advised cooldown wins.
	Cooldown time.Duration
	// Online, when set, short-circuits writes while offline: no network call is
	// made and the attempt resolves as a transient failure.
	Online func() bool
}

// Controller is the one availability owner of the process. All mutation goes
// through Toggle, SetAvailability, SyncPending and Reconcile.
type Controller struct {
	store  ports.StateStore
	client ports.SyncClient
	gate   *Gate
	guard  *Guard
	opts   Options

	mu            sync.Mutex
	record        types.AvailabilityRecord
	lastConfirmed bool
	cooldown      types.CooldownWindow
	session       *types.ToggleSession

	state *watch.Value[types.AvailabilityRecord]
}

// NewController restores the last persisted record from store.
func NewController(ctx context.Context, store ports.StateStore, client ports.SyncClient, gate *Gate, opts Options) (*Controller, error) {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if gate == nil {
		gate = NewGate()
	}
	rec, found, err := store.LoadAvailability(ctx)
	if err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "load availability")
	}
	if !found {
		rec = types.AvailabilityRecord{LastUpdatedAt: timeNow()}
	}
	if !rec.PendingSync {
		rec.LastConfirmed = rec.IsAvailable
	}
	return &Controller{
		store:         store,
		client:        client,
		gate:          gate,
		guard:         NewGuard(uint64(timeNow().UnixMilli())),
		opts:          opts,
		record:        rec,
		lastConfirmed: rec.LastConfirmed,
		state:         watch.New(rec),
	}, nil
}

// Toggle flips availability. It fails fast with types.ErrBusy while another
// write or a queue drain is running, or while the cooldown window is open.
// A *types.RejectionError is returned when the backend refused the change.
func (c *Controller) Toggle(ctx context.Context) (types.ToggleSession, error) {
	return c.change(ctx, OwnerToggle, func(cur bool) bool { return !cur })
}

// SetAvailability moves to target. If the current value already equals target
// it returns immediately without touching the network.
func (c *Controller) SetAvailability(ctx context.Context, target bool) (types.ToggleSession, error) {
	c.mu.Lock()
	cur := c.record.IsAvailable
	c.mu.Unlock()
	if cur == target {
		return types.ToggleSession{
			Generation:    c.guard.Current(),
			PreviousState: cur,
			TargetState:   target,
			Status:        types.Confirmed,
		}, nil
	}
	return c.change(ctx, OwnerToggle, func(bool) bool { return target })
}

func (c *Controller) change(ctx context.Context, owner string, pick func(cur bool) bool) (types.ToggleSession, error) {
	if rem := c.Cooldown().Remaining(timeNow()); rem > 0 {
		return types.ToggleSession{}, types.Err(types.ErrBusy, nil, "cooldown: %dms remaining", rem.Milliseconds())
	}
	if !c.gate.TryAcquire(owner) {
		return types.ToggleSession{}, types.Err(types.ErrBusy, nil, "%s in progress", c.gate.Owner())
	}
	defer c.gate.Release()

	c.mu.Lock()
	prev := c.record.IsAvailable
	target := pick(prev)
	if target == prev {
		// Lost a race with another writer that already got us there.
		c.mu.Unlock()
		return types.ToggleSession{Generation: c.guard.Current(), PreviousState: prev, TargetState: target, Status: types.Confirmed}, nil
	}
	sess := &types.ToggleSession{
		Generation:    c.guard.Next(),
		PreviousState: prev,
		TargetState:   target,
		Status:        types.InFlight,
	}
	c.session = sess
	c.record = types.AvailabilityRecord{IsAvailable: target, LastUpdatedAt: timeNow(), PendingSync: true}
	c.commitLocked(ctx)
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"generation": sess.Generation,
		"from":       prev,
		"to":         target,
	}).Info("availability change requested")

	outcome := c.sync(ctx, target, sess.Generation)
	return c.resolve(ctx, sess, outcome)
}

// SyncPending pushes an unconfirmed optimistic value to the backend. It is a
// no-op when nothing is pending. The cooldown window does not apply, but a new
// one starts once the push resolves.
func (c *Controller) SyncPending(ctx context.Context) error {
	if !c.State().PendingSync {
		return nil
	}
	if !c.gate.TryAcquire(OwnerPending) {
		return types.Err(types.ErrBusy, nil, "%s in progress", c.gate.Owner())
	}
	defer c.gate.Release()

	c.mu.Lock()
	if !c.record.PendingSync {
		c.mu.Unlock()
		return nil
	}
	sess := &types.ToggleSession{
		Generation:    c.guard.Next(),
		PreviousState: c.lastConfirmed,
		TargetState:   c.record.IsAvailable,
		Status:        types.InFlight,
	}
	c.session = sess
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"generation": sess.Generation,
		"target":     sess.TargetState,
	}).Info("pushing pending availability")

	outcome := c.sync(ctx, sess.TargetState, sess.Generation)
	_, err := c.resolve(ctx, sess, outcome)
	return err
}

// Reconcile reads the backend's view and adopts it, unless a newer write
// happened while the read was in flight or a local value is still pending.
// It reports whether the remote value was applied.
func (c *Controller) Reconcile(ctx context.Context) (bool, error) {
	if c.gate.Busy() {
		return false, types.Err(types.ErrBusy, nil, "%s in progress", c.gate.Owner())
	}
	captured := c.guard.Current()
	remote, err := c.client.Fetch(ctx)
	if err != nil {
		log.WithError(err).Warn("availability reconciliation fetch failed")
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.guard.Stale(captured) {
		log.WithFields(log.Fields{
			"captured": captured,
			"current":  c.guard.Current(),
		}).Info("discarding stale reconciliation response")
		return false, nil
	}
	if c.record.PendingSync {
		log.Debug("reconciliation skipped: local value pending")
		return false, nil
	}
	c.lastConfirmed = remote
	if c.record.IsAvailable == remote {
		return false, nil
	}
	c.record = types.AvailabilityRecord{IsAvailable: remote, LastUpdatedAt: timeNow()}
	c.commitLocked(ctx)
	log.WithField("is_available", remote).Info("availability reconciled from backend")
	return true, nil
}

// sync calls the backend and converts anything unexpected into a transient failure.
func (c *Controller) sync(ctx context.Context, target bool, generation uint64) (outcome types.Outcome) {
	if c.opts.Online != nil && !c.opts.Online() {
		return types.Transient(ErrOffline)
	}
	defer func() {
		if r := recover(); r != nil {
			outcome = types.Transient(fmt.Errorf("sync panic: %v", r))
		}
	}()
	return c.client.Sync(ctx, target, generation)
}

func (c *Controller) resolve(ctx context.Context, sess *types.ToggleSession, outcome types.Outcome) (types.ToggleSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := timeNow()
	cooldown := c.opts.Cooldown
	fields := log.Fields{
		"generation": sess.Generation,
		"target":     sess.TargetState,
		"outcome":    outcome.Kind.String(),
	}

	if c.guard.Stale(sess.Generation) {
		// Superseded by a newer write; whatever it decided stands.
		sess.Status = types.RevertedTransient
		log.WithFields(fields).Warn("discarding superseded sync response")
		return *sess, nil
	}

	var err error
	switch outcome.Kind {
	case types.Success:
		c.record.PendingSync = false
		c.record.LastUpdatedAt = now
		c.lastConfirmed = sess.TargetState
		if advised := time.Duration(outcome.CooldownMs) * time.Millisecond; advised > cooldown {
			cooldown = advised
		}
		sess.Status = types.Confirmed
		fields["idempotent"] = outcome.Idempotent
		log.WithFields(fields).Info("availability confirmed")
	case types.Rejected:
		// PreviousState may itself be an unconfirmed value.
		c.record = types.AvailabilityRecord{IsAvailable: c.lastConfirmed, LastUpdatedAt: now}
		sess.Status = types.RevertedRejected
		err = &types.RejectionError{Code: outcome.Code, Message: outcome.Message}
		fields["code"] = outcome.Code
		fields["reverted_to"] = c.lastConfirmed
		log.WithFields(fields).Warn("availability rejected, reverted")
	default:
		sess.Status = types.RevertedTransient
		if outcome.Cause != nil {
			fields["cause"] = outcome.Cause.Error()
		}
		log.WithFields(fields).Warn("availability not confirmed, kept pending")
	}

	c.cooldown = types.CooldownWindow{StartedAt: now, Duration: cooldown}
	c.commitLocked(ctx)
	return *sess, err
}

// commitLocked persists and publishes the record. Store errors are logged only:
// the in-memory record stays authoritative for this process.
func (c *Controller) commitLocked(ctx context.Context) {
	c.record.LastConfirmed = c.lastConfirmed
	rec := c.record
	if err := c.store.SaveAvailability(context.WithoutCancel(ctx), rec); err != nil {
		log.WithError(err).Error("failed to persist availability")
	}
	c.state.Set(rec)
}

// State returns the current record.
func (c *Controller) State() types.AvailabilityRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record
}

// Subscribe returns a feed of record changes, closed when ctx is done.
func (c *Controller) Subscribe(ctx context.Context) <-chan types.AvailabilityRecord {
	return c.state.Subscribe(ctx)
}

// Cooldown returns the window opened by the last resolved attempt.
func (c *Controller) Cooldown() types.CooldownWindow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldown
}

// Session returns the most recent session, if any.
func (c *Controller) Session() (types.ToggleSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return types.ToggleSession{}, false
	}
	return *c.session, true
}

// CooldownRemaining is how long toggles stay locked out after the last resolution.
func (c *Controller) CooldownRemaining() time.Duration {
	return c.Cooldown().Remaining(timeNow())
}

// Busy reports whether a toggle would currently be refused.
func (c *Controller) Busy() bool {
	return c.gate.Busy() || c.Cooldown().Remaining(timeNow()) > 0
}

// Generation is the id of the latest write attempt.
func (c *Controller) Generation() uint64 {
	return c.guard.Current()
}
