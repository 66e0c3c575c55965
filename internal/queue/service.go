// Package queue holds deferred mutating requests made while offline and replays
// them, one at a time and in insertion order, once connectivity returns.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"availsync/internal/ports"
	"availsync/internal/toggle"
	"availsync/internal/types"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPacing       = 100 * time.Millisecond
	DefaultEnqueueDelay = 250 * time.Millisecond
	DefaultCapacity     = 500
)

var timeNow = time.Now

func SetTimeNowFn(f func() time.Time) {
	timeNow = f
}

func RestoreTimeNow() {
	timeNow = time.Now
}

// Gate is the in-flight flag shared with the toggle controller.
type Gate interface {
	TryAcquire(owner string) bool
	Release()
}

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	// MaxRetries applies to actions enqueued without their own limit.
	MaxRetries int
	// Pacing is the pause between two items of one drain pass.
	Pacing time.Duration
	// EnqueueDelay is how long after an online enqueue the drain starts.
	EnqueueDelay time.Duration
	Capacity     int
	// DeadLetterTarget is handed to the Publisher with every terminal failure.
	DeadLetterTarget string
}

// Deps are the collaborators of a Service. Store and Gate are required.
type Deps struct {
	Store ports.StateStore
	Gate  Gate
	// Senders deliver actions per kind; Fallback handles kinds without one.
	Senders  map[types.ActionKind]ports.Sender
	Fallback ports.Sender
	// Online is the best-effort connectivity check. Nil means always online.
	Online func() bool
	// Reconcilers run at the start of every drain pass.
	Reconcilers []ports.Reconciler
	// DeadLetter receives terminal-failure records. Optional.
	DeadLetter ports.Publisher
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Attempted int
	Delivered int
	Retained  int
	Dropped   int
}

// Service is the offline action queue and its drain loop. It is the only writer
// of the persisted queue.
type Service struct {
	deps Deps
	opts Options

	mu       sync.Mutex
	items    []types.PendingAction
	failures []types.TerminalFailure

	runMu   sync.Mutex
	running bool
	rerun   bool
	timer   *time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// NewService reloads the persisted queue from deps.Store.
func NewService(ctx context.Context, deps Deps, opts Options) (*Service, error) {
	if deps.Store == nil || deps.Gate == nil {
		return nil, types.Err(types.ErrInvalidConfig, nil, "queue: store and gate are required")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = types.DefaultMaxRetries
	}
	if opts.Pacing <= 0 {
		opts.Pacing = DefaultPacing
	}
	if opts.EnqueueDelay <= 0 {
		opts.EnqueueDelay = DefaultEnqueueDelay
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if deps.Senders == nil {
		deps.Senders = map[types.ActionKind]ports.Sender{}
	}
	items, err := deps.Store.LoadQueue(ctx)
	if err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "load queue")
	}
	if len(items) > 0 {
		log.WithField("count", len(items)).Info("restored pending actions")
	}
	return &Service{deps: deps, opts: opts, items: items}, nil
}

// Register sets the sender for kind, replacing any previous one.
func (s *Service) Register(kind types.ActionKind, sender ports.Sender) {
	s.mu.Lock()
	s.deps.Senders[kind] = sender
	s.mu.Unlock()
}

// Enqueue stores a new action with a zero retry count and persists the queue
// before returning. ID and CreatedAt are filled in when empty; a MaxRetries of
// zero takes the service default. If online, a drain is scheduled shortly after.
func (s *Service) Enqueue(ctx context.Context, action types.PendingAction) (types.PendingAction, error) {
	if !action.Kind.Valid() {
		return types.PendingAction{}, types.Err(types.ErrUnknownKind, nil, "%q", action.Kind)
	}
	if action.Endpoint == "" {
		return types.PendingAction{}, types.Err(types.ErrInvalidConfig, nil, "action endpoint is required")
	}
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.Method == "" {
		action.Method = "POST"
	}
	action.Method = strings.ToUpper(action.Method)
	if action.CreatedAt.IsZero() {
		action.CreatedAt = timeNow()
	}
	if action.MaxRetries <= 0 {
		action.MaxRetries = s.opts.MaxRetries
	}
	action.RetryCount = 0

	s.mu.Lock()
	if len(s.items) >= s.opts.Capacity {
		s.mu.Unlock()
		return types.PendingAction{}, types.Err(types.ErrQueueFull, nil, "max size: %d", s.opts.Capacity)
	}
	next := append(cloneItems(s.items), action)
	if err := s.deps.Store.SaveQueue(ctx, next); err != nil {
		s.mu.Unlock()
		return types.PendingAction{}, err
	}
	s.items = next
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"id":       action.ID,
		"kind":     action.Kind,
		"endpoint": action.Endpoint,
	}).Info("action enqueued")

	if s.online() {
		s.schedule(s.opts.EnqueueDelay)
	}
	return action, nil
}

// Drain runs one pass over the queue. Only one pass runs at a time: a call made
// while a pass is running (or while the toggle controller holds the gate) returns
// types.ErrBusy and causes another pass to be scheduled afterwards.
func (s *Service) Drain(ctx context.Context) (DrainReport, error) {
	s.runMu.Lock()
	if s.running {
		s.rerun = true
		s.runMu.Unlock()
		return DrainReport{}, types.Err(types.ErrBusy, nil, "drain already running")
	}
	s.running = true
	s.runMu.Unlock()

	defer func() {
		s.runMu.Lock()
		s.running = false
		again := s.rerun
		s.rerun = false
		s.runMu.Unlock()
		if again {
			s.schedule(s.opts.EnqueueDelay)
		}
	}()

	// Offline, a push could only fail and would open a cooldown on the toggle.
	reconcilers := s.deps.Reconcilers
	if !s.online() {
		reconcilers = nil
	}
	for _, r := range reconcilers {
		if err := r.SyncPending(ctx); err != nil {
			if _, rejected := types.AsRejection(err); !rejected {
				log.WithError(err).Warn("pending state push did not complete")
			}
		}
	}

	if !s.deps.Gate.TryAcquire(toggle.OwnerDrain) {
		s.runMu.Lock()
		s.rerun = true
		s.runMu.Unlock()
		return DrainReport{}, types.Err(types.ErrBusy, nil, "gate held")
	}
	defer s.deps.Gate.Release()

	return s.drainItems(ctx), nil
}

func (s *Service) drainItems(ctx context.Context) DrainReport {
	var report DrainReport
	for i, action := range s.List() {
		if i > 0 && !sleepCtx(ctx, s.opts.Pacing) {
			break
		}
		report.Attempted++
		ok := s.send(ctx, action)

		s.mu.Lock()
		idx := s.indexOf(action.ID)
		if idx < 0 {
			// Removed while it was being sent.
			s.mu.Unlock()
			continue
		}
		var dropped *types.PendingAction
		next := cloneItems(s.items)
		if ok {
			next = append(next[:idx], next[idx+1:]...)
			report.Delivered++
		} else {
			next[idx].RetryCount++
			if next[idx].Exhausted() {
				d := next[idx]
				dropped = &d
				next = append(next[:idx], next[idx+1:]...)
				report.Dropped++
			} else {
				report.Retained++
			}
		}
		if err := s.deps.Store.SaveQueue(context.WithoutCancel(ctx), next); err != nil {
			log.WithError(err).Error("failed to persist queue")
		}
		s.items = next
		s.mu.Unlock()

		if dropped != nil {
			s.terminalFailure(ctx, *dropped)
		}
	}
	log.WithFields(log.Fields{
		"attempted": report.Attempted,
		"delivered": report.Delivered,
		"retained":  report.Retained,
		"dropped":   report.Dropped,
	}).Info("queue drain finished")
	return report
}

// send delivers one action; panics and missing senders count as failures.
func (s *Service) send(ctx context.Context, action types.PendingAction) (ok bool) {
	s.mu.Lock()
	sender, found := s.deps.Senders[action.Kind]
	if !found {
		sender = s.deps.Fallback
	}
	s.mu.Unlock()

	fields := log.Fields{"id": action.ID, "kind": action.Kind, "attempt": action.RetryCount + 1}
	if sender == nil {
		log.WithFields(fields).Warn("no sender for action kind")
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(fields).Errorf("sender panic: %v", r)
			ok = false
		}
	}()
	ok = sender.Send(ctx, action)
	if !ok {
		log.WithFields(fields).Warn("action delivery failed")
	} else {
		log.WithFields(fields).Debug("action delivered")
	}
	return ok
}

func (s *Service) terminalFailure(ctx context.Context, action types.PendingAction) {
	f := types.TerminalFailure{
		Action:    action,
		Attempts:  action.RetryCount,
		DroppedAt: timeNow(),
		Reason:    fmt.Sprintf("exceeded %d retries", action.MaxRetries),
	}
	s.mu.Lock()
	s.failures = types.AppendFailure(s.failures, f, types.HardLimitRecentFailures)
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"id":       action.ID,
		"kind":     action.Kind,
		"endpoint": action.Endpoint,
		"attempts": f.Attempts,
	}).Error("action dropped after exhausting retries")

	if s.deps.DeadLetter == nil {
		return
	}
	b, err := json.Marshal(f)
	if err != nil {
		log.WithError(err).Error("failed to marshal terminal failure")
		return
	}
	if err := s.deps.DeadLetter.PublishRaw(context.WithoutCancel(ctx), s.opts.DeadLetterTarget, b); err != nil {
		log.WithError(err).Error("failed to publish terminal failure")
	}
}

// Run drains on every transition to online until ctx is done or changes closes.
// The feed is expected to be debounced already.
func (s *Service) Run(ctx context.Context, changes <-chan types.ConnectivityState) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-changes:
			if !ok {
				return
			}
			if !st.IsOnline() {
				continue
			}
			log.Info("connectivity restored, draining queue")
			if _, err := s.Drain(ctx); err != nil && !errors.Is(err, types.ErrBusy) {
				log.WithError(err).Warn("drain failed")
			}
		}
	}
}

// schedule starts a drain after delay unless one is already scheduled.
func (s *Service) schedule(delay time.Duration) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.closed || s.timer != nil {
		return
	}
	s.wg.Add(1)
	s.timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.runMu.Lock()
		s.timer = nil
		s.runMu.Unlock()
		if !s.online() {
			return
		}
		if _, err := s.Drain(context.Background()); err != nil && !errors.Is(err, types.ErrBusy) {
			log.WithError(err).Warn("scheduled drain failed")
		}
	})
}

// Close cancels a scheduled drain and waits for a running one to finish.
func (s *Service) Close() {
	s.runMu.Lock()
	s.closed = true
	if s.timer != nil && s.timer.Stop() {
		s.timer = nil
		s.wg.Done()
	}
	s.runMu.Unlock()
	s.wg.Wait()
}

// List returns a copy of the queued actions in order.
func (s *Service) List() []types.PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Remove deletes one action without sending it.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return types.Err(types.ErrNotFound, nil, "action %s", id)
	}
	next := cloneItems(s.items)
	next = append(next[:idx], next[idx+1:]...)
	if err := s.deps.Store.SaveQueue(ctx, next); err != nil {
		return err
	}
	s.items = next
	return nil
}

// Clear empties the queue.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deps.Store.SaveQueue(ctx, nil); err != nil {
		return err
	}
	s.items = nil
	log.Info("queue cleared")
	return nil
}

// Failures returns the most recent terminal failures, oldest first.
func (s *Service) Failures() []types.TerminalFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TerminalFailure, len(s.failures))
	copy(out, s.failures)
	return out
}

func (s *Service) online() bool {
	return s.deps.Online == nil || s.deps.Online()
}

func (s *Service) indexOf(id string) int {
	for i, a := range s.items {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func cloneItems(items []types.PendingAction) []types.PendingAction {
	out := make([]types.PendingAction, len(items))
	copy(out, items)
	return out
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
