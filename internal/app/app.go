// Package app assembles the availability controller, the action queue and the
// connectivity observer around one state store and one in-flight gate.
package app

import (
	"context"
	"errors"
	"sync"

	"availsync/internal/config"
	"availsync/internal/netwatch"
	"availsync/internal/ports"
	"availsync/internal/pub"
	"availsync/internal/queue"
	"availsync/internal/toggle"
	"availsync/internal/types"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
)

type Deps struct {
	Store  ports.StateStore
	Client ports.SyncClient
	// Fallback sends queued actions of kinds without a registered sender.
	Fallback ports.Sender
	// Prober drives the connectivity observer. Without one, only Report updates it.
	Prober ports.Prober
	// Publisher receives terminal queue failures. Defaults to the log.
	Publisher ports.Publisher
	// Clock drives connectivity debouncing. Defaults to the wall clock.
	Clock clock.Clock
}

type App struct {
	Controller   *toggle.Controller
	Queue        *queue.Service
	Connectivity *netwatch.Observer

	store     ports.StateStore
	prober    ports.Prober
	probeOpts netwatch.ProbeOptions

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	if deps.Store == nil || deps.Client == nil {
		return nil, types.Err(types.ErrInvalidConfig, nil, "app: store and client are required")
	}
	if deps.Publisher == nil {
		deps.Publisher = pub.LogPublisher{}
	}

	obs := netwatch.NewObserver(cfg.Connectivity.StartOnline, netwatch.Options{
		Debounce: cfg.Connectivity.Debounce.Std(),
		Clock:    deps.Clock,
	})
	gate := toggle.NewGate()

	ctrl, err := toggle.NewController(ctx, deps.Store, deps.Client, gate, toggle.Options{
		Cooldown: cfg.Toggle.Cooldown.Std(),
		Online:   obs.IsOnline,
	})
	if err != nil {
		return nil, err
	}

	svc, err := queue.NewService(ctx, queue.Deps{
		Store:       deps.Store,
		Gate:        gate,
		Fallback:    deps.Fallback,
		Online:      obs.IsOnline,
		Reconcilers: []ports.Reconciler{ctrl},
		DeadLetter:  deps.Publisher,
	}, queue.Options{
		MaxRetries:       cfg.Queue.MaxRetries,
		Pacing:           cfg.Queue.Pacing.Std(),
		EnqueueDelay:     cfg.Queue.EnqueueDelay.Std(),
		Capacity:         cfg.Queue.Capacity,
		DeadLetterTarget: cfg.Queue.DeadLetterARN,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Controller:   ctrl,
		Queue:        svc,
		Connectivity: obs,
		store:        deps.Store,
		prober:       deps.Prober,
		probeOpts: netwatch.ProbeOptions{
			Interval:   cfg.Connectivity.ProbeInterval.Std(),
			BackoffMin: cfg.Connectivity.BackoffMin.Std(),
			BackoffMax: cfg.Connectivity.BackoffMax.Std(),
		},
	}, nil
}

// Start launches the background loops. They stop on Close or when ctx is done.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	changes := a.Connectivity.Subscribe(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Queue.Run(ctx, changes)
	}()

	if a.prober != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Connectivity.RunProbe(ctx, a.prober, a.probeOpts)
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.coldStart(ctx)
	}()
}

// coldStart pushes anything left over from the last run, then adopts the
// backend's view.
func (a *App) coldStart(ctx context.Context) {
	if !a.Connectivity.IsOnline() {
		return
	}
	if _, err := a.Queue.Drain(ctx); err != nil && !errors.Is(err, types.ErrBusy) {
		log.WithError(err).Warn("startup drain failed")
	}
	if _, err := a.Controller.Reconcile(ctx); err != nil && !errors.Is(err, types.ErrBusy) {
		log.WithError(err).Warn("startup reconciliation failed")
	}
}

func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.Queue.Close()
	a.Connectivity.Close()
	return a.store.Close()
}
