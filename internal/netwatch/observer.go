// Package netwatch tracks network reachability. Raw observations are available
// immediately through IsOnline; dependents subscribe to the debounced feed so a
// flapping link does not trigger a drain on every transition.
package netwatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"availsync/internal/types"
	"availsync/internal/watch"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
)

const DefaultDebounce = 2000 * time.Millisecond

type Options struct {
	// Debounce is how long a new observation must hold before it is published.
	Debounce time.Duration
	// Clock drives the debounce timer. Defaults to the wall clock.
	Clock clock.Clock
}

type Observer struct {
	debounce time.Duration
	clk      clock.Clock

	raw atomic.Bool

	mu     sync.Mutex
	timer  *clock.Timer
	seq    uint64
	closed bool

	state *watch.Value[types.ConnectivityState]
}

// NewObserver starts with a settled state of initialOnline.
func NewObserver(initialOnline bool, opts Options) *Observer {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	o := &Observer{
		debounce: opts.Debounce,
		clk:      opts.Clock,
		state:    watch.New(types.ConnectivityState{State: connectivity(initialOnline), Since: opts.Clock.Now()}),
	}
	o.raw.Store(initialOnline)
	return o
}

// IsOnline is the best-effort, undebounced view.
func (o *Observer) IsOnline() bool {
	return o.raw.Load()
}

// Report records an observation. Every call restarts the debounce window; when
// the window elapses the latest observation is published if it differs from the
// settled state.
func (o *Observer) Report(online bool) {
	o.raw.Store(online)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.seq++
	if o.state.Get().IsOnline() == online {
		// Flapped back to where we settled.
		return
	}
	seq := o.seq
	o.timer = o.clk.AfterFunc(o.debounce, func() { o.settle(seq, online) })
}

func (o *Observer) settle(seq uint64, online bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || seq != o.seq {
		return
	}
	o.timer = nil
	if o.state.Get().IsOnline() == online {
		return
	}
	st := types.ConnectivityState{State: connectivity(online), Since: o.clk.Now()}
	o.state.Set(st)
	log.WithField("state", st.State.String()).Info("connectivity changed")
}

// State returns the settled (debounced) state.
func (o *Observer) State() types.ConnectivityState {
	return o.state.Get()
}

// Subscribe returns the debounced transition feed, closed when ctx is done.
func (o *Observer) Subscribe(ctx context.Context) <-chan types.ConnectivityState {
	return o.state.Subscribe(ctx)
}

// Close cancels a pending debounce. Later reports only update IsOnline.
func (o *Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func connectivity(online bool) types.Connectivity {
	if online {
		return types.Online
	}
	return types.Offline
}
