package netwatch

import (
	"context"
	"net/http"
	"time"

	"availsync/internal/ports"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultProbeInterval = 10 * time.Second
	DefaultBackoffMin    = 1 * time.Second
	DefaultBackoffMax    = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

type ProbeOptions struct {
	// Interval between probes while reachable.
	Interval time.Duration
	// BackoffMin and BackoffMax bound the doubling delay while unreachable.
	BackoffMin time.Duration
	BackoffMax time.Duration
	// Timeout caps a single probe.
	Timeout time.Duration
}

func (p *ProbeOptions) withDefaults() {
	if p.Interval <= 0 {
		p.Interval = DefaultProbeInterval
	}
	if p.BackoffMin <= 0 {
		p.BackoffMin = DefaultBackoffMin
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = DefaultBackoffMax
	}
	if p.BackoffMax < p.BackoffMin {
		p.BackoffMax = p.BackoffMin
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultProbeTimeout
	}
}

// schedule yields the wait before the next probe.
type schedule struct {
	interval time.Duration
	b        *backoff.ExponentialBackOff
}

func newSchedule(opts ProbeOptions) *schedule {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.BackoffMin
	b.MaxInterval = opts.BackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return &schedule{interval: opts.Interval, b: b}
}

func (s *schedule) next(reachable bool) time.Duration {
	if reachable {
		s.b.Reset()
		return s.interval
	}
	return s.b.NextBackOff()
}

// RunProbe probes until ctx is done and reports every result to the observer.
func (o *Observer) RunProbe(ctx context.Context, prober ports.Prober, opts ProbeOptions) {
	opts.withDefaults()
	sched := newSchedule(opts)
	for {
		pctx, cancel := context.WithTimeout(ctx, opts.Timeout)
		ok := prober.Probe(pctx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		o.Report(ok)

		wait := sched.next(ok)
		if !ok {
			log.WithField("retry_in", wait.String()).Debug("backend unreachable")
		}
		select {
		case <-ctx.Done():
			return
		case <-o.clk.After(wait):
		}
	}
}

// HTTPProber treats any HTTP response to a HEAD request as reachable.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

func (p HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	cli := p.Client
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
