package toggle

import "sync/atomic"

// Guard is the staleness guard: a generation counter bumped on every write attempt.
// A response is applied only if the generation captured before its request is
// still the current one.
type Guard struct {
	gen atomic.Uint64
}

// NewGuard starts counting after seed. Seeding from the wall clock keeps
// generations increasing across restarts.
func NewGuard(seed uint64) *Guard {
	g := &Guard{}
	g.gen.Store(seed)
	return g
}

// Next starts a new generation and returns it. Generations are never reused.
func (g *Guard) Next() uint64 {
	return g.gen.Add(1)
}

func (g *Guard) Current() uint64 {
	return g.gen.Load()
}

// Stale reports whether a response captured at generation captured has been superseded.
func (g *Guard) Stale(captured uint64) bool {
	return g.gen.Load() != captured
}
