package toggle

import "sync"

const (
	OwnerToggle  = "toggle"
	OwnerPending = "pending_sync"
	OwnerDrain   = "queue_drain"
)

// Gate is the single in-flight flag shared by the toggle controller and the queue
// drain. Holders must release it on every exit path.
type Gate struct {
	mu    sync.Mutex
	owner string
}

func NewGate() *Gate {
	return &Gate{}
}

// TryAcquire takes the gate for owner. It never blocks.
func (g *Gate) TryAcquire(owner string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.owner != "" {
		return false
	}
	g.owner = owner
	return true
}

func (g *Gate) Release() {
	g.mu.Lock()
	g.owner = ""
	g.mu.Unlock()
}

func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner != ""
}

// Owner returns who holds the gate, or "" when free.
func (g *Gate) Owner() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner
}
