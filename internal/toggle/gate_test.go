package toggle

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateSingleOwner(t *testing.T) {
	g := NewGate()
	assert.True(t, g.TryAcquire(OwnerToggle))
	assert.False(t, g.TryAcquire(OwnerDrain))
	assert.Equal(t, OwnerToggle, g.Owner())
	assert.True(t, g.Busy())

	g.Release()
	assert.False(t, g.Busy())
	assert.True(t, g.TryAcquire(OwnerDrain))
	assert.Equal(t, OwnerDrain, g.Owner())
}

func TestGateConcurrentAcquire(t *testing.T) {
	g := NewGate()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire(OwnerToggle) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestGuard(t *testing.T) {
	var g Guard
	captured := g.Current()
	assert.False(t, g.Stale(captured))

	next := g.Next()
	assert.Equal(t, captured+1, next)
	assert.True(t, g.Stale(captured))
	assert.False(t, g.Stale(next))
}

func TestGuardSeed(t *testing.T) {
	g := NewGuard(1_700_000_000_000)
	assert.Equal(t, uint64(1_700_000_000_000), g.Current())
	assert.Equal(t, uint64(1_700_000_000_001), g.Next())
}
