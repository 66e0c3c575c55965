// Package watch provides a small hot-state holder: a value with a synchronous read
// and a change feed for observers.
package watch

import (
	"context"
	"sync"
)

// Value holds the latest T. Subscribers get a 1-slot channel that always carries
// the most recent value; intermediate values are dropped for slow readers.
type Value[T any] struct {
	mu   sync.RWMutex
	cur  T
	subs map[int]chan T
	next int
}

func New[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, subs: make(map[int]chan T)}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur
}

// Set replaces the value and notifies subscribers.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = val
	for _, ch := range v.subs {
		select {
		case <-ch:
		default:
		}
		ch <- val
	}
}

// Subscribe returns a change feed that is closed when ctx is done.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)
	v.mu.Lock()
	id := v.next
	v.next++
	v.subs[id] = ch
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		v.mu.Lock()
		delete(v.subs, id)
		close(ch)
		v.mu.Unlock()
	}()
	return ch
}

// Subscribers returns the number of live subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subs)
}
