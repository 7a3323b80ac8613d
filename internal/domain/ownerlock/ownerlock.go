// Package ownerlock serializes reconciliation per owner.
//
// The event store invariant (at most one active event per owner/pokemon
// pair) only holds if no two reconciliations for the same owner run
// concurrently. Guard provides that mutual exclusion scope while letting
// distinct owners proceed in parallel.
package ownerlock

import (
	"context"
	"sync"
)

// Guard hands out per-owner locks.
type Guard interface {
	// Acquire blocks until the owner's lock is held or ctx is done.
	// It returns a release func on success, nil when ctx was cancelled.
	Acquire(ctx context.Context, ownerID string) func()

	// TryAcquire takes the owner's lock only when it is free.
	TryAcquire(ownerID string) (func(), bool)

	// Size returns the number of owners currently holding or awaiting a lock.
	Size() int
}

// entry is a refcounted semaphore for one owner.
type entry struct {
	sem  chan struct{}
	refs int
}

// keyedGuard implements Guard with a mutex-guarded map of refcounted
// semaphores. Entries are reclaimed as soon as the last holder releases,
// so memory stays proportional to in-flight owners, not all owners seen.
type keyedGuard struct {
	mu        sync.Mutex
	locks     map[string]*entry
	entryPool sync.Pool
}

// New creates an empty keyed guard.
func New() Guard {
	return &keyedGuard{
		locks: make(map[string]*entry),
		entryPool: sync.Pool{
			New: func() any {
				return &entry{sem: make(chan struct{}, 1)}
			},
		},
	}
}

func (g *keyedGuard) checkout(ownerID string) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.locks[ownerID]
	if !ok {
		e = g.entryPool.Get().(*entry)
		g.locks[ownerID] = e
	}
	e.refs++
	return e
}

func (g *keyedGuard) checkin(ownerID string, e *entry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(g.locks, ownerID)
		g.entryPool.Put(e)
	}
}

// Acquire blocks until the owner's lock is held or ctx is done.
func (g *keyedGuard) Acquire(ctx context.Context, ownerID string) func() {
	e := g.checkout(ownerID)

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				g.checkin(ownerID, e)
			})
		}
	case <-ctx.Done():
		g.checkin(ownerID, e)
		return nil
	}
}

// TryAcquire takes the owner's lock only when it is free.
func (g *keyedGuard) TryAcquire(ownerID string) (func(), bool) {
	e := g.checkout(ownerID)

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				g.checkin(ownerID, e)
			})
		}, true
	default:
		g.checkin(ownerID, e)
		return nil, false
	}
}

// Size returns the number of owners currently holding or awaiting a lock.
func (g *keyedGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
