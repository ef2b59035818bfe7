// Package atomgc implements the cooperative atom-GC coordinator of
// SPEC_FULL.md C11/§4.7's redesign note: rather than an async signal each
// engine's handler answers at a VM-safe point, every engine polls a shared
// epoch counter at its own safe points (§5's CALL/DEPART/REDO/EXIT/FAIL/
// THROW list, plus foreign-predicate entry/exit) and only a single
// designated collector goroutine ever actually marks and sweeps — this
// fits a goroutine-per-engine runtime far better than a signal-based
// suspend/resume protocol built for OS threads.
package atomgc

import (
	"sync"
	"sync/atomic"

	"github.com/gowam/wam/internal/symbol"
)

// RootProvider supplies one engine's currently-live atom references for the
// mark phase: SPEC_FULL.md §4.7 "mark phase walks all engines' stacks and
// FLI term refs". Each registering engine passes its own function;
// internal/vm's Machine does not provide one.
type RootProvider func() []symbol.AtomID

// Coordinator tracks a shared epoch counter and the set of registered
// engines, and drives one atom-GC cycle across all of them.
type Coordinator struct {
	Atoms *symbol.Table

	mu      sync.Mutex
	engines map[uint64]RootProvider
	nextID  uint64
	epoch   uint64
}

// NewCoordinator builds a Coordinator over the process-wide atom table.
func NewCoordinator(atoms *symbol.Table) *Coordinator {
	return &Coordinator{Atoms: atoms, engines: make(map[uint64]RootProvider)}
}

// Register enrolls one engine's root provider, returning a handle to
// Unregister it on engine exit. Mirrors §9's redesign note: engines
// register themselves rather than the collector discovering them.
func (c *Coordinator) Register(roots RootProvider) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.engines[id] = roots
	return id
}

// Unregister removes an engine from the registry, e.g. on thread exit.
func (c *Coordinator) Unregister(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.engines, id)
}

// Epoch returns the current epoch counter value. An engine compares this
// against the epoch it last observed at its previous safe point to decide
// whether it owes the coordinator a cooperative pause (PollSafePoint).
func (c *Coordinator) Epoch() uint64 { return atomic.LoadUint64(&c.epoch) }

// RequestCycle bumps the epoch counter, the cooperative-checkpoint
// equivalent of posting the async signal in the source engine's
// signal-based strategy: every engine's next PollSafePoint call will now
// observe a new epoch and participate in the upcoming Collect.
func (c *Coordinator) RequestCycle() uint64 {
	return atomic.AddUint64(&c.epoch, 1)
}

// PollSafePoint is what an engine calls at each of its own VM-safe points
// (§5's CALL/DEPART/REDO/EXIT/FAIL/THROW list, and foreign call entry/exit).
// It reports whether the epoch has advanced since lastSeen, so the caller
// knows a Collect is in flight and it should contribute its roots (by
// whatever means its own RootProvider already exposes) before continuing.
func (c *Coordinator) PollSafePoint(lastSeen uint64) (current uint64, dueForCollect bool) {
	cur := c.Epoch()
	return cur, cur != lastSeen
}

// Collect runs one mark/sweep cycle: marks every atom reachable from every
// registered engine's current roots, then sweeps the shared table. Callers
// typically pair this with RequestCycle so that by the time Collect runs,
// every engine has had a chance to observe the new epoch at its next safe
// point and these RootProviders reflect live state rather than a stale
// snapshot from before the request.
func (c *Coordinator) Collect() int {
	c.mu.Lock()
	providers := make([]RootProvider, 0, len(c.engines))
	for _, p := range c.engines {
		providers = append(providers, p)
	}
	c.mu.Unlock()

	for _, roots := range providers {
		for _, id := range roots() {
			c.Atoms.Mark(id)
		}
	}
	return c.Atoms.Sweep()
}
