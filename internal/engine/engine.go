// Package engine implements the thread-engine runtime of SPEC_FULL.md
// C12/§4.7 and §5: one Local per goroutine-backed logic-engine "thread",
// a bounded registry of such engines capped at a configurable max_threads,
// thread_signal/thread_cancel, and the purpose-named mutex and lazy
// per-engine predicate allocation primitives §4.7 describes as shared
// infrastructure between engines.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/gowam/wam/internal/engine/glock"
	"github.com/gowam/wam/internal/vm"
)

// SignalKind distinguishes the two asynchronous requests a thread can
// receive, per §5's message-passing and cancellation primitives.
type SignalKind uint8

const (
	// SignalException asks the target to raise Ball as a synchronous
	// exception at its next safe point, as if by throw/1.
	SignalException SignalKind = iota
	// SignalCancel asks the target to wind down cooperatively before the
	// harder context-cancellation escalation lands.
	SignalCancel
)

// Signal is one pending asynchronous request delivered to a Local's signal
// channel, consumed via PollSignal at the engine's own safe points.
type Signal struct {
	Kind SignalKind
	Ball interface{} // a reified exception ball, set when Kind == SignalException
}

// Local is one goroutine-backed logic engine: a *vm.Machine plus the
// identity, mailbox, and asynchronous-signal plumbing §4.7 attaches to it.
// Wiring PollSignal into every VM dispatch point (so a pending signal
// actually interrupts execution, not just a caller who happens to poll) is
// left to the embedder driving Machine.Solve, the same scope line
// internal/atomgc draws around PollSafePoint: this package provides the
// cooperative primitive, not a forced preemption point inside the
// interpreter loop.
type Local struct {
	ID      xid.ID
	Machine *vm.Machine
	Inbox   *Queue

	signals chan Signal
	ctx     context.Context
	cancel  context.CancelFunc
}

// Context returns the Local's cancellation context, done once ThreadCancel
// escalates or the owning Registry releases this engine.
func (l *Local) Context() context.Context { return l.ctx }

// PollSignal returns the next pending signal without blocking, the
// cooperative checkpoint an embedder's dispatch loop calls at CALL/DEPART/
// REDO/EXIT/FAIL/THROW boundaries per §5.
func (l *Local) PollSignal() (Signal, bool) {
	select {
	case s := <-l.signals:
		return s, true
	default:
		return Signal{}, false
	}
}

// Registry owns the set of live Locals, a semaphore bounding concurrent
// engines at max_threads, the shared purpose-named mutex set, and the
// lazy-allocation dedup group thread-local predicate materialization uses.
type Registry struct {
	Locks *glock.Registry
	Lazy  *LazyGroup

	mu      sync.Mutex
	engines map[xid.ID]*Local
	sem     *semaphore.Weighted
}

// NewRegistry builds a Registry admitting at most maxThreads concurrently
// live engines.
func NewRegistry(maxThreads int) *Registry {
	if maxThreads <= 0 {
		maxThreads = 1
	}
	return &Registry{
		Locks:   glock.NewRegistry(),
		Lazy:    &LazyGroup{},
		engines: make(map[xid.ID]*Local),
		sem:     semaphore.NewWeighted(int64(maxThreads)),
	}
}

// Spawn admits one new engine, blocking until a max_threads slot is free
// or ctx is cancelled first. build receives the engine's freshly minted
// identifier so it can be threaded into the Machine it constructs (e.g. as
// a %-comment header or a thread-local module name). The caller must
// eventually call Release to free the slot.
func (r *Registry) Spawn(ctx context.Context, inboxCap int, build func(id xid.ID) *vm.Machine) (*Local, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	id := xid.New()
	cctx, cancel := context.WithCancel(ctx)
	loc := &Local{
		ID:      id,
		Machine: build(id),
		Inbox:   NewQueue(inboxCap),
		signals: make(chan Signal, 8),
		ctx:     cctx,
		cancel:  cancel,
	}
	r.mu.Lock()
	r.engines[id] = loc
	r.mu.Unlock()
	return loc, nil
}

// Release tears down a previously spawned engine: it cancels its context,
// closes its inbox, removes it from the registry, and frees its
// max_threads slot.
func (r *Registry) Release(id xid.ID) {
	r.mu.Lock()
	loc, ok := r.engines[id]
	if ok {
		delete(r.engines, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	loc.Inbox.Close()
	loc.cancel()
	r.sem.Release(1)
}

// Lookup finds a live engine by ID, e.g. to resolve a thread_send_message
// or thread_signal target.
func (r *Registry) Lookup(id xid.ID) (*Local, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.engines[id]
	return l, ok
}

// ThreadSignal delivers an asynchronous exception request to id's signal
// channel, per §5 "a thread may be signalled with a synchronous exception
// that raises at its next suspension point". It does not block: a target
// that is not polling promptly simply sees the signal at its next safe
// point, and a full signal channel reports an error rather than stalling
// the sender.
func (r *Registry) ThreadSignal(id xid.ID, ball interface{}) error {
	loc, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("engine: no such thread %s", id)
	}
	select {
	case loc.signals <- Signal{Kind: SignalException, Ball: ball}:
		return nil
	default:
		return fmt.Errorf("engine: signal queue full for thread %s", id)
	}
}

// ThreadCancel asks id to wind down cooperatively, escalating to hard
// context cancellation after window if it hasn't exited by then. Go has no
// way to forcibly terminate a goroutine, so this escalation -- cancelling
// id's Context, which an embedder's blocking calls (Inbox.Get/Send,
// foreign I/O) should already be honoring via ctx -- is the closest
// analogue to the source runtime's harder thread-kill path available here.
func (r *Registry) ThreadCancel(id xid.ID, window time.Duration) error {
	loc, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("engine: no such thread %s", id)
	}
	select {
	case loc.signals <- Signal{Kind: SignalCancel}:
	default:
	}
	if window <= 0 {
		loc.cancel()
		return nil
	}
	time.AfterFunc(window, loc.cancel)
	return nil
}

// Group runs a batch of engines concurrently via golang.org/x/sync/errgroup,
// collecting the first non-nil error and cancelling the remaining engines'
// shared context once one fails -- the concurrency primitive an embedder's
// forall-across-threads or concurrent-query helper is built on.
type Group struct {
	g   *errgroup.Group
	ctx context.Context
}

// NewGroup builds a Group whose member contexts derive from ctx.
func NewGroup(ctx context.Context) *Group {
	g, cctx := errgroup.WithContext(ctx)
	return &Group{g: g, ctx: cctx}
}

// Go schedules fn to run concurrently with the Group's shared, cancellable
// context.
func (gr *Group) Go(fn func(ctx context.Context) error) {
	gr.g.Go(func() error { return fn(gr.ctx) })
}

// Wait blocks until every scheduled fn has returned, yielding the first
// non-nil error (if any).
func (gr *Group) Wait() error { return gr.g.Wait() }

// LazyGroup deduplicates concurrent first-reference materialization of a
// thread-local resource, per §4.7 "thread-local predicates lazily allocate
// a per-engine copy on first reference": if two goroutines race to
// materialize the same keyed resource, only one actually runs fn and both
// observe its result, via golang.org/x/sync/singleflight.
type LazyGroup struct {
	sf singleflight.Group
}

// Once runs fn at most once per concurrent burst of calls sharing key,
// returning whether this particular call's result was shared from another
// in-flight call.
func (lg *LazyGroup) Once(key string, fn func() (interface{}, error)) (val interface{}, err error, shared bool) {
	return lg.sf.Do(key, fn)
}
