package procedure

import (
	"sync"
	"sync/atomic"

	"github.com/gowam/wam/internal/index"
)

// Flags are the per-procedure flags of SPEC_FULL.md C2.
type Flags uint16

const (
	FlagDynamic Flags = 1 << iota
	FlagMultifile
	FlagForeign
	FlagThreadLocal
	FlagMeta
	FlagHideChilds
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Procedure is a predicate's clause chain plus indexing and reference
// bookkeeping (SPEC_FULL.md C2 "Procedure").
type Procedure struct {
	Functor Name
	Module  *Module

	mu    sync.RWMutex
	flags Flags

	Clauses *ClauseStore
	Index   *index.Table // nil unless a caller installs one; lookups do not build it

	// ThreadLocal holds per-engine clause stores when FlagThreadLocal is
	// set, keyed by engine id (an xid.ID formatted as a string by
	// internal/engine). SPEC_FULL.md §4.7 "Thread-local predicates lazily
	// allocate a per-engine copy on first reference."
	threadLocalMu sync.Mutex
	threadLocal   map[string]*ClauseStore

	refs atomic.Int32 // choicepoints/call-sites referencing this definition
}

// NewProcedure creates an empty, non-dynamic procedure for functor f in
// module m.
func NewProcedure(f Name, m *Module) *Procedure {
	return &Procedure{Functor: f, Module: m, Clauses: &ClauseStore{}}
}

// Flags returns the current flag bits.
func (p *Procedure) Flags() Flags {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.flags
}

// SetFlags ORs in bits (e.g. marking a procedure dynamic on first
// assertz/1 of an undefined predicate).
func (p *Procedure) SetFlags(bits Flags) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags |= bits
}

// ClearFlags ANDs out bits.
func (p *Procedure) ClearFlags(bits Flags) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags &^= bits
}

// StoreFor returns the clause store a given engine should consult: its own
// private copy for a thread-local predicate (allocated lazily on first
// use), or the shared store otherwise.
func (p *Procedure) StoreFor(engineID string) *ClauseStore {
	if !p.Flags().Has(FlagThreadLocal) {
		return p.Clauses
	}
	p.threadLocalMu.Lock()
	defer p.threadLocalMu.Unlock()
	if p.threadLocal == nil {
		p.threadLocal = make(map[string]*ClauseStore)
	}
	store, ok := p.threadLocal[engineID]
	if !ok {
		store = &ClauseStore{}
		p.threadLocal[engineID] = store
	}
	return store
}

// Retain/Release track how many call-sites or choicepoints reference this
// procedure's definition, used by the undefined-predicate and clause-GC
// paths to decide when a procedure record itself may be dropped.
func (p *Procedure) Retain() { p.refs.Add(1) }
func (p *Procedure) Release() { p.refs.Add(-1) }
func (p *Procedure) RefCount() int32 { return p.refs.Load() }

// Table is the process-wide procedure table (SPEC_FULL.md C2), shared
// across engines and guarded by its own read-write mutex.
type Table struct {
	mu    sync.RWMutex
	procs map[procKey]*Procedure
}

type procKey struct {
	module  string
	functor Name
}

// NewTable creates an empty procedure table.
func NewTable() *Table { return &Table{procs: make(map[procKey]*Procedure)} }

// Lookup returns the procedure for (module, functor), or nil if undefined.
func (t *Table) Lookup(module string, f Name) *Procedure {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.procs[procKey{module, f}]
}

// Ensure returns the procedure for (m, f), creating an empty one if it
// does not yet exist.
func (t *Table) Ensure(m *Module, f Name) *Procedure {
	key := procKey{m.Name, f}

	t.mu.RLock()
	if p, ok := t.procs[key]; ok {
		t.mu.RUnlock()
		return p
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.procs[key]; ok {
		return p
	}
	p := NewProcedure(f, m)
	t.procs[key] = p
	return p
}
