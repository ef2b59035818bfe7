// Package procedure implements the clause/procedure/module records of
// SPEC_FULL.md C2, including the logical-update-view generation scheme
// (SPEC_FULL.md §4.2) that makes assert/retract visible only to queries
// that started after they committed.
package procedure

import (
	"sync"
	"sync/atomic"

	"github.com/gowam/wam/internal/index"
	"github.com/gowam/wam/internal/symbol"
)

// Generation is the monotonically increasing logical-update-view counter
// (SPEC_FULL.md §4.2 "Logical update view", §6 "Generations").
type Generation uint64

// Clock hands out generations. One Clock is shared by a whole process
// (mirroring the source engine's single global generation counter); every
// assertz/retract bumps it, and every query snapshots it at entry.
type Clock struct{ n atomic.Uint64 }

// Snapshot returns the current generation without advancing it -- what a
// query records at entry.
func (c *Clock) Snapshot() Generation { return Generation(c.n.Load()) }

// Advance atomically increments and returns the new generation -- what
// assertz/retract call once their effect is ready to become visible.
func (c *Clock) Advance() Generation { return Generation(c.n.Add(1)) }

// neverErased marks a clause that has not been retracted.
const neverErased = Generation(^uint64(0))

// ConstPool holds a clause's non-integer, non-symbol constant data
// (floats, strings), produced by the compiler (internal/compiler) and
// resolved by the VM when executing B_FLOAT/H_FLOAT/B_STRING/H_STRING
// instructions, whose operand is an index into these slices.
type ConstPool struct {
	Floats  []float64
	Strings []string
}

// TermKind mirrors internal/compiler.Kind: the shapes a retained source
// term can take. Defined independently here (rather than imported) since
// internal/compiler already imports this package for procedure.Clause --
// importing back would cycle.
type TermKind uint8

const (
	TermVar TermKind = iota
	TermAtom
	TermInt
	TermFloat
	TermString
	TermCompound
)

// Term is a heap-independent snapshot of a clause's source body, retained
// so retract/1 can unify a caller-supplied Body pattern against the
// clause's real body (SPEC_FULL.md §4.3), not merely re-derive it by
// re-running the clause's bytecode. VarName distinguishes distinct source
// variables; repeated occurrences of the same name share one binding when
// the term is rebuilt.
type Term struct {
	Kind TermKind

	VarName string
	Atom    symbol.AtomID
	Int     int64
	Float   float64
	Str     string

	Functor symbol.FunctorID
	Args    []Term
}

// Clause is one compiled clause, immutable once installed per
// SPEC_FULL.md C3 "Clause -- ... immutable once installed".
type Clause struct {
	Procedure *Procedure
	IndexKey  index.Key
	Created   Generation
	Erased    Generation // neverErased until retracted

	Code       []uint32 // bytecode, word-aligned, compiler.Opcode values and operands interleaved
	Pool       ConstPool
	NumVars    int  // slots beyond the argument region
	Committing bool // body ends in '!': enables LCO tightening, SPEC_FULL.md C4

	// Head and Body retain the clause's source terms (Body nil for a
	// fact), so retract/1 can structurally unify a caller's Head/Body
	// pattern against them instead of against whatever the bytecode
	// happens to prove. Sharing the same VarName across Head and Body
	// lets a rebuild preserve head/body variable linkage.
	Head *Term
	Body *Term

	refs atomic.Int32 // choicepoints currently pointing into this clause
}

// VisibleTo reports whether the clause is part of the clause set as seen
// by a query that snapshotted the clock at snap: created before or at the
// snapshot, and not yet erased as of the snapshot (SPEC_FULL.md §4.2).
func (c *Clause) VisibleTo(snap Generation) bool {
	return c.Created <= snap && snap < c.Erased
}

// Retain bumps the choicepoint reference count (a CLAUSE choicepoint
// pointing at "the next candidate" retains it, SPEC_FULL.md §4.2 step 3).
func (c *Clause) Retain() { c.refs.Add(1) }

// Release drops the choicepoint reference count.
func (c *Clause) Release() { c.refs.Add(-1) }

// Collectible reports whether the clause may be physically freed: erased
// with respect to every still-active query's oldest snapshot, and no
// choicepoint retains it (SPEC_FULL.md §3 Lifecycles).
func (c *Clause) Collectible(oldestActiveSnapshot Generation) bool {
	return c.Erased != neverErased && c.Erased <= oldestActiveSnapshot && c.refs.Load() == 0
}

// ClauseStore owns the (ordered) physical clause list of one procedure,
// guarded by the procedure's own mutex (SPEC_FULL.md C12 "clause chains of
// a dynamic predicate are guarded by the predicate's own mutex").
type ClauseStore struct {
	mu      sync.RWMutex
	clauses []*Clause
}

// Assertz appends c to the end of the clause list and bumps clk, returning
// the generation the assertion became visible at.
func (s *ClauseStore) Assertz(clk *Clock, c *Clause) Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := clk.Advance()
	c.Created = gen
	c.Erased = neverErased
	s.clauses = append(s.clauses, c)
	return gen
}

// Asserta prepends c to the start of the clause list.
func (s *ClauseStore) Asserta(clk *Clock, c *Clause) Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := clk.Advance()
	c.Created = gen
	c.Erased = neverErased
	s.clauses = append([]*Clause{c}, s.clauses...)
	return gen
}

// Retract stamps c's erase generation without physically unlinking it --
// physical removal is deferred to a later clause-GC pass once no active
// query's snapshot still straddles it (SPEC_FULL.md §3 Lifecycles; see
// also DESIGN.md's notes on the open question around
// garbage_collect_clauses/0 concurrency).
func (s *ClauseStore) Retract(clk *Clock, c *Clause) Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := clk.Advance()
	c.Erased = gen
	return gen
}

// Snapshot returns every clause visible to snap, in declaration order.
func (s *ClauseStore) Snapshot(snap Generation) []*Clause {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Clause, 0, len(s.clauses))
	for _, c := range s.clauses {
		if c.VisibleTo(snap) {
			out = append(out, c)
		}
	}
	return out
}

// CollectErased physically drops clauses that are Collectible with
// respect to oldestActiveSnapshot, returning how many were dropped.
func (s *ClauseStore) CollectErased(oldestActiveSnapshot Generation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.clauses[:0]
	dropped := 0
	for _, c := range s.clauses {
		if c.Collectible(oldestActiveSnapshot) {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	s.clauses = kept
	return dropped
}

// Name identifies a procedure by its interned functor, matching
// SPEC_FULL.md C2 "Procedure -- {functor, ...}".
type Name = symbol.FunctorID
