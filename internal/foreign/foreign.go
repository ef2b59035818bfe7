// Package foreign implements the foreign-call frame of SPEC_FULL.md C7/§4.6:
// deterministic, non-deterministic and vararg dispatch to Go-native
// predicates, FliFrame term-reference handles scoped to one call, and the
// TRUE/FALSE/tagged-nonzero return convention that lets a foreign predicate
// synthesize its own choicepoint without the VM knowing its internals.
//
// internal/vm owns the actual term representation (word.Word) and cannot be
// imported here without a cycle, so this package talks to it through the
// narrow Engine interface below -- the same role the teacher's dumper.go
// plays for internals.go's vmCodeTable, one layer removed from the concrete
// type.
package foreign

import "fmt"

// Engine is the term-level surface a foreign predicate needs: allocate and
// inspect terms, unify, and raise exceptions. internal/vm's Machine
// implements this (see internal/vm/foreign_adapter.go) via a thin adapter,
// keeping internal/foreign free of any internal/vm import.
type Engine interface {
	Deref(t Term) Term
	NewVar() (Term, error)
	Unify(a, b Term) (bool, error)

	Atom(name string) Term
	Int(v int64) Term
	Float(v float64) (Term, error)
	String(s string) (Term, error)
	Compound(functor string, args []Term) (Term, error)

	AtomName(t Term) (string, bool)
	IntValue(t Term) (int64, bool)
	FloatValue(t Term) (float64, bool)
	StringValue(t Term) (string, bool)
	Decompose(t Term) (functor string, args []Term, ok bool)

	Throw(ball Term) error
}

// Term is an opaque handle into the engine's own term representation --
// internal/vm instantiates this as word.Word. foreign never looks inside it.
type Term interface{}

// Kind distinguishes the three call conventions of §4.6.
type Kind uint8

const (
	// FirstCall is the initial invocation of a foreign predicate.
	FirstCall Kind = iota
	// Redo asks a non-deterministic predicate for its next solution,
	// given back the Context value it returned last time.
	Redo
	// Cut tells a non-deterministic predicate its choicepoint is being
	// discarded without a further Redo, so it can release resources.
	Cut
)

func (k Kind) String() string {
	switch k {
	case FirstCall:
		return "first_call"
	case Redo:
		return "redo"
	case Cut:
		return "cut"
	default:
		return "unknown"
	}
}

// Context is what the runtime hands a foreign predicate on every call, and
// what a non-deterministic predicate gets back verbatim on Redo/Cut.
type Context struct {
	Kind   Kind
	Engine Engine

	// Carry is the opaque continuation state a non-deterministic predicate
	// returned from a prior FirstCall/Redo; nil on FirstCall.
	Carry interface{}
}

// Result is what a foreign call returns: per §4.6, TRUE/FALSE/tagged
// nonzero. Success false is FALSE (fail/backtrack); Success true with More
// false is TRUE (deterministic success, no choicepoint); Success true with
// More true is the tagged-nonzero case: success, but the runtime should
// synthesize a FOREIGN choicepoint carrying Carry for the next Redo.
type Result struct {
	Success bool
	More    bool        // if Success, whether a FOREIGN choicepoint should survive
	Carry   interface{} // Carry to hand back on the next Redo/Cut, when More
}

// Det returns a deterministic outcome: success with no further solutions,
// or failure.
func Det(ok bool) Result { return Result{Success: ok} }

// NonDet returns a non-deterministic success carrying state for Redo.
func NonDet(carry interface{}) Result { return Result{Success: true, More: true, Carry: carry} }

// Func is a foreign predicate's Go implementation. args are already
// dereferenced-on-demand term handles for the frame's first Arity slots;
// the predicate derefs through them itself via ctx.Engine.Deref.
type Func func(ctx *Context, args []Term) (Result, error)

// Flags records §4.6/§6's foreign-predicate registration bits.
type Flags uint8

const (
	// Deterministic predicates never return a NonDet result; registering
	// one as Deterministic lets the runtime skip choicepoint bookkeeping
	// even if the Func happens to return More (a programmer error,
	// caught defensively by Dispatch rather than trusted blindly).
	Deterministic Flags = 1 << iota
	// Transparent predicates see the caller's module context instead of
	// their own declaring module (mirrors the teacher's module-transparent
	// bootstrap predicates in third.go).
	Transparent
	// Vararg predicates receive the full argument vector regardless of
	// declared Arity, for the (args, arity, context) triple form of §4.6(b).
	Vararg
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// entry is one registered foreign predicate.
type entry struct {
	name  string
	arity int
	flags Flags
	fn    Func
}

// Registry is the runtime's foreign-predicate registration table, the
// concrete form of "Supplemented features" item 2: a RegisterForeign table
// in the style of pl-ext.c's registration table, rather than one hardcoded
// builtin switch.
type Registry struct {
	byKey map[key]entry
}

type key struct {
	name  string
	arity int
}

// NewRegistry creates an empty foreign-predicate table.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[key]entry)}
}

// RegisterForeign installs fn as the implementation of name/arity. A second
// registration for the same (name, arity) replaces the first, matching the
// teacher's own "last definition wins" convention for builtin overrides.
func (r *Registry) RegisterForeign(name string, arity int, flags Flags, fn Func) {
	r.byKey[key{name, arity}] = entry{name: name, arity: arity, flags: flags, fn: fn}
}

// Lookup returns the registered predicate for name/arity, if any.
func (r *Registry) Lookup(name string, arity int) (Func, Flags, bool) {
	e, ok := r.byKey[key{name, arity}]
	if !ok {
		return nil, 0, false
	}
	return e.fn, e.flags, true
}

// Dispatch invokes a registered predicate with the given call Kind,
// enforcing the Deterministic flag's contract and translating a thrown
// exception (via ctx.Engine.Throw having already been called by fn, or by
// fn returning an error) into the uniform (ok, carry, err) shape internal/vm
// needs to drive its own choicepoint machinery.
func (r *Registry) Dispatch(name string, arity int, kind Kind, eng Engine, carry interface{}, args []Term) (ok bool, newCarry interface{}, err error) {
	fn, flags, found := r.Lookup(name, arity)
	if !found {
		return false, nil, fmt.Errorf("foreign: no such predicate %s/%d", name, arity)
	}
	ctx := &Context{Kind: kind, Engine: eng, Carry: carry}
	res, ferr := fn(ctx, args)
	if ferr != nil {
		return false, nil, ferr
	}
	if flags.has(Deterministic) && res.More {
		return false, nil, fmt.Errorf("foreign: %s/%d registered Deterministic but returned a choicepoint", name, arity)
	}
	if !res.Success {
		return false, nil, nil
	}
	if res.More {
		return true, res.Carry, nil
	}
	return true, nil, nil
}
