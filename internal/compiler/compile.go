package compiler

import (
	"fmt"

	"github.com/gowam/wam/internal/index"
	"github.com/gowam/wam/internal/procedure"
	"github.com/gowam/wam/internal/symbol"
)

// clauseCompiler holds the per-clause state threaded through head/body/
// control/arithmetic emission: the instruction assembler, the variable
// slot assignment, the process-wide symbol tables (so H_CONST/H_FUNCTOR/
// B_CONST/B_FUNCTOR operands are real AtomID/FunctorID values, not a
// clause-local string table the VM would have to resolve separately), and
// a "first occurrence" set used by both H_FIRSTVAR (head) and
// A_FIRSTVAR_IS (arithmetic result binding) to decide bind-vs-check, per
// SPEC_FULL.md C4.
type clauseCompiler struct {
	asm          *asm
	vars         *varAnalysis
	atoms        *symbol.Table
	functors     *symbol.FunctorTable
	seen         map[string]bool
	tailPosition bool // true while emitting the last body goal
	lco          bool // config.Config.LastCallOptimisation: gates I_DEPART vs I_CALL at tailPosition
}

func (c *clauseCompiler) functorID(name string, arity int) symbol.FunctorID {
	return c.functors.Intern(c.atoms.Intern(name), uint16(arity))
}

// Compile lowers one clause (Head :- Body, or a fact when body is nil)
// into a procedure.Clause, implementing SPEC_FULL.md C4 end to end:
// variable analysis, head emission, body/control/arithmetic emission,
// fact-vs-rule boundary encoding, and first-argument index key
// computation. atoms/functors are the process-wide interned symbol
// tables (SPEC_FULL.md C2); every clause compiled for one engine shares
// the same tables so that a compiled H_CONST/B_FUNCTOR operand compares
// equal, by id, to the same symbol compiled anywhere else.
//
// lco mirrors config.Config.LastCallOptimisation: when false, the last
// body goal still compiles to a plain call (I_CALL) instead of I_DEPART,
// trading the tail-call frame reuse for a conventional (if larger) call
// stack -- independent of cut-at-tail detection, which always looks at
// goal position regardless of this flag.
func Compile(atoms *symbol.Table, functors *symbol.FunctorTable, head, body *Term, lco bool) (*procedure.Clause, error) {
	if !head.IsCallable() {
		return nil, fmt.Errorf("compiler: clause head must be callable, got %v", head.Kind)
	}

	localMode := false
	va := newVarAnalysis(head.Arity(), localMode)
	va.countOccurrences(head, body)
	va.assignHeadArgSlots(head)
	va.finalize()

	c := &clauseCompiler{
		asm:      &asm{},
		vars:     va,
		atoms:    atoms,
		functors: functors,
		seen:     make(map[string]bool),
		lco:      lco,
	}

	c.asm.emit(I_ENTER)
	headStart := c.asm.here()
	c.emitHead(head)
	c.asm.code = append(c.asm.code[:headStart], stripTrailingVoid(c.asm.code[headStart:])...)

	committing := false
	if body == nil {
		c.asm.emit(I_EXITFACT)
	} else {
		goals := flattenConjunction(body)
		for i, g := range goals {
			c.tailPosition = i == len(goals)-1
			if c.tailPosition && g.Kind == KindAtom && g.Atom == "!" {
				committing = true
			}
			c.emitBody(g)
		}
		c.asm.emit(I_EXIT)
	}

	return &procedure.Clause{
		IndexKey:   c.firstArgKey(head),
		Code:       asInt32ToUint32(c.asm.code),
		Pool:       procedure.ConstPool{Floats: c.asm.pool.Floats, Strings: c.asm.pool.Strings},
		NumVars:    va.NumVars(),
		Committing: committing,
		Head:       toProcedureTerm(atoms, functors, head),
		Body:       toProcedureTerm(atoms, functors, body),
	}, nil
}

// toProcedureTerm snapshots a source head or body term into the cycle-free shape
// procedure.Clause retains, so retract/1 can later unify a Body pattern
// against the clause's real body (SPEC_FULL.md §4.3) without re-running
// its bytecode. A fact (body == nil) retains no body term.
func toProcedureTerm(atoms *symbol.Table, functors *symbol.FunctorTable, t *Term) *procedure.Term {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case KindVar:
		return &procedure.Term{Kind: procedure.TermVar, VarName: t.VarName}
	case KindAtom:
		return &procedure.Term{Kind: procedure.TermAtom, Atom: atoms.Intern(t.Atom)}
	case KindInt:
		return &procedure.Term{Kind: procedure.TermInt, Int: t.Int}
	case KindFloat:
		return &procedure.Term{Kind: procedure.TermFloat, Float: t.Float}
	case KindString:
		return &procedure.Term{Kind: procedure.TermString, Str: t.Str}
	case KindCompound:
		id := functors.Intern(atoms.Intern(t.Atom), uint16(len(t.Args)))
		args := make([]procedure.Term, len(t.Args))
		for i, a := range t.Args {
			args[i] = *toProcedureTerm(atoms, functors, a)
		}
		return &procedure.Term{Kind: procedure.TermCompound, Functor: id, Args: args}
	default:
		return &procedure.Term{Kind: procedure.TermAtom, Atom: atoms.Intern("[]")}
	}
}

// flattenConjunction splits a right-associated ','/2 chain into its
// top-level goal list, so the last element can be identified for LCO/I_DEPART
// and cut-at-tail ('!' as the final goal) detection.
func flattenConjunction(t *Term) []*Term {
	var out []*Term
	for t.Kind == KindCompound && t.Atom == "," && len(t.Args) == 2 {
		out = append(out, t.Args[0])
		t = t.Args[1]
	}
	return append(out, t)
}

// firstArgKey computes the clause's first-argument index key from its
// head, per SPEC_FULL.md C4/C6: non-indexable for an atom head (arity 0),
// a head whose first argument is a variable, or anything the compiler
// cannot statically classify.
func (c *clauseCompiler) firstArgKey(head *Term) index.Key {
	if head.Kind != KindCompound || len(head.Args) == 0 {
		return index.NonIndexable
	}
	arg := head.Args[0]
	switch arg.Kind {
	case KindAtom:
		return index.ForAtom(c.atoms.Intern(arg.Atom))
	case KindInt:
		return index.ForInt(arg.Int)
	case KindCompound:
		return index.ForFunctor(c.functorID(arg.Atom, len(arg.Args)))
	default:
		return index.NonIndexable
	}
}

func asInt32ToUint32(in []int32) []uint32 {
	out := make([]uint32, len(in))
	for i, v := range in {
		out[i] = uint32(v)
	}
	return out
}
