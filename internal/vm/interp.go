package vm

import (
	"fmt"
	"math"

	"github.com/gowam/wam/internal/compiler"
	"github.com/gowam/wam/internal/procedure"
	"github.com/gowam/wam/internal/symbol"
	"github.com/gowam/wam/internal/word"
)

// runClause activates one compiled clause against args: it allocates the
// clause's frame-local variable cells, seeds the head-unification cursor
// with the call's own argument words, and runs the bytecode to completion.
func (m *Machine) runClause(cl *procedure.Clause, args []word.Word, depth int, cutFlag *bool, k Solution) (bool, error) {
	fr, err := newFrame(m, cl, args, cutFlag)
	if err != nil {
		return false, err
	}
	fr.pushHead(&cursor{words: args})
	return m.runFrame(fr, depth, k)
}

// stopAtFirstSuccess is the probe continuation used by C_IFTHENELSE,
// C_SOFTIF and C_NOT to ask "does this goal have at least one solution",
// without running anything past the probed goal itself.
func stopAtFirstSuccess() (bool, error) { return true, nil }

// runFrame is the bytecode dispatch loop for one clause activation. It
// mutates fr.pc as it goes; head/body/arithmetic instructions are
// deterministic and simply advance fr.pc in place, while predicate calls
// and control constructs recurse (directly, or through Solve) carrying a
// continuation that captures "the rest of this frame" -- see the package
// doc comment on the overall CPS design.
func (m *Machine) runFrame(fr *frame, depth int, k Solution) (bool, error) {
	for {
		if fr.pc >= len(fr.code) {
			return false, fmt.Errorf("vm: ran off the end of clause code")
		}
		op := compiler.Opcode(fr.code[fr.pc])
		fr.pc++

		switch op {
		case compiler.OpNone, compiler.I_ENTER:
			// no-op: the head cursor is seeded by runClause before entry.

		case compiler.H_VOID:
			if _, ok := fr.topHead().next(); !ok {
				return false, nil
			}

		case compiler.H_CONST:
			id := fr.code[fr.pc]
			fr.pc++
			ok, err := m.unifyHeadAtomic(fr, word.Atom(symbol.AtomID(id)))
			if err != nil || !ok {
				return false, err
			}

		case compiler.H_NIL:
			ok, err := m.unifyHeadAtomic(fr, word.Atom(m.nilAtom()))
			if err != nil || !ok {
				return false, err
			}

		case compiler.H_INTEGER:
			v := fr.code[fr.pc]
			fr.pc++
			ok, err := m.unifyHeadAtomic(fr, word.Int(int64(int32(v))))
			if err != nil || !ok {
				return false, err
			}

		case compiler.H_FLOAT:
			idx := fr.code[fr.pc]
			fr.pc++
			ok, err := m.unifyHeadFloat(fr, fr.clause.Pool.Floats[idx])
			if err != nil || !ok {
				return false, err
			}

		case compiler.H_STRING:
			idx := fr.code[fr.pc]
			fr.pc++
			ok, err := m.unifyHeadString(fr, fr.clause.Pool.Strings[idx])
			if err != nil || !ok {
				return false, err
			}

		case compiler.H_MPZ:
			fr.pc++
			return false, fmt.Errorf("vm: arbitrary-precision integer literals are not supported")

		case compiler.H_FIRSTVAR, compiler.H_VAR:
			slot := int(fr.code[fr.pc])
			fr.pc++
			w, ok := fr.topHead().next()
			if !ok {
				return false, nil
			}
			uok, err := fr.unifySlot(m.Unifier, slot, w)
			if err != nil || !uok {
				return false, err
			}

		case compiler.H_FUNCTOR, compiler.H_RFUNCTOR:
			id := symbol.FunctorID(fr.code[fr.pc])
			fr.pc++
			ok, err := m.descendHeadCompound(fr, id)
			if err != nil || !ok {
				return false, err
			}

		case compiler.H_LIST, compiler.H_RLIST:
			ok, err := m.descendHeadCompound(fr, m.dotFunctor())
			if err != nil || !ok {
				return false, err
			}

		case compiler.I_POPF:
			fr.popHead()

		case compiler.B_VOID:
			// "_" (or a void slot) in goal-argument position, see
			// emitBodyVar: push a fresh unbound variable.
			v, err := m.NewVar()
			if err != nil {
				return false, err
			}
			fr.pushOperand(v.(word.Word))

		case compiler.B_CONST:
			id := fr.code[fr.pc]
			fr.pc++
			fr.pushOperand(word.Atom(symbol.AtomID(id)))

		case compiler.B_NIL:
			fr.pushOperand(word.Atom(m.nilAtom()))

		case compiler.B_INTEGER:
			v := fr.code[fr.pc]
			fr.pc++
			fr.pushOperand(word.Int(int64(int32(v))))

		case compiler.B_FLOAT:
			idx := fr.code[fr.pc]
			fr.pc++
			w, err := m.buildFloat(fr.clause.Pool.Floats[idx])
			if err != nil {
				return false, err
			}
			fr.pushOperand(w)

		case compiler.B_STRING:
			idx := fr.code[fr.pc]
			fr.pc++
			fr.pushOperand(m.buildString(fr.clause.Pool.Strings[idx]))

		case compiler.B_MPZ:
			fr.pc++
			return false, fmt.Errorf("vm: arbitrary-precision integer literals are not supported")

		case compiler.B_VAR:
			slot := int(fr.code[fr.pc])
			fr.pc++
			fr.pushOperand(fr.slotWord(slot))

		case compiler.B_FUNCTOR:
			id := procedure.Name(fr.code[fr.pc])
			fr.pc++
			fr.pending = append(fr.pending, &pending{functor: id})

		case compiler.B_LIST:
			fr.pending = append(fr.pending, &pending{functor: m.dotFunctor(), isList: true})

		case compiler.B_POPF:
			top := fr.pending[len(fr.pending)-1]
			fr.pending = fr.pending[:len(fr.pending)-1]
			w, err := m.buildCompound(top.functor, top.args)
			if err != nil {
				return false, err
			}
			fr.pushOperand(w)

		case compiler.C_OR:
			offset := fr.code[fr.pc]
			fr.pc++
			elseAddr := fr.pc + int(offset)
			mark := m.Stacks.Mark()
			ok, err := m.runFrame(fr, depth, k)
			if err != nil || ok {
				return ok, err
			}
			if *fr.cut {
				return false, nil
			}
			m.undoTo(mark)
			fr.pc = elseAddr
			return m.runFrame(fr, depth, k)

		case compiler.C_JMP:
			offset := fr.code[fr.pc]
			fr.pc++
			fr.pc += int(offset)

		case compiler.C_IFTHENELSE:
			offset := fr.code[fr.pc]
			fr.pc++
			elseAddr := fr.pc + int(offset)
			found, err := m.runFrame(fr, depth, stopAtFirstSuccess)
			if err != nil {
				return false, err
			}
			if !found {
				fr.pc = elseAddr
			}
			// On success fr.pc already sits right after the C_CUT that
			// closed Cond (see the C_CUT case below), i.e. at Then's
			// start: just keep looping with the caller's own k.

		case compiler.C_CUT:
			// Marks the Cond/Then boundary inside an if-then(-else): the
			// probe launched by C_IFTHENELSE runs with k=stopAtFirstSuccess,
			// so reaching this point the first time reports "Cond
			// succeeded" without trying any further Cond alternatives --
			// exactly the -> commit semantics -- and leaves fr.pc (and
			// Cond's bindings) in place for the resuming C_IFTHENELSE case
			// to continue into Then.
			return k()

		case compiler.C_SOFTIF:
			offset := fr.code[fr.pc]
			fr.pc++
			elseAddr := fr.pc + int(offset)
			condThenStart := fr.pc
			mark := m.Stacks.Mark()
			found, err := m.runFrame(fr, depth, stopAtFirstSuccess)
			if err != nil {
				return false, err
			}
			m.undoTo(mark)
			if !found {
				fr.pc = elseAddr
				continue
			}
			fr.pc = condThenStart
			return m.runFrame(fr, depth, k)

		case compiler.C_NOT:
			offset := fr.code[fr.pc]
			fr.pc++
			mergeAddr := fr.pc + int(offset)
			mark := m.Stacks.Mark()
			found, err := m.runFrame(fr, depth, stopAtFirstSuccess)
			m.undoTo(mark)
			fr.pc = mergeAddr
			if err != nil {
				return false, err
			}
			if found {
				return false, nil
			}

		case compiler.C_LCUT:
			*fr.cut = true

		case compiler.C_FAIL:
			return false, nil

		case compiler.C_VAR:
			fr.pc++ // reserved/unused by the current compiler; operand ignored.

		case compiler.A_ENTER:
			fr.arith = fr.arith[:0]

		case compiler.A_INTEGER:
			v := fr.code[fr.pc]
			fr.pc++
			fr.pushArith(arithValue{isFloat: false, i: int64(int32(v))})

		case compiler.A_DOUBLE:
			idx := fr.code[fr.pc]
			fr.pc++
			fr.pushArith(arithValue{isFloat: true, f: fr.clause.Pool.Floats[idx]})

		case compiler.A_MPZ:
			fr.pc++
			return false, fmt.Errorf("vm: arbitrary-precision arithmetic is not supported")

		case compiler.A_VAR0:
			v, err := m.evalSlot(fr, 0)
			if err != nil {
				return false, err
			}
			fr.pushArith(v)

		case compiler.A_VAR1:
			v, err := m.evalSlot(fr, 1)
			if err != nil {
				return false, err
			}
			fr.pushArith(v)

		case compiler.A_VAR2:
			v, err := m.evalSlot(fr, 2)
			if err != nil {
				return false, err
			}
			fr.pushArith(v)

		case compiler.A_VARN:
			slot := int(fr.code[fr.pc])
			fr.pc++
			v, err := m.evalSlot(fr, slot)
			if err != nil {
				return false, err
			}
			fr.pushArith(v)

		case compiler.A_FUNC0:
			id := symbol.FunctorID(fr.code[fr.pc])
			fr.pc++
			v, err := m.evalArithFunc(fr, id, 0)
			if err != nil {
				return false, err
			}
			fr.pushArith(v)

		case compiler.A_FUNC1:
			id := symbol.FunctorID(fr.code[fr.pc])
			fr.pc++
			v, err := m.evalArithFunc(fr, id, 1)
			if err != nil {
				return false, err
			}
			fr.pushArith(v)

		case compiler.A_FUNC2:
			id := symbol.FunctorID(fr.code[fr.pc])
			fr.pc++
			v, err := m.evalArithFunc(fr, id, 2)
			if err != nil {
				return false, err
			}
			fr.pushArith(v)

		case compiler.A_FUNCN:
			id := symbol.FunctorID(fr.code[fr.pc])
			n := int(fr.code[fr.pc+1])
			fr.pc += 2
			v, err := m.evalArithFunc(fr, id, n)
			if err != nil {
				return false, err
			}
			fr.pushArith(v)

		case compiler.A_IS:
			result := fr.popArith()
			operand := fr.popOperands(1)[0]
			w, err := result.toWord(m)
			if err != nil {
				return false, err
			}
			ok, err := m.Unifier.Unify(operand, w)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}

		case compiler.A_FIRSTVAR_IS:
			slot := int(fr.code[fr.pc])
			fr.pc++
			result := fr.popArith()
			w, err := result.toWord(m)
			if err != nil {
				return false, err
			}
			ok, err := fr.unifySlot(m.Unifier, slot, w)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}

		case compiler.A_LT, compiler.A_GT, compiler.A_LE, compiler.A_GE, compiler.A_EQ, compiler.A_NE:
			right := fr.popArith()
			left := fr.popArith()
			ok, err := compareArith(op, left, right)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}

		case compiler.I_EXIT, compiler.I_EXITFACT:
			return k()

		case compiler.I_CUT:
			*fr.cut = true

		case compiler.I_CALL:
			id := symbol.FunctorID(fr.code[fr.pc])
			fr.pc++
			ok, err := m.dispatchCall(fr, id, depth, k, false)
			return ok, err

		case compiler.I_DEPART:
			id := symbol.FunctorID(fr.code[fr.pc])
			fr.pc++
			ok, err := m.dispatchCall(fr, id, depth, k, true)
			return ok, err

		case compiler.I_USERCALL0:
			goal := fr.popOperands(1)[0]
			return m.dispatchMetaCall(fr, goal, nil, depth, k, false)

		case compiler.I_USERCALLN, compiler.I_APPLY:
			n := int(fr.code[fr.pc])
			fr.pc++
			args := fr.popOperands(n + 1)
			return m.dispatchMetaCall(fr, args[0], args[1:], depth, k, false)

		default:
			return false, fmt.Errorf("vm: unimplemented opcode %v", op)
		}
	}
}

// unifyHeadAtomic unifies the next head-cursor word against an atomic
// value already constructed in its final runtime form (atom or integer).
func (m *Machine) unifyHeadAtomic(fr *frame, v word.Word) (bool, error) {
	w, ok := fr.topHead().next()
	if !ok {
		return false, nil
	}
	return m.Unifier.Unify(w, v)
}

func (m *Machine) unifyHeadFloat(fr *frame, v float64) (bool, error) {
	w, ok := fr.topHead().next()
	if !ok {
		return false, nil
	}
	dw := m.Unifier.Deref(w)
	if dw.Tag == word.TagFloat {
		return m.floatAt(dw.Addr) == v, nil
	}
	if !dw.IsVariable() {
		return false, nil
	}
	built, err := m.buildFloat(v)
	if err != nil {
		return false, err
	}
	return m.Unifier.Unify(dw, built)
}

func (m *Machine) unifyHeadString(fr *frame, v string) (bool, error) {
	w, ok := fr.topHead().next()
	if !ok {
		return false, nil
	}
	dw := m.Unifier.Deref(w)
	if dw.Tag == word.TagString {
		return m.stringAt(dw) == v, nil
	}
	if !dw.IsVariable() {
		return false, nil
	}
	return m.Unifier.Unify(dw, m.buildString(v))
}

// descendHeadCompound unifies the next head-cursor word against a
// compound headed by id, pushing a new cursor over its arguments (read
// mode against an existing compound, write mode -- fresh argument cells
// -- against an unbound variable) for the nested H_* instructions that
// follow, up to the matching I_POPF.
func (m *Machine) descendHeadCompound(fr *frame, id symbol.FunctorID) (bool, error) {
	w, ok := fr.topHead().next()
	if !ok {
		return false, nil
	}
	dw := m.Unifier.Deref(w)
	fn, _ := m.Functors.Lookup(id)
	arity := int(fn.Arity)

	switch {
	case dw.Tag == word.TagCompound:
		hdr := m.Stacks.Global.Load(dw.Addr)
		if hdr.Int != int64(id) {
			return false, nil
		}
		args := make([]word.Word, arity)
		for i := 0; i < arity; i++ {
			args[i] = m.Stacks.Global.Load(dw.Addr + 1 + word.Addr(i))
		}
		fr.pushHead(&cursor{words: args})
		return true, nil

	case dw.IsVariable():
		args := make([]word.Word, arity)
		for i := range args {
			addr, err := m.Stacks.PushGlobal(word.Word{})
			if err != nil {
				return false, err
			}
			v := word.Word{Tag: word.TagVar, Storage: word.StorageGlobal, Addr: addr}
			if err := m.Stacks.Global.Store(addr, v); err != nil {
				return false, err
			}
			args[i] = v
		}
		built, err := m.buildCompound(id, args)
		if err != nil {
			return false, err
		}
		ok, err := m.Unifier.Unify(dw, built)
		if err != nil || !ok {
			return false, err
		}
		fr.pushHead(&cursor{words: args})
		return true, nil

	default:
		return false, nil
	}
}

// buildCompound allocates a fresh compound term on the global stack:
// a header word carrying the functor id (Int) and arity (Addr), followed
// by one word per argument, matching the layout internal/unify's
// unifyCompound and internal/index's functorOfAddr already assume.
func (m *Machine) buildCompound(id procedure.Name, args []word.Word) (word.Word, error) {
	hdr, err := m.Stacks.PushGlobal(word.Word{Tag: word.TagCompound, Int: int64(id), Addr: word.Addr(len(args))})
	if err != nil {
		return word.Word{}, err
	}
	for _, a := range args {
		if _, err := m.Stacks.PushGlobal(a); err != nil {
			return word.Word{}, err
		}
	}
	return word.Compound(hdr), nil
}

// buildFloat allocates a single-word float cell on the global stack: the
// value's bits live directly in that word, with no IndirectHeader/payload
// split, so the GC (internal/gc) treats it as a one-word run.
func (m *Machine) buildFloat(v float64) (word.Word, error) {
	addr, err := m.Stacks.PushGlobal(word.Word{Tag: word.TagFloat, Int: int64(math.Float64bits(v))})
	if err != nil {
		return word.Word{}, err
	}
	return word.Indirect(word.TagFloat, addr), nil
}

func (m *Machine) floatAt(addr word.Addr) float64 {
	return math.Float64frombits(uint64(m.Stacks.Global.Load(addr).Int))
}

// buildString interns s into the machine's process-wide string pool and
// returns a static (non-backtrackable) reference to it: string data is
// immutable constant data, not a heap term subject to undo.
func (m *Machine) buildString(s string) word.Word {
	idx := len(m.stringPool)
	m.stringPool = append(m.stringPool, s)
	return word.Word{Tag: word.TagString, Storage: word.StorageStatic, Addr: word.Addr(idx)}
}

func (m *Machine) stringAt(w word.Word) string {
	if int(w.Addr) >= len(m.stringPool) {
		return ""
	}
	return m.stringPool[w.Addr]
}

func (m *Machine) nilAtom() symbol.AtomID { return m.Atoms.Intern("[]") }

func (m *Machine) dotFunctor() symbol.FunctorID { return m.Functors.Intern(m.Atoms.Intern("."), 2) }

// dispatchCall resolves one I_CALL/I_DEPART instruction's argument words
// and hands off to Solve. A tail call (I_DEPART) reuses the caller's own
// continuation directly -- last-call optimisation, SPEC_FULL.md C4/C5 --
// rather than building a continuation that would resume this now-empty
// frame.
func (m *Machine) dispatchCall(fr *frame, id symbol.FunctorID, depth int, k Solution, tail bool) (bool, error) {
	fn, ok := m.Functors.Lookup(id)
	if !ok {
		return false, fmt.Errorf("vm: unresolved functor id %d", id)
	}
	args := fr.popOperands(int(fn.Arity))
	if tail {
		return m.Solve(id, args, depth+1, k)
	}
	resumePC := fr.pc
	var cutSignal error
	cont := func() (bool, error) {
		fr.pc = resumePC
		wasCut := *fr.cut
		ok, err := m.runFrame(fr, depth, k)
		if err == nil && !ok && !wasCut && *fr.cut {
			// A cut in the rest of this clause also discards the callee's
			// remaining alternatives: unwind out of its Solve.
			cutSignal = fmt.Errorf("vm: cut unwinding through functor %d", id)
			return false, cutSignal
		}
		return ok, err
	}
	ok, err := m.Solve(id, args, depth+1, cont)
	if cutSignal != nil && err == cutSignal {
		return false, nil
	}
	return ok, err
}

// dispatchMetaCall resolves a call/N- or bare-variable-goal-style
// meta-call: goal (an atom or compound, possibly behind a reference chain)
// has extra appended as additional trailing arguments, per SPEC_FULL.md
// C4/C8 "call/N appends its extra arguments to the goal's own". A caller
// with no clause frame of its own (a builtin passing an empty frame) has k
// called directly on each solution, as for a tail call.
func (m *Machine) dispatchMetaCall(fr *frame, goal word.Word, extra []word.Word, depth int, k Solution, tail bool) (bool, error) {
	dg := m.Unifier.Deref(goal)
	var name symbol.AtomID
	var args []word.Word
	switch {
	case dg.Tag == word.TagAtom:
		name = symbol.AtomID(dg.Int)
	case dg.Tag == word.TagCompound:
		hdr := m.Stacks.Global.Load(dg.Addr)
		fn, ok := m.Functors.Lookup(symbol.FunctorID(hdr.Int))
		if !ok {
			return false, fmt.Errorf("vm: unresolved functor id %d", hdr.Int)
		}
		name = fn.Name
		args = make([]word.Word, fn.Arity)
		for i := range args {
			args[i] = m.Stacks.Global.Load(dg.Addr + 1 + word.Addr(i))
		}
	case dg.IsVariable():
		return false, fmt.Errorf("instantiation_error")
	default:
		return false, fmt.Errorf("type_error(callable, %v)", dg)
	}
	args = append(append([]word.Word(nil), args...), extra...)
	id := m.Functors.Intern(name, uint16(len(args)))
	if tail || fr.code == nil {
		return m.Solve(id, args, depth+1, k)
	}
	resumePC := fr.pc
	var cutSignal error
	cont := func() (bool, error) {
		fr.pc = resumePC
		wasCut := *fr.cut
		ok, err := m.runFrame(fr, depth, k)
		if err == nil && !ok && !wasCut && *fr.cut {
			cutSignal = fmt.Errorf("vm: cut unwinding through a meta-call")
			return false, cutSignal
		}
		return ok, err
	}
	ok, err := m.Solve(id, args, depth+1, cont)
	if cutSignal != nil && err == cutSignal {
		return false, nil
	}
	return ok, err
}
