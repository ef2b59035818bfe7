package vm

import (
	"github.com/gowam/wam/internal/except"
	"github.com/gowam/wam/internal/foreign"
	"github.com/gowam/wam/internal/symbol"
	"github.com/gowam/wam/internal/word"
)

// Machine implements foreign.Engine directly, holding word.Word terms
// behind the foreign.Term interface{} -- internal/foreign never imports
// internal/vm, so this file is the only place the two meet.
var _ foreign.Engine = (*Machine)(nil)

func (m *Machine) Deref(t foreign.Term) foreign.Term {
	return m.Unifier.Deref(t.(word.Word))
}

func (m *Machine) NewVar() (foreign.Term, error) {
	addr, err := m.Stacks.PushGlobal(word.Word{})
	if err != nil {
		return nil, err
	}
	w := word.Word{Tag: word.TagVar, Storage: word.StorageGlobal, Addr: addr}
	if err := m.Stacks.Global.Store(addr, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (m *Machine) Unify(a, b foreign.Term) (bool, error) {
	return m.Unifier.Unify(a.(word.Word), b.(word.Word))
}

func (m *Machine) Atom(name string) foreign.Term {
	return word.Atom(m.Atoms.Intern(name))
}

func (m *Machine) Int(v int64) foreign.Term { return word.Int(v) }

func (m *Machine) Float(v float64) (foreign.Term, error) { return m.buildFloat(v) }

func (m *Machine) String(s string) (foreign.Term, error) { return m.buildString(s), nil }

func (m *Machine) Compound(functor string, args []foreign.Term) (foreign.Term, error) {
	words := make([]word.Word, len(args))
	for i, a := range args {
		words[i] = a.(word.Word)
	}
	id := m.Functors.Intern(m.Atoms.Intern(functor), uint16(len(args)))
	return m.buildCompound(id, words)
}

func (m *Machine) AtomName(t foreign.Term) (string, bool) {
	w := m.Unifier.Deref(t.(word.Word))
	if w.Tag != word.TagAtom {
		return "", false
	}
	return m.Atoms.Name(symbol.AtomID(w.Int)), true
}

func (m *Machine) IntValue(t foreign.Term) (int64, bool) {
	w := m.Unifier.Deref(t.(word.Word))
	if w.Tag != word.TagInt {
		return 0, false
	}
	return w.Int, true
}

func (m *Machine) FloatValue(t foreign.Term) (float64, bool) {
	w := m.Unifier.Deref(t.(word.Word))
	if w.Tag != word.TagFloat {
		return 0, false
	}
	return m.floatAt(w.Addr), true
}

func (m *Machine) StringValue(t foreign.Term) (string, bool) {
	w := m.Unifier.Deref(t.(word.Word))
	if w.Tag != word.TagString {
		return "", false
	}
	return m.stringAt(w), true
}

func (m *Machine) Decompose(t foreign.Term) (string, []foreign.Term, bool) {
	w := m.Unifier.Deref(t.(word.Word))
	if w.Tag != word.TagCompound {
		return "", nil, false
	}
	hdr := m.Stacks.Global.Load(w.Addr)
	fn, ok := m.Functors.Lookup(symbol.FunctorID(hdr.Int))
	if !ok {
		return "", nil, false
	}
	args := make([]foreign.Term, fn.Arity)
	for i := range args {
		args[i] = m.Stacks.Global.Load(w.Addr + 1 + word.Addr(i))
	}
	return m.Atoms.Name(fn.Name), args, true
}

func (m *Machine) Throw(ball foreign.Term) error {
	return except.Thrown{Ball: m.reifyCopy(ball.(word.Word))}
}

// dispatchForeign drives a registered foreign predicate through Solve's own
// Solution protocol: FirstCall, then Redo for as long as k asks for more
// and the predicate keeps offering solutions (res.More), Cut if the search
// stops early while a choicepoint is still live, matching §4.6's "tagged
// non-zero" contract without exposing foreign's internals to interp.go.
func (m *Machine) dispatchForeign(name string, arity int, args []word.Word, k Solution) (bool, error) {
	terms := make([]foreign.Term, len(args))
	for i, a := range args {
		terms[i] = a
	}

	kind := foreign.FirstCall
	var carry interface{}
	for {
		ok, newCarry, err := m.Foreign.Dispatch(name, arity, kind, m, carry, terms)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		stop, kerr := k()
		if kerr != nil {
			return false, kerr
		}
		if stop {
			if newCarry != nil {
				if _, _, err := m.Foreign.Dispatch(name, arity, foreign.Cut, m, newCarry, terms); err != nil {
					return false, err
				}
			}
			return true, nil
		}
		if newCarry == nil {
			return false, nil
		}
		carry = newCarry
		kind = foreign.Redo
	}
}
