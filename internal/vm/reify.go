package vm

import (
	"fmt"
	"sort"

	"github.com/gowam/wam/internal/compiler"
	"github.com/gowam/wam/internal/symbol"
	"github.com/gowam/wam/internal/word"
)

// reifiedTerm is a heap-independent snapshot of a term: the same shape
// internal/compiler.Term builds from source text, but built from a live,
// dereferenced term instead. assert/1, retract/1, copy_term/2 and
// findall/3 all need to pull a term off the (backtrackable) global stack
// and later either rebuild it fresh (copy_term, findall) or hand it to the
// compiler (assert/retract), so one snapshot representation serves both.
//
// Distinct source variables keep distinct, stable VarKeys across a single
// reifyCopy call (sharing is preserved). Each call numbers its keys afresh
// (reifier.next starts at 0), so two separate snapshots can use the same
// VarKey for unrelated variables.
type reifiedTerm struct {
	kind compiler.Kind

	VarKey string
	Atom   symbol.AtomID
	Int    int64
	Float  float64
	Str    string

	Functor symbol.FunctorID
	Args    []reifiedTerm
}

// reifier assigns a stable key to each distinct variable cell seen during
// one reifyCopy walk, so repeated occurrences of the same source variable
// reify to the same VarKey (and therefore rebuild/toCompilerTerm share one
// fresh variable, rather than each occurrence getting its own).
type reifier struct {
	m    *Machine
	seen map[word.Word]string
	next int
}

// reifyCopy walks w (through its reference chain) and produces an
// independent snapshot: safe to hold across an undoTo that would
// invalidate the original bindings.
func (m *Machine) reifyCopy(w word.Word) reifiedTerm {
	r := &reifier{m: m, seen: map[word.Word]string{}}
	return r.walk(w)
}

func (r *reifier) walk(w word.Word) reifiedTerm {
	w = r.m.Unifier.Deref(w)

	if w.IsVariable() {
		key, ok := r.seen[word.Word{Tag: w.Tag, Storage: w.Storage, Addr: w.Addr}]
		if !ok {
			key = fmt.Sprintf("_G%d_%d", w.Storage, r.next)
			r.next++
			r.seen[word.Word{Tag: w.Tag, Storage: w.Storage, Addr: w.Addr}] = key
		}
		return reifiedTerm{kind: compiler.KindVar, VarKey: key}
	}

	switch w.Tag {
	case word.TagAtom:
		return reifiedTerm{kind: compiler.KindAtom, Atom: symbol.AtomID(w.Int)}
	case word.TagInt:
		return reifiedTerm{kind: compiler.KindInt, Int: w.Int}
	case word.TagFloat:
		return reifiedTerm{kind: compiler.KindFloat, Float: r.m.floatAt(w.Addr)}
	case word.TagString:
		return reifiedTerm{kind: compiler.KindString, Str: r.m.stringAt(w)}
	case word.TagCompound:
		hdr := r.m.Stacks.Global.Load(w.Addr)
		id := symbol.FunctorID(hdr.Int)
		fn, _ := r.m.Functors.Lookup(id)
		args := make([]reifiedTerm, fn.Arity)
		for i := range args {
			args[i] = r.walk(r.m.Stacks.Global.Load(w.Addr + 1 + word.Addr(i)))
		}
		return reifiedTerm{kind: compiler.KindCompound, Functor: id, Args: args}
	default:
		return reifiedTerm{kind: compiler.KindAtom, Atom: r.m.nilAtom()}
	}
}

// rebuild reconstructs r as a live term on the global stack, allocating one
// fresh variable per distinct VarKey (shared via vars across the whole
// call, so structure sharing in the snapshot survives the rebuild).
func (m *Machine) rebuild(r reifiedTerm, vars map[string]word.Word) (word.Word, error) {
	switch r.kind {
	case compiler.KindVar:
		if w, ok := vars[r.VarKey]; ok {
			return w, nil
		}
		addr, err := m.Stacks.PushGlobal(word.Word{})
		if err != nil {
			return word.Word{}, err
		}
		w := word.Word{Tag: word.TagVar, Storage: word.StorageGlobal, Addr: addr}
		if err := m.Stacks.Global.Store(addr, w); err != nil {
			return word.Word{}, err
		}
		vars[r.VarKey] = w
		return w, nil
	case compiler.KindAtom:
		return word.Atom(r.Atom), nil
	case compiler.KindInt:
		return word.Int(r.Int), nil
	case compiler.KindFloat:
		return m.buildFloat(r.Float)
	case compiler.KindString:
		return m.buildString(r.Str), nil
	case compiler.KindCompound:
		args := make([]word.Word, len(r.Args))
		for i, a := range r.Args {
			w, err := m.rebuild(a, vars)
			if err != nil {
				return word.Word{}, err
			}
			args[i] = w
		}
		return m.buildCompound(r.Functor, args)
	default:
		return word.Word{}, fmt.Errorf("vm: unreachable reified term kind %v", r.kind)
	}
}

// toCompilerTerm converts a live (dereferenced) term directly into a
// internal/compiler.Term, for assert/1's "install this runtime term as a
// clause" path: names (a distinct synthetic name per distinct source
// variable) rather than structural keys, since the compiler's variable
// analysis (internal/compiler's vars.go) works off source-level names.
func (m *Machine) toCompilerTerm(w word.Word, names map[string]string, counter *int) *compiler.Term {
	w = m.Unifier.Deref(w)

	if w.IsVariable() {
		key := fmt.Sprintf("%d:%d", w.Storage, w.Addr)
		name, ok := names[key]
		if !ok {
			name = fmt.Sprintf("_A%d", *counter)
			*counter++
			names[key] = name
		}
		return compiler.V(name)
	}

	switch w.Tag {
	case word.TagAtom:
		return compiler.A(m.Atoms.Name(symbol.AtomID(w.Int)))
	case word.TagInt:
		return compiler.I(w.Int)
	case word.TagFloat:
		return compiler.F(m.floatAt(w.Addr))
	case word.TagString:
		return compiler.S(m.stringAt(w))
	case word.TagCompound:
		hdr := m.Stacks.Global.Load(w.Addr)
		fn, _ := m.Functors.Lookup(symbol.FunctorID(hdr.Int))
		args := make([]*compiler.Term, fn.Arity)
		for i := range args {
			args[i] = m.toCompilerTerm(m.Stacks.Global.Load(w.Addr+1+word.Addr(i)), names, counter)
		}
		return compiler.C(m.Atoms.Name(fn.Name), args...)
	default:
		return compiler.A("[]")
	}
}

// buildFromTerm installs a internal/compiler.Term directly onto the global
// stack, the inverse of toCompilerTerm: it serves ballOf's path for an
// except.Error raised internally (never a live heap term to begin with, so
// there is nothing to reifyCopy -- the ISOTerm is built fresh instead).
// names maps a compiler-level variable name to the word.Word allocated for
// its first occurrence, so repeated occurrences within one ISOTerm share a
// single fresh variable.
func (m *Machine) buildFromTerm(t *compiler.Term, vars map[string]word.Word, names map[string]string) (word.Word, error) {
	switch t.Kind {
	case compiler.KindVar:
		if t.VarName != "_" {
			if w, ok := vars[t.VarName]; ok {
				return w, nil
			}
		}
		addr, err := m.Stacks.PushGlobal(word.Word{})
		if err != nil {
			return word.Word{}, err
		}
		w := word.Word{Tag: word.TagVar, Storage: word.StorageGlobal, Addr: addr}
		if err := m.Stacks.Global.Store(addr, w); err != nil {
			return word.Word{}, err
		}
		if t.VarName != "_" {
			vars[t.VarName] = w
		}
		return w, nil
	case compiler.KindAtom:
		return word.Atom(m.Atoms.Intern(t.Atom)), nil
	case compiler.KindInt:
		return word.Int(t.Int), nil
	case compiler.KindFloat:
		return m.buildFloat(t.Float)
	case compiler.KindString:
		return m.buildString(t.Str), nil
	case compiler.KindCompound:
		args := make([]word.Word, len(t.Args))
		for i, a := range t.Args {
			w, err := m.buildFromTerm(a, vars, names)
			if err != nil {
				return word.Word{}, err
			}
			args[i] = w
		}
		id := m.Functors.Intern(m.Atoms.Intern(t.Atom), uint16(len(t.Args)))
		return m.buildCompound(id, args)
	default:
		return word.Word{}, fmt.Errorf("vm: unreachable compiler term kind %v", t.Kind)
	}
}

// compareTerms implements the standard order of terms (SPEC_FULL.md §4.3
// `compare/3`, `@</2` family): Var < Number < Atom < String < Compound,
// with same-kind ties broken structurally (numbers by value, atoms/strings
// lexicographically, compounds by arity then name then arguments
// left-to-right).
func (m *Machine) compareTerms(a, b word.Word) int {
	a, b = m.Unifier.Deref(a), m.Unifier.Deref(b)
	oa, ob := termOrder(a), termOrder(b)
	if oa != ob {
		return oa - ob
	}
	switch {
	case a.IsVariable():
		return cmpUint(uint64(a.Addr), uint64(b.Addr))
	case a.Tag == word.TagInt && b.Tag == word.TagInt:
		return cmpInt(a.Int, b.Int)
	case a.Tag == word.TagFloat || b.Tag == word.TagFloat || a.Tag == word.TagInt:
		av, bv := m.numericValue(a), m.numericValue(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case a.Tag == word.TagAtom:
		return cmpString(m.Atoms.Name(symbol.AtomID(a.Int)), m.Atoms.Name(symbol.AtomID(b.Int)))
	case a.Tag == word.TagString:
		return cmpString(m.stringAt(a), m.stringAt(b))
	case a.Tag == word.TagCompound:
		return m.compareCompounds(a, b)
	default:
		return 0
	}
}

func (m *Machine) numericValue(w word.Word) float64 {
	if w.Tag == word.TagFloat {
		return m.floatAt(w.Addr)
	}
	return float64(w.Int)
}

func (m *Machine) compareCompounds(a, b word.Word) int {
	ha := m.Stacks.Global.Load(a.Addr)
	hb := m.Stacks.Global.Load(b.Addr)
	arityA, arityB := int(ha.Addr), int(hb.Addr)
	if arityA != arityB {
		return cmpInt(int64(arityA), int64(arityB))
	}
	fa, _ := m.Functors.Lookup(symbol.FunctorID(ha.Int))
	fb, _ := m.Functors.Lookup(symbol.FunctorID(hb.Int))
	if c := cmpString(m.Atoms.Name(fa.Name), m.Atoms.Name(fb.Name)); c != 0 {
		return c
	}
	for i := 0; i < arityA; i++ {
		c := m.compareTerms(
			m.Stacks.Global.Load(a.Addr+1+word.Addr(i)),
			m.Stacks.Global.Load(b.Addr+1+word.Addr(i)),
		)
		if c != 0 {
			return c
		}
	}
	return 0
}

// termOrder ranks a dereferenced word's standard-order class.
func termOrder(w word.Word) int {
	switch {
	case w.IsVariable():
		return 0
	case w.Tag == word.TagInt || w.Tag == word.TagFloat || w.Tag == word.TagBig:
		return 1
	case w.Tag == word.TagAtom:
		return 2
	case w.Tag == word.TagString:
		return 3
	default:
		return 4
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// sortReified returns a copy of items stably sorted into standard order,
// comparing the live terms directly with compareTerms.
func (m *Machine) sortReified(items []word.Word) []word.Word {
	out := make([]word.Word, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return m.compareTerms(out[i], out[j]) < 0
	})
	return out
}
