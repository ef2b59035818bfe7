package vm

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/gowam/wam/internal/compiler"
	"github.com/gowam/wam/internal/config"
	"github.com/gowam/wam/internal/procedure"
	"github.com/gowam/wam/internal/symbol"
	"github.com/gowam/wam/internal/word"
)

// newTestMachine builds a fresh engine sharing empty process-wide tables,
// mirroring the teacher's pattern of constructing a fresh VM per test
// (first_test.go/vm_test.go) rather than sharing global state across
// tests.
func newTestMachine() *Machine {
	atoms := symbol.NewTable()
	functors := symbol.NewFunctorTable()
	procs := procedure.NewTable()
	clk := &procedure.Clock{}
	mod := procedure.NewModule("user")
	return New(atoms, functors, procs, clk, mod, config.Default(), logr.Discard())
}

// define compiles head/body and installs the resulting clause onto m's
// procedure table, appending to whatever clauses already exist for that
// functor -- the test-harness analogue of consulting a source file (out of
// scope per spec.md §1).
func define(t *testing.T, m *Machine, head, body *compiler.Term) {
	t.Helper()
	cl, err := compiler.Compile(m.Atoms, m.Functors, head, body, m.Config.LastCallOptimisation)
	require.NoError(t, err)
	id := m.Functors.Intern(m.Atoms.Intern(head.Functor()), uint16(head.Arity()))
	proc := m.Procs.Ensure(m.Module, id)
	cl.Procedure = proc
	proc.StoreFor("").Assertz(m.Clock, cl)
}

func freshVar(t *testing.T, m *Machine) word.Word {
	t.Helper()
	addr, err := m.Stacks.PushGlobal(word.Word{})
	require.NoError(t, err)
	w := word.Word{Tag: word.TagVar, Storage: word.StorageGlobal, Addr: addr}
	require.NoError(t, m.Stacks.Global.Store(addr, w))
	return w
}

// toListInts walks a proper list term and returns its elements, each of
// which must dereference to an integer, for assertion convenience.
func (m *Machine) toListInts(t *testing.T, w word.Word) []int64 {
	t.Helper()
	items, ok := m.listItems(w)
	require.True(t, ok, "expected a proper list")
	out := make([]int64, len(items))
	for i, it := range items {
		d := m.Unifier.Deref(it)
		require.Equal(t, word.TagInt, d.Tag)
		out[i] = d.Int
	}
	return out
}

// Test_Append_S1 implements SPEC_FULL.md §8 S1: append([1,2],[3,4],X) must
// have exactly one solution, X = [1,2,3,4].
func Test_Append_S1(t *testing.T) {
	m := newTestMachine()
	// app([],L,L).
	define(t, m, compiler.C("app", compiler.A("[]"), compiler.V("L"), compiler.V("L")), nil)
	// app([H|T],L,[H|R]) :- app(T,L,R).
	define(t, m,
		compiler.C("app", compiler.C(".", compiler.V("H"), compiler.V("T")), compiler.V("L"), compiler.C(".", compiler.V("H"), compiler.V("R"))),
		compiler.C("app", compiler.V("T"), compiler.V("L"), compiler.V("R")),
	)

	a, err := m.buildProperList([]word.Word{word.Int(1), word.Int(2)})
	require.NoError(t, err)
	b, err := m.buildProperList([]word.Word{word.Int(3), word.Int(4)})
	require.NoError(t, err)
	x := freshVar(t, m)

	id := m.Functors.Intern(m.Atoms.Intern("app"), 3)
	solutions := 0
	ok, err := m.Solve(id, []word.Word{a, b, x}, 0, func() (bool, error) {
		solutions++
		require.Equal(t, []int64{1, 2, 3, 4}, m.toListInts(t, x))
		return true, nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, solutions)
}

// Test_Arithmetic_S2 implements SPEC_FULL.md §8 S2: X is 2+3*4 => X = 14.
func Test_Arithmetic_S2(t *testing.T) {
	m := newTestMachine()
	define(t, m,
		compiler.C("calc", compiler.V("X")),
		compiler.C("is", compiler.V("X"), compiler.C("+", compiler.I(2), compiler.C("*", compiler.I(3), compiler.I(4)))),
	)
	x := freshVar(t, m)
	id := m.Functors.Intern(m.Atoms.Intern("calc"), 1)
	ok, err := m.Solve(id, []word.Word{x}, 0, func() (bool, error) { return true, nil })
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, word.TagInt, m.Unifier.Deref(x).Tag)
	require.Equal(t, int64(14), m.Unifier.Deref(x).Int)
}

// Test_Cut_S3 implements SPEC_FULL.md §8 S3: p(1). p(2). p(3). q(X):-p(X),!.
// findall(X,q(X),L) => L = [1].
func Test_Cut_S3(t *testing.T) {
	m := newTestMachine()
	for _, n := range []int64{1, 2, 3} {
		define(t, m, compiler.C("p", compiler.I(n)), nil)
	}
	define(t, m, compiler.C("q", compiler.V("X")), compiler.Conjunction(compiler.C("p", compiler.V("X")), compiler.A("!")))

	template := freshVar(t, m)
	goal, err := m.buildCompound(m.Functors.Intern(m.Atoms.Intern("q"), 1), []word.Word{template})
	require.NoError(t, err)
	result := freshVar(t, m)

	ok, err := builtinFindall(m, []word.Word{template, goal, result}, 0, func() (bool, error) { return true, nil })
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []int64{1}, m.toListInts(t, result))
}

// Test_Catch_S4 implements SPEC_FULL.md §8 S4:
// catch(throw(err), E, R=caught(E)) => R = caught(err).
func Test_Catch_S4(t *testing.T) {
	m := newTestMachine()
	errAtom := word.Atom(m.Atoms.Intern("err"))
	goal, err := m.buildCompound(m.Functors.Intern(m.Atoms.Intern("throw"), 1), []word.Word{errAtom})
	require.NoError(t, err)

	e := freshVar(t, m)
	r := freshVar(t, m)
	caught, err := m.buildCompound(m.Functors.Intern(m.Atoms.Intern("caught"), 1), []word.Word{e})
	require.NoError(t, err)
	recovery, err := m.buildCompound(m.Functors.Intern(m.Atoms.Intern("="), 2), []word.Word{r, caught})
	require.NoError(t, err)

	ok, cerr := builtinCatch(m, []word.Word{goal, e, recovery}, 0, func() (bool, error) { return true, nil })
	require.NoError(t, cerr)
	require.True(t, ok)

	rv := m.Unifier.Deref(r)
	require.Equal(t, word.TagCompound, rv.Tag)
	hdr := m.Stacks.Global.Load(rv.Addr)
	fn, ok2 := m.Functors.Lookup(symbol.FunctorID(hdr.Int))
	require.True(t, ok2)
	require.Equal(t, "caught", m.Atoms.Name(fn.Name))
	inner := m.Unifier.Deref(m.Stacks.Global.Load(rv.Addr + 1))
	require.Equal(t, "err", m.Atoms.Name(symbol.AtomID(inner.Int)))
}

// Test_Catch_Unmatched_Propagates covers §4.5/§8's "otherwise the
// exception propagates unchanged" half of the catch/3 property.
func Test_Catch_Unmatched_Propagates(t *testing.T) {
	m := newTestMachine()
	errAtom := word.Atom(m.Atoms.Intern("err"))
	goal, err := m.buildCompound(m.Functors.Intern(m.Atoms.Intern("throw"), 1), []word.Word{errAtom})
	require.NoError(t, err)
	other := word.Atom(m.Atoms.Intern("other"))

	_, cerr := builtinCatch(m, []word.Word{goal, other, word.Atom(m.Atoms.Intern("true"))}, 0, func() (bool, error) { return true, nil })
	require.Error(t, cerr)
	_, isProlog := m.ballOf(cerr)
	require.True(t, isProlog, "an unmatched ball must keep propagating as a catchable Prolog exception")
}

// Test_Findall_Nondeterminism covers SPEC_FULL.md §8's universal property:
// findall(X, member(X,[a,b,c]), L) binds L = [a,b,c].
func Test_Findall_Nondeterminism(t *testing.T) {
	m := newTestMachine()
	define(t, m, compiler.C("member", compiler.V("X"), compiler.C(".", compiler.V("X"), compiler.V("_"))), nil)
	define(t, m,
		compiler.C("member", compiler.V("X"), compiler.C(".", compiler.V("_"), compiler.V("T"))),
		compiler.C("member", compiler.V("X"), compiler.V("T")),
	)

	list, err := m.buildProperList([]word.Word{
		word.Atom(m.Atoms.Intern("a")),
		word.Atom(m.Atoms.Intern("b")),
		word.Atom(m.Atoms.Intern("c")),
	})
	require.NoError(t, err)
	template := freshVar(t, m)
	goal, err := m.buildCompound(m.Functors.Intern(m.Atoms.Intern("member"), 2), []word.Word{template, list})
	require.NoError(t, err)
	result := freshVar(t, m)

	ok, err := builtinFindall(m, []word.Word{template, goal, result}, 0, func() (bool, error) { return true, nil })
	require.NoError(t, err)
	require.True(t, ok)

	items, ok2 := m.listItems(result)
	require.True(t, ok2)
	require.Len(t, items, 3)
	var names []string
	for _, it := range items {
		d := m.Unifier.Deref(it)
		names = append(names, m.Atoms.Name(symbol.AtomID(d.Int)))
	}
	require.Equal(t, []string{"a", "b", "c"}, names)
}

// Test_Undo_RestoresMarks covers SPEC_FULL.md §8 property 2: failure past a
// choicepoint restores the trail/global tops to its mark.
func Test_Undo_RestoresMarks(t *testing.T) {
	m := newTestMachine()
	define(t, m, compiler.C("p", compiler.I(1)), nil)
	define(t, m, compiler.C("p", compiler.I(2)), nil)

	mark := m.Stacks.Mark()
	x := freshVar(t, m)
	id := m.Functors.Intern(m.Atoms.Intern("p"), 1)
	solutions := 0
	_, err := m.Solve(id, []word.Word{x}, 0, func() (bool, error) {
		solutions++
		return false, nil // force exhaustive backtracking through both clauses
	})
	require.NoError(t, err)
	require.Equal(t, 2, solutions)
	require.Equal(t, mark.Trail, m.Stacks.Trail.Top(), "trail must be fully unwound after exhausting all clauses")
}

// Test_Retract_MatchesOnBodyNotJustHead covers the ISO retract/1 property
// that a Head/Body pattern must unify against a clause's real stored
// body, not merely its head: two clauses share a head shape but differ
// in body, and only the one whose body also matches must be erased.
func Test_Retract_MatchesOnBodyNotJustHead(t *testing.T) {
	m := newTestMachine()
	define(t, m, compiler.C("p", compiler.V("X")), compiler.C("q", compiler.V("X")))
	define(t, m, compiler.C("p", compiler.V("X")), compiler.C("r", compiler.V("X")))
	define(t, m, compiler.C("q", compiler.A("a")), nil)

	y := freshVar(t, m)
	pHead, err := m.buildCompound(m.Functors.Intern(m.Atoms.Intern("p"), 1), []word.Word{y})
	require.NoError(t, err)
	rGoal, err := m.buildCompound(m.Functors.Intern(m.Atoms.Intern("r"), 1), []word.Word{y})
	require.NoError(t, err)
	retractArg, err := m.buildCompound(m.Functors.Intern(m.Atoms.Intern(":-"), 2), []word.Word{pHead, rGoal})
	require.NoError(t, err)

	ok, err := builtinRetract(m, []word.Word{retractArg}, 0, func() (bool, error) { return true, nil })
	require.NoError(t, err)
	require.True(t, ok, "a clause with head p(X) and body r(X) must exist to retract")

	px := freshVar(t, m)
	id := m.Functors.Intern(m.Atoms.Intern("p"), 1)
	solutions := 0
	_, err = m.Solve(id, []word.Word{px}, 0, func() (bool, error) {
		solutions++
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, solutions, "only the q(X)-bodied clause must survive retracting (p(Y):-r(Y))")
}

// Test_Unify_FloatsBuiltIndependently guards against comparing Float terms
// by storage address: buildFloat allocates a fresh global-stack cell per
// call, so X = 1.5, Y = 1.5, X = Y must still succeed.
func Test_Unify_FloatsBuiltIndependently(t *testing.T) {
	m := newTestMachine()
	x, err := m.buildFloat(1.5)
	require.NoError(t, err)
	y, err := m.buildFloat(1.5)
	require.NoError(t, err)
	require.NotEqual(t, x.Addr, y.Addr, "test setup must allocate distinct cells")

	ok, err := m.Unifier.Unify(x, y)
	require.NoError(t, err)
	require.True(t, ok, "equal-valued floats built independently must unify")

	z, err := m.buildFloat(2.5)
	require.NoError(t, err)
	ok, err = m.Unifier.Unify(x, z)
	require.NoError(t, err)
	require.False(t, ok)
}

// Test_Unify_StringsBuiltIndependently is the String analogue: each
// findall/3 result or copy_term/2 rebuild interns a fresh string-pool
// entry, so two equal-valued results must still unify.
func Test_Unify_StringsBuiltIndependently(t *testing.T) {
	m := newTestMachine()
	x := m.buildString("hello")
	y := m.buildString("hello")
	require.NotEqual(t, x.Addr, y.Addr, "test setup must allocate distinct pool entries")

	ok, err := m.Unifier.Unify(x, y)
	require.NoError(t, err)
	require.True(t, ok, "equal-valued strings built independently must unify")

	z := m.buildString("world")
	ok, err = m.Unifier.Unify(x, z)
	require.NoError(t, err)
	require.False(t, ok)
}
