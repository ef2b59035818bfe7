package unify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gowam/wam/internal/stack"
	"github.com/gowam/wam/internal/word"
)

func newTestMachine() *Machine {
	return &Machine{Stacks: stack.NewStacks(0, 0, 0, 0)}
}

func pushVar(t *testing.T, m *Machine) word.Word {
	t.Helper()
	addr, err := m.Stacks.PushGlobal(word.Word{})
	require.NoError(t, err)
	w := word.Word{Tag: word.TagVar, Storage: word.StorageGlobal, Addr: addr}
	require.NoError(t, m.Stacks.Global.Store(addr, w))
	return w
}

func pushFloat(t *testing.T, m *Machine, v float64) word.Word {
	t.Helper()
	addr, err := m.Stacks.PushGlobal(word.Word{Tag: word.TagFloat, Int: int64(math.Float64bits(v))})
	require.NoError(t, err)
	return word.Indirect(word.TagFloat, addr)
}

func Test_Unify_AtomsByValue(t *testing.T) {
	m := newTestMachine()
	ok, err := m.Unify(word.Atom(1), word.Atom(1))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Unify(word.Atom(1), word.Atom(2))
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Unify_IntsByValue(t *testing.T) {
	m := newTestMachine()
	ok, err := m.Unify(word.Int(14), word.Int(14))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Unify(word.Int(14), word.Int(15))
	require.NoError(t, err)
	require.False(t, ok)
}

// Two independently-built floats with the same value live at different
// global-stack addresses (each construction allocates a fresh indirect
// run); Unify must still succeed, per spec.md's unify(X,Y) correctness
// property and ordinary Prolog semantics (X = 1.5, Y = 1.5, X = Y).
func Test_Unify_FloatsByValueNotAddress(t *testing.T) {
	m := newTestMachine()
	a := pushFloat(t, m, 1.5)
	b := pushFloat(t, m, 1.5)
	require.NotEqual(t, a.Addr, b.Addr, "test setup must allocate distinct cells")

	ok, err := m.Unify(a, b)
	require.NoError(t, err)
	require.True(t, ok, "equal-valued floats built independently must unify")

	c := pushFloat(t, m, 2.5)
	ok, err = m.Unify(a, c)
	require.NoError(t, err)
	require.False(t, ok)
}

// Strings live in an external pool the embedding VM owns; Unify must
// compare through the StringAt hook by value, not by pool index/address.
func Test_Unify_StringsByValueViaStringAtHook(t *testing.T) {
	pool := []string{"hello", "hello", "world"}
	m := newTestMachine()
	m.StringAt = func(w word.Word) string { return pool[w.Addr] }

	a := word.Word{Tag: word.TagString, Storage: word.StorageStatic, Addr: 0}
	b := word.Word{Tag: word.TagString, Storage: word.StorageStatic, Addr: 1}
	c := word.Word{Tag: word.TagString, Storage: word.StorageStatic, Addr: 2}

	ok, err := m.Unify(a, b)
	require.NoError(t, err)
	require.True(t, ok, "distinct pool entries with equal text must unify")

	ok, err = m.Unify(a, c)
	require.NoError(t, err)
	require.False(t, ok)
}

// Without a StringAt hook wired (a caller embedding this package without
// ever building String terms), unifyAtomic must not panic -- it falls
// back to address comparison.
func Test_Unify_StringsWithoutHookFallsBackToAddress(t *testing.T) {
	m := newTestMachine()
	a := word.Word{Tag: word.TagString, Storage: word.StorageStatic, Addr: 0}
	b := word.Word{Tag: word.TagString, Storage: word.StorageStatic, Addr: 0}

	ok, err := m.Unify(a, b)
	require.NoError(t, err)
	require.True(t, ok)
}

func Test_Unify_VarWithAtomBindsVar(t *testing.T) {
	m := newTestMachine()
	v := pushVar(t, m)

	ok, err := m.Unify(v, word.Atom(7))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, word.Atom(7), m.Deref(v))
}

func Test_Unify_TwoVarsBindsYoungerToOlder(t *testing.T) {
	m := newTestMachine()
	older := pushVar(t, m)
	younger := pushVar(t, m)
	require.Less(t, older.Addr, younger.Addr)

	ok, err := m.Unify(younger, older)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Unify(older, word.Int(9))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, word.Int(9), m.Deref(younger), "binding the older var must be visible through the younger one")
}

func Test_Unify_DifferentTagsFail(t *testing.T) {
	m := newTestMachine()
	ok, err := m.Unify(word.Atom(1), word.Int(1))
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Unify_IsCommutative(t *testing.T) {
	m := newTestMachine()
	v := pushVar(t, m)

	okAB, err := m.Unify(v, word.Atom(3))
	require.NoError(t, err)

	m2 := newTestMachine()
	v2 := pushVar(t, m2)
	okBA, err := m2.Unify(word.Atom(3), v2)
	require.NoError(t, err)

	require.Equal(t, okAB, okBA)
}

func Test_Unify_OccursCheckError_RejectsCyclicBinding(t *testing.T) {
	m := newTestMachine()
	m.Occurs = OccursCheckError
	v := pushVar(t, m)

	hdr, err := m.Stacks.PushGlobal(word.Word{Tag: word.TagCompound, Int: 1, Addr: 1})
	require.NoError(t, err)
	_, err = m.Stacks.PushGlobal(v)
	require.NoError(t, err)
	compound := word.Compound(hdr)

	_, err = m.Unify(v, compound)
	require.ErrorIs(t, err, CyclicError{})
}
