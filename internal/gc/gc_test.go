package gc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gowam/wam/internal/stack"
	"github.com/gowam/wam/internal/symbol"
	"github.com/gowam/wam/internal/word"
)

func newTestStacks() (*stack.Stacks, *symbol.FunctorTable) {
	return stack.NewStacks(0, 0, 0, 0), symbol.NewFunctorTable()
}

func pushVar(t *testing.T, s *stack.Stacks) word.Word {
	t.Helper()
	addr, err := s.Global.Push(word.Word{})
	require.NoError(t, err)
	w := word.Var(addr)
	require.NoError(t, s.Global.Store(addr, w))
	return w
}

func pushCompound(t *testing.T, s *stack.Stacks, functors *symbol.FunctorTable, name string, args []word.Word) word.Word {
	t.Helper()
	id := functors.Intern(1, uint16(len(args))) // atom id is irrelevant to GC, any id works
	hdr, err := s.Global.Push(word.Word{Tag: word.TagCompound, Int: int64(id), Addr: word.Addr(len(args))})
	require.NoError(t, err)
	for _, a := range args {
		_, err := s.Global.Push(a)
		require.NoError(t, err)
	}
	return word.Compound(hdr)
}

func Test_Collect_ReclaimsUnreachableCompound(t *testing.T) {
	s, functors := newTestStacks()
	c := NewCollector(s, functors)

	keep := pushCompound(t, s, functors, "kept", []word.Word{word.Int(1), word.Int(2)})
	_ = pushCompound(t, s, functors, "garbage", []word.Word{word.Int(9)}) // nothing roots this

	before := s.Global.Top()
	stats, err := c.Collect(RootSet{GlobalVars: []word.Word{keep}})
	require.NoError(t, err)
	require.Equal(t, before, stats.WordsBefore)
	require.True(t, stats.Reclaimed > 0, "unrooted compound must be reclaimed")
	require.Equal(t, stats.WordsBefore-stats.Reclaimed, stats.WordsAfter)

	// kept's shape survives the move, at whatever its new address is.
	hdr := s.Global.Load(word.Addr(0))
	require.Equal(t, word.TagCompound, hdr.Tag)
	require.Equal(t, word.Addr(2), hdr.Addr, "arity field must survive relocation untouched")
}

func Test_Collect_RefusesWhenBlocked(t *testing.T) {
	s, functors := newTestStacks()
	c := NewCollector(s, functors)
	c.Block()
	_, err := c.Collect(RootSet{})
	require.ErrorIs(t, err, ErrBlocked)
	c.Unblock()
	_, err = c.Collect(RootSet{})
	require.NoError(t, err)
}

func Test_EarlyReset_UndoesUnreachableAssignment(t *testing.T) {
	s, functors := newTestStacks()
	c := NewCollector(s, functors)

	addr, err := s.Global.Push(word.Int(42))
	require.NoError(t, err)
	require.NoError(t, s.PushTrail(stack.TrailEntry{Target: addr, Assignment: true, Saved: addr}))

	_, err = c.Collect(RootSet{})
	require.NoError(t, err)
	require.Equal(t, uint(0), s.Trail.Top(), "the unreachable assignment's trail entry must be dropped")
}

func Test_Collect_PreservesVariableBindingAcrossCompaction(t *testing.T) {
	s, functors := newTestStacks()
	c := NewCollector(s, functors)

	v := pushVar(t, s)
	target := pushCompound(t, s, functors, "bound_to", []word.Word{word.Int(7)})
	require.NoError(t, s.Global.Store(v.Addr, word.Word{Tag: word.TagRef, Storage: word.StorageGlobal, Addr: target.Addr}))
	_ = pushCompound(t, s, functors, "garbage", nil) // unrooted, reclaimed

	_, err := c.Collect(RootSet{GlobalVars: []word.Word{v}})
	require.NoError(t, err)

	moved := s.Global.Load(0) // v's run is a single word, relocated first (lowest original address)
	require.Equal(t, word.TagRef, moved.Tag)
}

func Test_Profile_NilUntilTraceEnabled(t *testing.T) {
	s, functors := newTestStacks()
	c := NewCollector(s, functors)
	_, err := c.Collect(RootSet{})
	require.NoError(t, err)
	require.Nil(t, c.Profile())

	c.TraceGC = true
	_, err = c.Collect(RootSet{})
	require.NoError(t, err)
	require.NotNil(t, c.Profile())
}
