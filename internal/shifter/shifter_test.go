package shifter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gowam/wam/internal/stack"
)

type fakeGate struct{ blocked bool }

func (g *fakeGate) Blocked() bool { return g.blocked }

func Test_EnsureRoom_GrowsRegion(t *testing.T) {
	r := stack.New("global", 64, 0)
	s := New(nil)
	require.NoError(t, s.EnsureRoom(r, 10000))
	require.GreaterOrEqual(t, r.Cap(), uint(10000))
}

func Test_EnsureRoom_NoopWhenAlreadyBigEnough(t *testing.T) {
	r := stack.New("global", 64, 0)
	s := New(nil)
	require.NoError(t, s.EnsureRoom(r, 10000))
	cap1 := r.Cap()
	require.NoError(t, s.EnsureRoom(r, 10))
	require.Equal(t, cap1, r.Cap())
}

func Test_EnsureRoom_RefusesWhenGateBlocked(t *testing.T) {
	r := stack.New("global", 64, 0)
	gate := &fakeGate{blocked: true}
	s := New(gate)
	err := s.EnsureRoom(r, 10000)
	require.ErrorIs(t, err, ErrBlocked)
}

func Test_NearCapacity(t *testing.T) {
	r := stack.New("global", 64, 100)
	require.NoError(t, r.SetTop(90))
	require.True(t, NearCapacity(r, 20))
	require.False(t, NearCapacity(r, 5))
}

func Test_PageSize_Positive(t *testing.T) {
	s := New(nil)
	require.Greater(t, s.PageSize(), uint(0))
}
