package atomgc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gowam/wam/internal/symbol"
)

func Test_Collect_SweepsUnreferencedAtom(t *testing.T) {
	atoms := symbol.NewTable()
	kept := atoms.Intern("kept")
	garbage := atoms.Intern("garbage")
	atoms.Release(garbage) // drop the only reference

	c := NewCoordinator(atoms)
	id := c.Register(func() []symbol.AtomID { return []symbol.AtomID{kept} })
	defer c.Unregister(id)

	reclaimed := c.Collect()
	require.Equal(t, 1, reclaimed)
	require.Equal(t, "kept", atoms.Name(kept))
	require.Equal(t, "", atoms.Name(garbage))
}

func Test_PollSafePoint_DetectsNewEpoch(t *testing.T) {
	atoms := symbol.NewTable()
	c := NewCoordinator(atoms)

	seen := c.Epoch()
	_, due := c.PollSafePoint(seen)
	require.False(t, due)

	c.RequestCycle()
	cur, due := c.PollSafePoint(seen)
	require.True(t, due)
	require.NotEqual(t, seen, cur)
}

func Test_Register_Unregister(t *testing.T) {
	atoms := symbol.NewTable()
	c := NewCoordinator(atoms)
	id := c.Register(func() []symbol.AtomID { return nil })
	c.Unregister(id)
	// A collect with zero registered engines must not panic and must still
	// sweep the table (nothing holds a live ref beyond refs==1 baseline).
	require.NotPanics(t, func() { c.Collect() })
}
