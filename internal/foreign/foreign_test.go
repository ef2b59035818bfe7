package foreign

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeEngine is a minimal Engine good enough to exercise Registry/Dispatch
// without pulling in internal/vm.
type fakeEngine struct{ vars int }

func (f *fakeEngine) Deref(t Term) Term                    { return t }
func (f *fakeEngine) NewVar() (Term, error)                { f.vars++; return f.vars, nil }
func (f *fakeEngine) Unify(a, b Term) (bool, error)         { return a == b, nil }
func (f *fakeEngine) Atom(name string) Term                 { return name }
func (f *fakeEngine) Int(v int64) Term                      { return v }
func (f *fakeEngine) Float(v float64) (Term, error)         { return v, nil }
func (f *fakeEngine) String(s string) (Term, error)         { return s, nil }
func (f *fakeEngine) Compound(fn string, args []Term) (Term, error) {
	return append([]Term{fn}, args...), nil
}
func (f *fakeEngine) AtomName(t Term) (string, bool) { s, ok := t.(string); return s, ok }
func (f *fakeEngine) IntValue(t Term) (int64, bool)  { v, ok := t.(int64); return v, ok }
func (f *fakeEngine) FloatValue(t Term) (float64, bool) { v, ok := t.(float64); return v, ok }
func (f *fakeEngine) StringValue(t Term) (string, bool) { v, ok := t.(string); return v, ok }
func (f *fakeEngine) Decompose(t Term) (string, []Term, bool) {
	return "", nil, false
}
func (f *fakeEngine) Throw(ball Term) error { return nil }

func Test_RegisterAndDispatch_Deterministic(t *testing.T) {
	r := NewRegistry()
	r.RegisterForeign("succ_or_fail", 1, Deterministic, func(ctx *Context, args []Term) (Result, error) {
		v, _ := ctx.Engine.IntValue(args[0])
		return Det(v > 0), nil
	})

	eng := &fakeEngine{}
	ok, carry, err := r.Dispatch("succ_or_fail", 1, FirstCall, eng, nil, []Term{int64(5)})
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, carry)

	ok, _, err = r.Dispatch("succ_or_fail", 1, FirstCall, eng, nil, []Term{int64(-1)})
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Dispatch_Unknown(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Dispatch("nope", 0, FirstCall, &fakeEngine{}, nil, nil)
	require.Error(t, err)
}

func Test_NonDeterministic_CarriesBetweenRedos(t *testing.T) {
	r := NewRegistry()
	r.RegisterForeign("countdown", 1, 0, func(ctx *Context, args []Term) (Result, error) {
		n, _ := ctx.Carry.(int)
		if ctx.Kind == FirstCall {
			v, _ := ctx.Engine.IntValue(args[0])
			n = int(v)
		}
		if n <= 0 {
			return Det(false), nil
		}
		return NonDet(n - 1), nil
	})

	eng := &fakeEngine{}
	ok, carry, err := r.Dispatch("countdown", 1, FirstCall, eng, nil, []Term{int64(2)})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, carry)

	ok, carry, err = r.Dispatch("countdown", 1, Redo, eng, carry, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, carry)

	ok, _, err = r.Dispatch("countdown", 1, Redo, eng, carry, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_DeterministicFlag_RejectsChoicepoint(t *testing.T) {
	r := NewRegistry()
	r.RegisterForeign("bad", 0, Deterministic, func(ctx *Context, args []Term) (Result, error) {
		return NonDet(1), nil
	})
	_, _, err := r.Dispatch("bad", 0, FirstCall, &fakeEngine{}, nil, nil)
	require.Error(t, err)
}
