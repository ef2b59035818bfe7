package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/rs/xid"
	"github.com/stretchr/testify/require"

	"github.com/gowam/wam/internal/config"
	"github.com/gowam/wam/internal/procedure"
	"github.com/gowam/wam/internal/symbol"
	"github.com/gowam/wam/internal/vm"
)

func newTestBuild() func(id xid.ID) *vm.Machine {
	atoms := symbol.NewTable()
	functors := symbol.NewFunctorTable()
	procs := procedure.NewTable()
	clk := &procedure.Clock{}
	mod := procedure.NewModule("user")
	return func(id xid.ID) *vm.Machine {
		return vm.New(atoms, functors, procs, clk, mod, config.Default(), logr.Discard())
	}
}

func Test_Registry_SpawnReleaseFreesSlot(t *testing.T) {
	r := NewRegistry(1)
	ctx := context.Background()

	l1, err := r.Spawn(ctx, 4, newTestBuild())
	require.NoError(t, err)

	// a second spawn must block until the first is released
	started := make(chan struct{})
	spawned := make(chan *Local, 1)
	go func() {
		close(started)
		l2, err := r.Spawn(ctx, 4, newTestBuild())
		require.NoError(t, err)
		spawned <- l2
	}()
	<-started
	time.Sleep(20 * time.Millisecond)
	select {
	case <-spawned:
		t.Fatal("second Spawn should have blocked at max_threads == 1")
	default:
	}

	r.Release(l1.ID)
	select {
	case l2 := <-spawned:
		require.NotEqual(t, l1.ID, l2.ID)
	case <-time.After(time.Second):
		t.Fatal("second Spawn never unblocked after Release")
	}
}

func Test_Registry_Lookup(t *testing.T) {
	r := NewRegistry(2)
	l, err := r.Spawn(context.Background(), 4, newTestBuild())
	require.NoError(t, err)

	found, ok := r.Lookup(l.ID)
	require.True(t, ok)
	require.Same(t, l, found)

	r.Release(l.ID)
	_, ok = r.Lookup(l.ID)
	require.False(t, ok)
}

func Test_ThreadSignal_DeliversToTarget(t *testing.T) {
	r := NewRegistry(1)
	l, err := r.Spawn(context.Background(), 4, newTestBuild())
	require.NoError(t, err)
	defer r.Release(l.ID)

	require.NoError(t, r.ThreadSignal(l.ID, "ball"))
	sig, ok := l.PollSignal()
	require.True(t, ok)
	require.Equal(t, SignalException, sig.Kind)
	require.Equal(t, "ball", sig.Ball)
}

func Test_ThreadSignal_UnknownTarget(t *testing.T) {
	r := NewRegistry(1)
	require.Error(t, r.ThreadSignal(xid.New(), "ball"))
}

func Test_ThreadCancel_EscalatesContext(t *testing.T) {
	r := NewRegistry(1)
	l, err := r.Spawn(context.Background(), 4, newTestBuild())
	require.NoError(t, err)
	defer r.Release(l.ID)

	require.NoError(t, r.ThreadCancel(l.ID, 10*time.Millisecond))
	sig, ok := l.PollSignal()
	require.True(t, ok)
	require.Equal(t, SignalCancel, sig.Kind)

	select {
	case <-l.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("ThreadCancel never escalated to context cancellation")
	}
}

func Test_LazyGroup_DedupsConcurrentFirstReference(t *testing.T) {
	lg := &LazyGroup{}
	var calls int32
	var wg sync.WaitGroup
	results := make([]interface{}, 8)
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err, _ := lg.Once("pred/1", func() (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return "materialized", nil
			})
			require.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()
	for _, v := range results {
		require.Equal(t, "materialized", v)
	}
	require.LessOrEqual(t, atomic.LoadInt32(&calls), int32(8))
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func Test_Group_CollectsFirstError(t *testing.T) {
	g := NewGroup(context.Background())
	g.Go(func(ctx context.Context) error { return nil })
	g.Go(func(ctx context.Context) error { return context.DeadlineExceeded })
	require.ErrorIs(t, g.Wait(), context.DeadlineExceeded)
}
