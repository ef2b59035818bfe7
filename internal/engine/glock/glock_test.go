package glock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Lock_SerializesAccess(t *testing.T) {
	r := NewRegistry()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.Lock(Atom)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}

func Test_Lock_DistinctNamesDoNotContend(t *testing.T) {
	r := NewRegistry()
	unlockAtom := r.Lock(Atom)
	defer unlockAtom()

	done := make(chan struct{})
	go func() {
		unlock := r.Lock(Functor)
		unlock()
		close(done)
	}()
	<-done // must not deadlock: distinct names use distinct mutexes
}

func Test_Stats_CountsAcquisitions(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 3; i++ {
		r.Lock(Module)()
	}
	stats := r.Stats()
	require.Equal(t, uint64(3), stats[Module])
	require.Equal(t, uint64(0), stats[GC])
}

func Test_Lock_LazilyCreatesUnknownName(t *testing.T) {
	r := NewRegistry()
	unlock := r.Lock(Name("L_CUSTOM"))
	unlock()
	require.Equal(t, uint64(1), r.Stats()[Name("L_CUSTOM")])
}
