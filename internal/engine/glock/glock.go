// Package glock implements the purpose-named mutex registry of
// SPEC_FULL.md C12/§4.7: "Global symbol tables are shared and guarded by
// fine-grained mutexes named by role (L_ATOM, L_FUNCTOR, L_PREDICATE,
// L_MODULE, L_TABLE, L_GC, ...)", with optional per-mutex contention
// statistics.
package glock

import "sync"

// Name identifies one purpose-specific lock by role.
type Name string

const (
	Atom      Name = "L_ATOM"
	Functor   Name = "L_FUNCTOR"
	Predicate Name = "L_PREDICATE"
	Module    Name = "L_MODULE"
	Table     Name = "L_TABLE"
	GC        Name = "L_GC"
)

// Registry owns one mutex per role, created lazily for any name not in the
// built-in six above so an embedder can register its own without a code
// change here.
type Registry struct {
	mu    sync.Mutex
	locks map[Name]*sync.Mutex
	stats map[Name]uint64
}

// NewRegistry creates a Registry with the six named locks above
// pre-allocated.
func NewRegistry() *Registry {
	r := &Registry{locks: make(map[Name]*sync.Mutex), stats: make(map[Name]uint64)}
	for _, n := range []Name{Atom, Functor, Predicate, Module, Table, GC} {
		r.locks[n] = &sync.Mutex{}
	}
	return r
}

// Lock acquires the named mutex (creating it on first use for an
// unrecognized name) and returns an unlock function, bumping that name's
// acquisition count for Stats.
func (r *Registry) Lock(n Name) func() {
	r.mu.Lock()
	m, ok := r.locks[n]
	if !ok {
		m = &sync.Mutex{}
		r.locks[n] = m
	}
	r.stats[n]++
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Stats returns a snapshot of each named lock's acquisition count.
func (r *Registry) Stats() map[Name]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Name]uint64, len(r.stats))
	for k, v := range r.stats {
		out[k] = v
	}
	return out
}
