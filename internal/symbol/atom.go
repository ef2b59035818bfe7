// Package symbol implements the interned atom and functor tables of
// SPEC_FULL.md C2, generalizing the teacher's symbols.go (jcorbin-gothird),
// which interned word names into a flat []string + map[string]uint, into a
// reference-counted table subject to atom GC (internal/atomgc).
package symbol

import (
	"sync"

	"golang.org/x/text/unicode/norm"
)

// AtomID identifies an interned atom. Zero is never a valid id, mirroring
// the teacher's convention that symbol id 0 means "no symbol" (symbols.go's
// `string` method treats id-1 < 0 as absent).
type AtomID uint32

type entry struct {
	name    string
	refs    int32 // reachable-engine reference count, see internal/atomgc
	marked  bool  // atom-GC mark bit, cleared by each sweep after it is read
}

// Table is the process-wide interned atom table. It is shared across all
// engines (SPEC_FULL.md C12 "Global symbol tables are shared") and guarded
// by its own read-write mutex.
type Table struct {
	mu      sync.RWMutex
	byName  map[string]AtomID
	entries []entry // AtomID i lives at entries[i-1]; id 0 is never issued
}

// NewTable creates an empty atom table.
func NewTable() *Table {
	return &Table{byName: make(map[string]AtomID)}
}

// canonical normalizes an atom's text to Unicode NFC, per the `encoding`
// configuration flag (SPEC_FULL.md §6): two byte-distinct but
// canonically-equivalent spellings of the same atom must intern to the
// same AtomID, or unification of atoms read from different sources would
// spuriously fail.
func canonical(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}

// Intern returns the AtomID for s, creating a fresh entry (with one
// reference) if s has not been seen before. Interning an existing atom
// bumps its reference count.
func (t *Table) Intern(s string) AtomID {
	s = canonical(s)

	t.mu.RLock()
	if id, ok := t.byName[s]; ok {
		t.mu.RUnlock()
		t.addRef(id, 1)
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[s]; ok {
		t.entries[id-1].refs++
		return id
	}
	t.entries = append(t.entries, entry{name: s, refs: 1})
	id := AtomID(len(t.entries))
	t.byName[s] = id
	return id
}

func (t *Table) addRef(id AtomID, delta int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := int(id) - 1; i >= 0 && i < len(t.entries) {
		t.entries[i].refs += delta
	}
}

// Name returns the text of id, or "" if id is unknown or has been swept.
func (t *Table) Name(id AtomID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := int(id) - 1; i >= 0 && i < len(t.entries) && t.entries[i].name != "" {
		return t.entries[i].name
	}
	return ""
}

// Lookup returns the AtomID for s without interning it, and whether it was
// found. Used by the compiler (internal/compiler) for builtin/reserved name
// checks that must not accidentally grow the table.
func (t *Table) Lookup(s string) (AtomID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[canonical(s)]
	return id, ok
}

// Mark sets the atom-GC mark bit for id (internal/atomgc's mark phase).
func (t *Table) Mark(id AtomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := int(id) - 1; i >= 0 && i < len(t.entries) {
		t.entries[i].marked = true
	}
}

// Sweep clears every unmarked entry (refs == 0 and not marked reachable by
// any engine's roots) and resets mark bits for the next cycle. It returns
// the number of atoms reclaimed. Marked-but-zero-ref atoms (static/builtin
// atoms interned once at startup with no further reference bump) survive
// because callers are expected to Intern a baseline ref for anything meant
// to be permanent.
func (t *Table) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	reclaimed := 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.name == "" {
			continue
		}
		if !e.marked && e.refs <= 0 {
			delete(t.byName, e.name)
			e.name = ""
			reclaimed++
		}
		e.marked = false
	}
	return reclaimed
}

// Release drops one reference from id, making it eligible for the next
// sweep once refs reaches zero.
func (t *Table) Release(id AtomID) { t.addRef(id, -1) }

// Len reports the number of live (non-swept) atoms, for statistics/2-style
// introspection.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.entries {
		if e.name != "" {
			n++
		}
	}
	return n
}
