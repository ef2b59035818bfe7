package index

// ClauseRef is an opaque handle naming a clause without this package
// needing to import internal/procedure (which in turn imports this
// package for key computation); callers supply whatever handle type their
// clause store uses.
type ClauseRef interface{}

// Table buckets clause references by first-argument Key, with a fallback
// chain (key NonIndexable) consulted in addition to any specific bucket so
// that non-indexable clauses remain visible regardless of the call-site's
// argument.
type Table struct {
	buckets map[Key][]ClauseRef
	generic []ClauseRef // clauses whose own first argument is non-indexable
}

// NewTable creates an empty index table.
func NewTable() *Table {
	return &Table{buckets: make(map[Key][]ClauseRef)}
}

// Add inserts ref under key (or into the generic fallback chain if key is
// NonIndexable).
func (t *Table) Add(key Key, ref ClauseRef) {
	if key == NonIndexable {
		t.generic = append(t.generic, ref)
		return
	}
	t.buckets[key] = append(t.buckets[key], ref)
}

// Remove deletes ref from whichever chain it was added under. Used when a
// clause is erased and its procedure is reindexed (SPEC_FULL.md C6
// "reindex on clause change").
func (t *Table) Remove(key Key, ref ClauseRef) {
	chain := &t.generic
	if key != NonIndexable {
		bucket := t.buckets[key]
		chain = &bucket
		defer func() { t.buckets[key] = bucket }()
	}
	for i, r := range *chain {
		if r == ref {
			*chain = append((*chain)[:i], (*chain)[i+1:]...)
			return
		}
	}
}

// Candidates returns the clause chain to walk for a call whose first
// argument hashes to key: the specific bucket (if any) followed by the
// generic fallback chain, in that order, matching clause declaration order
// within each chain. A NonIndexable call-site key returns only the generic
// chain; clauses filed under a specific key are not included.
func (t *Table) Candidates(key Key) []ClauseRef {
	if key == NonIndexable {
		return t.generic
	}
	bucket := t.buckets[key]
	if len(t.generic) == 0 {
		return bucket
	}
	out := make([]ClauseRef, 0, len(bucket)+len(t.generic))
	out = append(out, bucket...)
	out = append(out, t.generic...)
	return out
}

// Reset discards all buckets, for a full reindex.
func (t *Table) Reset() {
	t.buckets = make(map[Key][]ClauseRef)
	t.generic = nil
}
