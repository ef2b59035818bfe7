// Package index computes and stores first-argument indexing keys for
// clause selection (SPEC_FULL.md C6), and buckets clauses by that key.
//
// The source engine (see original_source/pl-comp.c) derives its index key
// from a hand-rolled hash tied to its internal word representation. Since
// spec.md's Non-goals explicitly exclude "preservation of any particular
// numeric index hash function", this package is free to pick one from the
// example corpus instead of inventing one: it uses BLAKE2b-256 (as used by
// vybium-vybium-starks-vm and ymm135-go), truncated to a machine word, both
// for the first-argument key and for clause-bucket hashing.
package index

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/gowam/wam/internal/symbol"
	"github.com/gowam/wam/internal/word"
)

// Key is a first-argument index key. Zero means "non-indexable" (the
// argument is a variable or unbound structure), per SPEC_FULL.md C4.
type Key uint64

const nonIndexable Key = 0

func hash(kind byte, payload uint64) Key {
	var buf [9]byte
	buf[0] = kind
	binary.LittleEndian.PutUint64(buf[1:], payload)
	sum := blake2b.Sum256(buf[:])
	k := Key(binary.LittleEndian.Uint64(sum[:8]))
	if k == nonIndexable {
		// Avoid the one-in-2^64 chance of colliding with the sentinel;
		// deterministic, not randomized, so identical inputs still hash
		// identically across compilations.
		k = 1
	}
	return k
}

// ForAtom computes the index key for an atom argument.
func ForAtom(id symbol.AtomID) Key { return hash('a', uint64(id)) }

// ForInt computes the index key for a small-integer argument.
func ForInt(v int64) Key { return hash('i', uint64(v)) }

// ForFunctor computes the index key for a compound argument, keyed by its
// principal functor (name+arity), per SPEC_FULL.md C4 "compound → keyed by
// canonical word [of its functor]".
func ForFunctor(id symbol.FunctorID) Key { return hash('f', uint64(id)) }

// NonIndexable is the sentinel key for variables and anything else that
// cannot usefully discriminate clauses.
const NonIndexable Key = nonIndexable

// KeyOf derives the indexing key for a dereferenced first-argument word.
// Variables (including attributed variables) are non-indexable; atoms,
// small integers and compounds are keyed per the functions above. Floats,
// strings and bignums are deliberately non-indexable here: the source
// engine keys a handful of additional numeric types, but first-argument
// indexing is a performance hint, not a semantic requirement, and
// SPEC_FULL.md's Non-goals license a simpler, still-correct scheme.
func KeyOf(w word.Word, functorOf func(word.Addr) symbol.FunctorID) Key {
	switch w.Tag {
	case word.TagAtom:
		return ForAtom(symbol.AtomID(w.Int))
	case word.TagInt:
		return ForInt(w.Int)
	case word.TagCompound:
		return ForFunctor(functorOf(w.Addr))
	default:
		return NonIndexable
	}
}
