// Package word implements the tagged-word data model of the machine: the
// uniform representation shared by the local, global, trail and argument
// stacks.
//
// The source machine steals two bits out of a pointer-sized payload for GC
// mark/first flags (see the design notes in SPEC_FULL.md, C1). Go offers no
// portable way to steal bits out of a pointer without losing type safety, so
// a Word here is a plain sum type and the GC keeps its mark state in its own
// maps (internal/gc) rather than in the Word itself.
package word

import "fmt"

// Tag identifies the variant of a Word.
type Tag uint8

const (
	// TagVar is an unbound variable: a self-reference.
	TagVar Tag = iota
	// TagRef is a bound variable: a forwarding reference to another slot.
	TagRef
	// TagAtom is an interned atom.
	TagAtom
	// TagInt is a small integer that fits inline.
	TagInt
	// TagBig is an arbitrary precision integer, stored as an indirect run.
	TagBig
	// TagFloat is a float; its bits are stored in a single global word.
	TagFloat
	// TagString is a string; Addr indexes the machine's static string pool.
	TagString
	// TagCompound is a compound term, stored as a functor-headed run.
	TagCompound
	// TagAttVar is an attributed variable.
	TagAttVar
)

func (t Tag) String() string {
	switch t {
	case TagVar:
		return "VAR"
	case TagRef:
		return "REF"
	case TagAtom:
		return "ATOM"
	case TagInt:
		return "INTEGER"
	case TagBig:
		return "BIG"
	case TagFloat:
		return "FLOAT"
	case TagString:
		return "STRING"
	case TagCompound:
		return "COMPOUND"
	case TagAttVar:
		return "ATTVAR"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// Storage identifies which stack a Word's payload (when it is an address)
// points into. It lets pointer-chasing code (the GC, the shifter) classify
// an address without consulting the stack bounds every time.
type Storage uint8

const (
	// StorageInline means the payload carries its value directly (atoms,
	// small integers) and is not an address into any stack.
	StorageInline Storage = iota
	// StorageStatic is a reference to data that outlives any one query,
	// e.g. a compiled clause's constant pool.
	StorageStatic
	// StorageGlobal is an address on the global (heap) stack.
	StorageGlobal
	// StorageLocal is an address on the local (frame/choicepoint) stack.
	StorageLocal
	// StorageTrail is an address on the trail stack.
	StorageTrail
)

// Addr is an index into one of the four stacks. Addresses are arena
// indices, never raw pointers: the shifter and the GC can renumber them in
// place without invalidating anything held outside the arena itself.
type Addr uint32

// AtomID is an interned atom identifier (see internal/symbol).
type AtomID uint32

// GlobalIdx addresses the first word of a multi-word run on the global
// stack (compound args, or an indirect float/bignum/string run).
type GlobalIdx = Addr

// Word is one tagged cell. The zero Word is an unbound variable
// self-referencing address 0. Address 0 is an ordinary address (the first
// word pushed on a region), so a zero Word cannot be told apart from the
// variable held in that cell.
type Word struct {
	Tag     Tag
	Storage Storage

	// Addr holds the reference target for TagRef/TagVar, or the indirect
	// header address for TagBig/TagFloat/TagString/TagCompound/TagAttVar.
	Addr Addr

	// Int holds the inline value for TagInt, or the interned id for
	// TagAtom (as AtomID).
	Int int64
}

// Var returns a fresh unbound variable word self-referencing addr.
func Var(addr Addr) Word {
	return Word{Tag: TagVar, Storage: StorageLocal, Addr: addr}
}

// Ref returns a bound-variable word forwarding to target.
func Ref(target Addr, storage Storage) Word {
	return Word{Tag: TagRef, Storage: storage, Addr: target}
}

// Atom returns an atom word.
func Atom(id AtomID) Word {
	return Word{Tag: TagAtom, Storage: StorageInline, Int: int64(id)}
}

// Int returns a small-integer word.
func Int(v int64) Word {
	return Word{Tag: TagInt, Storage: StorageInline, Int: v}
}

// Compound returns a compound-term word pointing at the functor header at
// hdr on the global stack.
func Compound(hdr GlobalIdx) Word {
	return Word{Tag: TagCompound, Storage: StorageGlobal, Addr: hdr}
}

// Indirect returns an indirect-data word (float, bignum or string) pointing
// at its header on the global stack.
func Indirect(tag Tag, hdr GlobalIdx) Word {
	return Word{Tag: tag, Storage: StorageGlobal, Addr: hdr}
}

// IsVariable reports whether w is an unbound variable or attributed
// variable cell (as opposed to a reference chain link).
func (w Word) IsVariable() bool { return w.Tag == TagVar || w.Tag == TagAttVar }

// IsAtomic reports whether w is an atom, integer, float, string or bignum
// -- i.e. not a variable, reference or compound.
func (w Word) IsAtomic() bool {
	switch w.Tag {
	case TagAtom, TagInt, TagBig, TagFloat, TagString:
		return true
	default:
		return false
	}
}

func (w Word) String() string {
	switch w.Tag {
	case TagVar:
		return fmt.Sprintf("_%d", w.Addr)
	case TagRef:
		return fmt.Sprintf("->%d", w.Addr)
	case TagAtom:
		return fmt.Sprintf("atom(%d)", w.Int)
	case TagInt:
		return fmt.Sprintf("%d", w.Int)
	default:
		return fmt.Sprintf("%v@%d", w.Tag, w.Addr)
	}
}

// FunctorHeader is the word preceding a compound's arguments on the global
// stack: the interned functor id and its arity, packed so that a scan in
// either direction (see the bidirectional-scan invariant in SPEC_FULL.md
// C1) can recover the run's extent.
type FunctorHeader struct {
	Functor uint32 // interned (name, arity) id, see internal/procedure
	Arity   uint32
}

// IndirectHeader brackets a multi-word indirect run (float/bignum/string).
// Trailer is a copy of Header's Size, stored as the last word of the run,
// so a downward scan can recover where the run started.
type IndirectHeader struct {
	Tag  Tag
	Size uint32 // number of payload words, excluding header/trailer
}
