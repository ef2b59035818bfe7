// Package unify implements dereferencing and unification (SPEC_FULL.md
// C3), bidirectional with reference-chain shortening, an occurs-check
// mode, and the attributed-variable wake-up list hookup.
package unify

import (
	"math"

	"github.com/gowam/wam/internal/stack"
	"github.com/gowam/wam/internal/word"
)

// OccursCheck selects the occurs-check behavior (SPEC_FULL.md §6
// `occurs_check: false|true|error`).
type OccursCheck uint8

const (
	OccursCheckOff OccursCheck = iota
	OccursCheckTrue
	OccursCheckError
)

// CyclicError is raised when OccursCheckError is in effect and a binding
// would create a cyclic term.
type CyclicError struct{}

func (CyclicError) Error() string { return "occurs check: cyclic term" }

// Machine bundles the stacks and hooks unify needs: it reads/writes the
// global and local stacks, and appends to the trail and wake-up list.
type Machine struct {
	Stacks *stack.Stacks

	// WakeUp receives the address of every attributed variable bound
	// during a unification, per SPEC_FULL.md §4.2 "Attributed variables
	// and wake-up". The VM (internal/vm) drains and clears this at the
	// next safe point.
	WakeUp *[]word.Addr

	Occurs OccursCheck

	// StringAt resolves an interned TagString word to its payload, so
	// unifyAtomic can compare two String terms by value instead of by
	// storage address. internal/vm's New wires this to the machine's own
	// string pool, since the pool itself lives above this package.
	StringAt func(w word.Word) string
}

// Deref follows a reference chain starting at w until it reaches an
// unbound variable or a non-reference value, per SPEC_FULL.md's
// "Reference chain" invariant (no cycles in a well-formed chain).
func (m *Machine) Deref(w word.Word) word.Word {
	for {
		switch w.Tag {
		case word.TagRef:
			w = m.load(w.Addr, w.Storage)
		case word.TagVar:
			// A copied variable word: its cell holds the current binding.
			cell := m.load(w.Addr, w.Storage)
			if cell.Tag == word.TagVar && cell.Addr == w.Addr {
				return w
			}
			w = cell
		default:
			return w
		}
	}
}

func (m *Machine) load(addr word.Addr, storage word.Storage) word.Word {
	switch storage {
	case word.StorageGlobal:
		return m.Stacks.Global.Load(addr)
	case word.StorageLocal:
		return m.Stacks.Local.Load(addr)
	default:
		return m.Stacks.Global.Load(addr)
	}
}

func (m *Machine) store(addr word.Addr, storage word.Storage, w word.Word) error {
	switch storage {
	case word.StorageGlobal:
		return m.Stacks.Global.Store(addr, w)
	case word.StorageLocal:
		return m.Stacks.Local.Store(addr, w)
	default:
		return m.Stacks.Global.Store(addr, w)
	}
}

// Bind binds the variable cell at (addr, storage) to value, trailing the
// binding unless it lies above the mark bar (SPEC_FULL.md C1 invariant).
// If the cell held an attributed variable, its address is appended to the
// wake-up list.
func (m *Machine) Bind(addr word.Addr, storage word.Storage, wasAttributed bool, value word.Word) error {
	if storage == word.StorageGlobal && m.Stacks.NeedsTrailing(addr) {
		if err := m.Stacks.PushTrail(stack.TrailEntry{Target: addr}); err != nil {
			return err
		}
	} else if storage == word.StorageLocal {
		// Local-stack variable cells (frame argument/local slots) are
		// always trailed: they are not subject to the global mark-bar
		// optimisation, since they can be referenced by older
		// choicepoints regardless of global-stack growth.
		if err := m.Stacks.PushTrail(stack.TrailEntry{Target: addr}); err != nil {
			return err
		}
	}
	if err := m.store(addr, storage, value); err != nil {
		return err
	}
	if wasAttributed && m.WakeUp != nil {
		*m.WakeUp = append(*m.WakeUp, addr)
	}
	return nil
}

// Unify attempts to unify a and b, binding whichever variables are needed
// and trailing those bindings. It returns false (without error) on a
// unification failure that the caller should treat as goal failure, and a
// non-nil error only for a genuine fault (OOM, cyclic term under
// OccursCheckError).
func (m *Machine) Unify(a, b word.Word) (bool, error) {
	a, b = m.Deref(a), m.Deref(b)

	switch {
	case a.IsVariable() && b.IsVariable():
		return m.unifyVars(a, b)
	case a.IsVariable():
		return m.bindVarTo(a, b)
	case b.IsVariable():
		return m.bindVarTo(b, a)
	case a.Tag != b.Tag:
		return false, nil
	case a.IsAtomic():
		return m.unifyAtomic(a, b), nil
	case a.Tag == word.TagCompound:
		return m.unifyCompound(a, b)
	default:
		return false, nil
	}
}

// unifyVars binds the younger (higher-address) variable to the older one,
// per SPEC_FULL.md §4.2 "when both sides are variables the younger
// (higher-address) slot is bound to the older."
func (m *Machine) unifyVars(a, b word.Word) (bool, error) {
	if a.Addr == b.Addr && a.Storage == b.Storage {
		return true, nil // unifying a variable with itself: no trailing
	}
	older, younger := a, b
	if !youngerIsOlder(a, b) {
		older, younger = b, a
	}
	ref := word.Ref(older.Addr, older.Storage)
	if err := m.Bind(younger.Addr, younger.Storage, younger.Tag == word.TagAttVar, ref); err != nil {
		return false, err
	}
	return true, nil
}

// youngerIsOlder reports whether a is actually the older (lower) binding
// target, i.e. b should be bound to a. Global addresses are always older
// than local ones (global terms can outlive the frame that built them is
// false in general, but for the purpose of this tie-break we treat same-
// storage comparisons by address and cross-storage local-over-global,
// matching the "downward in lifetime" invariant of SPEC_FULL.md C1).
func youngerIsOlder(a, b word.Word) bool {
	if a.Storage != b.Storage {
		return a.Storage == word.StorageGlobal
	}
	return a.Addr < b.Addr
}

func (m *Machine) bindVarTo(v, value word.Word) (bool, error) {
	if m.Occurs != OccursCheckOff && m.occursIn(v, value) {
		if m.Occurs == OccursCheckError {
			return false, CyclicError{}
		}
		return false, nil
	}
	if err := m.Bind(v.Addr, v.Storage, v.Tag == word.TagAttVar, value); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Machine) unifyAtomic(a, b word.Word) bool {
	switch a.Tag {
	case word.TagAtom, word.TagInt:
		return a.Int == b.Int
	case word.TagFloat:
		// The header word itself carries the bits (see internal/vm's
		// buildFloat); two independently-built floats with the same
		// value live at different addresses, so this must compare the
		// payload, not the address.
		ha := m.Stacks.Global.Load(a.Addr)
		hb := m.Stacks.Global.Load(b.Addr)
		return math.Float64frombits(uint64(ha.Int)) == math.Float64frombits(uint64(hb.Int))
	case word.TagString:
		if m.StringAt == nil {
			return a.Addr == b.Addr
		}
		return m.StringAt(a) == m.StringAt(b)
	default:
		// TagBig: arbitrary-precision integers have no builder yet, so
		// address comparison is a placeholder until bignums exist.
		return a.Addr == b.Addr
	}
}

func (m *Machine) unifyCompound(a, b word.Word) (bool, error) {
	ha := m.Stacks.Global.Load(a.Addr)
	hb := m.Stacks.Global.Load(b.Addr)
	if ha.Int != hb.Int { // functor id packed into header's Int by the builder
		return false, nil
	}
	arity := int(ha.Addr) // arity packed into header's Addr by the builder
	for i := 0; i < arity; i++ {
		ai := m.Stacks.Global.Load(a.Addr + 1 + word.Addr(i))
		bi := m.Stacks.Global.Load(b.Addr + 1 + word.Addr(i))
		ok, err := m.Unify(ai, bi)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// occursIn reports whether v's address occurs within value's structure,
// for the occurs-check modes.
func (m *Machine) occursIn(v, value word.Word) bool {
	value = m.Deref(value)
	if value.IsVariable() {
		return value.Addr == v.Addr && value.Storage == v.Storage
	}
	if value.Tag != word.TagCompound {
		return false
	}
	h := m.Stacks.Global.Load(value.Addr)
	arity := int(h.Addr)
	for i := 0; i < arity; i++ {
		arg := m.Stacks.Global.Load(value.Addr + 1 + word.Addr(i))
		if m.occursIn(v, arg) {
			return true
		}
	}
	return false
}
