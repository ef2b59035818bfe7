// Package shifter implements the stack-growth policy of SPEC_FULL.md
// C10/§4.4: geometric growth (factor ≈1.5) rounded to real OS page
// multiples, gated by the same blocked-counter the garbage collector
// shares.
//
// §4.4 also describes relocating "every interior pointer class" a base
// address move invalidates -- environment parents, saved choicepoints,
// FLI-frame parent/mark, thread-engine roots, the current FR/BFR/lTop/aTop.
// That relocation pass exists because the source engine addresses its
// stacks with raw pointers into a block that can move. This engine
// addresses them with arena-relative indices (internal/word's doc comment:
// "addresses are arena indices, never raw pointers"), and internal/stack's
// Region grows by copying into a larger backing array at the same indices
// -- so an index already held anywhere else stays valid across a grow with
// no patching pass required. Growing here is therefore just "ensure enough
// room, rounded to a page multiple"; the relocation pass is the one part
// of C10 this Go rendering doesn't need, and decides not to recreate for
// its own sake (see DESIGN.md).
package shifter

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/gowam/wam/internal/stack"
)

// GrowthFactor is the geometric growth multiplier of §4.4.
const GrowthFactor = 1.5

// ErrBlocked is returned when Grow is requested while a critical section
// (shared with the GC's blocked-counter) is active.
var ErrBlocked = errors.New("shifter: growth requested inside a blocked critical section")

// BlockGate reports whether growth must be refused right now. *gc.Collector
// satisfies this without either package importing the other.
type BlockGate interface {
	Blocked() bool
}

// Shifter grows a region's backing capacity ahead of need, per §4.4's "when
// a stack nears capacity and GC cannot recover enough, grow geometrically".
type Shifter struct {
	Gate     BlockGate
	pageSize uint
}

// New builds a Shifter gated by gate (pass nil to never refuse growth).
// The OS page size is queried once via golang.org/x/sys/unix, matching
// §4.4's "rounded to page multiples" against the real platform page size
// rather than the internal region's own fixed default.
func New(gate BlockGate) *Shifter {
	ps := unix.Getpagesize()
	if ps <= 0 {
		ps = 4096
	}
	return &Shifter{Gate: gate, pageSize: uint(ps)}
}

// PageSize reports the OS page size (in bytes) this Shifter rounds to.
func (s *Shifter) PageSize() uint { return s.pageSize }

// wordsPerPage is how many word-sized cells fit in one OS page, used to
// convert a target word count into a page-multiple word count.
func (s *Shifter) wordsPerPage() uint {
	const wordSize = 16 // a word.Word's approximate in-memory footprint (tag+storage+addr+int)
	n := s.pageSize / wordSize
	if n == 0 {
		n = 1
	}
	return n
}

// target computes the next capacity to grow r to: max(need, r.Cap() *
// GrowthFactor), rounded up to a whole number of OS pages.
func (s *Shifter) target(r *stack.Region, need uint) uint {
	grown := uint(float64(r.Cap()) * GrowthFactor)
	want := need
	if grown > want {
		want = grown
	}
	wpp := s.wordsPerPage()
	return ((want + wpp - 1) / wpp) * wpp
}

// EnsureRoom grows r so that it can address at least need words, using the
// geometric-growth-rounded-to-pages policy, unless the shared gate reports
// a blocked critical section. A region that is already large enough is
// left untouched (Region.Grow is itself a no-op in that case).
func (s *Shifter) EnsureRoom(r *stack.Region, need uint) error {
	if s.Gate != nil && s.Gate.Blocked() {
		return ErrBlocked
	}
	if need <= r.Cap() {
		return nil
	}
	return r.Grow(s.target(r, need))
}

// NearCapacity reports whether r's remaining room has dropped under
// minFree, the "roomStack(s) < minfree(s)" trigger condition of §4.3's GC
// entry point, reused here to decide when EnsureRoom should be called
// pre-emptively rather than waiting for Region's own implicit growth.
func NearCapacity(r *stack.Region, minFree uint) bool {
	return r.Room() < minFree
}
