// Package stack implements the four execution stacks shared by an engine:
// local (frames, choicepoints, FLI frames), global (heap terms), trail
// (bindings to undo) and argument (term-construction scratch).
//
// The underlying storage generalizes the teacher's memCore/internal/mem
// PagedCore model (jcorbin-gothird): a page-granular []word.Word arena
// grown geometrically rather than reallocated word-by-word. Region adds the
// one thing PagedCore didn't need: a stable notion of "top" and "mark" so
// that the VM (internal/vm), the GC (internal/gc) and the shifter
// (internal/shifter) can all reason about the same stack the same way.
package stack

import (
	"fmt"

	"github.com/gowam/wam/internal/word"
)

// Addr is re-exported from internal/word so callers rarely need to import
// both packages just to name an address.
type Addr = word.Addr

// LimitError indicates a load or store exceeded a configured hard limit.
// It mirrors memLimitError from the teacher's memcore.go.
type LimitError struct {
	Region string
	Addr   uint
	Op     string
}

func (e LimitError) Error() string {
	return fmt.Sprintf("%s stack limit exceeded by %s @%d", e.Region, e.Op, e.Addr)
}

// OverflowError indicates a region has grown past its configured hard
// cap and neither GC nor the shifter could make room -- the resource
// exhaustion path of SPEC_FULL.md §4.2 Failure semantics.
type OverflowError struct {
	Region string
}

func (e OverflowError) Error() string { return fmt.Sprintf("%s stack overflow", e.Region) }

// Region is one of the four growable word arrays backing an engine.
// Addresses are indices from zero; Region never exposes a raw pointer, so
// relocating its backing array (the shifter's job) never invalidates an
// Addr held elsewhere.
type Region struct {
	Name string

	words    []word.Word
	top      uint
	hardCap  uint // 0 means unbounded
	pageSize uint
}

// New creates a region with the given page size (rounded up to by Grow)
// and an optional hard cap (0 = unbounded).
func New(name string, pageSize, hardCap uint) *Region {
	if pageSize == 0 {
		pageSize = 4096
	}
	return &Region{Name: name, pageSize: pageSize, hardCap: hardCap}
}

// Top returns the current high-water mark: the first unused address.
func (r *Region) Top() uint { return r.top }

// Cap returns the current backing capacity in words.
func (r *Region) Cap() uint { return uint(len(r.words)) }

// SetHardCap changes the configured hard limit (0 disables it).
func (r *Region) SetHardCap(limit uint) { r.hardCap = limit }

// Room reports how many more words can be pushed before hitting the hard
// cap, or ^uint(0) (effectively unbounded) if none is configured.
func (r *Region) Room() uint {
	if r.hardCap == 0 {
		return ^uint(0)
	}
	if r.top >= r.hardCap {
		return 0
	}
	return r.hardCap - r.top
}

// Grow ensures the region can address up to size words, returning
// OverflowError if that would exceed the hard cap.
func (r *Region) Grow(size uint) error {
	if r.hardCap != 0 && size > r.hardCap {
		return OverflowError{r.Name}
	}
	if size <= uint(len(r.words)) {
		return nil
	}
	newCap := ((size + r.pageSize - 1) / r.pageSize) * r.pageSize
	grown := make([]word.Word, newCap)
	copy(grown, r.words)
	r.words = grown
	return nil
}

// Push appends w at Top and advances Top, growing as needed.
func (r *Region) Push(w word.Word) (Addr, error) {
	addr := Addr(r.top)
	if err := r.Grow(r.top + 1); err != nil {
		return 0, err
	}
	r.words[r.top] = w
	r.top++
	return addr, nil
}

// Load returns the word at addr, or the zero Word if addr is past Top
// (mirrors memCore.load's "holes read as zero" behavior).
func (r *Region) Load(addr Addr) word.Word {
	if uint(addr) >= r.top {
		return word.Word{}
	}
	return r.words[addr]
}

// Store writes w at addr, growing the region if addr is past its current
// capacity; a store at or past Top also advances Top to addr+1.
func (r *Region) Store(addr Addr, w word.Word) error {
	if err := r.Grow(uint(addr) + 1); err != nil {
		return err
	}
	r.words[addr] = w
	if uint(addr) >= r.top {
		r.top = uint(addr) + 1
	}
	return nil
}

// SetTop rewinds or advances Top directly; used by backtracking (rewind to
// a choicepoint's mark) and by frame allocation (advance past reserved
// slots without individually storing each one).
func (r *Region) SetTop(top uint) error {
	if err := r.Grow(top); err != nil {
		return err
	}
	r.top = top
	return nil
}

// Slice returns the live words in [from, r.Top()). The returned slice
// aliases the region's backing array and is invalidated by the next Grow.
func (r *Region) Slice(from Addr) []word.Word {
	if uint(from) >= r.top {
		return nil
	}
	return r.words[from:r.top]
}

// Rebase replaces the backing array wholesale -- the shifter's primitive:
// after computing new addresses for every live word, it builds a fresh
// array and swaps it in, updating every Addr it handed out by the same
// delta it used to place words here.
func (r *Region) Rebase(words []word.Word, top uint) {
	r.words = words
	r.top = top
}
