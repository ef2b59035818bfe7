package stack

import "github.com/gowam/wam/internal/word"

// Mark is a snapshot of (trail-top, global-top) used to rewind execution
// on backtrack -- SPEC_FULL.md's Choice.mark.
type Mark struct {
	Trail  uint
	Global uint
}

// Stacks bundles the four regions an engine owns: local (frames,
// choicepoints, FLI frames), global (heap terms), trail (bindings) and
// argument (term-construction scratch, aTop in SPEC_FULL.md C5).
//
// Each Region here descends directly from the teacher's memCore: one flat,
// paged, growable array of words, addressed by zero-based index rather than
// a raw pointer -- see internal/word's doc comment on why Word is a sum
// type instead of a tagged machine pointer.
type Stacks struct {
	Local  *Region
	Global *Region
	Trail  *Region
	Arg    *Region

	// MarkBar is the global-stack address above which assignments need not
	// be trailed (SPEC_FULL.md C1 invariant, C9 Phase 4).
	MarkBar uint
}

// DefaultPageSize matches common OS page granularity; internal/shifter
// recomputes this from golang.org/x/sys when growing for real.
const DefaultPageSize = 4096

// NewStacks allocates the four regions with the given hard caps (0 = no
// cap). Caps are expressed in words.
func NewStacks(localCap, globalCap, trailCap, argCap uint) *Stacks {
	return &Stacks{
		Local:  New("local", DefaultPageSize, localCap),
		Global: New("global", DefaultPageSize, globalCap),
		Trail:  New("trail", DefaultPageSize, trailCap),
		Arg:    New("argument", DefaultPageSize, argCap),
	}
}

// Mark snapshots the current trail/global tops and moves the mark bar to
// the global top, so every later binding of a cell older than the snapshot
// is trailed and undone by backtracking to it.
func (s *Stacks) Mark() Mark {
	s.MarkBar = s.Global.Top()
	return Mark{Trail: s.Trail.Top(), Global: s.Global.Top()}
}

// Monotone reports whether child is a valid descendant mark of parent:
// SPEC_FULL.md C1's invariant that each choicepoint's mark is monotone
// along the parent chain.
func Monotone(parent, child Mark) bool {
	return child.Trail >= parent.Trail && child.Global >= parent.Global
}

// PushGlobal pushes w onto the global stack and returns its address.
func (s *Stacks) PushGlobal(w word.Word) (word.Addr, error) { return s.Global.Push(w) }

// PushTrail records addr as needing undo on backtrack past the current
// mark. internal/unify calls this for a global binding below the mark bar
// and for every local-stack binding.
func (s *Stacks) PushTrail(entry TrailEntry) error {
	_, err := s.Trail.Push(entry.encode())
	return err
}

// TrailEntry is one binding-to-undo record. Ordinary entries carry only
// Target (a variable cell to re-var on undo); Assignment entries also carry
// Saved (the global-stack address of the previously-saved value), per
// SPEC_FULL.md C1's TrailEntry.
type TrailEntry struct {
	Target     word.Addr
	Assignment bool
	Saved      word.Addr
}

func (e TrailEntry) encode() word.Word {
	if e.Assignment {
		return word.Word{Tag: word.TagRef, Storage: word.StorageTrail, Addr: e.Target, Int: int64(e.Saved)}
	}
	return word.Word{Tag: word.TagVar, Storage: word.StorageTrail, Addr: e.Target}
}

func decodeTrailEntry(w word.Word) TrailEntry {
	return TrailEntry{Target: w.Addr, Assignment: w.Tag == word.TagRef, Saved: word.Addr(w.Int)}
}

// TrailAt decodes the trail entry at addr.
func (s *Stacks) TrailAt(addr word.Addr) TrailEntry {
	return decodeTrailEntry(s.Trail.Load(addr))
}

// NeedsTrailing reports whether a binding at a global address must be
// trailed: only addresses below the mark bar do (SPEC_FULL.md C1).
func (s *Stacks) NeedsTrailing(globalAddr word.Addr) bool {
	return uint(globalAddr) < s.MarkBar
}

// RewindTo pops the global and trail stacks back to mark, WITHOUT undoing
// bindings -- callers that want early-reset semantics (internal/gc) or
// plain backtrack-undo (internal/vm) apply the undo themselves first, then
// call RewindTo to physically shrink the stacks. Keeping the two concerns
// separate mirrors the split between SPEC_FULL.md's §4.2 backtracking path
// and §4.3 Phase 2 early reset, which undo trail entries under different
// conditions (respectively: all of them vs. only unreachable ones).
func (s *Stacks) RewindTo(m Mark) error {
	if err := s.Trail.SetTop(m.Trail); err != nil {
		return err
	}
	return s.Global.SetTop(m.Global)
}
