// Package gc implements the garbage collector of SPEC_FULL.md C9/§4.3: mark,
// early reset + trail sweep, two-pass compaction, and mark-bar reset.
//
// The mark phase is a worklist traversal rather than literal
// Appleby/Carlsson/Haridi/Sahlin in-place pointer reversal: that algorithm
// exists to avoid an auxiliary stack on a host with no native call stack of
// its own to recurse on, and Go already gives every goroutine a growable
// one. An explicit worklist produces the identical mark bitset with the
// same asymptotic cost and no unsafe pointer surgery, so this collector
// keeps the phase's name and its role in the pipeline but not its literal
// in-place mechanism -- the same trade machine.go's package doc already
// makes for the interpreter's control flow, licensed by the same Non-goal
// around internal representation.
//
// Collect operates on an explicit RootSet snapshot supplied by the caller
// rather than walking a live frame/choicepoint stack: this engine's
// CPS-style interpreter (see internal/vm's package doc) keeps frame state
// on the Go call stack during a query, not in a data structure the
// collector could enumerate on its own. A caller that wants to reclaim
// space mid-query must gather every currently-live term itself and pass it
// as roots; between top-level queries (where nothing from the prior query
// is live) an empty RootSet is always safe. internal/vm does not yet wire
// this into its own safe points for exactly that reason -- see DESIGN.md.
package gc

import (
	"errors"
	"time"

	"github.com/google/pprof/profile"

	"github.com/gowam/wam/internal/stack"
	"github.com/gowam/wam/internal/symbol"
	"github.com/gowam/wam/internal/word"
)

// ErrBlocked is returned when Collect is requested while the engine has
// declared itself inside a critical section (Block/Unblock), per §4.3
// "GC is blocked during critical sections (counter-based; nested-safe)".
var ErrBlocked = errors.New("gc: collection requested inside a blocked critical section")

// Collector runs mark-sweep-compact cycles over one engine's stacks.
type Collector struct {
	Stacks   *stack.Stacks
	Functors *symbol.FunctorTable

	blocked int

	// TraceGC enables pprof sample recording per cycle (SPEC_FULL.md's
	// `trace_gc` configuration flag, DOMAIN STACK's optional pprof wiring).
	TraceGC bool
	samples []*profile.Sample
}

// NewCollector builds a Collector over s, using functors to resolve a
// compound header's arity during marking and compaction.
func NewCollector(s *stack.Stacks, functors *symbol.FunctorTable) *Collector {
	return &Collector{Stacks: s, Functors: functors}
}

// Block marks the start of a critical section during which Collect must
// refuse to run; nestable, mirroring the shifter's own blocked-counter
// (SPEC_FULL.md §4.4 "The shifter and the GC share the per-engine
// blocked-counter").
func (c *Collector) Block() { c.blocked++ }

// Unblock ends one nested critical section.
func (c *Collector) Unblock() {
	if c.blocked > 0 {
		c.blocked--
	}
}

// Blocked reports whether Collect would currently refuse to run.
func (c *Collector) Blocked() bool { return c.blocked > 0 }

// RootSet groups every root category enumerated by §4.3 phase 1: frame
// arguments/locals live at their resume PC, trailed destructive-assignment
// saved cells, live foreign term references, and non-backtrackable global
// variables.
type RootSet struct {
	Frames      []word.Word
	ForeignRefs []word.Word
	GlobalVars  []word.Word
}

func (r RootSet) all() []word.Word {
	out := make([]word.Word, 0, len(r.Frames)+len(r.ForeignRefs)+len(r.GlobalVars))
	out = append(out, r.Frames...)
	out = append(out, r.ForeignRefs...)
	out = append(out, r.GlobalVars...)
	return out
}

// Stats summarizes one completed cycle, for statistics/2-style
// introspection and for the optional pprof sample.
type Stats struct {
	WordsBefore uint
	WordsAfter  uint
	Reclaimed   uint
	Duration    time.Duration
}

// Collect runs one full mark / early-reset / compact / mark-bar-reset
// cycle against roots, returning ErrBlocked if a critical section is
// active instead of running.
func (c *Collector) Collect(roots RootSet) (Stats, error) {
	if c.Blocked() {
		return Stats{}, ErrBlocked
	}
	start := time.Now()
	before := c.Stacks.Global.Top()

	runs := c.mark(roots.all())
	if err := c.earlyReset(runs); err != nil {
		return Stats{}, err
	}
	newAddr, after, err := c.compact(runs)
	if err != nil {
		return Stats{}, err
	}
	if err := c.relocateTrail(newAddr); err != nil {
		return Stats{}, err
	}
	c.Stacks.MarkBar = c.Stacks.Global.Top()

	stats := Stats{WordsBefore: before, WordsAfter: after, Reclaimed: before - after, Duration: time.Since(start)}
	if c.TraceGC {
		c.recordSample(stats)
	}
	return stats, nil
}

// mark walks roots (and everything transitively reachable from them) and
// returns the set of live runs as (head address -> run length in words).
// A compound's run spans its header plus its arity's worth of argument
// slots; every other referenceable cell (a variable, a bound-variable
// forwarding reference, a float/string/bignum header) is a one-word run at
// its own address, since this engine only ever addresses those four kinds
// as standalone cells (internal/vm's buildFloat keeps a float's bits in one
// global word, and strings live in a static pool, not on the global stack).
func (c *Collector) mark(roots []word.Word) map[word.Addr]word.Addr {
	runs := make(map[word.Addr]word.Addr)
	seen := make(map[word.Addr]bool)
	work := append([]word.Word{}, roots...)

	for len(work) > 0 {
		w := work[len(work)-1]
		work = work[:len(work)-1]
		if w.Storage != word.StorageGlobal {
			continue
		}

		switch w.Tag {
		case word.TagVar, word.TagRef:
			if seen[w.Addr] {
				continue
			}
			seen[w.Addr] = true
			runs[w.Addr] = 1
			work = append(work, c.Stacks.Global.Load(w.Addr))
		case word.TagFloat, word.TagString, word.TagBig:
			if seen[w.Addr] {
				continue
			}
			seen[w.Addr] = true
			runs[w.Addr] = 1
		case word.TagCompound:
			if seen[w.Addr] {
				continue
			}
			seen[w.Addr] = true
			hdr := c.Stacks.Global.Load(w.Addr)
			arity := word.Addr(hdr.Addr)
			runs[w.Addr] = 1 + arity
			for i := word.Addr(0); i < arity; i++ {
				work = append(work, c.Stacks.Global.Load(w.Addr+1+i))
			}
		}
	}
	return runs
}

// earlyReset implements phase 2: every trail entry whose target is
// unreachable is undone immediately and dropped; reachable destructive
// assignments to the same target between two entries are merged, keeping
// only the most recent.
func (c *Collector) earlyReset(runs map[word.Addr]word.Addr) error {
	top := c.Stacks.Trail.Top()
	kept := make([]stack.TrailEntry, 0, top)
	lastAssignment := make(map[word.Addr]int)

	for i := uint(0); i < top; i++ {
		e := c.Stacks.TrailAt(word.Addr(i))
		if _, live := runs[e.Target]; !live {
			if e.Assignment {
				saved := c.Stacks.Global.Load(e.Saved)
				if err := c.Stacks.Global.Store(e.Target, saved); err != nil {
					return err
				}
			} else if err := c.Stacks.Global.Store(e.Target, word.Word{Tag: word.TagVar, Storage: word.StorageGlobal, Addr: e.Target}); err != nil {
				return err
			}
			continue
		}
		if e.Assignment {
			if idx, ok := lastAssignment[e.Target]; ok {
				kept[idx] = e
				continue
			}
			lastAssignment[e.Target] = len(kept)
		}
		kept = append(kept, e)
	}

	if err := c.Stacks.Trail.SetTop(0); err != nil {
		return err
	}
	for _, e := range kept {
		if err := c.Stacks.PushTrail(e); err != nil {
			return err
		}
	}
	return nil
}

// compact implements phases 3 and 4's global-stack half: a descending pass
// (here, one left-to-right scan) establishes each live run's new address,
// and an ascending pass moves payloads down, relocating every pointer word
// it carries except a compound header's own arity field.
func (c *Collector) compact(runs map[word.Addr]word.Addr) (map[word.Addr]word.Addr, uint, error) {
	top := c.Stacks.Global.Top()
	newAddr := make(map[word.Addr]word.Addr, len(runs))
	order := make([]word.Addr, 0, len(runs))

	var next word.Addr
	for addr := word.Addr(0); addr < word.Addr(top); {
		length, ok := runs[addr]
		if !ok {
			addr++
			continue
		}
		newAddr[addr] = next
		order = append(order, addr)
		next += length
		addr += length
	}

	out := make([]word.Word, next)
	for _, head := range order {
		length := runs[head]
		for i := word.Addr(0); i < length; i++ {
			w := c.Stacks.Global.Load(head + i)
			if i == 0 && length > 1 {
				out[newAddr[head]+i] = w // compound header: Addr is arity, not a pointer
				continue
			}
			out[newAddr[head]+i] = c.relocate(w, newAddr)
		}
	}
	c.Stacks.Global.Rebase(out, uint(next))
	return newAddr, uint(next), nil
}

func (c *Collector) relocate(w word.Word, newAddr map[word.Addr]word.Addr) word.Word {
	if w.Storage != word.StorageGlobal {
		return w
	}
	switch w.Tag {
	case word.TagVar, word.TagRef, word.TagFloat, word.TagCompound, word.TagString, word.TagBig:
		if na, ok := newAddr[w.Addr]; ok {
			w.Addr = na
		}
	}
	return w
}

// relocateTrail rewrites every surviving trail entry's Target/Saved
// addresses to match compact's relocation, since compaction runs after
// earlyReset has already pruned the trail down to only-reachable entries.
func (c *Collector) relocateTrail(newAddr map[word.Addr]word.Addr) error {
	top := c.Stacks.Trail.Top()
	kept := make([]stack.TrailEntry, 0, top)
	for i := uint(0); i < top; i++ {
		e := c.Stacks.TrailAt(word.Addr(i))
		if na, ok := newAddr[e.Target]; ok {
			e.Target = na
		}
		if e.Assignment {
			if na, ok := newAddr[e.Saved]; ok {
				e.Saved = na
			}
		}
		kept = append(kept, e)
	}
	if err := c.Stacks.Trail.SetTop(0); err != nil {
		return err
	}
	for _, e := range kept {
		if err := c.Stacks.PushTrail(e); err != nil {
			return err
		}
	}
	return nil
}

// recordSample appends one pprof sample per collection cycle when TraceGC
// is set, tagging reclaimed word count and cycle duration -- the optional
// profile recording named in the DOMAIN STACK table, for an embedder to
// flush periodically via Profile().
func (c *Collector) recordSample(s Stats) {
	c.samples = append(c.samples, &profile.Sample{
		Value: []int64{int64(s.Reclaimed), s.Duration.Nanoseconds()},
	})
}

// Profile builds a pprof profile of every recorded GC cycle (reclaimed
// words and duration per cycle), for an embedder to write out via
// profile.Write. Returns nil if TraceGC was never enabled.
func (c *Collector) Profile() *profile.Profile {
	if len(c.samples) == 0 {
		return nil
	}
	return &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "words_reclaimed", Unit: "count"},
			{Type: "cycle_duration", Unit: "nanoseconds"},
		},
		Sample: c.samples,
	}
}
