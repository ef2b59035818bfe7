package vm

import (
	"github.com/gowam/wam/internal/procedure"
	"github.com/gowam/wam/internal/unify"
	"github.com/gowam/wam/internal/word"
)

// cursor walks one nesting level of head-argument words being unified
// against (the WAM "S register" in read mode, generalized to a small
// explicit stack instead of one global register, so nested compounds at
// arbitrary depth need no extra bookkeeping beyond push/pop).
type cursor struct {
	words []word.Word
	idx   int
}

func (c *cursor) next() (word.Word, bool) {
	if c.idx >= len(c.words) {
		return word.Word{}, false
	}
	w := c.words[c.idx]
	c.idx++
	return w, true
}

// pending is one compound under construction by the B_* family: args
// accumulates as nested B_* instructions push values, and B_POPF builds
// the final word once all of its args have been collected.
type pending struct {
	functor procedure.Name
	args    []word.Word
	isList  bool
}

// frame is one clause activation's mutable interpreter state.
//
// Variable slots (SPEC_FULL.md C4's argument-region/frame-local split) are
// not materialized as a uniform array of cells: an argument-region slot
// (index < len(args)) refers directly to the word the caller passed for
// that position -- exactly the value a WAM argument register holds -- and
// only a frame-local slot (index >= len(args), for a variable that occurs
// only in the body or only nested within the head) gets its own fresh
// cell on the global stack, allocated once at clause entry. Both cases
// are unified through slotWord/unifySlot below so H_FIRSTVAR, H_VAR and
// B_VAR do not need to know which kind of slot they're touching.
type frame struct {
	clause *procedure.Clause
	code   []uint32
	pc     int

	args      []word.Word
	localAddr []word.Addr

	heads   []*cursor   // head-unification cursor stack
	operand []word.Word // completed body-term values awaiting I_CALL/I_DEPART/A_* consumption
	pending []*pending  // in-progress B_FUNCTOR/B_LIST compounds
	arith   []arithValue // A_* family's evaluation stack, reset by A_ENTER

	cut *bool // set by I_CUT; checked by the owning Solve call and by C_OR retries
}

func (fr *frame) pushArith(v arithValue) { fr.arith = append(fr.arith, v) }

func (fr *frame) popArith() arithValue {
	n := len(fr.arith)
	v := fr.arith[n-1]
	fr.arith = fr.arith[:n-1]
	return v
}

func newFrame(m *Machine, cl *procedure.Clause, args []word.Word, cut *bool) (*frame, error) {
	fr := &frame{clause: cl, code: cl.Code, args: args, cut: cut}
	fr.localAddr = make([]word.Addr, cl.NumVars)
	for i := range fr.localAddr {
		addr, err := m.Stacks.PushGlobal(word.Word{})
		if err != nil {
			return nil, err
		}
		// Self-referencing, global-storage: see machine.go's undoTo comment
		// on why every variable cell (argument-region or frame-local) lives
		// on the global stack rather than a separate local/environment one.
		if err := m.Stacks.Global.Store(addr, word.Word{Tag: word.TagVar, Storage: word.StorageGlobal, Addr: addr}); err != nil {
			return nil, err
		}
		fr.localAddr[i] = addr
	}
	return fr, nil
}

// slotWord returns the current reference word for a compiled variable
// slot index, per the argument-region/frame-local split documented above.
func (fr *frame) slotWord(slot int) word.Word {
	if slot < len(fr.args) {
		return fr.args[slot]
	}
	return word.Ref(fr.localAddr[slot-len(fr.args)], word.StorageGlobal)
}

// pushOperand appends a completed body-term value to the operand stack, or
// (if a compound is under construction) to that compound's argument list.
func (fr *frame) pushOperand(w word.Word) {
	if n := len(fr.pending); n > 0 {
		top := fr.pending[n-1]
		top.args = append(top.args, w)
		return
	}
	fr.operand = append(fr.operand, w)
}

// popOperands removes and returns the last n values pushed to the operand
// stack, in original (left-to-right) order -- the argument list for an
// I_CALL/I_DEPART about to dispatch.
func (fr *frame) popOperands(n int) []word.Word {
	l := len(fr.operand)
	out := append([]word.Word(nil), fr.operand[l-n:]...)
	fr.operand = fr.operand[:l-n]
	return out
}

// unifySlot unifies a compiled variable slot (argument-region or
// frame-local, see slotWord) against w. H_FIRSTVAR and H_VAR share this
// handler: a genuine first occurrence always succeeds (the slot is either
// a fresh local cell or the call's own argument value, neither of which
// can conflict with w), so the interpreter does not need to special-case
// first-vs-subsequent the way the compiler's seen-set does.
func (fr *frame) unifySlot(u *unify.Machine, slot int, w word.Word) (bool, error) {
	return u.Unify(fr.slotWord(slot), w)
}

func (fr *frame) pushHead(c *cursor) { fr.heads = append(fr.heads, c) }

func (fr *frame) topHead() *cursor { return fr.heads[len(fr.heads)-1] }

func (fr *frame) popHead() { fr.heads = fr.heads[:len(fr.heads)-1] }
