package vm

import (
	"fmt"
	"sort"

	"github.com/gowam/wam/internal/compiler"
	"github.com/gowam/wam/internal/except"
	"github.com/gowam/wam/internal/procedure"
	"github.com/gowam/wam/internal/symbol"
	"github.com/gowam/wam/internal/word"
)

// builtinFunc is one control-construct-free predicate handled directly by
// the VM rather than through compiled clauses, per SPEC_FULL.md §4.3's
// "library" predicates. Registered by (name, arity) the same way a regular
// procedure is, so a user definition can never collide with one silently --
// the builtin always wins, matching the source engine's own read-only
// system predicate table.
type builtinFunc func(m *Machine, args []word.Word, depth int, k Solution) (bool, error)

// registerBuiltins builds the (functor id -> handler) table once per
// Machine, since FunctorID values are assigned at intern time and cannot
// be known as Go map literal keys at package init.
func registerBuiltins(m *Machine) map[symbol.FunctorID]builtinFunc {
	reg := map[symbol.FunctorID]builtinFunc{}
	def := func(name string, arity int, fn builtinFunc) {
		id := m.Functors.Intern(m.Atoms.Intern(name), uint16(arity))
		reg[id] = fn
	}

	def("true", 0, func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) { return k() })
	def("fail", 0, func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) { return false, nil })
	def("false", 0, func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) { return false, nil })
	def("halt", 0, func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
		return false, haltError{code: 0}
	})
	def("halt", 1, func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
		code := 0
		if v := m.Unifier.Deref(args[0]); v.Tag == word.TagInt {
			code = int(v.Int)
		}
		return false, haltError{code: code}
	})

	def("=", 2, builtinUnify)
	def("\\=", 2, func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
		mark := m.Stacks.Mark()
		ok, err := m.Unifier.Unify(args[0], args[1])
		if err != nil {
			return false, err
		}
		m.undoTo(mark)
		if ok {
			return false, nil
		}
		return k()
	})
	def("==", 2, func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
		if m.compareTerms(args[0], args[1]) == 0 {
			return k()
		}
		return false, nil
	})
	def("\\==", 2, func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
		if m.compareTerms(args[0], args[1]) != 0 {
			return k()
		}
		return false, nil
	})
	def("@<", 2, cmpBuiltin(func(c int) bool { return c < 0 }))
	def("@>", 2, cmpBuiltin(func(c int) bool { return c > 0 }))
	def("@=<", 2, cmpBuiltin(func(c int) bool { return c <= 0 }))
	def("@>=", 2, cmpBuiltin(func(c int) bool { return c >= 0 }))
	def("compare", 3, func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
		c := m.compareTerms(args[1], args[2])
		var sym string
		switch {
		case c < 0:
			sym = "<"
		case c > 0:
			sym = ">"
		default:
			sym = "="
		}
		ok, err := m.Unifier.Unify(args[0], word.Atom(m.Atoms.Intern(sym)))
		if err != nil || !ok {
			return false, err
		}
		return k()
	})

	def("var", 1, typeCheck(func(m *Machine, w word.Word) bool { return w.IsVariable() }))
	def("nonvar", 1, typeCheck(func(m *Machine, w word.Word) bool { return !w.IsVariable() }))
	def("atom", 1, typeCheck(func(m *Machine, w word.Word) bool { return w.Tag == word.TagAtom }))
	def("number", 1, typeCheck(func(m *Machine, w word.Word) bool {
		return w.Tag == word.TagInt || w.Tag == word.TagFloat || w.Tag == word.TagBig
	}))
	def("integer", 1, typeCheck(func(m *Machine, w word.Word) bool {
		return w.Tag == word.TagInt || w.Tag == word.TagBig
	}))
	def("float", 1, typeCheck(func(m *Machine, w word.Word) bool { return w.Tag == word.TagFloat }))
	def("atomic", 1, typeCheck(func(m *Machine, w word.Word) bool {
		switch w.Tag {
		case word.TagAtom, word.TagInt, word.TagFloat, word.TagBig, word.TagString:
			return true
		}
		return false
	}))
	def("compound", 1, typeCheck(func(m *Machine, w word.Word) bool { return w.Tag == word.TagCompound }))
	def("callable", 1, typeCheck(func(m *Machine, w word.Word) bool {
		return w.Tag == word.TagAtom || w.Tag == word.TagCompound
	}))
	def("is_list", 1, typeCheck((*Machine).isProperList))
	def("string", 1, typeCheck(func(m *Machine, w word.Word) bool { return w.Tag == word.TagString }))

	def("functor", 3, builtinFunctor)
	def("arg", 3, builtinArg)
	def("=..", 2, builtinUniv)
	def("copy_term", 2, builtinCopyTerm)

	def("asserta", 1, assertBuiltin(true))
	def("assertz", 1, assertBuiltin(false))
	def("assert", 1, assertBuiltin(false))
	def("retract", 1, builtinRetract)

	def("findall", 3, builtinFindall)
	def("forall", 2, builtinForall)

	def("throw", 1, func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
		ball := m.Unifier.Deref(args[0])
		if ball.IsVariable() {
			return false, except.InstantiationError()
		}
		return false, except.Thrown{Ball: m.reifyCopy(args[0])}
	})
	def("catch", 3, builtinCatch)
	def("setup_call_cleanup", 3, builtinSetupCallCleanup)

	for n := 1; n <= 8; n++ {
		def("call", n, makeCallBuiltin(n))
	}

	return reg
}

// haltError unwinds Solve all the way out to the top-level caller, which is
// expected to translate it into a process exit per SPEC_FULL.md §4.3
// halt/0-1.
type haltError struct{ code int }

func (e haltError) Error() string { return fmt.Sprintf("halt(%d)", e.code) }

// ballOf extracts the reifiedTerm a Go error carries across catch/3's
// boundary: either a user-thrown except.Thrown (reifiedTerm ball, the
// common case from throw/1) or a typed *except.Error raised internally by
// a builtin/VM instruction, whose ISOTerm is reified fresh since it was
// never a live heap term to begin with. Returns ok=false for any other
// (non-Prolog, e.g. haltError) error, which catch/3 must let propagate.
func (m *Machine) ballOf(err error) (reifiedTerm, bool) {
	switch e := err.(type) {
	case except.Thrown:
		if r, ok := e.Ball.(reifiedTerm); ok {
			return r, true
		}
	case *except.Error:
		names := map[string]string{}
		w, werr := m.buildFromTerm(e.ISOTerm(), map[string]word.Word{}, names)
		if werr != nil {
			return reifiedTerm{}, false
		}
		return m.reifyCopy(w), true
	}
	return reifiedTerm{}, false
}

func builtinUnify(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
	ok, err := m.Unifier.Unify(args[0], args[1])
	if err != nil || !ok {
		return false, err
	}
	return k()
}

func cmpBuiltin(pred func(int) bool) builtinFunc {
	return func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
		if pred(m.compareTerms(args[0], args[1])) {
			return k()
		}
		return false, nil
	}
}

func typeCheck(pred func(m *Machine, w word.Word) bool) builtinFunc {
	return func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
		if pred(m, m.Unifier.Deref(args[0])) {
			return k()
		}
		return false, nil
	}
}

func (m *Machine) isProperList(w word.Word) bool {
	for {
		w = m.Unifier.Deref(w)
		if w.Tag == word.TagAtom && symbol.AtomID(w.Int) == m.nilAtom() {
			return true
		}
		if w.Tag != word.TagCompound {
			return false
		}
		hdr := m.Stacks.Global.Load(w.Addr)
		if hdr.Int != int64(m.dotFunctor()) {
			return false
		}
		w = m.Stacks.Global.Load(w.Addr + 2)
	}
}

// builtinFunctor implements functor/3 both ways: decomposing a bound term
// (Term -> Name, Arity) and constructing one (Name, Arity -> Term), per
// SPEC_FULL.md §4.3.
func builtinFunctor(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
	t := m.Unifier.Deref(args[0])
	if !t.IsVariable() {
		var name word.Word
		var arity int64
		switch t.Tag {
		case word.TagCompound:
			hdr := m.Stacks.Global.Load(t.Addr)
			fn, ok := m.Functors.Lookup(symbol.FunctorID(hdr.Int))
			if !ok {
				return false, fmt.Errorf("vm: unresolved functor id %d", hdr.Int)
			}
			name = word.Atom(fn.Name)
			arity = int64(fn.Arity)
		default:
			name = t
			arity = 0
		}
		ok, err := m.Unifier.Unify(args[1], name)
		if err != nil || !ok {
			return false, err
		}
		ok, err = m.Unifier.Unify(args[2], word.Int(arity))
		if err != nil || !ok {
			return false, err
		}
		return k()
	}

	arityW := m.Unifier.Deref(args[2])
	if arityW.Tag != word.TagInt {
		return false, fmt.Errorf("type_error(integer, %v)", arityW)
	}
	arity := int(arityW.Int)
	nameW := m.Unifier.Deref(args[1])
	if arity == 0 {
		ok, err := m.Unifier.Unify(args[0], nameW)
		if err != nil || !ok {
			return false, err
		}
		return k()
	}
	if nameW.Tag != word.TagAtom {
		return false, fmt.Errorf("type_error(atom, %v)", nameW)
	}
	built := make([]word.Word, arity)
	for i := range built {
		addr, err := m.Stacks.PushGlobal(word.Word{})
		if err != nil {
			return false, err
		}
		v := word.Word{Tag: word.TagVar, Storage: word.StorageGlobal, Addr: addr}
		if err := m.Stacks.Global.Store(addr, v); err != nil {
			return false, err
		}
		built[i] = v
	}
	id := m.Functors.Intern(symbol.AtomID(nameW.Int), uint16(arity))
	w, err := m.buildCompound(id, built)
	if err != nil {
		return false, err
	}
	ok, err := m.Unifier.Unify(args[0], w)
	if err != nil || !ok {
		return false, err
	}
	return k()
}

func builtinArg(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
	n := m.Unifier.Deref(args[0])
	t := m.Unifier.Deref(args[1])
	if n.Tag != word.TagInt {
		return false, fmt.Errorf("type_error(integer, %v)", n)
	}
	if t.Tag != word.TagCompound {
		return false, fmt.Errorf("type_error(compound, %v)", t)
	}
	hdr := m.Stacks.Global.Load(t.Addr)
	if n.Int < 1 || n.Int > hdr.Addr.Int64() {
		return false, nil
	}
	arg := m.Stacks.Global.Load(t.Addr + 1 + word.Addr(n.Int-1))
	ok, err := m.Unifier.Unify(args[2], arg)
	if err != nil || !ok {
		return false, err
	}
	return k()
}

// builtinUniv implements =../2 both ways, per SPEC_FULL.md §4.3.
func builtinUniv(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
	t := m.Unifier.Deref(args[0])
	if !t.IsVariable() {
		var list []word.Word
		switch t.Tag {
		case word.TagCompound:
			hdr := m.Stacks.Global.Load(t.Addr)
			fn, ok := m.Functors.Lookup(symbol.FunctorID(hdr.Int))
			if !ok {
				return false, fmt.Errorf("vm: unresolved functor id %d", hdr.Int)
			}
			arity := int(fn.Arity)
			list = append(list, word.Atom(fn.Name))
			for i := 0; i < arity; i++ {
				list = append(list, m.Stacks.Global.Load(t.Addr+1+word.Addr(i)))
			}
		default:
			list = []word.Word{t}
		}
		w, err := m.buildProperList(list)
		if err != nil {
			return false, err
		}
		ok, err := m.Unifier.Unify(args[1], w)
		if err != nil || !ok {
			return false, err
		}
		return k()
	}

	items, ok := m.listItems(args[1])
	if !ok || len(items) == 0 {
		return false, fmt.Errorf("instantiation_error")
	}
	if len(items) == 1 {
		ok, err := m.Unifier.Unify(args[0], items[0])
		if err != nil || !ok {
			return false, err
		}
		return k()
	}
	head := m.Unifier.Deref(items[0])
	if head.Tag != word.TagAtom {
		return false, fmt.Errorf("type_error(atom, %v)", head)
	}
	id := m.Functors.Intern(symbol.AtomID(head.Int), uint16(len(items)-1))
	w, err := m.buildCompound(id, items[1:])
	if err != nil {
		return false, err
	}
	ok, err = m.Unifier.Unify(args[0], w)
	if err != nil || !ok {
		return false, err
	}
	return k()
}

func (m *Machine) buildProperList(items []word.Word) (word.Word, error) {
	tail := word.Atom(m.nilAtom())
	for i := len(items) - 1; i >= 0; i-- {
		w, err := m.buildCompound(m.dotFunctor(), []word.Word{items[i], tail})
		if err != nil {
			return word.Word{}, err
		}
		tail = w
	}
	return tail, nil
}

func (m *Machine) listItems(w word.Word) ([]word.Word, bool) {
	var out []word.Word
	for {
		dw := m.Unifier.Deref(w)
		if dw.Tag == word.TagAtom && symbol.AtomID(dw.Int) == m.nilAtom() {
			return out, true
		}
		if dw.Tag != word.TagCompound {
			return nil, false
		}
		hdr := m.Stacks.Global.Load(dw.Addr)
		if hdr.Int != int64(m.dotFunctor()) {
			return nil, false
		}
		out = append(out, m.Stacks.Global.Load(dw.Addr+1))
		w = m.Stacks.Global.Load(dw.Addr + 2)
	}
}

// builtinCopyTerm implements copy_term/2 by reifying the source term with
// fresh variables substituted consistently, then rebuilding it on the
// global stack -- the same reify/rebuild pair assert/1 uses to snapshot a
// clause term out of the backtrackable heap.
func builtinCopyTerm(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
	r := m.reifyCopy(args[0])
	w, err := m.rebuild(r, map[string]word.Word{})
	if err != nil {
		return false, err
	}
	ok, err := m.Unifier.Unify(args[1], w)
	if err != nil || !ok {
		return false, err
	}
	return k()
}

func assertBuiltin(front bool) builtinFunc {
	return func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
		head, body := splitClauseTerm(m.Unifier.Deref(args[0]), m)
		headTerm := m.toCompilerTerm(head, map[string]string{}, new(int))
		var bodyTerm *compiler.Term
		if body != nil {
			bodyTerm = m.toCompilerTerm(*body, map[string]string{}, new(int))
		}
		cl, err := compiler.Compile(m.Atoms, m.Functors, headTerm, bodyTerm, m.Config.LastCallOptimisation)
		if err != nil {
			return false, err
		}
		id := m.Functors.Intern(m.Atoms.Intern(headTerm.Functor()), uint16(headTerm.Arity()))
		proc := m.Procs.Ensure(m.Module, id)
		proc.SetFlags(procedure.FlagDynamic)
		cl.Procedure = proc
		if front {
			proc.StoreFor("").Asserta(m.Clock, cl)
		} else {
			proc.StoreFor("").Assertz(m.Clock, cl)
		}
		return k()
	}
}

// builtinRetract removes the first clause unifiable with args[0]'s head
// (and body, defaulting to true), per SPEC_FULL.md §4.3: it marks the
// clause erased under the logical-update-view scheme rather than
// physically unlinking it.
func builtinRetract(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
	head, body := splitClauseTerm(m.Unifier.Deref(args[0]), m)
	dh := m.Unifier.Deref(head)
	var id symbol.FunctorID
	switch dh.Tag {
	case word.TagAtom:
		id = m.Functors.Intern(symbol.AtomID(dh.Int), 0)
	case word.TagCompound:
		hdr := m.Stacks.Global.Load(dh.Addr)
		id = symbol.FunctorID(hdr.Int)
	default:
		return false, fmt.Errorf("type_error(callable, %v)", dh)
	}
	proc := m.Procs.Lookup(m.Module.Name, id)
	if proc == nil {
		return false, nil
	}
	snap := m.Clock.Snapshot()
	for _, cl := range proc.StoreFor("").Snapshot(snap) {
		mark := m.Stacks.Mark()
		matched, err := m.clauseMatches(cl, head, body)
		if err != nil {
			return false, err
		}
		if matched {
			proc.StoreFor("").Retract(m.Clock, cl)
			return k()
		}
		m.undoTo(mark)
	}
	return false, nil
}

// clauseMatches rebuilds cl's retained head and body terms as one live
// term (sharing a single fresh-variable map, so a variable occurring in
// both head and body stays the same cell) and unifies them against head
// and, if the caller supplied one, body -- per ISO retract/1: a clause
// only matches when both its head and its real body (not merely some
// goal that happens to prove true against it) unify with the pattern.
func (m *Machine) clauseMatches(cl *procedure.Clause, head word.Word, body *word.Word) (bool, error) {
	vars := map[string]word.Word{}
	calleeHead, err := m.clauseHeadWord(cl, vars)
	if err != nil {
		return false, err
	}
	ok, err := m.Unifier.Unify(head, calleeHead)
	if err != nil || !ok {
		return false, err
	}

	if body == nil {
		return true, nil
	}
	calleeBody, err := m.clauseBodyWord(cl, vars)
	if err != nil {
		return false, err
	}
	ok, err = m.Unifier.Unify(*body, calleeBody)
	if err != nil || !ok {
		return false, err
	}
	return true, nil
}

// clauseHeadWord rebuilds cl's retained head term, seeding vars so a
// shared variable name between head and body rebuilds to one cell.
func (m *Machine) clauseHeadWord(cl *procedure.Clause, vars map[string]word.Word) (word.Word, error) {
	if cl.Head == nil {
		fn, _ := m.Functors.Lookup(cl.Procedure.Functor)
		return word.Atom(fn.Name), nil
	}
	return m.rebuildProcedureTerm(*cl.Head, vars)
}

// clauseBodyWord rebuilds cl's retained body term, reusing vars from the
// matching clauseHeadWord call so head/body variable sharing survives the
// rebuild. A fact (cl.Body == nil) retracts under the ISO convention that
// its body is the atom true.
func (m *Machine) clauseBodyWord(cl *procedure.Clause, vars map[string]word.Word) (word.Word, error) {
	if cl.Body == nil {
		return word.Atom(m.Atoms.Intern("true")), nil
	}
	return m.rebuildProcedureTerm(*cl.Body, vars)
}

// rebuildProcedureTerm is rebuild's procedure.Term analogue: it
// reconstructs a retained clause-body snapshot as a live term on the
// global stack, allocating one fresh variable per distinct VarName
// (shared across the call via vars, so repeated occurrences of the same
// source variable within the body stay one variable); each "_" gets a
// variable of its own.
func (m *Machine) rebuildProcedureTerm(t procedure.Term, vars map[string]word.Word) (word.Word, error) {
	switch t.Kind {
	case procedure.TermVar:
		if t.VarName != "_" {
			if w, ok := vars[t.VarName]; ok {
				return w, nil
			}
		}
		addr, err := m.Stacks.PushGlobal(word.Word{})
		if err != nil {
			return word.Word{}, err
		}
		w := word.Word{Tag: word.TagVar, Storage: word.StorageGlobal, Addr: addr}
		if err := m.Stacks.Global.Store(addr, w); err != nil {
			return word.Word{}, err
		}
		if t.VarName != "_" {
			vars[t.VarName] = w
		}
		return w, nil
	case procedure.TermAtom:
		return word.Atom(t.Atom), nil
	case procedure.TermInt:
		return word.Int(t.Int), nil
	case procedure.TermFloat:
		return m.buildFloat(t.Float)
	case procedure.TermString:
		return m.buildString(t.Str), nil
	case procedure.TermCompound:
		args := make([]word.Word, len(t.Args))
		for i, a := range t.Args {
			w, err := m.rebuildProcedureTerm(a, vars)
			if err != nil {
				return word.Word{}, err
			}
			args[i] = w
		}
		return m.buildCompound(t.Functor, args)
	default:
		return word.Word{}, fmt.Errorf("vm: unreachable retained term kind %v", t.Kind)
	}
}

// splitClauseTerm decomposes an assert/retract argument into (Head, Body):
// a bare goal is treated as a fact, (Head :- Body) as a rule.
func splitClauseTerm(w word.Word, m *Machine) (word.Word, *word.Word) {
	if w.Tag == word.TagCompound {
		hdr := m.Stacks.Global.Load(w.Addr)
		fn, ok := m.Functors.Lookup(symbol.FunctorID(hdr.Int))
		if ok && m.Atoms.Name(fn.Name) == ":-" && fn.Arity == 2 {
			head := m.Stacks.Global.Load(w.Addr + 1)
			body := m.Stacks.Global.Load(w.Addr + 2)
			return head, &body
		}
	}
	return w, nil
}

// builtinFindall implements findall/3 by running Goal to exhaustion,
// reifying Template at each solution, then rebuilding the results as a
// fresh proper list -- no bindings from the search survive past findall
// itself, per SPEC_FULL.md §4.3.
func builtinFindall(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
	template, goal, result := args[0], args[1], args[2]
	var collected []reifiedTerm
	mark := m.Stacks.Mark()
	_, err := m.dispatchMetaCall(&frame{}, goal, nil, depth, func() (bool, error) {
		collected = append(collected, m.reifyCopy(template))
		return false, nil
	}, false)
	m.undoTo(mark)
	if err != nil {
		return false, err
	}
	items := make([]word.Word, len(collected))
	for i, r := range collected {
		w, err := m.rebuild(r, map[string]word.Word{})
		if err != nil {
			return false, err
		}
		items[i] = w
	}
	list, err := m.buildProperList(items)
	if err != nil {
		return false, err
	}
	ok, err := m.Unifier.Unify(result, list)
	if err != nil || !ok {
		return false, err
	}
	return k()
}

// builtinForall implements forall(Cond, Action) as \+ (Cond, \+ Action),
// per SPEC_FULL.md §4.3.
func builtinForall(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
	cond, action := args[0], args[1]
	mark := m.Stacks.Mark()
	violated := false
	_, err := m.dispatchMetaCall(&frame{}, cond, nil, depth, func() (bool, error) {
		ok, err := m.dispatchMetaCall(&frame{}, action, nil, depth, stopAtFirstSuccess, false)
		if err != nil {
			return false, err
		}
		if !ok {
			violated = true
			return true, nil
		}
		return false, nil
	}, false)
	m.undoTo(mark)
	if err != nil {
		return false, err
	}
	if violated {
		return false, nil
	}
	return k()
}

// builtinCatch implements catch/3 per SPEC_FULL.md C8/§4.5: run Goal, and
// if it throws a ball that unifies with Catcher, undo Goal's bindings and
// run Recovery instead. The exception-hook predicate (if the embedder
// installed one via Machine.ExceptionHook) gets first refusal: it may
// rewrite the ball before the Catcher match, or reject the catch entirely,
// per "A user hook predicate may rewrite or reject the match before
// unwinding."
func builtinCatch(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
	goal, catcher, recovery := args[0], args[1], args[2]
	mark := m.Stacks.Mark()
	ok, err := m.dispatchMetaCall(&frame{}, goal, nil, depth, k, false)
	if err == nil {
		return ok, nil
	}
	reified, isProlog := m.ballOf(err)
	if !isProlog {
		return false, err
	}
	if m.ExceptionHook != nil {
		rewritten, reject := m.ExceptionHook(reified)
		if reject {
			return false, err
		}
		if r, ok := rewritten.(reifiedTerm); ok {
			reified = r
		}
	}
	m.undoTo(mark)
	ball, rerr := m.rebuild(reified, map[string]word.Word{})
	if rerr != nil {
		return false, rerr
	}
	uok, uerr := m.Unifier.Unify(catcher, ball)
	if uerr != nil {
		return false, uerr
	}
	if !uok {
		m.undoTo(mark)
		return false, err
	}
	return m.dispatchMetaCall(&frame{}, recovery, nil, depth, k, false)
}

// builtinSetupCallCleanup implements setup_and_call_cleanup/3 (SPEC_FULL.md
// §4.5): run Setup deterministically, then Goal to its first solution only;
// Cleanup runs exactly once, as soon as that outcome (exit, fail, or
// exception) is known, carrying it as its reason argument. Goal leaves no
// alternatives open, so the cut reason is never passed.
func builtinSetupCallCleanup(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
	setup, goal, cleanup := args[0], args[1], args[2]

	setupOK, err := m.dispatchMetaCall(&frame{}, setup, nil, depth, stopAtFirstSuccess, false)
	if err != nil {
		return false, err
	}
	if !setupOK {
		return false, nil
	}

	runCleanup := func(reason except.Reason) error {
		reasonTerm := word.Atom(m.Atoms.Intern(reason.Functor()))
		_, cerr := m.dispatchMetaCall(&frame{}, cleanup, []word.Word{reasonTerm}, depth, stopAtFirstSuccess, false)
		return cerr
	}

	ok, gerr := m.dispatchMetaCall(&frame{}, goal, nil, depth, stopAtFirstSuccess, false)
	if gerr != nil {
		_ = runCleanup(except.ReasonException)
		return false, gerr
	}
	if !ok {
		if cerr := runCleanup(except.ReasonFail); cerr != nil {
			return false, cerr
		}
		return false, nil
	}
	if cerr := runCleanup(except.ReasonExit); cerr != nil {
		return false, cerr
	}
	return k()
}

// makeCallBuiltin implements call/1..N: call(Goal, Extra1, ..., ExtraK)
// appends the trailing arguments to Goal's own, exactly like a bare
// variable-goal meta-call (interp.go's dispatchMetaCall), but call/N is a
// regular predicate rather than a compiled control construct, so it needs
// its own builtin registration for each arity.
func makeCallBuiltin(n int) builtinFunc {
	return func(m *Machine, args []word.Word, depth int, k Solution) (bool, error) {
		return m.dispatchMetaCall(&frame{}, args[0], args[1:n], depth, k, false)
	}
}

func (a word.Addr) Int64() int64 { return int64(a) }
