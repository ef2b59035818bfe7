package e2e_test

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gowam/wam/internal/compiler"
	"github.com/gowam/wam/internal/config"
	"github.com/gowam/wam/internal/engine"
	"github.com/gowam/wam/internal/foreign"
	"github.com/gowam/wam/internal/gc"
	"github.com/gowam/wam/internal/procedure"
	"github.com/gowam/wam/internal/symbol"
	"github.com/gowam/wam/internal/vm"
	"github.com/gowam/wam/internal/word"
)

// newEngine builds a fresh Machine over its own empty process-wide tables,
// mirroring the pattern internal/vm's own tests use for per-test isolation.
func newEngine() *vm.Machine {
	atoms := symbol.NewTable()
	functors := symbol.NewFunctorTable()
	procs := procedure.NewTable()
	clk := &procedure.Clock{}
	mod := procedure.NewModule("user")
	return vm.New(atoms, functors, procs, clk, mod, config.Default(), logr.Discard())
}

func assertClause(m *vm.Machine, head, body *compiler.Term) {
	cl, err := compiler.Compile(m.Atoms, m.Functors, head, body, m.Config.LastCallOptimisation)
	Expect(err).NotTo(HaveOccurred())
	id := m.Functors.Intern(m.Atoms.Intern(head.Functor()), uint16(head.Arity()))
	proc := m.Procs.Ensure(m.Module, id)
	cl.Procedure = proc
	proc.StoreFor("").Assertz(m.Clock, cl)
}

func buildIntList(m *vm.Machine, vals []int64) word.Word {
	cur := m.Atom("[]").(word.Word)
	for i := len(vals) - 1; i >= 0; i-- {
		cell, err := m.Compound(".", []foreign.Term{m.Int(vals[i]), cur})
		Expect(err).NotTo(HaveOccurred())
		cur = cell.(word.Word)
	}
	return cur
}

// intList walks a proper '.'/2-or-'[]' list term and returns its integer
// elements, for asserting against an expected solution.
func intList(m *vm.Machine, w word.Word) []int64 {
	var out []int64
	cur := w
	for {
		d := m.Unifier.Deref(cur)
		if name, ok := m.AtomName(d); ok && name == "[]" {
			return out
		}
		functor, args, ok := m.Decompose(d)
		Expect(ok).To(BeTrue(), "expected a cons cell or [] while walking a list")
		Expect(functor).To(Equal("."))
		v, ok := m.IntValue(args[0].(word.Word))
		Expect(ok).To(BeTrue(), "expected an integer list element")
		out = append(out, v)
		cur = args[1].(word.Word)
	}
}

func functorID(m *vm.Machine, name string, arity int) symbol.FunctorID {
	return m.Functors.Intern(m.Atoms.Intern(name), uint16(arity))
}

var _ = Describe("S1 Append", func() {
	It("concatenates two lists deterministically", func() {
		m := newEngine()
		// app([],L,L).
		assertClause(m, compiler.C("app", compiler.A("[]"), compiler.V("L"), compiler.V("L")), nil)
		// app([H|T],L,[H|R]) :- app(T,L,R).
		h, t, l, r := compiler.V("H"), compiler.V("T"), compiler.V("L"), compiler.V("R")
		assertClause(m,
			compiler.C("app", compiler.List([]*compiler.Term{h}, t), l, compiler.List([]*compiler.Term{h}, r)),
			compiler.C("app", t, l, r),
		)

		x, err := m.NewVar()
		Expect(err).NotTo(HaveOccurred())
		a := buildIntList(m, []int64{1, 2})
		b := buildIntList(m, []int64{3, 4})

		solutions := 0
		var got []int64
		_, err = m.Solve(functorID(m, "app", 3), []word.Word{a, b, x.(word.Word)}, 0, func() (bool, error) {
			solutions++
			got = intList(m, x.(word.Word))
			return false, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(solutions).To(Equal(1), "app/3 of two proper lists must be deterministic")
		Expect(got).To(Equal([]int64{1, 2, 3, 4}))
	})
})

var _ = Describe("S2 Arithmetic", func() {
	It("evaluates 2+3*4 to the integer 14", func() {
		m := newEngine()
		// compute(X) :- X is 2+3*4.
		assertClause(m,
			compiler.C("compute", compiler.V("X")),
			compiler.C("is", compiler.V("X"), compiler.C("+", compiler.I(2), compiler.C("*", compiler.I(3), compiler.I(4)))),
		)

		x, err := m.NewVar()
		Expect(err).NotTo(HaveOccurred())
		ok, err := m.Solve(functorID(m, "compute", 1), []word.Word{x.(word.Word)}, 0, func() (bool, error) { return true, nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		v, isInt := m.IntValue(x)
		Expect(isInt).To(BeTrue(), "2+3*4 must evaluate to an integer")
		Expect(v).To(Equal(int64(14)))
	})
})

var _ = Describe("S3 Cut", func() {
	It("commits to the first matching clause, so findall(X,q(X),L) yields L = [1]", func() {
		m := newEngine()
		assertClause(m, compiler.C("p", compiler.I(1)), nil)
		assertClause(m, compiler.C("p", compiler.I(2)), nil)
		assertClause(m, compiler.C("p", compiler.I(3)), nil)
		// q(X) :- p(X), !.
		assertClause(m,
			compiler.C("q", compiler.V("X")),
			compiler.Conjunction(compiler.C("p", compiler.V("X")), compiler.A("!")),
		)

		x, err := m.NewVar()
		Expect(err).NotTo(HaveOccurred())
		goal, err := m.Compound("q", []foreign.Term{x})
		Expect(err).NotTo(HaveOccurred())
		l, err := m.NewVar()
		Expect(err).NotTo(HaveOccurred())

		ok, err := m.Solve(functorID(m, "findall", 3), []word.Word{x.(word.Word), goal.(word.Word), l.(word.Word)}, 0,
			func() (bool, error) { return true, nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(intList(m, l.(word.Word))).To(Equal([]int64{1}), "the trailing cut must prevent backtracking into p/1's other clauses")
	})
})

var _ = Describe("S4 Catch", func() {
	It("binds the recovery goal when the ball unifies with the catcher", func() {
		m := newEngine()

		ball := m.Atom("err")
		goal, err := m.Compound("throw", []foreign.Term{ball})
		Expect(err).NotTo(HaveOccurred())

		catcher, err := m.NewVar()
		Expect(err).NotTo(HaveOccurred())
		r, err := m.NewVar()
		Expect(err).NotTo(HaveOccurred())
		caught, err := m.Compound("caught", []foreign.Term{catcher})
		Expect(err).NotTo(HaveOccurred())
		recovery, err := m.Compound("=", []foreign.Term{r, caught})
		Expect(err).NotTo(HaveOccurred())

		ok, err := m.Solve(functorID(m, "catch", 3),
			[]word.Word{goal.(word.Word), catcher.(word.Word), recovery.(word.Word)},
			0, func() (bool, error) { return true, nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		functor, args, isCompound := m.Decompose(r)
		Expect(isCompound).To(BeTrue())
		Expect(functor).To(Equal("caught"))
		name, isAtom := m.AtomName(args[0].(word.Word))
		Expect(isAtom).To(BeTrue())
		Expect(name).To(Equal("err"))
	})

	It("propagates the ball unchanged when it doesn't unify with the catcher", func() {
		m := newEngine()
		goal, err := m.Compound("throw", []foreign.Term{m.Atom("err")})
		Expect(err).NotTo(HaveOccurred())

		_, err = m.Solve(functorID(m, "catch", 3),
			[]word.Word{goal.(word.Word), m.Atom("other").(word.Word), m.Atom("true").(word.Word)},
			0, func() (bool, error) { return true, nil })
		Expect(err).To(HaveOccurred(), "a non-matching catcher must let the exception keep propagating")
	})
})

var _ = Describe("S5 Dynamic update view", func() {
	It("isolates a running failure-driven loop from a clause asserted mid-loop", func() {
		m := newEngine()
		assertClause(m, compiler.C("p", compiler.I(1)), nil)

		x, err := m.NewVar()
		Expect(err).NotTo(HaveOccurred())
		var firstPass []int64
		_, err = m.Solve(functorID(m, "p", 1), []word.Word{x.(word.Word)}, 0, func() (bool, error) {
			v, _ := m.IntValue(x)
			firstPass = append(firstPass, v)
			assertClause(m, compiler.C("p", compiler.I(2)), nil)
			return false, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(firstPass).To(Equal([]int64{1}), "a call's clause snapshot is fixed when the call starts")

		y, err := m.NewVar()
		Expect(err).NotTo(HaveOccurred())
		var secondPass []int64
		_, err = m.Solve(functorID(m, "p", 1), []word.Word{y.(word.Word)}, 0, func() (bool, error) {
			v, _ := m.IntValue(y)
			secondPass = append(secondPass, v)
			return false, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(secondPass).To(Equal([]int64{1, 2}), "a fresh call after the assertion must see both clauses")
	})
})

var _ = Describe("Retract with a body pattern", func() {
	It("erases only the clause whose body also unifies with the pattern", func() {
		m := newEngine()
		// p(X) :- q(X). and p(X) :- r(X). share a head shape but differ
		// in body -- retract/1 must tell them apart by body, not just by
		// head, per ISO semantics.
		assertClause(m,
			compiler.C("p", compiler.V("X")),
			compiler.C("q", compiler.V("X")),
		)
		assertClause(m,
			compiler.C("p", compiler.V("X")),
			compiler.C("r", compiler.V("X")),
		)
		assertClause(m, compiler.C("q", compiler.A("a")), nil)

		yv, err := m.NewVar()
		Expect(err).NotTo(HaveOccurred())
		headPattern, err := m.Compound("p", []foreign.Term{yv})
		Expect(err).NotTo(HaveOccurred())
		rGoal, err := m.Compound("r", []foreign.Term{yv})
		Expect(err).NotTo(HaveOccurred())
		retractArg, err := m.Compound(":-", []foreign.Term{headPattern, rGoal})
		Expect(err).NotTo(HaveOccurred())

		ok, err := m.Solve(functorID(m, "retract", 1), []word.Word{retractArg.(word.Word)}, 0,
			func() (bool, error) { return true, nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue(), "a clause with head p(X) and body r(X) must exist to retract")

		px, err := m.NewVar()
		Expect(err).NotTo(HaveOccurred())
		solutions := 0
		_, err = m.Solve(functorID(m, "p", 1), []word.Word{px.(word.Word)}, 0, func() (bool, error) {
			solutions++
			return false, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(solutions).To(Equal(1), "only the q(X)-bodied clause must survive the retract((p(Y):-r(Y))) call")
	})
})

var _ = Describe("S6 Garbage collection under pressure", func() {
	It("reclaims list cells left behind by repeated discarded constructions", func() {
		m := newEngine()
		collector := gc.NewCollector(m.Stacks, m.Functors)

		for i := 0; i < 50; i++ {
			buildIntList(m, make([]int64, 200))
		}
		before := m.Stacks.Global.Top()

		stats, err := collector.Collect(gc.RootSet{})
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Reclaimed).To(BeNumerically(">", 0), "discarded list cells from the loop above must be reclaimable")
		Expect(m.Stacks.Global.Top()).To(BeNumerically("<", before))
	})
})

var _ = Describe("S7 Thread messaging", func() {
	It("sums N integers sent from one engine and received by another", func() {
		const n = 1000
		q := engine.NewQueue(16)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := int64(1); i <= n; i++ {
				Expect(q.Send(ctx, engine.Message{Payload: i})).To(Succeed())
			}
		}()

		var sum int64
		for i := 0; i < n; i++ {
			v, err := q.Get(ctx, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			sum += v.(int64)
		}
		wg.Wait()
		Expect(sum).To(Equal(int64(n * (n + 1) / 2)))
	})
})
