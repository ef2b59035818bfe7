// Command wam is a small embedding-style CLI over the engine: it parses
// flags into an engine config.Config, constructs one VM sharing fresh
// process-wide symbol/procedure tables, asserts a handful of demo clauses
// (the reader/parser and source-file loader are explicitly out of scope,
// per spec.md §1, so there is no text program to consult), runs one query
// to exhaustion, and reports every solution.
//
// This mirrors the teacher's main.go: flag parsing into VMOptions, a
// logio.Logger wired through Leveledf("TRACE"), and a context.WithTimeout
// guarding the run against runaway recursion the same way the teacher's
// memLimit guarded against runaway memory growth.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gowam/wam/internal/compiler"
	"github.com/gowam/wam/internal/config"
	"github.com/gowam/wam/internal/flushio"
	"github.com/gowam/wam/internal/logio"
	"github.com/gowam/wam/internal/panicerr"
	"github.com/gowam/wam/internal/procedure"
	"github.com/gowam/wam/internal/rlog"
	"github.com/gowam/wam/internal/rtrace"
	"github.com/gowam/wam/internal/symbol"
	"github.com/gowam/wam/internal/vm"
	"github.com/gowam/wam/internal/word"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdoutFile, stderr *os.File) int {
	stdout := flushio.NewWriteFlusher(stdoutFile)
	defer stdout.Flush()

	fs := flag.NewFlagSet("wam", flag.ContinueOnError)
	var (
		iso        = fs.Bool("iso", false, "enable strict ISO mode")
		unknown    = fs.String("unknown", "error", "unknown-procedure policy: error|fail|warning_fail")
		dumpGoal   = fs.Bool("dump", false, "print the demo goal before solving it")
		traceQuery = fs.Bool("trace", false, "log TRACE-level suspension-point events")
		timeout    = fs.Duration("timeout", 5*time.Second, "resource: stack exhaustion guard for the run")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := &logio.Logger{}
	log.SetOutput(nopCloser{stderr})
	defer log.Close()

	level := "TRACE"
	if !*traceQuery {
		level = "" // still logs ERROR-level output, just without TRACE noise
	}
	logger := rlog.Logger(log, level)

	cfg := config.New(
		config.WithISO(*iso),
		config.WithUnknown(unknownPolicy(*unknown)),
	)

	atoms := symbol.NewTable()
	functors := symbol.NewFunctorTable()
	procs := procedure.NewTable()
	clk := &procedure.Clock{}
	mod := procedure.NewModule("user")
	m := vm.New(atoms, functors, procs, clk, mod, cfg, logger)

	if err := loadDemoProgram(m); err != nil {
		log.Errorf("%+v", err)
		return log.ExitCode()
	}

	const goalFunctor, goalArity = "ancestor", 2
	if *dumpGoal {
		fmt.Fprintf(stdout, "?- ancestor(abraham, Who)\n")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	qt := rtrace.NewQuery(mod.Name, goalFunctor)
	defer qt.Finish()

	label := fmt.Sprintf("%s:%s/%d", mod.Name, goalFunctor, goalArity)
	err := panicerr.Recover(label, func() error {
		return solveAndReport(ctx, m, goalFunctor, goalArity, stdout, qt)
	})
	if err != nil {
		log.Errorf("%+v", err)
		return log.ExitCode()
	}
	return log.ExitCode()
}

// solveAndReport runs ancestor(abraham, Who) to exhaustion, printing every
// solution's binding for Who, and honoring ctx's deadline as the
// resource: stack exhaustion escape hatch (SPEC_FULL.md §4.2 Failure
// semantics).
func solveAndReport(ctx context.Context, m *vm.Machine, goalFunctor string, goalArity int, stdout io.Writer, qt *rtrace.QueryTrace) error {
	who, err := m.NewVar()
	if err != nil {
		return err
	}
	args := []word.Word{m.Atom("abraham").(word.Word), who.(word.Word)}
	functorID := m.Functors.Intern(m.Atoms.Intern(goalFunctor), uint16(goalArity))

	found := 0
	qt.Event("CALL")
	_, err = m.Solve(functorID, args, 0, func() (bool, error) {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		default:
		}
		found++
		if name, ok := m.AtomName(who); ok {
			qt.Event("EXIT", name)
			fmt.Fprintf(stdout, "Who = %s\n", name)
		}
		return false, nil // keep backtracking for every solution
	})
	if err != nil {
		qt.Errorf("%v", err)
		return err
	}
	qt.Event("DONE", found)
	fmt.Fprintf(stdout, "found %d solution(s)\n", found)
	return nil
}

// loadDemoProgram asserts a minimal family-tree program directly as
// compiled clauses, standing in for the out-of-scope source-file loader.
func loadDemoProgram(m *vm.Machine) error {
	facts := []struct {
		functor string
		args    []*compiler.Term
	}{
		{"parent", []*compiler.Term{compiler.A("abraham"), compiler.A("isaac")}},
		{"parent", []*compiler.Term{compiler.A("isaac"), compiler.A("jacob")}},
	}
	for _, f := range facts {
		head := compiler.C(f.functor, f.args...)
		if err := assert(m, head, nil); err != nil {
			return err
		}
	}

	x, y, z := compiler.V("X"), compiler.V("Y"), compiler.V("Z")
	if err := assert(m,
		compiler.C("ancestor", x, y),
		compiler.C("parent", x, y),
	); err != nil {
		return err
	}
	return assert(m,
		compiler.C("ancestor", x, z),
		compiler.Conjunction(
			compiler.C("parent", x, y),
			compiler.C("ancestor", y, z),
		),
	)
}

func assert(m *vm.Machine, head, body *compiler.Term) error {
	cl, err := compiler.Compile(m.Atoms, m.Functors, head, body, m.Config.LastCallOptimisation)
	if err != nil {
		return fmt.Errorf("compiling %s/%d: %w", head.Functor(), head.Arity(), err)
	}
	id := m.Functors.Intern(m.Atoms.Intern(head.Functor()), uint16(head.Arity()))
	proc := m.Procs.Ensure(m.Module, id)
	cl.Procedure = proc
	proc.StoreFor("").Assertz(m.Clock, cl)
	return nil
}

func unknownPolicy(s string) config.UnknownPolicy {
	switch s {
	case "fail":
		return config.UnknownFail
	case "warning_fail":
		return config.UnknownWarningFail
	case "autoload":
		return config.UnknownAutoload
	default:
		return config.UnknownError
	}
}

type nopCloser struct{ *os.File }

func (nopCloser) Close() error { return nil }
