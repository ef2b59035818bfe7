// Package except implements the exception subsystem of SPEC_FULL.md C8/§4.5
// and the error taxonomy of §7: throw/1 and catch/3's carrier type, the
// setup_and_call_cleanup/3 reason enum, and a typed-Go-error-per-error-kind
// convention generalizing the teacher's halt-by-panic-with-typed-error
// style (memcore.go's memLimitError, internals.go's vmHaltError/progError)
// into the ISO error() term shape.
//
// This package does not itself know how to unify terms or walk frame
// chains -- internal/vm owns both the reifiedTerm ball representation and
// the frame-chain unwind. except only fixes the vocabulary (Kind, Error,
// Thrown, Reason, Hook) so that vocabulary is shared instead of
// reinvented per call site.
package except

import (
	"fmt"

	"github.com/gowam/wam/internal/compiler"
)

// Kind enumerates the error taxonomy of spec.md §7 (kinds, not type names).
type Kind uint8

const (
	KindInstantiation Kind = iota
	KindType
	KindDomain
	KindExistence
	KindPermission
	KindRepresentation
	KindEvaluation
	KindResource
	KindSyntax
)

func (k Kind) String() string {
	switch k {
	case KindInstantiation:
		return "instantiation_error"
	case KindType:
		return "type_error"
	case KindDomain:
		return "domain_error"
	case KindExistence:
		return "existence_error"
	case KindPermission:
		return "permission_error"
	case KindRepresentation:
		return "representation_error"
	case KindEvaluation:
		return "evaluation_error"
	case KindResource:
		return "resource_error"
	case KindSyntax:
		return "syntax_error"
	default:
		return "unknown_error"
	}
}

// Error is a typed Prolog error: it implements Go's error interface for
// propagation through the interpreter's ordinary error-return path, and
// ISOTerm for crossing the throw/catch boundary as a catchable term
// (SPEC_FULL.md AMBIENT STACK: "Every Prolog error kind is a typed Go
// error implementing error plus an ISOTerm() Term method").
type Error struct {
	Kind    Kind
	Formal  *compiler.Term // the catchable formal-error term, e.g. type_error(integer, foo)
	Context *compiler.Term // context term; nil means "don't care" (a fresh var)
}

func (e *Error) Error() string {
	if e.Formal == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, formatTerm(e.Formal))
}

// ISOTerm builds the standard error(Formal, Context) wrapper term (ISO
// 8.2's convention), for throw/1 to carry and catch/3 to unify against.
func (e *Error) ISOTerm() *compiler.Term {
	ctx := e.Context
	if ctx == nil {
		ctx = compiler.V("_")
	}
	return compiler.C("error", e.Formal, ctx)
}

func formatTerm(t *compiler.Term) string {
	switch t.Kind {
	case compiler.KindAtom:
		return t.Atom
	case compiler.KindInt:
		return fmt.Sprintf("%d", t.Int)
	case compiler.KindFloat:
		return fmt.Sprintf("%g", t.Float)
	case compiler.KindString:
		return t.Str
	case compiler.KindCompound:
		return fmt.Sprintf("%s/%d", t.Atom, len(t.Args))
	default:
		return "_"
	}
}

// InstantiationError builds §7's "required input was a variable" error.
func InstantiationError() *Error {
	return &Error{Kind: KindInstantiation, Formal: compiler.A("instantiation_error")}
}

// TypeError builds §7's "argument has wrong sort" error: type_error(Expected, Culprit).
func TypeError(expected string, culprit *compiler.Term) *Error {
	return &Error{Kind: KindType, Formal: compiler.C("type_error", compiler.A(expected), culprit)}
}

// DomainError builds §7's "value out of admissible set" error.
func DomainError(domain string, culprit *compiler.Term) *Error {
	return &Error{Kind: KindDomain, Formal: compiler.C("domain_error", compiler.A(domain), culprit)}
}

// ExistenceError builds §7's "no such predicate/file/stream/clause-reference" error.
func ExistenceError(objectType string, culprit *compiler.Term) *Error {
	return &Error{Kind: KindExistence, Formal: compiler.C("existence_error", compiler.A(objectType), culprit)}
}

// PermissionError builds §7's "modification of a protected predicate or
// module; flag write on a read-only flag" error.
func PermissionError(operation, objectType string, culprit *compiler.Term) *Error {
	return &Error{Kind: KindPermission, Formal: compiler.C("permission_error", compiler.A(operation), compiler.A(objectType), culprit)}
}

// RepresentationError builds §7's "value exceeds implementation limits" error.
func RepresentationError(flag string) *Error {
	return &Error{Kind: KindRepresentation, Formal: compiler.C("representation_error", compiler.A(flag))}
}

// EvaluationError builds §7's arithmetic evaluation error (zero_divisor,
// undefined, float_overflow, ...).
func EvaluationError(what string) *Error {
	return &Error{Kind: KindEvaluation, Formal: compiler.C("evaluation_error", compiler.A(what))}
}

// ResourceError builds §7's "stack/heap/threads/file-descriptors
// exhausted" error.
func ResourceError(what string) *Error {
	return &Error{Kind: KindResource, Formal: compiler.C("resource_error", compiler.A(what))}
}

// Ball is whatever throw/1 carries: internal/vm uses its own reifiedTerm
// snapshot type. This package stays opaque to it so there is no import
// cycle between internal/except and internal/vm.
type Ball interface{}

// Thrown is the error value that crosses the interpreter's Go error-return
// channel when a Prolog exception is raised (SPEC_FULL.md §4.5 "the
// thrown term is copied to a dedicated exception bin slot").
type Thrown struct{ Ball Ball }

func (t Thrown) Error() string { return "prolog_exception" }

// Reason is the cleanup-invocation reason setup_and_call_cleanup/3 passes
// to its Cleanup goal (SPEC_FULL.md §4.5).
type Reason uint8

const (
	ReasonExit Reason = iota
	ReasonFail
	ReasonCut
	ReasonException
)

func (r Reason) Functor() string {
	switch r {
	case ReasonExit:
		return "exit"
	case ReasonFail:
		return "fail"
	case ReasonCut:
		return "cut"
	case ReasonException:
		return "exception"
	default:
		return "exit"
	}
}

// Hook, when installed on an engine, lets an embedder rewrite or reject a
// thrown ball before catch/3 attempts to match it against a Catcher
// pattern (SPEC_FULL.md §4.5 "A user hook predicate may rewrite or reject
// the match before unwinding").
type Hook func(ball Ball) (rewritten Ball, reject bool)
