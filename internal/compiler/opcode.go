// Package compiler implements the clause compiler of SPEC_FULL.md C4:
// variable analysis, head/body emission, control-flow lowering, arithmetic
// lowering, and first-argument index key computation.
//
// The opcode dispatch style follows the teacher's `vmCodeTable
// []func(*VM)` / `vmCodeNames []string` pattern (jcorbin-gothird's
// internals.go, first.go), generalized from FIRST's dozen primitives to
// the full instruction family of spec.md §4.1/§4.2. internal/vm owns the
// actual dispatch table; this package only names the opcodes and encodes
// instructions into a flat []int32 stream, mirroring the teacher's
// "argument-type metadata" comment in spec.md §6 (PROC, FUNC, DATA,
// INTEGER, VAR, ...).
package compiler

// Opcode identifies one bytecode instruction. Values are grouped by family
// (H_ head, B_ body, C_ control, A_ arithmetic, I_ fact/rule boundary) to
// keep the disassembler (internal/vm's dumper) and this package's operand
// tables easy to cross-check by eye.
type Opcode int32

const (
	OpNone Opcode = iota

	// Head unification family.
	H_CONST
	H_NIL
	H_INTEGER
	H_INT64
	H_FLOAT
	H_STRING
	H_MPZ
	H_FIRSTVAR
	H_VOID
	H_VAR
	H_FUNCTOR
	H_LIST
	H_RFUNCTOR // rightmost-argument tail-call variant
	H_RLIST
	I_POPF

	// Body construction family -- same operand shapes as H_*, push
	// instead of unify.
	B_CONST
	B_NIL
	B_INTEGER
	B_INT64
	B_FLOAT
	B_STRING
	B_MPZ
	B_VAR
	B_FUNCTOR
	B_LIST
	B_VOID
	B_POPF

	// Control flow.
	C_OR
	C_JMP
	C_IFTHENELSE
	C_CUT
	C_SOFTIF
	C_SOFTCUT
	C_NOT
	C_LCUT
	C_VAR
	C_FAIL

	// Arithmetic.
	A_ENTER
	A_INTEGER
	A_INT64
	A_DOUBLE
	A_MPZ
	A_VAR0
	A_VAR1
	A_VAR2
	A_VARN
	A_FUNC0
	A_FUNC1
	A_FUNC2
	A_FUNCN
	A_IS
	A_FIRSTVAR_IS
	A_LT
	A_GT
	A_LE
	A_GE
	A_EQ
	A_NE

	// Fact/rule boundary and call dispatch.
	I_ENTER
	I_EXIT
	I_EXITFACT
	I_CUT
	I_CALL
	I_DEPART
	I_USERCALL0
	I_USERCALLN
	I_APPLY

	opcodeCount
)

// operandCounts gives the number of int32 operand words following each
// opcode in the encoded stream (SPEC_FULL.md C4/§6's per-opcode "argument-
// type metadata", simplified here to a fixed word count per opcode since
// this implementation does not need variable-width indirect operand
// encoding: floats/bignums/strings are interned into the constant pool and
// referenced by a single index operand).
var operandCounts = [opcodeCount]int{
	H_CONST: 1, H_INTEGER: 1, H_INT64: 1, H_FLOAT: 1, H_STRING: 1, H_MPZ: 1,
	H_FIRSTVAR: 1, H_VAR: 1, H_FUNCTOR: 1, H_RFUNCTOR: 1,
	B_CONST: 1, B_INTEGER: 1, B_INT64: 1, B_FLOAT: 1, B_STRING: 1, B_MPZ: 1,
	B_VAR: 1, B_FUNCTOR: 1,
	C_OR: 1, C_JMP: 1, C_IFTHENELSE: 1, C_SOFTIF: 1, C_SOFTCUT: 1,
	C_NOT: 1, C_LCUT: 1, C_VAR: 1,
	A_INTEGER: 1, A_INT64: 2, A_DOUBLE: 1, A_MPZ: 1, A_VARN: 1,
	A_FUNC0: 1, A_FUNC1: 1, A_FUNC2: 1, A_FUNCN: 2,
	I_CALL: 1, I_DEPART: 1, I_USERCALLN: 1, I_APPLY: 1,
}

// Arity returns how many int32 operand words follow op in the stream.
func (op Opcode) Arity() int { return operandCounts[op] }

var opcodeNames = [opcodeCount]string{
	OpNone: "nop",
	H_CONST: "H_CONST", H_NIL: "H_NIL", H_INTEGER: "H_INTEGER", H_INT64: "H_INT64",
	H_FLOAT: "H_FLOAT", H_STRING: "H_STRING", H_MPZ: "H_MPZ",
	H_FIRSTVAR: "H_FIRSTVAR", H_VOID: "H_VOID", H_VAR: "H_VAR",
	H_FUNCTOR: "H_FUNCTOR", H_LIST: "H_LIST", H_RFUNCTOR: "H_RFUNCTOR", H_RLIST: "H_RLIST",
	I_POPF: "I_POPF",
	B_CONST: "B_CONST", B_NIL: "B_NIL", B_INTEGER: "B_INTEGER", B_INT64: "B_INT64",
	B_FLOAT: "B_FLOAT", B_STRING: "B_STRING", B_MPZ: "B_MPZ", B_VAR: "B_VAR",
	B_FUNCTOR: "B_FUNCTOR", B_LIST: "B_LIST", B_VOID: "B_VOID", B_POPF: "B_POPF",
	C_OR: "C_OR", C_JMP: "C_JMP", C_IFTHENELSE: "C_IFTHENELSE", C_CUT: "C_CUT",
	C_SOFTIF: "C_SOFTIF", C_SOFTCUT: "C_SOFTCUT", C_NOT: "C_NOT", C_LCUT: "C_LCUT",
	C_VAR: "C_VAR", C_FAIL: "C_FAIL",
	A_ENTER: "A_ENTER", A_INTEGER: "A_INTEGER", A_INT64: "A_INT64", A_DOUBLE: "A_DOUBLE",
	A_MPZ: "A_MPZ", A_VAR0: "A_VAR0", A_VAR1: "A_VAR1", A_VAR2: "A_VAR2", A_VARN: "A_VARN",
	A_FUNC0: "A_FUNC0", A_FUNC1: "A_FUNC1", A_FUNC2: "A_FUNC2", A_FUNCN: "A_FUNCN",
	A_IS: "A_IS", A_FIRSTVAR_IS: "A_FIRSTVAR_IS",
	A_LT: "A_LT", A_GT: "A_GT", A_LE: "A_LE", A_GE: "A_GE", A_EQ: "A_EQ", A_NE: "A_NE",
	I_ENTER: "I_ENTER", I_EXIT: "I_EXIT", I_EXITFACT: "I_EXITFACT", I_CUT: "I_CUT",
	I_CALL: "I_CALL", I_DEPART: "I_DEPART",
	I_USERCALL0: "I_USERCALL0", I_USERCALLN: "I_USERCALLN", I_APPLY: "I_APPLY",
}

func (op Opcode) String() string {
	if int(op) >= 0 && int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "OP(?)"
}
