package compiler

// arithGoals names the arithmetic comparison/evaluation goals that lower
// to the A_* stack machine rather than a plain call, per SPEC_FULL.md C4
// "Arithmetic".
var arithGoals = map[string]Opcode{
	"=:=": A_EQ, "=\\=": A_NE, "<": A_LT, ">": A_GT, "=<": A_LE, ">=": A_GE,
}

// emitBody emits one body goal (and, via recursion, its whole conjunction/
// disjunction/if-then-else/negation tree), per SPEC_FULL.md C4 "Body
// emission" and "Control constructs are lowered".
func (c *clauseCompiler) emitBody(t *Term) {
	switch {
	case t.Kind == KindCompound && t.Atom == "," && len(t.Args) == 2:
		c.emitBody(t.Args[0])
		c.emitBody(t.Args[1])

	case t.Kind == KindCompound && t.Atom == ";" && len(t.Args) == 2:
		c.emitDisjunctionOrIfThenElse(t.Args[0], t.Args[1])

	case t.Kind == KindCompound && t.Atom == "->" && len(t.Args) == 2:
		c.emitIfThen(t.Args[0], t.Args[1], nil, false)

	case t.Kind == KindCompound && t.Atom == "*->" && len(t.Args) == 2:
		c.emitSoftIfThen(t.Args[0], t.Args[1], nil)

	case t.Kind == KindCompound && t.Atom == "\\+" && len(t.Args) == 1:
		c.emitNegation(t.Args[0])

	case t.Kind == KindAtom && t.Atom == "!":
		c.asm.emit(I_CUT)

	case t.Kind == KindCompound && t.Atom == "is" && len(t.Args) == 2:
		c.emitIs(t.Args[0], t.Args[1])

	case t.Kind == KindCompound && arithGoals[t.Atom] != OpNone && len(t.Args) == 2:
		c.emitArithCompare(t.Atom, t.Args[0], t.Args[1])

	case t.Kind == KindVar:
		c.emitPushGoalArg(t)
		c.asm.emit(I_USERCALL0)

	default:
		c.emitCall(t)
	}
}

// emitCall emits a plain (possibly meta-) goal call: push each argument,
// then I_CALL/I_DEPART depending on whether this is the clause's last
// body goal (for LCO eligibility: I_DEPART only when the caller in
// compile.go has set tailPosition and lco is enabled).
func (c *clauseCompiler) emitCall(t *Term) {
	if t.Kind == KindCompound {
		for _, a := range t.Args {
			c.emitPushGoalArg(a)
		}
	}
	op := I_CALL
	if c.tailPosition && c.lco {
		op = I_DEPART
	}
	c.asm.emit(op, int32(c.functorID(t.Functor(), t.Arity())))
}

// emitPushGoalArg emits a B_* instruction that pushes a body argument's
// value (as opposed to H_* which unifies against an existing value).
func (c *clauseCompiler) emitPushGoalArg(t *Term) {
	switch t.Kind {
	case KindAtom:
		if t.Atom == "[]" {
			c.asm.emit(B_NIL)
			return
		}
		c.asm.emit(B_CONST, int32(c.atoms.Intern(t.Atom)))
	case KindInt:
		c.asm.emit(B_INTEGER, int32(t.Int))
	case KindFloat:
		c.asm.emit(B_FLOAT, int32(c.asm.pool.internFloat(t.Float)))
	case KindString:
		c.asm.emit(B_STRING, int32(c.asm.pool.internString(t.Str)))
	case KindVar:
		c.emitBodyVar(t)
	case KindCompound:
		if t.Atom == "." && len(t.Args) == 2 {
			c.asm.emit(B_LIST)
		} else {
			c.asm.emit(B_FUNCTOR, int32(c.functorID(t.Atom, len(t.Args))))
		}
		for _, a := range t.Args {
			c.emitPushGoalArg(a)
		}
		c.asm.emit(B_POPF)
	}
}

func (c *clauseCompiler) emitBodyVar(t *Term) {
	if t.VarName == "_" || t.VarName == "" {
		c.asm.emit(B_VOID)
		return
	}
	s, _ := c.vars.lookup(t.VarName)
	if s == nil || s.kind == slotVoid {
		c.asm.emit(B_VOID)
		return
	}
	c.asm.emit(B_VAR, int32(s.slot))
}
