package compiler

// emitIs lowers Result is Expr: evaluate Expr on the arithmetic stack, then
// unify the result against Result (a variable's first occurrence binds
// directly; anything else falls back to a runtime unify), per
// SPEC_FULL.md C4 "Arithmetic".
func (c *clauseCompiler) emitIs(result, expr *Term) {
	c.asm.emit(A_ENTER)
	c.emitArithExpr(expr)
	if result.Kind == KindVar && result.VarName != "_" {
		if !c.seen[result.VarName] {
			c.seen[result.VarName] = true
			s, _ := c.vars.lookup(result.VarName)
			if s != nil {
				c.asm.emit(A_FIRSTVAR_IS, int32(s.slot))
				return
			}
		}
	}
	// Result is not a fresh variable (already bound, or a plain constant):
	// push its value first so A_IS can pop both it and the arithmetic
	// result and unify them, per SPEC_FULL.md C4 "Arithmetic".
	c.emitPushGoalArg(result)
	c.asm.emit(A_IS)
}

// emitArithCompare lowers a two-argument arithmetic comparison goal
// (=:=, =\=, <, >, =<, >=).
func (c *clauseCompiler) emitArithCompare(functor string, left, right *Term) {
	c.asm.emit(A_ENTER)
	c.emitArithExpr(left)
	c.emitArithExpr(right)
	c.asm.emit(arithGoals[functor])
}

// emitArithExpr pushes one arithmetic expression node onto the arithmetic
// evaluation stack, per spec.md §4.1's A_* family (function arity 0..2 get
// dedicated opcodes, arity>2 falls back to A_FUNCN; the first three
// variable slots get dedicated A_VAR0/1/2 opcodes, matching the same
// small-N specialization the head/body families use for argument
// indices).
func (c *clauseCompiler) emitArithExpr(t *Term) {
	switch t.Kind {
	case KindInt:
		c.asm.emit(A_INTEGER, int32(t.Int))
	case KindFloat:
		c.asm.emit(A_DOUBLE, int32(c.asm.pool.internFloat(t.Float)))
	case KindVar:
		s, _ := c.vars.lookup(t.VarName)
		if s == nil {
			c.asm.emit(A_VARN, 0)
			return
		}
		switch s.slot {
		case 0:
			c.asm.emit(A_VAR0)
		case 1:
			c.asm.emit(A_VAR1)
		case 2:
			c.asm.emit(A_VAR2)
		default:
			c.asm.emit(A_VARN, int32(s.slot))
		}
	case KindCompound:
		for _, a := range t.Args {
			c.emitArithExpr(a)
		}
		key := int32(c.functorID(t.Atom, len(t.Args)))
		switch len(t.Args) {
		case 0:
			c.asm.emit(A_FUNC0, key)
		case 1:
			c.asm.emit(A_FUNC1, key)
		case 2:
			c.asm.emit(A_FUNC2, key)
		default:
			c.asm.emit(A_FUNCN, key, int32(len(t.Args)))
		}
	case KindAtom:
		key := int32(c.functorID(t.Atom, 0))
		c.asm.emit(A_FUNC0, key)
	}
}
