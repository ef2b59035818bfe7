package compiler

// emitHead emits the argument-by-argument head unification instructions
// for a clause's head term, per SPEC_FULL.md C4 "Head emission". Trailing
// void instructions just before the body boundary are stripped by the
// caller (Compile), matching the spec's "Trailing void instructions
// ... are stripped" note.
func (c *clauseCompiler) emitHead(head *Term) {
	if head.Kind != KindCompound {
		return // arity-0 fact head: nothing to unify
	}
	for i, arg := range head.Args {
		c.emitHeadArg(arg, i == len(head.Args)-1)
	}
}

// emitHeadArg emits one head argument's unification instruction(s).
// rightmost marks the clause's final argument, which may use the H_R*
// tail-walk variant for nested compounds per SPEC_FULL.md C4.
func (c *clauseCompiler) emitHeadArg(t *Term, rightmost bool) {
	switch t.Kind {
	case KindAtom:
		if t.Atom == "[]" {
			c.asm.emit(H_NIL)
			return
		}
		c.asm.emit(H_CONST, int32(c.atoms.Intern(t.Atom)))
	case KindInt:
		c.asm.emit(H_INTEGER, int32(t.Int))
	case KindFloat:
		c.asm.emit(H_FLOAT, int32(c.asm.pool.internFloat(t.Float)))
	case KindString:
		c.asm.emit(H_STRING, int32(c.asm.pool.internString(t.Str)))
	case KindVar:
		c.emitHeadVar(t)
	case KindCompound:
		op := H_FUNCTOR
		if rightmost {
			op = H_RFUNCTOR
		}
		if t.Atom == "." && len(t.Args) == 2 {
			if rightmost {
				c.asm.emit(H_RLIST)
			} else {
				c.asm.emit(H_LIST)
			}
		} else {
			c.asm.emit(op, int32(c.functorID(t.Atom, len(t.Args))))
		}
		for i, a := range t.Args {
			c.emitHeadArg(a, i == len(t.Args)-1)
		}
		c.asm.emit(I_POPF)
	}
}

func (c *clauseCompiler) emitHeadVar(t *Term) {
	if t.VarName == "_" || t.VarName == "" {
		c.asm.emit(H_VOID)
		return
	}
	s, _ := c.vars.lookup(t.VarName)
	if s == nil || s.kind == slotVoid {
		c.asm.emit(H_VOID)
		return
	}
	if !c.seen[t.VarName] {
		c.seen[t.VarName] = true
		c.asm.emit(H_FIRSTVAR, int32(s.slot))
		return
	}
	c.asm.emit(H_VAR, int32(s.slot))
}

// stripTrailingVoid removes H_VOID instructions (which carry no operand)
// immediately preceding the body boundary, per SPEC_FULL.md C4.
func stripTrailingVoid(code []int32) []int32 {
	keep := 0
	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		pc += 1 + op.Arity()
		if op != H_VOID {
			keep = pc
		}
	}
	return code[:keep]
}
