package bytecode

import (
	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/token"
)

// compileRange lowers a `lo..hi` / `lo..=hi` expression to a single
// value.Range, defaulting an absent bound to 0 exactly like evalRange does
// for the equivalent open-ended range (internal/eval/eval.go's evalRange).
func (c *compiler) compileRange(k ast.Range, span token.Span) error {
	if k.Lo != nil {
		if err := c.compileExpr(k.Lo); err != nil {
			return err
		}
	} else {
		c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstInt, Int: 0}), span)
	}
	if k.Hi != nil {
		if err := c.compileExpr(k.Hi); err != nil {
			return err
		}
	} else {
		c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstInt, Int: 0}), span)
	}
	inclusive := int32(0)
	if k.Inclusive {
		inclusive = 1
	}
	c.chunk.emit(OpMakeRange, inclusive, span)
	return nil
}

// compileObjectLit lowers `{ a: 1, b }` to a sequence of name/value pairs
// followed by OpMakeMap, mirroring internal/eval/eval.go's object-literal
// evaluation including shorthand-field resolution to an identifier of the
// same name.
func (c *compiler) compileObjectLit(k ast.ObjectLit, span token.Span) error {
	for _, f := range k.Fields {
		c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstString, Str: f.Name}), span)
		if f.Value != nil {
			if err := c.compileExpr(f.Value); err != nil {
				return err
			}
		} else {
			shorthand := ast.NewExpr(ast.Identifier{Name: f.Name}, span)
			if err := c.compileExpr(shorthand); err != nil {
				return err
			}
		}
	}
	c.chunk.emit(OpMakeMap, int32(len(k.Fields)), span)
	return nil
}

// compileMethodCall pushes the receiver, the method name as a String
// constant, then the arguments, and lets OpCallMethod's handler dispatch to
// the builtin method table in internal/vm/methods.go — the VM analogue of
// internal/eval/methods.go's evalBuiltinMethod.
func (c *compiler) compileMethodCall(k ast.MethodCall, span token.Span) error {
	if err := c.compileExpr(k.Receiver); err != nil {
		return err
	}
	c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstString, Str: k.Method}), span)
	for _, arg := range k.Args {
		if err := c.compileExpr(arg); err != nil {
			return err
		}
	}
	c.chunk.emit(OpCallMethod, int32(len(k.Args)), span)
	return nil
}

// compileMatch stashes the scrutinee in a synthetic temp so every arm can
// reload it, tests arms in order via compilePatternTest (and, for guarded
// arms, the guard expression), and falls through to OpTrap if nothing
// matched — mirroring internal/eval/pattern_match.go's tryMatch loop, whose
// final "no arm matched" case is also a runtime error.
func (c *compiler) compileMatch(k ast.Match, span token.Span) error {
	if err := c.compileExpr(k.Expr); err != nil {
		return err
	}
	tmp := c.newTemp()
	c.defineBinding(tmp, span)
	c.chunk.emit(OpPop, 0, span)

	var endJumps []int
	for _, arm := range k.Arms {
		outer := c.scope
		if outer != nil {
			c.scope = newScope(outer)
		}
		c.loadName(tmp, span)
		if err := c.compilePatternTest(arm.Pattern, span); err != nil {
			return err
		}
		nextArm := c.chunk.emit(OpJumpIfFalse, 0, span)

		if arm.Guard != nil {
			if err := c.compileExpr(arm.Guard); err != nil {
				return err
			}
			guardFail := c.chunk.emit(OpJumpIfFalse, 0, span)
			if err := c.compileExpr(arm.Body); err != nil {
				return err
			}
			endJumps = append(endJumps, c.chunk.emit(OpJump, 0, span))
			c.chunk.patchJump(guardFail, len(c.chunk.Code))
		} else {
			if err := c.compileExpr(arm.Body); err != nil {
				return err
			}
			endJumps = append(endJumps, c.chunk.emit(OpJump, 0, span))
		}

		c.chunk.patchJump(nextArm, len(c.chunk.Code))
		c.scope = outer
	}

	c.loadName(tmp, span)
	c.chunk.emit(OpTrap, 0, span)

	for _, j := range endJumps {
		c.chunk.patchJump(j, len(c.chunk.Code))
	}
	return nil
}

// compileFor lowers `for pat in iter { body }` to an index-driven loop over
// the iterable's synthetic "$len" field, binding each element through the
// ordinary pattern-test machinery (see ops.go's getField/indexValue for the
// synthetic field/index support this relies on). An irrefutable-pattern
// bind failure traps, matching the evaluator's treatment of a refutable
// for-loop pattern. break/continue inside a compiled loop body remain
// unsupported (compileExpr's default case), same as in compileWhile.
func (c *compiler) compileFor(k ast.For, span token.Span) error {
	if err := c.compileExpr(k.Iter); err != nil {
		return err
	}
	iterVar := c.newTemp()
	c.defineBinding(iterVar, span)
	c.chunk.emit(OpPop, 0, span)

	c.loadName(iterVar, span)
	lenIdx := c.chunk.addName("$len")
	c.chunk.emit(OpGetField, lenIdx, span)
	lenVar := c.newTemp()
	c.defineBinding(lenVar, span)
	c.chunk.emit(OpPop, 0, span)

	c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstInt, Int: 0}), span)
	idxVar := c.newTemp()
	c.defineBinding(idxVar, span)
	c.chunk.emit(OpPop, 0, span)

	top := len(c.chunk.Code)
	c.loadName(idxVar, span)
	c.loadName(lenVar, span)
	c.chunk.emit(OpLt, 0, span)
	exitJump := c.chunk.emit(OpJumpIfFalse, 0, span)

	outer := c.scope
	if outer != nil {
		c.scope = newScope(outer)
	}
	c.loadName(iterVar, span)
	c.loadName(idxVar, span)
	c.chunk.emit(OpIndex, 0, span)
	if err := c.compilePatternTest(k.Pattern, span); err != nil {
		return err
	}
	bindOk := c.chunk.emit(OpJumpIfTrue, 0, span)
	c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstUnit}), span)
	c.chunk.emit(OpTrap, 0, span)
	c.chunk.patchJump(bindOk, len(c.chunk.Code))

	if err := c.compileExpr(k.Body); err != nil {
		return err
	}
	c.chunk.emit(OpPop, 0, span)
	c.scope = outer

	c.loadName(idxVar, span)
	c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstInt, Int: 1}), span)
	c.chunk.emit(OpAdd, 0, span)
	c.storeExisting(idxVar, span)
	c.chunk.emit(OpPop, 0, span)
	backJump := c.chunk.emit(OpJump, 0, span)
	c.chunk.patchJump(backJump, top)

	c.chunk.patchJump(exitJump, len(c.chunk.Code))
	c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstUnit}), span)
	return nil
}
