package bytecode

import (
	"fmt"

	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/token"
)

// compilePatternTest lowers one pattern into bytecode that tests the value
// already sitting on top of the operand stack: it consumes that value and
// leaves exactly one value behind whose truthiness is the match verdict,
// mirroring internal/eval/pattern_match.go's tryMatch so match/for compile
// to the same observable outcome the evaluator gives them (spec.md
// §8.P-Eval-VM-Equiv). Identifiers bind as soon as they're visited, even
// under a structural pattern whose other fields go on to fail — exactly
// tryMatch's behavior, since a failed arm's bindings are simply never read.
//
// No dedicated match opcode exists; every pattern kind lowers to ordinary
// load/index/field/compare/jump opcodes plus the boolean OpAnd combinator,
// so the instruction set doesn't need a table shape wide enough to encode
// tuples, structs, or-patterns and guards (see chunk.go's Chunk doc comment).
func (c *compiler) compilePatternTest(p *ast.Pattern, span token.Span) error {
	switch k := p.Kind.(type) {
	case ast.WildcardPat:
		c.chunk.emit(OpPop, 0, span)
		c.pushBool(true, span)
		return nil
	case ast.IdentPat:
		if k.Name == "_" {
			c.chunk.emit(OpPop, 0, span)
		} else {
			c.defineBinding(k.Name, span)
			c.chunk.emit(OpPop, 0, span)
		}
		c.pushBool(true, span)
		return nil
	case ast.LiteralPat:
		lit, err := literalConst(k.Value)
		if err != nil {
			return err
		}
		c.chunk.emit(OpLoadConst, c.chunk.addConst(lit), span)
		c.chunk.emit(OpEq, 0, span)
		return nil
	case ast.OrPat:
		return c.compileOrPatternTest(k, span)
	case ast.TuplePat:
		return c.compileFixedArityPatternTest(k.Elems, span)
	case ast.ListPat:
		if k.HasRest {
			return unsupported(span, "compiler does not yet lower rest-binding list patterns")
		}
		return c.compileFixedArityPatternTest(k.Head, span)
	case ast.StructPat:
		return c.compileStructPatternTest(k, span)
	case ast.TupleStructPat:
		return c.compileTupleStructPatternTest(k, span)
	case ast.RangePat:
		return c.compileRangePatternTest(k, span)
	case ast.GuardPat:
		if err := c.compilePatternTest(k.Pattern, span); err != nil {
			return err
		}
		failJump := c.chunk.emit(OpJumpIfFalse, 0, span)
		if err := c.compileExpr(k.Guard); err != nil {
			return err
		}
		endJump := c.chunk.emit(OpJump, 0, span)
		c.chunk.patchJump(failJump, len(c.chunk.Code))
		c.pushBool(false, span)
		c.chunk.patchJump(endJump, len(c.chunk.Code))
		return nil
	default:
		return unsupported(span, "compiler does not yet lower pattern kind %T", k)
	}
}

func (c *compiler) pushBool(v bool, span token.Span) {
	c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstBool, Bool: v}), span)
}

func literalConst(e *ast.Expr) (Const, error) {
	switch k := e.Kind.(type) {
	case ast.IntLit:
		return Const{Kind: ConstInt, Int: k.Value, Suffix: k.Suffix}, nil
	case ast.FloatLit:
		return Const{Kind: ConstFloat, Float: k.Value}, nil
	case ast.StringLit:
		return Const{Kind: ConstString, Str: k.Value}, nil
	case ast.BoolLit:
		return Const{Kind: ConstBool, Bool: k.Value}, nil
	case ast.CharLit:
		return Const{Kind: ConstChar, Char: k.Value}, nil
	case ast.UnitLit:
		return Const{Kind: ConstUnit}, nil
	default:
		return Const{}, unsupported(e.Span(), "unsupported literal pattern kind %T", k)
	}
}

// compileOrPatternTest tests alts left to right; on failure of a
// non-terminal alt it restores the dup'd copy of the subject it consumed
// and tries the next one, converging all paths on a single Bool.
func (c *compiler) compileOrPatternTest(k ast.OrPat, span token.Span) error {
	var endJumps []int
	for i, alt := range k.Alts {
		last := i == len(k.Alts)-1
		if !last {
			c.chunk.emit(OpDup, 0, span)
		}
		if err := c.compilePatternTest(alt, span); err != nil {
			return err
		}
		if !last {
			failJump := c.chunk.emit(OpJumpIfFalse, 0, span)
			c.chunk.emit(OpPop, 0, span)
			c.pushBool(true, span)
			endJumps = append(endJumps, c.chunk.emit(OpJump, 0, span))
			c.chunk.patchJump(failJump, len(c.chunk.Code))
		}
	}
	for _, j := range endJumps {
		c.chunk.patchJump(j, len(c.chunk.Code))
	}
	return nil
}

// compileFixedArityPatternTest handles TuplePat and rest-free ListPat: the
// subject is stashed in a synthetic binding so each element can be
// re-fetched by position via OpIndex without juggling stack depth.
func (c *compiler) compileFixedArityPatternTest(elems []*ast.Pattern, span token.Span) error {
	tmp := c.newTemp()
	c.defineBinding(tmp, span)
	c.chunk.emit(OpPop, 0, span)
	if len(elems) == 0 {
		c.pushBool(true, span)
		return nil
	}
	for i, el := range elems {
		c.loadName(tmp, span)
		c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstInt, Int: int64(i)}), span)
		c.chunk.emit(OpIndex, 0, span)
		if err := c.compilePatternTest(el, span); err != nil {
			return err
		}
		if i > 0 {
			c.chunk.emit(OpAnd, 0, span)
		}
	}
	return nil
}

func (c *compiler) compileStructPatternTest(k ast.StructPat, span token.Span) error {
	tmp := c.newTemp()
	c.defineBinding(tmp, span)
	c.chunk.emit(OpPop, 0, span)
	if len(k.Fields) == 0 {
		c.pushBool(true, span)
		return nil
	}
	for i, f := range k.Fields {
		c.loadName(tmp, span)
		nameIdx := c.chunk.addName(f.Name)
		c.chunk.emit(OpGetField, nameIdx, span)
		if f.Pattern != nil {
			if err := c.compilePatternTest(f.Pattern, span); err != nil {
				return err
			}
		} else {
			c.defineBinding(f.Name, span)
			c.chunk.emit(OpPop, 0, span)
			c.pushBool(true, span)
		}
		if i > 0 {
			c.chunk.emit(OpAnd, 0, span)
		}
	}
	return nil
}

// compileTupleStructPatternTest tests a $tag field (Ok/Err/Some/None/the
// EnumVariant's Variant name/the StructInstance's Struct name) against
// k.Name, ANDed with each positional argument's sub-test.
func (c *compiler) compileTupleStructPatternTest(k ast.TupleStructPat, span token.Span) error {
	tmp := c.newTemp()
	c.defineBinding(tmp, span)
	c.chunk.emit(OpPop, 0, span)
	c.loadName(tmp, span)
	tagIdx := c.chunk.addName("$tag")
	c.chunk.emit(OpGetField, tagIdx, span)
	c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstString, Str: k.Name}), span)
	c.chunk.emit(OpEq, 0, span)
	for i, a := range k.Args {
		c.loadName(tmp, span)
		c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstInt, Int: int64(i)}), span)
		c.chunk.emit(OpIndex, 0, span)
		if err := c.compilePatternTest(a, span); err != nil {
			return err
		}
		c.chunk.emit(OpAnd, 0, span)
	}
	return nil
}

// compileRangePatternTest tests an inclusive-or-exclusive integer bound,
// defaulting an absent Lo/Hi to 0 exactly like evalRange does for the
// equivalent open-ended range expression.
func (c *compiler) compileRangePatternTest(k ast.RangePat, span token.Span) error {
	tmp := c.newTemp()
	c.defineBinding(tmp, span)
	c.chunk.emit(OpPop, 0, span)
	c.loadName(tmp, span)
	if k.Lo != nil {
		if err := c.compileExpr(k.Lo); err != nil {
			return err
		}
	} else {
		c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstInt, Int: 0}), span)
	}
	c.chunk.emit(OpGe, 0, span)
	c.loadName(tmp, span)
	if k.Hi != nil {
		if err := c.compileExpr(k.Hi); err != nil {
			return err
		}
	} else {
		c.chunk.emit(OpLoadConst, c.chunk.addConst(Const{Kind: ConstInt, Int: 0}), span)
	}
	if k.Inclusive {
		c.chunk.emit(OpLe, 0, span)
	} else {
		c.chunk.emit(OpLt, 0, span)
	}
	c.chunk.emit(OpAnd, 0, span)
	return nil
}

// newTemp names a synthetic binding slot. Counter-based, so repeated calls
// within the same compiler (one per function body) never collide; at
// top level (nil scope) these land as ordinary-looking globals, which is
// an acceptable, documented artifact of lowering without a scratch
// register file (see DESIGN.md).
func (c *compiler) newTemp() string {
	c.tmpCount++
	return fmt.Sprintf("$t%d", c.tmpCount)
}

func (c *compiler) loadName(name string, span token.Span) {
	if c.scope != nil {
		if slot, ok := c.scope.resolve(name); ok {
			c.chunk.emit(OpLoadLocal, slot, span)
			return
		}
	}
	idx := c.chunk.addName(name)
	c.chunk.emit(OpLoadGlobal, idx, span)
}

func (c *compiler) storeExisting(name string, span token.Span) {
	if c.scope != nil {
		if slot, ok := c.scope.resolve(name); ok {
			c.chunk.emit(OpStoreLocal, slot, span)
			return
		}
	}
	idx := c.chunk.addName(name)
	c.chunk.emit(OpStoreGlobal, idx, span)
}
