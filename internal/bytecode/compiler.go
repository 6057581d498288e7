package bytecode

import (
	"fmt"

	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/token"
)

// CompileErrorKind enumerates the compiler's error taxonomy (spec.md §4.8
// "CompileError — bytecode compiler: Unsupported, InvalidJumpTarget").
type CompileErrorKind int

const (
	Unsupported CompileErrorKind = iota
	InvalidJumpTarget
)

type CompileError struct {
	Kind    CompileErrorKind
	Message string
	Span    token.Span
}

func (e *CompileError) Error() string { return e.Message }

func unsupported(span token.Span, format string, args ...interface{}) error {
	return &CompileError{Kind: Unsupported, Message: fmt.Sprintf(format, args...), Span: span}
}

// scope resolves identifiers to local stack slots at compile time. It is a
// plain value threaded through recursive calls rather than a package
// singleton, per spec.md's redesign flag against global mutable compiler
// state: each function's compilation allocates its own scope chain and its
// own *Chunk, and nothing survives between independent Compile calls.
type scope struct {
	names  map[string]int32
	parent *scope
	fn     *funcState
}

// funcState tracks the flat local-slot counter for one function body; all
// nested block scopes within the same function share it so slots are
// never reused across sibling blocks (simplicity over density).
type funcState struct {
	nextSlot int32
}

func newScope(parent *scope) *scope {
	fn := &funcState{}
	if parent != nil {
		fn = parent.fn
	}
	return &scope{names: map[string]int32{}, parent: parent, fn: fn}
}

func (s *scope) define(name string) int32 {
	slot := s.fn.nextSlot
	s.fn.nextSlot++
	s.names[name] = slot
	return slot
}

func (s *scope) resolve(name string) (int32, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if slot, ok := cur.names[name]; ok {
			return slot, true
		}
	}
	return 0, false
}

// compiler compiles a single function body (or the top-level program,
// treated as an implicit zero-arg function) into its own Chunk.
type compiler struct {
	chunk    *Chunk
	scope    *scope // nil scope means every name compiles to a global
	tmpCount int    // synthetic-binding counter, see compiler_pattern.go's newTemp
}

// Compile lowers an entire program to a top-level Chunk; every `fun`
// declaration becomes a nested Chunk reachable by name through the
// top-level chunk's Names table, mirroring the two-pass visibility the
// evaluator gives top-level items (spec.md invariant v).
func Compile(prog *ast.Program) (*Chunk, error) {
	c := &compiler{chunk: NewChunk()}
	for _, it := range prog.Items {
		if err := c.compileItem(it); err != nil {
			return nil, err
		}
	}
	return c.chunk, nil
}

func (c *compiler) compileItem(it ast.Item) error {
	switch v := it.(type) {
	case *ast.FunctionDecl:
		child, err := compileFunction(&v.FunctionLit)
		if err != nil {
			return err
		}
		c.chunk.Children = append(c.chunk.Children, child)
		idx := c.chunk.addConst(Const{Kind: ConstInt, Int: int64(len(c.chunk.Children) - 1)})
		c.chunk.emit(OpMakeClosure, idx, v.Span())
		nameIdx := c.chunk.addName(v.Name)
		c.chunk.emit(OpStoreGlobal, nameIdx, v.Span())
		c.chunk.emit(OpPop, 0, v.Span())
		return nil
	case *ast.TopLevelExpr:
		if err := c.compileExpr(v.Expr); err != nil {
			return err
		}
		c.chunk.emit(OpPop, 0, v.Span())
		return nil
	case *ast.ExportDecl:
		return c.compileItem(v.Item)
	case *ast.ModuleDecl:
		for _, sub := range v.Items {
			if err := c.compileItem(sub); err != nil {
				return err
			}
		}
		return nil
	case *ast.StructDecl, *ast.EnumDecl, *ast.TraitDecl, *ast.ImplDecl, *ast.ClassDecl, *ast.UseDecl:
		// Type and trait declarations carry no runtime code of their own;
		// struct/enum literal construction is not compiled (compileExpr
		// reports it as unsupported).
		return nil
	default:
		return nil
	}
}

func compileFunction(fn *ast.FunctionLit) (*Chunk, error) {
	c := &compiler{chunk: NewChunk()}
	c.scope = newScope(nil)
	for _, p := range fn.Params {
		for _, name := range ast.Names(p.Pattern) {
			c.scope.define(name)
			c.chunk.Params = append(c.chunk.Params, name)
		}
	}
	if err := c.compileExpr(fn.Body); err != nil {
		return nil, err
	}
	c.chunk.emit(OpReturn, 0, fn.Body.Span())
	c.chunk.NumLocals = int(c.scope.fn.nextSlot)
	return c.chunk, nil
}

// compileExpr emits code that leaves exactly one value on the operand
// stack, per the per-opcode stack-effect contract of spec.md §4.5.
func (c *compiler) compileExpr(e *ast.Expr) error {
	span := e.Span()
	switch k := e.Kind.(type) {
	case ast.IntLit:
		idx := c.chunk.addConst(Const{Kind: ConstInt, Int: k.Value, Suffix: k.Suffix})
		c.chunk.emit(OpLoadConst, idx, span)
		return nil
	case ast.FloatLit:
		idx := c.chunk.addConst(Const{Kind: ConstFloat, Float: k.Value})
		c.chunk.emit(OpLoadConst, idx, span)
		return nil
	case ast.StringLit:
		idx := c.chunk.addConst(Const{Kind: ConstString, Str: k.Value})
		c.chunk.emit(OpLoadConst, idx, span)
		return nil
	case ast.BoolLit:
		idx := c.chunk.addConst(Const{Kind: ConstBool, Bool: k.Value})
		c.chunk.emit(OpLoadConst, idx, span)
		return nil
	case ast.CharLit:
		idx := c.chunk.addConst(Const{Kind: ConstChar, Char: k.Value})
		c.chunk.emit(OpLoadConst, idx, span)
		return nil
	case ast.UnitLit:
		idx := c.chunk.addConst(Const{Kind: ConstUnit})
		c.chunk.emit(OpLoadConst, idx, span)
		return nil
	case ast.Identifier:
		if c.scope != nil {
			if slot, ok := c.scope.resolve(k.Name); ok {
				c.chunk.emit(OpLoadLocal, slot, span)
				return nil
			}
		}
		idx := c.chunk.addName(k.Name)
		c.chunk.emit(OpLoadGlobal, idx, span)
		return nil
	case ast.Binary:
		return c.compileBinary(k, span)
	case ast.Unary:
		if err := c.compileExpr(k.Expr); err != nil {
			return err
		}
		switch k.Op {
		case ast.OpNeg:
			c.chunk.emit(OpNeg, 0, span)
		case ast.OpNot:
			c.chunk.emit(OpNot, 0, span)
		default:
			return unsupported(span, "unary operator %s not supported by the compiler", k.Op)
		}
		return nil
	case ast.Let:
		if err := c.compileExpr(k.Value); err != nil {
			return err
		}
		c.defineBinding(k.Name, span)
		if k.Body != nil {
			c.chunk.emit(OpPop, 0, span)
			return c.compileExpr(k.Body)
		}
		idx := c.chunk.addConst(Const{Kind: ConstUnit})
		c.chunk.emit(OpPop, 0, span)
		c.chunk.emit(OpLoadConst, idx, span)
		return nil
	case ast.Assign:
		if err := c.compileExpr(k.Value); err != nil {
			return err
		}
		c.chunk.emit(OpDup, 0, span)
		return c.compileStore(k.Target, span)
	case ast.Block:
		return c.compileBlock(k, span)
	case ast.If:
		return c.compileIf(k, span)
	case ast.While:
		return c.compileWhile(k, span)
	case ast.Call:
		return c.compileCall(k, span)
	case ast.ListLit:
		for _, el := range k.Elems {
			if err := c.compileExpr(el); err != nil {
				return err
			}
		}
		c.chunk.emit(OpMakeArray, int32(len(k.Elems)), span)
		return nil
	case ast.TupleLit:
		for _, el := range k.Elems {
			if err := c.compileExpr(el); err != nil {
				return err
			}
		}
		c.chunk.emit(OpMakeTuple, int32(len(k.Elems)), span)
		return nil
	case ast.IndexAccess:
		if err := c.compileExpr(k.Receiver); err != nil {
			return err
		}
		if err := c.compileExpr(k.Index); err != nil {
			return err
		}
		c.chunk.emit(OpIndex, 0, span)
		return nil
	case ast.FieldAccess:
		if err := c.compileExpr(k.Receiver); err != nil {
			return err
		}
		idx := c.chunk.addName(k.Field)
		c.chunk.emit(OpGetField, idx, span)
		return nil
	case ast.Return:
		if k.Value != nil {
			if err := c.compileExpr(k.Value); err != nil {
				return err
			}
		} else {
			idx := c.chunk.addConst(Const{Kind: ConstUnit})
			c.chunk.emit(OpLoadConst, idx, span)
		}
		c.chunk.emit(OpReturn, 0, span)
		return nil
	case ast.Lambda:
		return c.compileLambda(k, span)
	case ast.Match:
		return c.compileMatch(k, span)
	case ast.For:
		return c.compileFor(k, span)
	case ast.MethodCall:
		return c.compileMethodCall(k, span)
	case ast.ObjectLit:
		return c.compileObjectLit(k, span)
	case ast.Range:
		return c.compileRange(k, span)
	default:
		return unsupported(span, "compiler does not yet lower expression kind %T", k)
	}
}

func (c *compiler) defineBinding(name string, span token.Span) {
	if c.scope != nil {
		slot := c.scope.define(name)
		c.chunk.emit(OpStoreLocal, slot, span)
		return
	}
	idx := c.chunk.addName(name)
	c.chunk.emit(OpStoreGlobal, idx, span)
}

func (c *compiler) compileStore(target *ast.Expr, span token.Span) error {
	switch k := target.Kind.(type) {
	case ast.Identifier:
		if c.scope != nil {
			if slot, ok := c.scope.resolve(k.Name); ok {
				c.chunk.emit(OpStoreLocal, slot, span)
				return nil
			}
		}
		idx := c.chunk.addName(k.Name)
		c.chunk.emit(OpStoreGlobal, idx, span)
		return nil
	case ast.IndexAccess:
		if err := c.compileExpr(k.Receiver); err != nil {
			return err
		}
		if err := c.compileExpr(k.Index); err != nil {
			return err
		}
		c.chunk.emit(OpSetIndex, 0, span)
		return nil
	case ast.FieldAccess:
		if err := c.compileExpr(k.Receiver); err != nil {
			return err
		}
		idx := c.chunk.addName(k.Field)
		c.chunk.emit(OpSetField, idx, span)
		return nil
	default:
		return unsupported(span, "unsupported assignment target")
	}
}

func (c *compiler) compileBinary(k ast.Binary, span token.Span) error {
	if k.Op == ast.OpAnd || k.Op == ast.OpOr {
		if err := c.compileExpr(k.Left); err != nil {
			return err
		}
		c.chunk.emit(OpDup, 0, span)
		jumpOp := OpJumpIfFalse
		if k.Op == ast.OpOr {
			jumpOp = OpJumpIfTrue
		}
		jmp := c.chunk.emit(jumpOp, 0, span)
		c.chunk.emit(OpPop, 0, span)
		if err := c.compileExpr(k.Right); err != nil {
			return err
		}
		c.chunk.patchJump(jmp, len(c.chunk.Code))
		return nil
	}
	if err := c.compileExpr(k.Left); err != nil {
		return err
	}
	if err := c.compileExpr(k.Right); err != nil {
		return err
	}
	op, ok := binOpcodes[k.Op]
	if !ok {
		return unsupported(span, "binary operator %s not supported by the compiler", k.Op)
	}
	c.chunk.emit(op, 0, span)
	return nil
}

var binOpcodes = map[ast.BinOp]Op{
	ast.OpAdd: OpAdd, ast.OpSub: OpSub, ast.OpMul: OpMul, ast.OpDiv: OpDiv,
	ast.OpMod: OpMod, ast.OpPow: OpPow, ast.OpEq: OpEq, ast.OpNe: OpNe,
	ast.OpLt: OpLt, ast.OpLe: OpLe, ast.OpGt: OpGt, ast.OpGe: OpGe,
}

func (c *compiler) compileBlock(k ast.Block, span token.Span) error {
	if len(k.Exprs) == 0 {
		idx := c.chunk.addConst(Const{Kind: ConstUnit})
		c.chunk.emit(OpLoadConst, idx, span)
		return nil
	}
	outer := c.scope
	if outer != nil {
		c.scope = newScope(outer)
		defer func() { c.scope = outer }()
	}
	for i, sub := range k.Exprs {
		if err := c.compileExpr(sub); err != nil {
			return err
		}
		if i < len(k.Exprs)-1 {
			c.chunk.emit(OpPop, 0, sub.Span())
		}
	}
	return nil
}

func (c *compiler) compileIf(k ast.If, span token.Span) error {
	if err := c.compileExpr(k.Cond); err != nil {
		return err
	}
	elseJump := c.chunk.emit(OpJumpIfFalse, 0, span)
	if err := c.compileExpr(k.Then); err != nil {
		return err
	}
	endJump := c.chunk.emit(OpJump, 0, span)
	c.chunk.patchJump(elseJump, len(c.chunk.Code))
	if k.Else != nil {
		if err := c.compileExpr(k.Else); err != nil {
			return err
		}
	} else {
		idx := c.chunk.addConst(Const{Kind: ConstUnit})
		c.chunk.emit(OpLoadConst, idx, span)
	}
	c.chunk.patchJump(endJump, len(c.chunk.Code))
	return nil
}

func (c *compiler) compileWhile(k ast.While, span token.Span) error {
	top := len(c.chunk.Code)
	if err := c.compileExpr(k.Cond); err != nil {
		return err
	}
	exitJump := c.chunk.emit(OpJumpIfFalse, 0, span)
	if err := c.compileExpr(k.Body); err != nil {
		return err
	}
	c.chunk.emit(OpPop, 0, span)
	backJump := c.chunk.emit(OpJump, 0, span)
	c.chunk.patchJump(backJump, top)
	c.chunk.patchJump(exitJump, len(c.chunk.Code))
	idx := c.chunk.addConst(Const{Kind: ConstUnit})
	c.chunk.emit(OpLoadConst, idx, span)
	return nil
}

func (c *compiler) compileCall(k ast.Call, span token.Span) error {
	if err := c.compileExpr(k.Callee); err != nil {
		return err
	}
	for _, arg := range k.Args {
		if err := c.compileExpr(arg); err != nil {
			return err
		}
	}
	c.chunk.emit(OpCall, int32(len(k.Args)), span)
	return nil
}

func (c *compiler) compileLambda(k ast.Lambda, span token.Span) error {
	child := &compiler{chunk: NewChunk()}
	child.scope = newScope(nil)
	var upNames []string
	for _, p := range k.Params {
		for _, name := range ast.Names(p.Pattern) {
			child.scope.define(name)
			child.chunk.Params = append(child.chunk.Params, name)
		}
	}
	freeNames := freeVariables(k.Body, paramNames(k.Params))
	for _, name := range freeNames {
		child.scope.define(name)
		upNames = append(upNames, name)
	}
	if err := child.compileExpr(k.Body); err != nil {
		return err
	}
	child.chunk.emit(OpReturn, 0, span)
	child.chunk.NumLocals = int(child.scope.fn.nextSlot)
	child.chunk.UpvalueCount = len(upNames)
	c.chunk.Children = append(c.chunk.Children, child.chunk)
	idx := c.chunk.addConst(Const{Kind: ConstInt, Int: int64(len(c.chunk.Children) - 1)})
	for _, name := range upNames {
		if c.scope != nil {
			if slot, ok := c.scope.resolve(name); ok {
				c.chunk.emit(OpLoadLocal, slot, span)
				continue
			}
		}
		nameIdx := c.chunk.addName(name)
		c.chunk.emit(OpLoadGlobal, nameIdx, span)
	}
	c.chunk.emit(OpMakeClosure, idx, span)
	return nil
}

func paramNames(params []ast.Param) map[string]bool {
	out := map[string]bool{}
	for _, p := range params {
		for _, n := range ast.Names(p.Pattern) {
			out[n] = true
		}
	}
	return out
}

// freeVariables does a conservative syntactic scan for identifiers
// referenced in body that aren't in bound, used to decide what a lambda's
// MakeClosure instruction must snapshot as an upvalue.
func freeVariables(body *ast.Expr, bound map[string]bool) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(e *ast.Expr)
	record := func(name string) {
		if !bound[name] && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	walk = func(e *ast.Expr) {
		if e == nil {
			return
		}
		switch k := e.Kind.(type) {
		case ast.Identifier:
			record(k.Name)
		case ast.Binary:
			walk(k.Left)
			walk(k.Right)
		case ast.Unary:
			walk(k.Expr)
		case ast.Call:
			walk(k.Callee)
			for _, a := range k.Args {
				walk(a)
			}
		case ast.Block:
			for _, sub := range k.Exprs {
				walk(sub)
			}
		case ast.If:
			walk(k.Cond)
			walk(k.Then)
			walk(k.Else)
		case ast.Let:
			walk(k.Value)
			walk(k.Body)
		case ast.FieldAccess:
			walk(k.Receiver)
		case ast.IndexAccess:
			walk(k.Receiver)
			walk(k.Index)
		case ast.MethodCall:
			walk(k.Receiver)
			for _, a := range k.Args {
				walk(a)
			}
		case ast.Match:
			walk(k.Expr)
			for _, arm := range k.Arms {
				armBound := map[string]bool{}
				for n := range bound {
					armBound[n] = true
				}
				for _, n := range ast.Names(arm.Pattern) {
					armBound[n] = true
				}
				mergeFree(armBound, arm.Guard, record)
				mergeFree(armBound, arm.Body, record)
			}
		case ast.For:
			forBound := map[string]bool{}
			for n := range bound {
				forBound[n] = true
			}
			for _, n := range ast.Names(k.Pattern) {
				forBound[n] = true
			}
			walk(k.Iter)
			mergeFree(forBound, k.Body, record)
		case ast.ObjectLit:
			for _, f := range k.Fields {
				if f.Value != nil {
					walk(f.Value)
				} else {
					record(f.Name)
				}
			}
		case ast.Range:
			walk(k.Lo)
			walk(k.Hi)
		}
	}
	walk(body)
	return out
}

// mergeFree re-scans e with an expanded bound set (pattern-bound names from
// a match arm or for loop) and folds anything still free back into the
// enclosing lambda's scan — free-variable scanning needs a scoped bound set
// per arm/loop body, which the single shared `bound` map of the outer walk
// can't express without a nested scan of its own.
func mergeFree(scopedBound map[string]bool, e *ast.Expr, record func(string)) {
	if e == nil {
		return
	}
	for _, n := range freeVariables(e, scopedBound) {
		record(n)
	}
}
