// Package eval implements the tree-walking evaluator of spec.md §4.4:
// eval_expr(&Expr, &mut Env) -> Result<Value>, single-threaded and
// synchronous, with blocks introducing lexical scopes and closures
// capturing their defining environment by shared reference. Grounded on
// the teacher's runtime/executor walk-and-dispatch shape (Config with a
// TelemetryLevel/DebugLevel pair, structured RuntimeError), adapted from
// command-plan execution to AST evaluation.
package eval

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/invariant"
	"github.com/paiml/ruchy/internal/value"
)

// TelemetryLevel mirrors the parser's production-safe counters split.
type TelemetryLevel int

const (
	TelemetryOff TelemetryLevel = iota
	TelemetryBasic
	TelemetryTiming
)

// DebugLevel controls development-only execution tracing.
type DebugLevel int

const (
	DebugOff DebugLevel = iota
	DebugTrace
)

// Telemetry holds production-safe evaluation counters.
type Telemetry struct {
	ExprsEvaluated int
	CallsMade      int
}

type config struct {
	telemetry TelemetryLevel
	debug     DebugLevel
	stdout    io.Writer
	logger    *slog.Logger
}

// Option configures an Evaluator.
type Option func(*config)

func WithTelemetry(level TelemetryLevel) Option { return func(c *config) { c.telemetry = level } }
func WithDebug(level DebugLevel) Option         { return func(c *config) { c.debug = level } }
func WithStdout(w io.Writer) Option             { return func(c *config) { c.stdout = w } }

// Evaluator holds the two-pass-resolved top-level symbol tables and
// executes Ruchy programs against them (spec.md invariant v).
type Evaluator struct {
	globals   *value.Environment
	functions map[string]*ast.FunctionLit
	structs   map[string]*ast.StructDecl
	enums     map[string]*ast.EnumDecl
	methods   map[string]map[string]*ast.FunctionLit
	program   *ast.Program
	cfg       *config
	telemetry Telemetry
}

// New performs the two-pass top-level registration (all items visible
// before any body runs) and returns an Evaluator ready to Run prog.
func New(prog *ast.Program, opts ...Option) *Evaluator {
	cfg := &config{stdout: io.Discard, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(cfg)
	}
	ev := &Evaluator{
		globals:   value.NewEnvironment(),
		functions: map[string]*ast.FunctionLit{},
		structs:   map[string]*ast.StructDecl{},
		enums:     map[string]*ast.EnumDecl{},
		methods:   map[string]map[string]*ast.FunctionLit{},
		program:   prog,
		cfg:       cfg,
	}
	ev.registerItems(prog.Items)
	for name, fn := range ev.functions {
		ev.globals.Define(name, value.Function{Name: name, Params: fn.Params, Body: fn.Body, CapturedEnv: ev.globals}, false)
	}
	return ev
}

func (ev *Evaluator) registerItems(items []ast.Item) {
	for _, it := range items {
		switch v := it.(type) {
		case *ast.FunctionDecl:
			ev.functions[v.Name] = &v.FunctionLit
		case *ast.StructDecl:
			ev.structs[v.Name] = v
		case *ast.EnumDecl:
			ev.enums[v.Name] = v
		case *ast.ClassDecl:
			ev.structs[v.Name] = &ast.StructDecl{Name: v.Name, Fields: v.Fields, IsPub: v.IsPub}
			ev.addMethods(v.Name, v.Methods)
		case *ast.ImplDecl:
			ev.addMethods(v.TypeName, v.Methods)
		case *ast.ModuleDecl:
			ev.registerItems(v.Items)
		case *ast.ExportDecl:
			ev.registerItems([]ast.Item{v.Item})
		}
	}
}

func (ev *Evaluator) addMethods(typeName string, methods []*ast.FunctionDecl) {
	if ev.methods[typeName] == nil {
		ev.methods[typeName] = map[string]*ast.FunctionLit{}
	}
	for _, m := range methods {
		ev.methods[typeName][m.Name] = &m.FunctionLit
	}
}

// Run evaluates every top-level expression statement in source order and
// returns the last value produced (Unit if the program had none).
func (ev *Evaluator) Run() (value.Value, error) {
	var last value.Value = value.Unit{}
	for _, it := range ev.program.Items {
		switch v := it.(type) {
		case *ast.TopLevelExpr:
			val, err := ev.Eval(v.Expr, ev.globals)
			if err != nil {
				if s, ok := asSignal(err); ok && s.kind == sigReturn {
					return s.value, nil
				}
				return nil, err
			}
			last = val
		case *ast.ExportDecl:
			if te, ok := v.Item.(*ast.TopLevelExpr); ok {
				val, err := ev.Eval(te.Expr, ev.globals)
				if err != nil {
					return nil, err
				}
				last = val
			}
		}
	}
	return last, nil
}

// CallMain evaluates the program's top-level declarations, then invokes a
// zero-argument `main` function if one was declared, matching the common
// script-entry convention (spec.md §8 scenario S5).
func (ev *Evaluator) CallMain() (value.Value, error) {
	if _, err := ev.Run(); err != nil {
		return nil, err
	}
	if fn, ok := ev.functions["main"]; ok {
		return ev.invoke(fn.Params, fn.Body, ev.globals, nil, &ast.Expr{})
	}
	return value.Unit{}, nil
}

// Eval is spec.md §4.4's eval_expr, dispatching on the closed ExprKind set.
func (ev *Evaluator) Eval(e *ast.Expr, env *value.Environment) (value.Value, error) {
	invariant.NotNil(e, "expr")
	ev.telemetry.ExprsEvaluated++
	switch k := e.Kind.(type) {
	case ast.IntLit:
		return value.Integer{V: k.Value, Suffix: k.Suffix}, nil
	case ast.FloatLit:
		return value.Float{V: k.Value}, nil
	case ast.StringLit:
		return value.NewString(k.Value), nil
	case ast.BoolLit:
		return value.Bool{V: k.Value}, nil
	case ast.CharLit:
		return value.Char{V: k.Value}, nil
	case ast.UnitLit:
		return value.Unit{}, nil
	case ast.Identifier:
		if v, ok := env.Get(k.Name); ok {
			return v, nil
		}
		return nil, newNameError(e.Span(), k.Name, env.Names())
	case ast.QualifiedName:
		return ev.evalQualifiedName(k, e, env)
	case ast.Binary:
		return ev.evalBinary(k, e, env)
	case ast.Unary:
		return ev.evalUnary(k, e, env)
	case ast.Assign:
		return ev.evalAssign(k, e, env)
	case ast.CompoundAssign:
		return ev.evalCompoundAssign(k, e, env)
	case ast.IncDec:
		return ev.evalIncDec(k, e, env)
	case ast.Let:
		return ev.evalLet(k, e, env)
	case ast.LetPattern:
		return ev.evalLetPattern(k, e, env)
	case ast.Block:
		return ev.evalBlock(k, env)
	case ast.If:
		return ev.evalIf(k, e, env)
	case ast.IfLet:
		return ev.evalIfLet(k, e, env)
	case ast.Match:
		return ev.evalMatch(k, e, env)
	case ast.While:
		return ev.evalWhile(k, env)
	case ast.WhileLet:
		return ev.evalWhileLet(k, env)
	case ast.For:
		return ev.evalFor(k, e, env)
	case ast.Loop:
		return ev.evalLoop(k, env)
	case ast.Break:
		var v value.Value = value.Unit{}
		if k.Value != nil {
			var err error
			v, err = ev.Eval(k.Value, env)
			if err != nil {
				return nil, err
			}
		}
		return nil, &signal{kind: sigBreak, value: v}
	case ast.Continue:
		return nil, &signal{kind: sigContinue}
	case ast.Return:
		var v value.Value = value.Unit{}
		if k.Value != nil {
			var err error
			v, err = ev.Eval(k.Value, env)
			if err != nil {
				return nil, err
			}
		}
		return nil, &signal{kind: sigReturn, value: v}
	case ast.ListLit:
		return ev.evalListLit(k, env)
	case ast.TupleLit:
		elems, err := ev.evalExprList(k.Elems, env)
		if err != nil {
			return nil, err
		}
		return value.Tuple{V: elems}, nil
	case ast.SetLit:
		elems, err := ev.evalExprList(k.Elems, env)
		if err != nil {
			return nil, err
		}
		m := map[string]value.Value{}
		for _, el := range elems {
			m[value.CanonicalKey(el)] = el
		}
		return value.HashSet{V: &m}, nil
	case ast.ArrayInit:
		return ev.evalArrayInit(k, e, env)
	case ast.StructLit:
		return ev.evalStructLit(k, e, env)
	case ast.TupleStructLit:
		return ev.evalTupleStructLit(k, e, env)
	case ast.ObjectLit:
		fields := map[string]value.Value{}
		for _, f := range k.Fields {
			val := f.Value
			if val == nil {
				val = ast.NewExpr(ast.Identifier{Name: f.Name}, e.Span())
			}
			v, err := ev.Eval(val, env)
			if err != nil {
				return nil, err
			}
			fields[f.Name] = v
		}
		return value.NewObject(fields), nil
	case ast.FieldAccess:
		return ev.evalFieldAccess(k, e, env)
	case ast.IndexAccess:
		return ev.evalIndexAccess(k, e, env)
	case ast.Slice:
		return ev.evalSlice(k, e, env)
	case ast.Call:
		return ev.evalCall(k, e, env)
	case ast.MethodCall:
		return ev.evalMethodCall(k, e, env)
	case ast.FunctionLit:
		return value.Function{Name: k.Name, Params: k.Params, Body: k.Body, CapturedEnv: env}, nil
	case ast.Lambda:
		return value.Lambda{Params: k.Params, Body: k.Body, CapturedEnv: env}, nil
	case ast.OkExpr:
		v, err := ev.Eval(k.Value, env)
		if err != nil {
			return nil, err
		}
		return value.Result{IsOk: true, Value: v}, nil
	case ast.ErrExpr:
		v, err := ev.Eval(k.Value, env)
		if err != nil {
			return nil, err
		}
		return value.Result{IsOk: false, Value: v}, nil
	case ast.SomeExpr:
		v, err := ev.Eval(k.Value, env)
		if err != nil {
			return nil, err
		}
		return value.Option{IsSome: true, Value: v}, nil
	case ast.NoneExpr:
		return value.Option{IsSome: false}, nil
	case ast.Try:
		return ev.evalTry(k, e, env)
	case ast.Throw:
		v, err := ev.Eval(k.Expr, env)
		if err != nil {
			return nil, err
		}
		return nil, &signal{kind: sigThrow, value: v}
	case ast.TryCatch:
		return ev.evalTryCatch(k, env)
	case ast.TypeCast:
		return ev.evalTypeCast(k, e, env)
	case ast.Range:
		return ev.evalRange(k, e, env)
	case ast.Spawn:
		// No true parallelism in the core: spawn executes immediately and
		// returns its resolved value (spec.md §4.4 "Scheduling").
		return ev.Eval(k.Expr, env)
	case ast.Await:
		return ev.Eval(k.Expr, env)
	case ast.AsyncBlock:
		return ev.Eval(k.Body, env)
	case ast.StringInterpolation:
		return ev.evalStringInterp(k, env)
	case ast.Macro:
		return ev.evalMacro(k, e, env)
	default:
		return nil, newError(TypeError, e.Span(), "evaluator cannot handle expression kind %T", k)
	}
}

func (ev *Evaluator) evalExprList(exprs []*ast.Expr, env *value.Environment) ([]value.Value, error) {
	out := make([]value.Value, 0, len(exprs))
	for _, ex := range exprs {
		v, err := ev.Eval(ex, env)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (ev *Evaluator) evalBlock(k ast.Block, env *value.Environment) (value.Value, error) {
	scope := env.Child()
	var last value.Value = value.Unit{}
	for _, ex := range k.Exprs {
		v, err := ev.Eval(ex, scope)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

func (ev *Evaluator) evalListLit(k ast.ListLit, env *value.Environment) (value.Value, error) {
	elems, err := ev.evalExprList(k.Elems, env)
	if err != nil {
		return nil, err
	}
	return value.NewArray(elems), nil
}

func (ev *Evaluator) evalArrayInit(k ast.ArrayInit, e *ast.Expr, env *value.Environment) (value.Value, error) {
	countV, err := ev.Eval(k.Count, env)
	if err != nil {
		return nil, err
	}
	n, ok := countV.(value.Integer)
	if !ok {
		return nil, newError(TypeError, e.Span(), "array initializer count must be an integer")
	}
	elem, err := ev.Eval(k.Elem, env)
	if err != nil {
		return nil, err
	}
	elems := make([]value.Value, n.V)
	for i := range elems {
		elems[i] = elem
	}
	return value.NewArray(elems), nil
}

func (ev *Evaluator) evalRange(k ast.Range, e *ast.Expr, env *value.Environment) (value.Value, error) {
	var lo, hi int64
	if k.Lo != nil {
		v, err := ev.Eval(k.Lo, env)
		if err != nil {
			return nil, err
		}
		i, ok := v.(value.Integer)
		if !ok {
			return nil, newError(TypeError, e.Span(), "range bound must be an integer")
		}
		lo = i.V
	}
	if k.Hi != nil {
		v, err := ev.Eval(k.Hi, env)
		if err != nil {
			return nil, err
		}
		i, ok := v.(value.Integer)
		if !ok {
			return nil, newError(TypeError, e.Span(), "range bound must be an integer")
		}
		hi = i.V
	}
	return value.Range{Start: lo, End: hi, Inclusive: k.Inclusive}, nil
}

func (ev *Evaluator) evalStringInterp(k ast.StringInterpolation, env *value.Environment) (value.Value, error) {
	var out string
	for _, part := range k.Parts {
		if part.Expr != nil {
			v, err := ev.Eval(part.Expr, env)
			if err != nil {
				return nil, err
			}
			out += v.String()
		} else {
			out += part.Text
		}
	}
	return value.NewString(out), nil
}

func (ev *Evaluator) evalTypeCast(k ast.TypeCast, e *ast.Expr, env *value.Environment) (value.Value, error) {
	v, err := ev.Eval(k.Expr, env)
	if err != nil {
		return nil, err
	}
	target := ast.BaseTypeName(k.Type)
	switch target {
	case "i32", "i64", "u32", "u64", "usize", "int":
		switch x := v.(type) {
		case value.Integer:
			return value.Integer{V: x.V, Suffix: target}, nil
		case value.Float:
			return value.Integer{V: int64(x.V), Suffix: target}, nil
		case value.Bool:
			if x.V {
				return value.Integer{V: 1}, nil
			}
			return value.Integer{V: 0}, nil
		case value.Char:
			return value.Integer{V: int64(x.V)}, nil
		}
	case "f32", "f64", "float":
		switch x := v.(type) {
		case value.Integer:
			return value.Float{V: float64(x.V)}, nil
		case value.Float:
			return value.Float{V: x.V}, nil
		}
	case "String", "str":
		return value.NewString(v.String()), nil
	}
	return nil, newError(TypeError, e.Span(), "cannot cast %s as %s", v.Type(), target)
}

func (ev *Evaluator) evalQualifiedName(k ast.QualifiedName, e *ast.Expr, env *value.Environment) (value.Value, error) {
	if enumDecl, ok := ev.enums[k.Module]; ok {
		for _, variant := range enumDecl.Variants {
			if variant.Name == k.Name {
				if len(variant.Fields) == 0 && variant.Struct == nil {
					return value.EnumVariant{Enum: k.Module, Variant: k.Name}, nil
				}
				// A tuple/struct-payload variant referenced bare (not
				// called) is exposed as a constructor function value.
				return value.Function{Name: k.Module + "::" + k.Name, CapturedEnv: env}, nil
			}
		}
	}
	if v, ok := env.Get(k.Module + "::" + k.Name); ok {
		return v, nil
	}
	return nil, newError(NameError, e.Span(), "undefined path %s::%s", k.Module, k.Name)
}

func (ev *Evaluator) evalBinary(k ast.Binary, e *ast.Expr, env *value.Environment) (value.Value, error) {
	if k.Op == ast.OpAnd {
		l, err := ev.Eval(k.Left, env)
		if err != nil {
			return nil, err
		}
		if !value.Truthy(l) {
			return value.Bool{V: false}, nil
		}
		r, err := ev.Eval(k.Right, env)
		if err != nil {
			return nil, err
		}
		return value.Bool{V: value.Truthy(r)}, nil
	}
	if k.Op == ast.OpOr {
		l, err := ev.Eval(k.Left, env)
		if err != nil {
			return nil, err
		}
		if value.Truthy(l) {
			return value.Bool{V: true}, nil
		}
		r, err := ev.Eval(k.Right, env)
		if err != nil {
			return nil, err
		}
		return value.Bool{V: value.Truthy(r)}, nil
	}
	l, err := ev.Eval(k.Left, env)
	if err != nil {
		return nil, err
	}
	r, err := ev.Eval(k.Right, env)
	if err != nil {
		return nil, err
	}
	return applyBinOp(k.Op, l, r, e, ev.cfg.debug >= DebugTrace)
}

// applyBinOp implements spec.md §4.4's arithmetic/comparison table. checked
// gates integer overflow detection: on, +/-/* test the result against the
// operands and raise ArithmeticOverflow on overflow (** is never checked);
// off (the default, release-mode)
// wraps silently per Go's native int64 semantics, matching OQ-3's decision
// to gate the checked path behind the existing DebugLevel axis instead of
// adding a dedicated overflow-mode flag.
func applyBinOp(op ast.BinOp, l, r value.Value, e *ast.Expr, checked bool) (value.Value, error) {
	switch op {
	case ast.OpEq:
		return value.Bool{V: value.Equal(l, r)}, nil
	case ast.OpNe:
		return value.Bool{V: !value.Equal(l, r)}, nil
	}
	if op == ast.OpAdd {
		if ls, ok := l.(value.String); ok {
			rs, ok2 := r.(value.String)
			if !ok2 {
				return nil, newError(TypeError, e.Span(), "cannot add String and %s", r.Type())
			}
			return value.NewString(ls.String() + rs.String()), nil
		}
		if la, ok := l.(value.Array); ok {
			ra, ok2 := r.(value.Array)
			if !ok2 {
				return nil, newError(TypeError, e.Span(), "cannot add Array and %s", r.Type())
			}
			combined := append(append([]value.Value{}, *la.V...), *ra.V...)
			return value.NewArray(combined), nil
		}
	}
	li, lIsInt := l.(value.Integer)
	ri, rIsInt := r.(value.Integer)
	if lIsInt && rIsInt {
		return intBinOp(op, li, ri, e, checked)
	}
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if lok && rok {
		return floatBinOp(op, lf, rf, e)
	}
	return nil, newError(TypeError, e.Span(), "operator %s not defined for %s and %s", op, l.Type(), r.Type())
}

func asFloat(v value.Value) (float64, bool) {
	switch x := v.(type) {
	case value.Float:
		return x.V, true
	case value.Integer:
		return float64(x.V), true
	}
	return 0, false
}

func intBinOp(op ast.BinOp, l, r value.Integer, e *ast.Expr, checked bool) (value.Value, error) {
	suffix := l.Suffix
	if suffix == "" {
		suffix = r.Suffix
	}
	switch op {
	case ast.OpAdd:
		sum := l.V + r.V
		if checked && ((r.V > 0 && sum < l.V) || (r.V < 0 && sum > l.V)) {
			return nil, newError(ArithmeticOverflow, e.Span(), "integer overflow in %d + %d", l.V, r.V)
		}
		return value.Integer{V: sum, Suffix: suffix}, nil
	case ast.OpSub:
		diff := l.V - r.V
		if checked && ((r.V < 0 && diff < l.V) || (r.V > 0 && diff > l.V)) {
			return nil, newError(ArithmeticOverflow, e.Span(), "integer overflow in %d - %d", l.V, r.V)
		}
		return value.Integer{V: diff, Suffix: suffix}, nil
	case ast.OpMul:
		prod := l.V * r.V
		if checked && l.V != 0 && prod/l.V != r.V {
			return nil, newError(ArithmeticOverflow, e.Span(), "integer overflow in %d * %d", l.V, r.V)
		}
		return value.Integer{V: prod, Suffix: suffix}, nil
	case ast.OpDiv:
		if r.V == 0 {
			return nil, newError(ArithmeticError, e.Span(), "division by zero")
		}
		return value.Integer{V: l.V / r.V, Suffix: suffix}, nil
	case ast.OpMod:
		if r.V == 0 {
			return nil, newError(ArithmeticError, e.Span(), "modulo by zero")
		}
		return value.Integer{V: l.V % r.V, Suffix: suffix}, nil
	case ast.OpPow:
		return value.Integer{V: int64(math.Pow(float64(l.V), float64(r.V))), Suffix: suffix}, nil
	case ast.OpLt:
		return value.Bool{V: l.V < r.V}, nil
	case ast.OpLe:
		return value.Bool{V: l.V <= r.V}, nil
	case ast.OpGt:
		return value.Bool{V: l.V > r.V}, nil
	case ast.OpGe:
		return value.Bool{V: l.V >= r.V}, nil
	case ast.OpBitAnd:
		return value.Integer{V: l.V & r.V, Suffix: suffix}, nil
	case ast.OpBitOr:
		return value.Integer{V: l.V | r.V, Suffix: suffix}, nil
	case ast.OpBitXor:
		return value.Integer{V: l.V ^ r.V, Suffix: suffix}, nil
	case ast.OpShl:
		return value.Integer{V: l.V << uint(r.V), Suffix: suffix}, nil
	case ast.OpShr:
		return value.Integer{V: l.V >> uint(r.V), Suffix: suffix}, nil
	default:
		return nil, newError(TypeError, e.Span(), "operator %s not defined for integers", op)
	}
}

func floatBinOp(op ast.BinOp, l, r float64, e *ast.Expr) (value.Value, error) {
	switch op {
	case ast.OpAdd:
		return value.Float{V: l + r}, nil
	case ast.OpSub:
		return value.Float{V: l - r}, nil
	case ast.OpMul:
		return value.Float{V: l * r}, nil
	case ast.OpDiv:
		return value.Float{V: l / r}, nil
	case ast.OpMod:
		return value.Float{V: math.Mod(l, r)}, nil
	case ast.OpPow:
		return value.Float{V: math.Pow(l, r)}, nil
	case ast.OpLt:
		return value.Bool{V: l < r}, nil
	case ast.OpLe:
		return value.Bool{V: l <= r}, nil
	case ast.OpGt:
		return value.Bool{V: l > r}, nil
	case ast.OpGe:
		return value.Bool{V: l >= r}, nil
	default:
		return nil, newError(TypeError, e.Span(), "operator %s not defined for floats", op)
	}
}

func (ev *Evaluator) evalUnary(k ast.Unary, e *ast.Expr, env *value.Environment) (value.Value, error) {
	v, err := ev.Eval(k.Expr, env)
	if err != nil {
		return nil, err
	}
	switch k.Op {
	case ast.OpNeg:
		switch x := v.(type) {
		case value.Integer:
			return value.Integer{V: -x.V, Suffix: x.Suffix}, nil
		case value.Float:
			return value.Float{V: -x.V}, nil
		}
	case ast.OpNot:
		if b, ok := v.(value.Bool); ok {
			return value.Bool{V: !b.V}, nil
		}
	case ast.OpBitNot:
		if i, ok := v.(value.Integer); ok {
			return value.Integer{V: ^i.V, Suffix: i.Suffix}, nil
		}
	}
	return nil, newError(TypeError, e.Span(), "unary %s not defined for %s", k.Op, v.Type())
}

func (ev *Evaluator) evalAssign(k ast.Assign, e *ast.Expr, env *value.Environment) (value.Value, error) {
	v, err := ev.Eval(k.Value, env)
	if err != nil {
		return nil, err
	}
	if err := ev.assignTo(k.Target, v, e, env); err != nil {
		return nil, err
	}
	return v, nil
}

func (ev *Evaluator) evalCompoundAssign(k ast.CompoundAssign, e *ast.Expr, env *value.Environment) (value.Value, error) {
	cur, err := ev.Eval(k.Target, env)
	if err != nil {
		return nil, err
	}
	rhs, err := ev.Eval(k.Value, env)
	if err != nil {
		return nil, err
	}
	result, err := applyBinOp(k.Op, cur, rhs, e, ev.cfg.debug >= DebugTrace)
	if err != nil {
		return nil, err
	}
	if err := ev.assignTo(k.Target, result, e, env); err != nil {
		return nil, err
	}
	return result, nil
}

func (ev *Evaluator) evalIncDec(k ast.IncDec, e *ast.Expr, env *value.Environment) (value.Value, error) {
	cur, err := ev.Eval(k.Target, env)
	if err != nil {
		return nil, err
	}
	i, ok := cur.(value.Integer)
	if !ok {
		return nil, newError(TypeError, e.Span(), "++/-- requires an integer, found %s", cur.Type())
	}
	delta := int64(1)
	if k.Kind == ast.PreDecrement || k.Kind == ast.PostDecrement {
		delta = -1
	}
	next := value.Integer{V: i.V + delta, Suffix: i.Suffix}
	if err := ev.assignTo(k.Target, next, e, env); err != nil {
		return nil, err
	}
	if k.Kind == ast.PreIncrement || k.Kind == ast.PreDecrement {
		return next, nil
	}
	return i, nil
}

func (ev *Evaluator) assignTo(target *ast.Expr, v value.Value, e *ast.Expr, env *value.Environment) error {
	switch t := target.Kind.(type) {
	case ast.Identifier:
		ok, immutable := env.Set(t.Name, v)
		if immutable {
			return newError(ImmutableAssignError, e.Span(), "cannot assign to immutable binding %q", t.Name)
		}
		if !ok {
			return newNameError(e.Span(), t.Name, env.Names())
		}
		return nil
	case ast.FieldAccess:
		recv, err := ev.Eval(t.Receiver, env)
		if err != nil {
			return err
		}
		switch r := recv.(type) {
		case value.StructInstance:
			(*r.Fields)[t.Field] = v
			return nil
		case value.Object:
			(*r.V)[t.Field] = v
			return nil
		}
		return newError(TypeError, e.Span(), "cannot assign field %q on %s", t.Field, recv.Type())
	case ast.IndexAccess:
		recv, err := ev.Eval(t.Receiver, env)
		if err != nil {
			return err
		}
		idx, err := ev.Eval(t.Index, env)
		if err != nil {
			return err
		}
		arr, ok := recv.(value.Array)
		if !ok {
			return newError(TypeError, e.Span(), "cannot index-assign into %s", recv.Type())
		}
		i, ok := idx.(value.Integer)
		if !ok || i.V < 0 || int(i.V) >= len(*arr.V) {
			return newError(IndexError, e.Span(), "index out of range")
		}
		(*arr.V)[i.V] = v
		return nil
	}
	return newError(TypeError, e.Span(), "invalid assignment target")
}

func (ev *Evaluator) evalLet(k ast.Let, e *ast.Expr, env *value.Environment) (value.Value, error) {
	v, err := ev.Eval(k.Value, env)
	if err != nil {
		return nil, err
	}
	if opt, ok := v.(value.Option); ok && k.Else != nil && !opt.IsSome {
		return ev.Eval(k.Else, env)
	}
	if res, ok := v.(value.Result); ok && k.Else != nil && !res.IsOk {
		return ev.Eval(k.Else, env)
	}
	inner := v
	if opt, ok := v.(value.Option); ok && opt.IsSome {
		inner = opt.Value
	} else if res, ok := v.(value.Result); ok && res.IsOk {
		inner = res.Value
	}
	env.Define(k.Name, inner, k.IsMutable)
	if k.Body != nil {
		return ev.Eval(k.Body, env)
	}
	return value.Unit{}, nil
}

func (ev *Evaluator) evalLetPattern(k ast.LetPattern, e *ast.Expr, env *value.Environment) (value.Value, error) {
	v, err := ev.Eval(k.Value, env)
	if err != nil {
		return nil, err
	}
	ok, err := ev.matchPattern(k.Pattern, v, env, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(NoMatchError, e.Span(), "let pattern did not match value")
	}
	if k.Body != nil {
		return ev.Eval(k.Body, env)
	}
	return value.Unit{}, nil
}

func (ev *Evaluator) evalIf(k ast.If, e *ast.Expr, env *value.Environment) (value.Value, error) {
	cond, err := ev.Eval(k.Cond, env)
	if err != nil {
		return nil, err
	}
	b, ok := cond.(value.Bool)
	if !ok {
		return nil, newError(TypeError, e.Span(), "if condition must be Bool, found %s", cond.Type())
	}
	if b.V {
		return ev.Eval(k.Then, env)
	}
	if k.Else != nil {
		return ev.Eval(k.Else, env)
	}
	return value.Unit{}, nil
}

func (ev *Evaluator) evalIfLet(k ast.IfLet, e *ast.Expr, env *value.Environment) (value.Value, error) {
	v, err := ev.Eval(k.Value, env)
	if err != nil {
		return nil, err
	}
	scope := env.Child()
	ok, err := ev.matchPattern(k.Pattern, v, scope, false)
	if err != nil {
		return nil, err
	}
	if ok {
		return ev.Eval(k.Then, scope)
	}
	if k.Else != nil {
		return ev.Eval(k.Else, env)
	}
	return value.Unit{}, nil
}

func (ev *Evaluator) evalMatch(k ast.Match, e *ast.Expr, env *value.Environment) (value.Value, error) {
	subject, err := ev.Eval(k.Expr, env)
	if err != nil {
		return nil, err
	}
	for _, arm := range k.Arms {
		scope := env.Child()
		ok, err := ev.matchPattern(arm.Pattern, subject, scope, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if arm.Guard != nil {
			g, err := ev.Eval(arm.Guard, scope)
			if err != nil {
				return nil, err
			}
			if !value.Truthy(g) {
				continue
			}
		}
		return ev.Eval(arm.Body, scope)
	}
	return nil, newError(NoMatchError, e.Span(), "no match arm matched value %s", value.Repr(subject))
}

func (ev *Evaluator) evalWhile(k ast.While, env *value.Environment) (value.Value, error) {
	for {
		cond, err := ev.Eval(k.Cond, env)
		if err != nil {
			return nil, err
		}
		if !value.Truthy(cond) {
			return value.Unit{}, nil
		}
		if _, err := ev.Eval(k.Body, env); err != nil {
			if s, ok := asSignal(err); ok {
				if s.kind == sigBreak {
					return value.Unit{}, nil
				}
				if s.kind == sigContinue {
					continue
				}
			}
			return nil, err
		}
	}
}

func (ev *Evaluator) evalWhileLet(k ast.WhileLet, env *value.Environment) (value.Value, error) {
	for {
		v, err := ev.Eval(k.Value, env)
		if err != nil {
			return nil, err
		}
		scope := env.Child()
		ok, err := ev.matchPattern(k.Pattern, v, scope, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			return value.Unit{}, nil
		}
		if _, err := ev.Eval(k.Body, scope); err != nil {
			if s, ok := asSignal(err); ok {
				if s.kind == sigBreak {
					return value.Unit{}, nil
				}
				if s.kind == sigContinue {
					continue
				}
			}
			return nil, err
		}
	}
}

func (ev *Evaluator) evalLoop(k ast.Loop, env *value.Environment) (value.Value, error) {
	for {
		if _, err := ev.Eval(k.Body, env); err != nil {
			if s, ok := asSignal(err); ok {
				if s.kind == sigBreak {
					return s.value, nil
				}
				if s.kind == sigContinue {
					continue
				}
			}
			return nil, err
		}
	}
}

func (ev *Evaluator) evalFor(k ast.For, e *ast.Expr, env *value.Environment) (value.Value, error) {
	iterVal, err := ev.Eval(k.Iter, env)
	if err != nil {
		return nil, err
	}
	items, err := ev.iterate(iterVal, e)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		scope := env.Child()
		if _, err := ev.matchPattern(k.Pattern, item, scope, true); err != nil {
			return nil, err
		}
		if _, err := ev.Eval(k.Body, scope); err != nil {
			if s, ok := asSignal(err); ok {
				if s.kind == sigBreak {
					return value.Unit{}, nil
				}
				if s.kind == sigContinue {
					continue
				}
			}
			return nil, err
		}
	}
	return value.Unit{}, nil
}

// iterate implements the internal iterator protocol of spec.md §4.4: Range,
// Array, HashMap (as key/value tuples), HashSet, and String (by char).
// Object values are not iterable, and Object has no items() method.
func (ev *Evaluator) iterate(v value.Value, e *ast.Expr) ([]value.Value, error) {
	switch x := v.(type) {
	case value.Range:
		var out []value.Value
		end := x.End
		if x.Inclusive {
			end++
		}
		for i := x.Start; i < end; i++ {
			out = append(out, value.Integer{V: i})
		}
		return out, nil
	case value.Array:
		if x.V == nil {
			return nil, nil
		}
		return append([]value.Value{}, *x.V...), nil
	case value.HashSet:
		if x.V == nil {
			return nil, nil
		}
		var out []value.Value
		for _, v := range *x.V {
			out = append(out, v)
		}
		return out, nil
	case value.HashMap:
		if x.Vals == nil {
			return nil, nil
		}
		var out []value.Value
		for k, v := range *x.Vals {
			out = append(out, value.Tuple{V: []value.Value{value.NewString(k), v}})
		}
		return out, nil
	case value.String:
		var out []value.Value
		for _, r := range x.String() {
			out = append(out, value.Char{V: r})
		}
		return out, nil
	default:
		return nil, newError(TypeError, e.Span(), "%s is not iterable", v.Type())
	}
}

func (ev *Evaluator) evalTry(k ast.Try, e *ast.Expr, env *value.Environment) (value.Value, error) {
	v, err := ev.Eval(k.Expr, env)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case value.Result:
		if x.IsOk {
			return x.Value, nil
		}
		return nil, &signal{kind: sigReturn, value: value.Result{IsOk: false, Value: x.Value}}
	case value.Option:
		if x.IsSome {
			return x.Value, nil
		}
		return nil, &signal{kind: sigReturn, value: value.Option{IsSome: false}}
	default:
		return nil, newError(TypeError, e.Span(), "`?` requires Result or Option, found %s", v.Type())
	}
}

func (ev *Evaluator) evalTryCatch(k ast.TryCatch, env *value.Environment) (value.Value, error) {
	v, err := ev.Eval(k.Body, env)
	if err == nil {
		return v, nil
	}
	s, ok := asSignal(err)
	if !ok || s.kind != sigThrow {
		return nil, err
	}
	scope := env.Child()
	if k.CatchVar != "" {
		scope.Define(k.CatchVar, s.value, false)
	}
	return ev.Eval(k.CatchBody, scope)
}

func (ev *Evaluator) evalFieldAccess(k ast.FieldAccess, e *ast.Expr, env *value.Environment) (value.Value, error) {
	recv, err := ev.Eval(k.Receiver, env)
	if err != nil {
		return nil, err
	}
	switch r := recv.(type) {
	case value.StructInstance:
		if v, ok := (*r.Fields)[k.Field]; ok {
			return v, nil
		}
		return nil, newError(NameError, e.Span(), "struct %s has no field %q", r.Struct, k.Field)
	case value.Object:
		if v, ok := (*r.V)[k.Field]; ok {
			return v, nil
		}
		return nil, newError(NameError, e.Span(), "object has no field %q", k.Field)
	case value.Tuple:
		idx, err := tupleFieldIndex(k.Field)
		if err == nil && idx >= 0 && idx < len(r.V) {
			return r.V[idx], nil
		}
		return nil, newError(IndexError, e.Span(), "tuple has no field %q", k.Field)
	case value.Range:
		switch k.Field {
		case "start":
			return value.Integer{V: r.Start}, nil
		case "end":
			return value.Integer{V: r.End}, nil
		}
	}
	return nil, newError(TypeError, e.Span(), "cannot access field %q on %s", k.Field, recv.Type())
}

func tupleFieldIndex(name string) (int, error) {
	n := 0
	if len(name) == 0 {
		return -1, fmt.Errorf("empty field name")
	}
	for _, c := range name {
		if c < '0' || c > '9' {
			return -1, fmt.Errorf("not a tuple index")
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func (ev *Evaluator) evalIndexAccess(k ast.IndexAccess, e *ast.Expr, env *value.Environment) (value.Value, error) {
	recv, err := ev.Eval(k.Receiver, env)
	if err != nil {
		return nil, err
	}
	idx, err := ev.Eval(k.Index, env)
	if err != nil {
		return nil, err
	}
	switch r := recv.(type) {
	case value.Array:
		i, ok := idx.(value.Integer)
		if !ok {
			return nil, newError(TypeError, e.Span(), "array index must be an integer")
		}
		if r.V == nil || i.V < 0 || int(i.V) >= len(*r.V) {
			return nil, newError(IndexError, e.Span(), "index %d out of range", i.V)
		}
		return (*r.V)[i.V], nil
	case value.Tuple:
		i, ok := idx.(value.Integer)
		if !ok || i.V < 0 || int(i.V) >= len(r.V) {
			return nil, newError(IndexError, e.Span(), "tuple index out of range")
		}
		return r.V[i.V], nil
	case value.String:
		i, ok := idx.(value.Integer)
		if !ok {
			return nil, newError(TypeError, e.Span(), "string index must be an integer")
		}
		runes := []rune(r.String())
		if i.V < 0 || int(i.V) >= len(runes) {
			return nil, newError(IndexError, e.Span(), "index %d out of range", i.V)
		}
		return value.Char{V: runes[i.V]}, nil
	case value.Object:
		key, ok := idx.(value.String)
		if !ok {
			return nil, newError(TypeError, e.Span(), "object index must be a string")
		}
		if v, ok := (*r.V)[key.String()]; ok {
			return v, nil
		}
		return nil, newError(IndexError, e.Span(), "no such key %q", key.String())
	case value.HashMap:
		if v, ok := (*r.Vals)[value.CanonicalKey(idx)]; ok {
			return v, nil
		}
		return nil, newError(IndexError, e.Span(), "no such key in map")
	}
	return nil, newError(TypeError, e.Span(), "cannot index %s", recv.Type())
}

func (ev *Evaluator) evalSlice(k ast.Slice, e *ast.Expr, env *value.Environment) (value.Value, error) {
	recv, err := ev.Eval(k.Receiver, env)
	if err != nil {
		return nil, err
	}
	var length int
	switch r := recv.(type) {
	case value.Array:
		if r.V != nil {
			length = len(*r.V)
		}
	case value.String:
		length = len([]rune(r.String()))
	default:
		return nil, newError(TypeError, e.Span(), "cannot slice %s", recv.Type())
	}
	lo, hi := 0, length
	if k.Start != nil {
		v, err := ev.Eval(k.Start, env)
		if err != nil {
			return nil, err
		}
		iv, ok := v.(value.Integer)
		if !ok {
			return nil, newError(TypeError, e.Span(), "slice bound must be an integer, found %s", v.Type())
		}
		lo = int(iv.V)
	}
	if k.End != nil {
		v, err := ev.Eval(k.End, env)
		if err != nil {
			return nil, err
		}
		iv, ok := v.(value.Integer)
		if !ok {
			return nil, newError(TypeError, e.Span(), "slice bound must be an integer, found %s", v.Type())
		}
		hi = int(iv.V)
		if k.Inclusive {
			hi++
		}
	}
	if lo > hi {
		return nil, newError(InvalidRange, e.Span(), "slice [%d:%d] has a reversed range", lo, hi)
	}
	if lo < 0 || hi > length {
		return nil, newError(IndexError, e.Span(), "slice [%d:%d] out of range for length %d", lo, hi, length)
	}
	switch r := recv.(type) {
	case value.Array:
		sliced := append([]value.Value{}, (*r.V)[lo:hi]...)
		return value.NewArray(sliced), nil
	case value.String:
		runes := []rune(r.String())
		return value.NewString(string(runes[lo:hi])), nil
	}
	return nil, newError(TypeError, e.Span(), "cannot slice %s", recv.Type())
}

func (ev *Evaluator) evalStructLit(k ast.StructLit, e *ast.Expr, env *value.Environment) (value.Value, error) {
	fields := map[string]value.Value{}
	decl, hasDecl := ev.structs[k.Name]
	if hasDecl {
		for _, f := range decl.Fields {
			if f.Default != nil {
				v, err := ev.Eval(f.Default, env)
				if err != nil {
					return nil, err
				}
				fields[f.Name] = v
			}
		}
	}
	if k.Base != nil {
		base, err := ev.Eval(k.Base, env)
		if err != nil {
			return nil, err
		}
		if si, ok := base.(value.StructInstance); ok {
			for name, v := range *si.Fields {
				fields[name] = v
			}
		}
	}
	for _, f := range k.Fields {
		if f.Value == nil {
			v, ok := env.Get(f.Name)
			if !ok {
				return nil, newError(NameError, e.Span(), "shorthand field %q has no matching binding", f.Name)
			}
			fields[f.Name] = v
			continue
		}
		v, err := ev.Eval(f.Value, env)
		if err != nil {
			return nil, err
		}
		fields[f.Name] = v
	}
	return value.StructInstance{Struct: k.Name, Fields: &fields}, nil
}

func (ev *Evaluator) evalTupleStructLit(k ast.TupleStructLit, e *ast.Expr, env *value.Environment) (value.Value, error) {
	args, err := ev.evalExprList(k.Args, env)
	if err != nil {
		return nil, err
	}
	fields := map[string]value.Value{}
	for i, a := range args {
		fields[fmt.Sprintf("%d", i)] = a
	}
	return value.StructInstance{Struct: k.Name, Fields: &fields}, nil
}

func (ev *Evaluator) evalCall(k ast.Call, e *ast.Expr, env *value.Environment) (value.Value, error) {
	// Bare builtin calls (print(x), sqrt(x), ...) mirror the print!/println!
	// macro forms so S2/S4/S5-style source using call syntax without the `!`
	// also runs; a user binding of the same name always wins.
	if ident, ok := k.Callee.Kind.(ast.Identifier); ok && builtinNames[ident.Name] {
		if _, shadowed := env.Get(ident.Name); !shadowed {
			return ev.evalBuiltinCall(ident.Name, k, e, env)
		}
	}
	// `Some(x)`/`Ok(x)`/`Err(x)`/`None` parse to dedicated wrapper nodes and
	// never reach here; enum tuple-variant constructors and plain function
	// calls are the remaining Call shapes.
	if q, ok := k.Callee.Kind.(ast.QualifiedName); ok {
		if enumDecl, isEnum := ev.enums[q.Module]; isEnum {
			for _, variant := range enumDecl.Variants {
				if variant.Name == q.Name {
					args, err := ev.evalExprList(k.Args, env)
					if err != nil {
						return nil, err
					}
					return value.EnumVariant{Enum: q.Module, Variant: q.Name, Data: args}, nil
				}
			}
		}
		if q.Module == "String" && q.Name == "from" {
			args, err := ev.evalExprList(k.Args, env)
			if err != nil {
				return nil, err
			}
			if len(args) == 1 {
				return value.NewString(args[0].String()), nil
			}
			return value.NewString(""), nil
		}
	}
	callee, err := ev.Eval(k.Callee, env)
	if err != nil {
		return nil, err
	}
	args, err := ev.evalExprList(k.Args, env)
	if err != nil {
		return nil, err
	}
	return ev.call(callee, args, e)
}

// call invokes a Function or Lambda value. ev.telemetry.CallsMade is bumped
// regardless of TelemetryLevel; the level only gates whether a caller
// bothers reading it.
func (ev *Evaluator) call(callee value.Value, args []value.Value, e *ast.Expr) (value.Value, error) {
	ev.telemetry.CallsMade++
	switch fn := callee.(type) {
	case value.Function:
		return ev.invoke(fn.Params, fn.Body, fn.CapturedEnv, args, e)
	case value.Lambda:
		return ev.invoke(fn.Params, fn.Body, fn.CapturedEnv, args, e)
	default:
		return nil, newError(TypeError, e.Span(), "%s is not callable", callee.Type())
	}
}

func (ev *Evaluator) invoke(params []ast.Param, body *ast.Expr, captured *value.Environment, args []value.Value, e *ast.Expr) (value.Value, error) {
	frame := captured.Child()
	for i, param := range params {
		var v value.Value
		switch {
		case i < len(args):
			v = args[i]
		case param.Default != nil:
			dv, err := ev.Eval(param.Default, frame)
			if err != nil {
				return nil, err
			}
			v = dv
		default:
			return nil, newError(TypeError, e.Span(), "missing argument %d", i+1)
		}
		if _, err := ev.matchPattern(param.Pattern, v, frame, true); err != nil {
			return nil, err
		}
	}
	result, err := ev.Eval(body, frame)
	if err != nil {
		if s, ok := asSignal(err); ok && s.kind == sigReturn {
			return s.value, nil
		}
		return nil, err
	}
	return result, nil
}

func (ev *Evaluator) evalMethodCall(k ast.MethodCall, e *ast.Expr, env *value.Environment) (value.Value, error) {
	recv, err := ev.Eval(k.Receiver, env)
	if err != nil {
		return nil, err
	}
	args, err := ev.evalExprList(k.Args, env)
	if err != nil {
		return nil, err
	}
	if si, ok := recv.(value.StructInstance); ok {
		if methods, ok := ev.methods[si.Struct]; ok {
			if fn, ok := methods[k.Method]; ok {
				frame := ev.globals.Child()
				frame.Define("self", si, true)
				return ev.invoke(fn.Params, fn.Body, frame, args, e)
			}
		}
	}
	// `"42".parse::<i32>()` is the unwrapping form spec.md §8's S6 scenario
	// exercises (turbofish supplies the target type so the parse can't
	// fail silently into a Result); the untyped `parse_int`/`parse_float`
	// methods remain the explicit-error-handling form.
	if k.Method == "parse" && len(k.Turbofish) == 1 {
		return ev.evalTurbofishParse(recv, k.Turbofish[0], e)
	}
	if result, handled, err := ev.evalBuiltinMethod(recv, k.Method, args, e); handled {
		return result, err
	}
	noMethod := newError(NameError, e.Span(), "no method %q on %s", k.Method, recv.Type())
	noMethod.Suggestions = suggestMethod(recv.Type(), k.Method)
	return nil, noMethod
}

func (ev *Evaluator) evalMacro(k ast.Macro, e *ast.Expr, env *value.Environment) (value.Value, error) {
	switch k.Name {
	case "println", "print":
		args, err := ev.evalExprList(k.Args, env)
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		sep := ""
		if k.Name == "println" {
			sep = "\n"
		}
		fmt.Fprint(ev.cfg.stdout, joinSpace(parts)+sep)
		return value.Unit{}, nil
	case "df":
		return ev.evalDataFrameMacro(k, env)
	case "sql":
		return value.NewString(k.SQL), nil
	default:
		return nil, newError(TypeError, e.Span(), "unknown macro %s!", k.Name)
	}
}

func joinSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

func (ev *Evaluator) evalDataFrameMacro(k ast.Macro, env *value.Environment) (value.Value, error) {
	var cols []value.DataFrameColumn
	for _, col := range k.DataFrame {
		nameV, err := ev.Eval(col.Name, env)
		if err != nil {
			return nil, err
		}
		dataV, err := ev.Eval(col.Data, env)
		if err != nil {
			return nil, err
		}
		arr, ok := dataV.(value.Array)
		var data []value.Value
		if ok && arr.V != nil {
			data = *arr.V
		}
		cols = append(cols, value.DataFrameColumn{Name: nameV.String(), Data: data})
	}
	return value.DataFrame{V: &cols}, nil
}
