package eval

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/value"
)

// builtinNames lists the free-function names spec.md §8's seed scenarios
// call bare (print(c), not only print!(c)) and the transcendental/utility
// builtins transpile/builtins.go lowers specially (§4.7 item 11). Keeping
// this as a name-checked set, rather than always falling through to a
// user binding lookup first, lets a user shadow any of them with a local
// `let print = ...` or `fun sin(...)` without the builtin winning.
var builtinNames = map[string]bool{
	"print": true, "println": true, "assert": true, "assert_eq": true, "panic": true,
	"sin": true, "cos": true, "tan": true, "log": true, "log10": true, "sqrt": true,
	"abs": true, "floor": true, "ceil": true, "round": true, "min": true, "max": true,
	"random": true, "time_micros": true, "compute_hash": true,
}

// evalBuiltinCall dispatches a bare call to one of builtinNames. Callers
// must already have confirmed name is in builtinNames and unshadowed by a
// user binding.
func (ev *Evaluator) evalBuiltinCall(name string, k ast.Call, e *ast.Expr, env *value.Environment) (value.Value, error) {
	args, err := ev.evalExprList(k.Args, env)
	if err != nil {
		return nil, err
	}
	switch name {
	case "print", "println":
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		sep := ""
		if name == "println" {
			sep = "\n"
		}
		fmt.Fprint(ev.cfg.stdout, joinSpace(parts)+sep)
		return value.Unit{}, nil
	case "assert":
		return ev.evalAssert(args, e)
	case "assert_eq":
		return ev.evalAssertEq(args, e)
	case "panic":
		msg := "explicit panic"
		if len(args) > 0 {
			msg = args[0].String()
		}
		return nil, &RuntimeError{Kind: UserError, Message: msg, Span: e.Span(), Value: value.NewString(msg)}
	case "sqrt", "sin", "cos", "tan", "log", "log10", "abs", "floor", "ceil", "round":
		return evalUnaryMathBuiltin(name, args, e)
	case "min", "max":
		return evalMinMax(name, args, e)
	case "random":
		return value.Float{V: rand.Float64()}, nil
	case "time_micros":
		return value.Integer{V: time.Now().UnixMicro(), Suffix: "i64"}, nil
	case "compute_hash":
		return evalComputeHash(args, e)
	}
	return nil, newError(TypeError, e.Span(), "unknown builtin %q", name)
}

func (ev *Evaluator) evalAssert(args []value.Value, e *ast.Expr) (value.Value, error) {
	if len(args) == 0 {
		return nil, newError(TypeError, e.Span(), "assert expects at least 1 argument")
	}
	b, ok := args[0].(value.Bool)
	if !ok {
		return nil, newError(TypeError, e.Span(), "assert condition must be bool, got %s", args[0].Type())
	}
	if b.V {
		return value.Unit{}, nil
	}
	msg := "assertion failed"
	if len(args) > 1 {
		msg = args[1].String()
	}
	return nil, &RuntimeError{Kind: UserError, Message: msg, Span: e.Span(), Value: value.NewString(msg)}
}

func (ev *Evaluator) evalAssertEq(args []value.Value, e *ast.Expr) (value.Value, error) {
	if len(args) < 2 {
		return nil, newError(TypeError, e.Span(), "assert_eq expects at least 2 arguments")
	}
	if value.Equal(args[0], args[1]) {
		return value.Unit{}, nil
	}
	msg := fmt.Sprintf("assertion failed: `(left == right)`\n  left: %s\n right: %s", args[0].String(), args[1].String())
	if len(args) > 2 {
		msg = args[2].String()
	}
	return nil, &RuntimeError{Kind: UserError, Message: msg, Span: e.Span(), Value: value.NewString(msg)}
}

func evalUnaryMathBuiltin(name string, args []value.Value, e *ast.Expr) (value.Value, error) {
	if len(args) != 1 {
		return nil, newError(TypeError, e.Span(), "%s expects exactly 1 argument", name)
	}
	f, ok := asFloat(args[0])
	if !ok {
		return nil, newError(TypeError, e.Span(), "%s expects a number, got %s", name, args[0].Type())
	}
	switch name {
	case "sqrt":
		return value.Float{V: math.Sqrt(f)}, nil
	case "sin":
		return value.Float{V: math.Sin(f)}, nil
	case "cos":
		return value.Float{V: math.Cos(f)}, nil
	case "tan":
		return value.Float{V: math.Tan(f)}, nil
	case "log":
		return value.Float{V: math.Log(f)}, nil
	case "log10":
		return value.Float{V: math.Log10(f)}, nil
	case "abs":
		if i, ok := args[0].(value.Integer); ok {
			if i.V < 0 {
				return value.Integer{V: -i.V, Suffix: i.Suffix}, nil
			}
			return i, nil
		}
		return value.Float{V: math.Abs(f)}, nil
	case "floor":
		return value.Float{V: math.Floor(f)}, nil
	case "ceil":
		return value.Float{V: math.Ceil(f)}, nil
	case "round":
		return value.Float{V: math.Round(f)}, nil
	}
	return nil, newError(TypeError, e.Span(), "unknown builtin %q", name)
}

func evalMinMax(name string, args []value.Value, e *ast.Expr) (value.Value, error) {
	if len(args) != 2 {
		return nil, newError(TypeError, e.Span(), "%s expects exactly 2 arguments", name)
	}
	if li, lok := args[0].(value.Integer); lok {
		if ri, rok := args[1].(value.Integer); rok {
			if (name == "min") == (li.V < ri.V) {
				return li, nil
			}
			return ri, nil
		}
	}
	lf, lok := asFloat(args[0])
	rf, rok := asFloat(args[1])
	if !lok || !rok {
		return nil, newError(TypeError, e.Span(), "%s expects numbers, got %s and %s", name, args[0].Type(), args[1].Type())
	}
	if name == "min" {
		return value.Float{V: math.Min(lf, rf)}, nil
	}
	return value.Float{V: math.Max(lf, rf)}, nil
}

// evalTurbofishParse implements "s".parse::<T>() for the integer and float
// families: unlike parse_int/parse_float it unwraps straight to the value
// or a RuntimeError, matching Rust's `str::parse::<T>().unwrap()` idiom.
func (ev *Evaluator) evalTurbofishParse(recv value.Value, target *ast.TypeExpr, e *ast.Expr) (value.Value, error) {
	str, ok := recv.(value.String)
	if !ok {
		return nil, newError(TypeError, e.Span(), "parse::<T>() expects a string receiver, got %s", recv.Type())
	}
	typeName := ast.BaseTypeName(target)
	text := strings.TrimSpace(str.String())
	switch {
	case strings.HasPrefix(typeName, "f"):
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, newError(TypeError, e.Span(), "parse::<%s>(): %s", typeName, err)
		}
		return value.Float{V: f}, nil
	case strings.HasPrefix(typeName, "i") || strings.HasPrefix(typeName, "u"):
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, newError(TypeError, e.Span(), "parse::<%s>(): %s", typeName, err)
		}
		return value.Integer{V: n, Suffix: typeName}, nil
	default:
		return nil, newError(TypeError, e.Span(), "parse::<%s>() is not a supported target type", typeName)
	}
}

// evalComputeHash streams the named file through MD5 in fixed-size chunks,
// mirroring the streaming digest transpile/builtins.go emits for Rust.
func evalComputeHash(args []value.Value, e *ast.Expr) (value.Value, error) {
	if len(args) != 1 {
		return nil, newError(TypeError, e.Span(), "compute_hash expects exactly 1 argument")
	}
	path := args[0].String()
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(UserError, e.Span(), "compute_hash: %s", err)
	}
	defer f.Close()
	h := md5.New()
	buf := make([]byte, 8192)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}
	return value.NewString(hex.EncodeToString(h.Sum(nil))), nil
}
