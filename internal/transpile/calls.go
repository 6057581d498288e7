package transpile

import (
	"fmt"
	"strings"

	"github.com/paiml/ruchy/internal/ast"
)

// callArg lowers one call argument, inserting a `.clone()` per spec.md
// §4.7 item 9 when a plain local bound before the innermost loop is
// passed by value inside that loop's body — without it, the loop's next
// iteration would see a moved-from value in the target language.
func (tr *transpiler) callArg(e *ast.Expr, c *ctx) (string, error) {
	text, err := tr.expr(e, c)
	if err != nil {
		return "", err
	}
	if c.inLoop {
		if id, ok := e.Kind.(ast.Identifier); ok && c.boundBeforeLoop[id.Name] {
			return text + ".clone()", nil
		}
	}
	return text, nil
}

func (tr *transpiler) call(k ast.Call, e *ast.Expr, c *ctx) (string, error) {
	if id, ok := k.Callee.Kind.(ast.Identifier); ok {
		argTexts, err := tr.exprList(k.Args, c)
		if err != nil {
			return "", err
		}
		if lowered, handled := lowerBuiltinCall(id.Name, argTexts); handled {
			return lowered, nil
		}
	}
	callee, err := tr.expr(k.Callee, c)
	if err != nil {
		return "", err
	}
	args := make([]string, len(k.Args))
	for i, a := range k.Args {
		s, err := tr.callArg(a, c)
		if err != nil {
			return "", err
		}
		args[i] = s
	}
	return fmt.Sprintf("%s(%s)", callee, strings.Join(args, ", ")), nil
}

func (tr *transpiler) methodCall(k ast.MethodCall, e *ast.Expr, c *ctx) (string, error) {
	if chain, ok, err := tr.tryDataFrameBuilderChain(k, c); err != nil {
		return "", err
	} else if ok {
		return chain, nil
	}
	recv, err := tr.expr(k.Receiver, c)
	if err != nil {
		return "", err
	}
	method := renameMethod(k.Method)
	turbofish := ""
	if len(k.Turbofish) > 0 {
		parts := make([]string, len(k.Turbofish))
		for i, t := range k.Turbofish {
			s, terr := typeName(t)
			if terr != nil {
				return "", terr
			}
			parts[i] = s
		}
		turbofish = "::<" + strings.Join(parts, ", ") + ">"
	}
	args := make([]string, len(k.Args))
	if method == "contains" && len(k.Args) == 1 {
		arg := k.Args[0]
		autoBorrow := false
		switch a := arg.Kind.(type) {
		case ast.Identifier:
			autoBorrow = c.info.StringVars[a.Name]
		case ast.FieldAccess:
			autoBorrow = true
		}
		s, err := tr.expr(arg, c)
		if err != nil {
			return "", err
		}
		if autoBorrow {
			s = "&" + s
		}
		args[0] = s
	} else {
		for i, a := range k.Args {
			s, err := tr.callArg(a, c)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
	}
	return fmt.Sprintf("%s.%s%s(%s)", recv, method, turbofish, strings.Join(args, ", ")), nil
}

// dataFrameChain implements spec.md §4.7 item 12 directly from a parsed
// `df![...]` literal: gather (name, data) pairs into one constructor call.
func (tr *transpiler) dataFrameChain(cols []ast.DataFrameColumn, c *ctx) (string, error) {
	var pairs []string
	for _, col := range cols {
		name, err := tr.expr(col.Name, c)
		if err != nil {
			return "", err
		}
		data, err := tr.expr(col.Data, c)
		if err != nil {
			return "", err
		}
		pairs = append(pairs, fmt.Sprintf("(%s, %s)", name, data))
	}
	return "DataFrame::from_columns(vec![" + strings.Join(pairs, ", ") + "])", nil
}

// tryDataFrameBuilderChain recognizes the
// `DataFrame::new().column(n1,d1)....build()` method-call chain and lowers
// the whole chain to a single constructor call (spec.md §4.7 item 12),
// since the chain parses as nested MethodCall/Call nodes rather than a
// dedicated AST form.
func (tr *transpiler) tryDataFrameBuilderChain(k ast.MethodCall, c *ctx) (string, bool, error) {
	if k.Method != "build" || len(k.Args) != 0 {
		return "", false, nil
	}
	var pairs []string
	cur := k.Receiver
	for {
		mc, ok := cur.Kind.(ast.MethodCall)
		if !ok || mc.Method != "column" || len(mc.Args) != 2 {
			break
		}
		name, err := tr.expr(mc.Args[0], c)
		if err != nil {
			return "", false, err
		}
		data, err := tr.expr(mc.Args[1], c)
		if err != nil {
			return "", false, err
		}
		pairs = append([]string{fmt.Sprintf("(%s, %s)", name, data)}, pairs...)
		cur = mc.Receiver
	}
	if len(pairs) == 0 {
		return "", false, nil
	}
	call, ok := cur.Kind.(ast.Call)
	if !ok {
		return "", false, nil
	}
	qn, ok := call.Callee.Kind.(ast.QualifiedName)
	if !ok || qn.Module != "DataFrame" || qn.Name != "new" {
		return "", false, nil
	}
	return "DataFrame::from_columns(vec![" + strings.Join(pairs, ", ") + "])", true, nil
}

// macroExpr lowers spec.md §6's `name!(...)`, `df![...]`, and `sql!{...}`
// macro forms. println/print map 1:1 onto the target's formatting macros;
// df! reuses the DataFrame builder lowering; sql! is emitted as a raw
// query string, since core has no SQL execution engine of its own.
func (tr *transpiler) macroExpr(k ast.Macro, c *ctx) (string, error) {
	switch k.Name {
	case "df":
		return tr.dataFrameChain(k.DataFrame, c)
	case "sql":
		return fmt.Sprintf("%q", k.SQL), nil
	case "println", "print":
		if len(k.Args) == 0 {
			return k.Name + "!()", nil
		}
		args, err := tr.exprList(k.Args, c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s!(%s)", k.Name, strings.Join(args, ", ")), nil
	default:
		args, err := tr.exprList(k.Args, c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s!(%s)", k.Name, strings.Join(args, ", ")), nil
	}
}
