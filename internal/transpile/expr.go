package transpile

import (
	"fmt"
	"strings"

	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/mutation"
)

// ctx threads per-function lowering state through expr emission: the
// mutation-analysis Info for the enclosing function (spec.md §4.3), its
// declared return type (for empty-vec inference), and loop-nesting state
// for the moved-value clone insertion of spec.md §4.7 item 9.
type ctx struct {
	info            *mutation.Info
	returnType      *ast.TypeExpr
	inLoop          bool
	boundBeforeLoop map[string]bool
	known           map[string]bool
}

func isBlockLikeKind(k ast.ExprKind) bool {
	switch k.(type) {
	case ast.If, ast.IfLet, ast.Match, ast.While, ast.WhileLet, ast.For, ast.Loop, ast.Block, ast.TryCatch, ast.AsyncBlock:
		return true
	}
	return false
}

func binOpText(op ast.BinOp) (string, bool) {
	switch op {
	case ast.OpAdd:
		return "+", true
	case ast.OpSub:
		return "-", true
	case ast.OpMul:
		return "*", true
	case ast.OpDiv:
		return "/", true
	case ast.OpMod:
		return "%", true
	case ast.OpEq:
		return "==", true
	case ast.OpNe:
		return "!=", true
	case ast.OpLt:
		return "<", true
	case ast.OpLe:
		return "<=", true
	case ast.OpGt:
		return ">", true
	case ast.OpGe:
		return ">=", true
	case ast.OpAnd:
		return "&&", true
	case ast.OpOr:
		return "||", true
	case ast.OpBitAnd:
		return "&", true
	case ast.OpBitOr:
		return "|", true
	case ast.OpBitXor:
		return "^", true
	case ast.OpShl:
		return "<<", true
	case ast.OpShr:
		return ">>", true
	}
	return "", false
}

func (tr *transpiler) expr(e *ast.Expr, c *ctx) (string, error) {
	if e == nil {
		return "", nil
	}
	switch k := e.Kind.(type) {
	case ast.IntLit, ast.FloatLit, ast.StringLit, ast.BoolLit, ast.CharLit, ast.UnitLit:
		return e.Kind.String(), nil
	case ast.Identifier:
		return k.Name, nil
	case ast.QualifiedName:
		return k.Module + "::" + k.Name, nil
	case ast.Binary:
		return tr.binary(k, e, c)
	case ast.Unary:
		inner, err := tr.expr(k.Expr, c)
		if err != nil {
			return "", err
		}
		op := "-"
		if k.Op == ast.OpNot || k.Op == ast.OpBitNot {
			op = "!"
		}
		return fmt.Sprintf("(%s%s)", op, inner), nil
	case ast.Assign:
		target, err := tr.expr(k.Target, c)
		if err != nil {
			return "", err
		}
		value, err := tr.expr(k.Value, c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", target, value), nil
	case ast.CompoundAssign:
		target, err := tr.expr(k.Target, c)
		if err != nil {
			return "", err
		}
		value, err := tr.expr(k.Value, c)
		if err != nil {
			return "", err
		}
		if k.Op == ast.OpPow {
			return fmt.Sprintf("%s = ((%s) as f64).powf((%s) as f64)", target, target, value), nil
		}
		op, ok := binOpText(k.Op)
		if !ok {
			return "", newError(Unsupported, e.SpanV, "unsupported compound-assign operator")
		}
		return fmt.Sprintf("%s %s= %s", target, op, value), nil
	case ast.IncDec:
		target, err := tr.expr(k.Target, c)
		if err != nil {
			return "", err
		}
		if k.Kind == ast.PreIncrement || k.Kind == ast.PostIncrement {
			return fmt.Sprintf("%s += 1", target), nil
		}
		return fmt.Sprintf("%s -= 1", target), nil
	case ast.If:
		return tr.ifExpr(k, c)
	case ast.IfLet:
		return tr.ifLetExpr(k, c)
	case ast.Match:
		return tr.matchExpr(k, c)
	case ast.While:
		return tr.whileExpr(k, c)
	case ast.WhileLet:
		return tr.whileLetExpr(k, c)
	case ast.For:
		return tr.forExpr(k, c)
	case ast.Loop:
		return tr.loopExpr(k, c)
	case ast.Break:
		if k.Value != nil {
			v, err := tr.expr(k.Value, c)
			if err != nil {
				return "", err
			}
			return "break " + v, nil
		}
		return "break", nil
	case ast.Continue:
		return "continue", nil
	case ast.Return:
		if k.Value != nil {
			v, err := tr.expr(k.Value, c)
			if err != nil {
				return "", err
			}
			return "return " + v, nil
		}
		return "return", nil
	case ast.Let:
		return tr.letExpr(k, c)
	case ast.LetPattern:
		return tr.letPatternExpr(k, c)
	case ast.Block:
		return tr.block(e, c)
	case ast.ListLit:
		return tr.listLit(k, c, "_")
	case ast.TupleLit:
		parts, err := tr.exprList(k.Elems, c)
		if err != nil {
			return "", err
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	case ast.ArrayInit:
		elem, err := tr.expr(k.Elem, c)
		if err != nil {
			return "", err
		}
		count, err := tr.expr(k.Count, c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[%s; %s]", elem, count), nil
	case ast.SetLit:
		parts, err := tr.exprList(k.Elems, c)
		if err != nil {
			return "", err
		}
		return "std::collections::HashSet::from([" + strings.Join(parts, ", ") + "])", nil
	case ast.StructLit:
		return tr.structLit(k, c)
	case ast.TupleStructLit:
		parts, err := tr.exprList(k.Args, c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", k.Name, strings.Join(parts, ", ")), nil
	case ast.ObjectLit:
		return tr.objectLit(k, c)
	case ast.DataFrameLit:
		return tr.dataFrameChain(k.Columns, c)
	case ast.FieldAccess:
		recv, err := tr.expr(k.Receiver, c)
		if err != nil {
			return "", err
		}
		return recv + "." + k.Field, nil
	case ast.IndexAccess:
		recv, err := tr.expr(k.Receiver, c)
		if err != nil {
			return "", err
		}
		idx, err := tr.expr(k.Index, c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s[%s]", recv, idx), nil
	case ast.Slice:
		return tr.sliceExpr(k, c)
	case ast.FunctionLit:
		return tr.lambdaLike(k.Params, k.Body, c)
	case ast.Lambda:
		return tr.lambdaLike(k.Params, k.Body, c)
	case ast.Call:
		return tr.call(k, e, c)
	case ast.MethodCall:
		return tr.methodCall(k, e, c)
	case ast.OkExpr:
		v, err := tr.expr(k.Value, c)
		if err != nil {
			return "", err
		}
		return "Ok(" + v + ")", nil
	case ast.ErrExpr:
		v, err := tr.expr(k.Value, c)
		if err != nil {
			return "", err
		}
		return "Err(" + v + ")", nil
	case ast.SomeExpr:
		v, err := tr.expr(k.Value, c)
		if err != nil {
			return "", err
		}
		return "Some(" + v + ")", nil
	case ast.NoneExpr:
		return "None", nil
	case ast.Try:
		v, err := tr.expr(k.Expr, c)
		if err != nil {
			return "", err
		}
		return v + "?", nil
	case ast.Throw:
		v, err := tr.expr(k.Expr, c)
		if err != nil {
			return "", err
		}
		return "return Err(" + v + ")", nil
	case ast.TryCatch:
		return tr.tryCatchExpr(k, c)
	case ast.StringInterpolation:
		return tr.stringInterpolation(k, c)
	case ast.TypeCast:
		v, err := tr.expr(k.Expr, c)
		if err != nil {
			return "", err
		}
		t, err := typeName(k.Type)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s as %s)", v, t), nil
	case ast.Range:
		return tr.rangeExpr(k, c)
	case ast.Spawn:
		// §5: async/spawn is syntactic sugar executed inline.
		return tr.expr(k.Expr, c)
	case ast.Await:
		return tr.expr(k.Expr, c)
	case ast.AsyncBlock:
		return tr.expr(k.Body, c)
	case ast.Macro:
		return tr.macroExpr(k, c)
	case ast.Import:
		return tr.importText(k.Path, k.Items), nil
	case ast.ExportExpr:
		return tr.item(k.Item)
	case ast.ModuleExpr:
		return tr.moduleText(k.Name, k.Items)
	default:
		return "", newError(Unsupported, e.SpanV, "unsupported expression form %T", k)
	}
}

func (tr *transpiler) exprList(es []*ast.Expr, c *ctx) ([]string, error) {
	parts := make([]string, len(es))
	for i, e := range es {
		s, err := tr.expr(e, c)
		if err != nil {
			return nil, err
		}
		parts[i] = s
	}
	return parts, nil
}

func (tr *transpiler) binary(k ast.Binary, e *ast.Expr, c *ctx) (string, error) {
	left, err := tr.expr(k.Left, c)
	if err != nil {
		return "", err
	}
	right, err := tr.expr(k.Right, c)
	if err != nil {
		return "", err
	}
	if k.Op == ast.OpAdd {
		if _, ok := k.Left.Kind.(ast.StringLit); ok {
			left = left + ".to_string()"
		}
	}
	if k.Op == ast.OpPow {
		return fmt.Sprintf("((%s) as f64).powf((%s) as f64)", left, right), nil
	}
	op, ok := binOpText(k.Op)
	if !ok {
		return "", newError(Unsupported, e.SpanV, "unsupported binary operator")
	}
	return fmt.Sprintf("(%s %s %s)", left, op, right), nil
}

func (tr *transpiler) ifExpr(k ast.If, c *ctx) (string, error) {
	cond, err := tr.expr(k.Cond, c)
	if err != nil {
		return "", err
	}
	then, err := tr.expr(k.Then, c)
	if err != nil {
		return "", err
	}
	if k.Else == nil {
		return fmt.Sprintf("if %s %s", cond, then), nil
	}
	els, err := tr.expr(k.Else, c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("if %s %s else %s", cond, then, els), nil
}

func (tr *transpiler) ifLetExpr(k ast.IfLet, c *ctx) (string, error) {
	pat, err := pattern(k.Pattern)
	if err != nil {
		return "", err
	}
	value, err := tr.expr(k.Value, c)
	if err != nil {
		return "", err
	}
	then, err := tr.expr(k.Then, c)
	if err != nil {
		return "", err
	}
	if k.Else == nil {
		return fmt.Sprintf("if let %s = %s %s", pat, value, then), nil
	}
	els, err := tr.expr(k.Else, c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("if let %s = %s %s else %s", pat, value, then, els), nil
}

func (tr *transpiler) matchExpr(k ast.Match, c *ctx) (string, error) {
	subject, err := tr.expr(k.Expr, c)
	if err != nil {
		return "", err
	}
	var arms []string
	for _, arm := range k.Arms {
		armPat, armGuard := arm.Pattern, arm.Guard
		if gp, ok := armPat.Kind.(ast.GuardPat); ok && armGuard == nil {
			armPat, armGuard = gp.Pattern, gp.Guard
		}
		pat, err := pattern(armPat)
		if err != nil {
			return "", err
		}
		guard := ""
		if armGuard != nil {
			g, err := tr.expr(armGuard, c)
			if err != nil {
				return "", err
			}
			guard = " if " + g
		}
		body, err := tr.expr(arm.Body, c)
		if err != nil {
			return "", err
		}
		arms = append(arms, fmt.Sprintf("%s%s => %s,", pat, guard, body))
	}
	return fmt.Sprintf("match %s {\n%s\n}", subject, indent(strings.Join(arms, "\n"))), nil
}

// enterLoop returns a child ctx with loop-tracking state set up for
// spec.md §4.7 item 9's clone insertion: the first (outermost) loop
// snapshots the names known so far; nested loops reuse that snapshot, so
// cloning needs recurse through nested loop bodies without re-snapshotting.
func (c *ctx) enterLoop() *ctx {
	if c.inLoop {
		return c
	}
	snapshot := map[string]bool{}
	for name := range c.known {
		snapshot[name] = true
	}
	child := *c
	child.inLoop = true
	child.boundBeforeLoop = snapshot
	return &child
}

func (tr *transpiler) whileExpr(k ast.While, c *ctx) (string, error) {
	cond, err := tr.expr(k.Cond, c)
	if err != nil {
		return "", err
	}
	body, err := tr.expr(k.Body, c.enterLoop())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("while %s %s", cond, body), nil
}

func (tr *transpiler) whileLetExpr(k ast.WhileLet, c *ctx) (string, error) {
	pat, err := pattern(k.Pattern)
	if err != nil {
		return "", err
	}
	value, err := tr.expr(k.Value, c)
	if err != nil {
		return "", err
	}
	body, err := tr.expr(k.Body, c.enterLoop())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("while let %s = %s %s", pat, value, body), nil
}

func (tr *transpiler) forExpr(k ast.For, c *ctx) (string, error) {
	pat, err := pattern(k.Pattern)
	if err != nil {
		return "", err
	}
	iter, err := tr.expr(k.Iter, c)
	if err != nil {
		return "", err
	}
	body, err := tr.expr(k.Body, c.enterLoop())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("for %s in %s %s", pat, iter, body), nil
}

func (tr *transpiler) loopExpr(k ast.Loop, c *ctx) (string, error) {
	body, err := tr.expr(k.Body, c.enterLoop())
	if err != nil {
		return "", err
	}
	return "loop " + body, nil
}

func (tr *transpiler) sliceExpr(k ast.Slice, c *ctx) (string, error) {
	recv, err := tr.expr(k.Receiver, c)
	if err != nil {
		return "", err
	}
	op := ".."
	if k.Inclusive {
		op = "..="
	}
	start, end := "", ""
	if k.Start != nil {
		start, err = tr.expr(k.Start, c)
		if err != nil {
			return "", err
		}
	}
	if k.End != nil {
		end, err = tr.expr(k.End, c)
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s[%s%s%s]", recv, start, op, end), nil
}

func (tr *transpiler) rangeExpr(k ast.Range, c *ctx) (string, error) {
	op := ".."
	if k.Inclusive {
		op = "..="
	}
	lo, hi := "", ""
	var err error
	if k.Lo != nil {
		lo, err = tr.expr(k.Lo, c)
		if err != nil {
			return "", err
		}
	}
	if k.Hi != nil {
		hi, err = tr.expr(k.Hi, c)
		if err != nil {
			return "", err
		}
	}
	return lo + op + hi, nil
}

func (tr *transpiler) structLit(k ast.StructLit, c *ctx) (string, error) {
	var fields []string
	for _, f := range k.Fields {
		if f.Value == nil {
			fields = append(fields, f.Name)
			continue
		}
		v, err := tr.expr(f.Value, c)
		if err != nil {
			return "", err
		}
		fields = append(fields, fmt.Sprintf("%s: %s", f.Name, v))
	}
	if k.Base != nil {
		base, err := tr.expr(k.Base, c)
		if err != nil {
			return "", err
		}
		fields = append(fields, ".."+base)
	}
	return fmt.Sprintf("%s { %s }", k.Name, strings.Join(fields, ", ")), nil
}

func (tr *transpiler) objectLit(k ast.ObjectLit, c *ctx) (string, error) {
	var pairs []string
	for _, f := range k.Fields {
		v, err := tr.expr(f.Value, c)
		if err != nil {
			return "", err
		}
		pairs = append(pairs, fmt.Sprintf("(%q.to_string(), %s)", f.Name, v))
	}
	return "indexmap::IndexMap::from([" + strings.Join(pairs, ", ") + "])", nil
}

func (tr *transpiler) stringInterpolation(k ast.StringInterpolation, c *ctx) (string, error) {
	var fmtStr strings.Builder
	var args []string
	for _, p := range k.Parts {
		if p.Expr != nil {
			fmtStr.WriteString("{}")
			v, err := tr.expr(p.Expr, c)
			if err != nil {
				return "", err
			}
			args = append(args, v)
			continue
		}
		fmtStr.WriteString(strings.ReplaceAll(strings.ReplaceAll(p.Text, "{", "{{"), "}", "}}"))
	}
	out := fmt.Sprintf("%q", fmtStr.String())
	if len(args) > 0 {
		out += ", " + strings.Join(args, ", ")
	}
	return "format!(" + out + ")", nil
}

func (tr *transpiler) tryCatchExpr(k ast.TryCatch, c *ctx) (string, error) {
	body, err := tr.expr(k.Body, c)
	if err != nil {
		return "", err
	}
	catchBody, err := tr.expr(k.CatchBody, c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(|| -> Result<_, _> %s)().unwrap_or_else(|%s| %s)", body, k.CatchVar, catchBody), nil
}

func (tr *transpiler) lambdaLike(params []ast.Param, body *ast.Expr, c *ctx) (string, error) {
	names := make([]string, len(params))
	for i, p := range params {
		s, err := pattern(p.Pattern)
		if err != nil {
			return "", err
		}
		names[i] = s
	}
	inner := *c
	b, err := tr.expr(body, &inner)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("|%s| %s", strings.Join(names, ", "), b), nil
}

func (tr *transpiler) importText(path []string, items []ast.ImportItem) string {
	base := strings.Join(path, "::")
	if len(items) == 0 {
		return "use " + base + ";"
	}
	parts := make([]string, len(items))
	for i, it := range items {
		if it.Alias != "" {
			parts[i] = it.Name + " as " + it.Alias
		} else {
			parts[i] = it.Name
		}
	}
	return fmt.Sprintf("use %s::{%s};", base, strings.Join(parts, ", "))
}

func (tr *transpiler) moduleText(name string, items []ast.Item) (string, error) {
	var parts []string
	for _, it := range items {
		s, err := tr.item(it)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return fmt.Sprintf("mod %s {\n%s\n}", name, indent(strings.Join(parts, "\n\n"))), nil
}
