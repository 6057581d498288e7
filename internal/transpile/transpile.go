// Package transpile lowers the shared AST into Rust-shaped source text
// (spec.md §4.7), grounded on the teacher's planfmt/formatter text
// emitters: a walk that builds strings bottom-up with fmt.Sprintf/strings
// helpers rather than a visitor-interface hierarchy, since the output here
// is one flat token stream rather than a tree of formatted blocks.
package transpile

import (
	"fmt"
	"strings"

	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/mutation"
	"github.com/paiml/ruchy/internal/token"
)

// ErrorKind enumerates spec.md §4.7's TranspileError kinds.
type ErrorKind int

const (
	Unsupported ErrorKind = iota
	InvalidTurbofish
	InvalidPattern
)

func (k ErrorKind) String() string {
	switch k {
	case Unsupported:
		return "Unsupported"
	case InvalidTurbofish:
		return "InvalidTurbofish"
	case InvalidPattern:
		return "InvalidPattern"
	default:
		return "Unknown"
	}
}

// Error is `TranspileError{kind, span}` from spec.md §4.7.
type Error struct {
	Kind    ErrorKind
	Span    token.Span
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func newError(kind ErrorKind, span token.Span, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Span: span, Message: fmt.Sprintf(format, args...)}
}

// Transpile lowers prog to target source text deterministically: the same
// AST always produces byte-identical output (spec.md §8 P-Transpile-Deterministic),
// since every step here is a pure function of the AST with no use of
// randomness, the clock, or map-iteration-order-dependent output.
func Transpile(prog *ast.Program) (string, error) {
	tr := &transpiler{analysis: mutation.Analyze(prog)}
	var parts []string
	for _, it := range prog.Items {
		s, err := tr.item(it)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n") + "\n", nil
}

type transpiler struct {
	analysis *mutation.Analysis
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l == "" {
			continue
		}
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}

func topCtx(a *mutation.Analysis, known map[string]bool) *ctx {
	return &ctx{info: a.Top(), known: known}
}

func (tr *transpiler) item(it ast.Item) (string, error) {
	switch v := it.(type) {
	case *ast.FunctionDecl:
		return tr.function(&v.FunctionLit)
	case *ast.StructDecl:
		return tr.structDecl(v)
	case *ast.EnumDecl:
		return tr.enumDecl(v)
	case *ast.TraitDecl:
		return tr.traitDecl(v)
	case *ast.ImplDecl:
		return tr.implDecl(v)
	case *ast.ClassDecl:
		return tr.classDecl(v)
	case *ast.UseDecl:
		return tr.importText(v.Path, v.Items), nil
	case *ast.ModuleDecl:
		return tr.moduleText(v.Name, v.Items)
	case *ast.ExportDecl:
		return tr.item(v.Item)
	case *ast.TopLevelExpr:
		c := topCtx(tr.analysis, map[string]bool{})
		s, err := tr.statement(v.Expr, c, false)
		if err != nil {
			return "", err
		}
		return s, nil
	default:
		return "", newError(Unsupported, it.Span(), "unsupported item form %T", it)
	}
}

// function implements spec.md §4.7 items 1, 3, and 4: visibility and
// mutability are preserved; `main` never carries a return-type annotation
// regardless of its body.
func (tr *transpiler) function(fn *ast.FunctionLit) (string, error) {
	info := tr.analysis.For(fn.Body)
	known := map[string]bool{}
	var b strings.Builder
	if fn.IsPub {
		b.WriteString("pub ")
	}
	if fn.IsAsync {
		b.WriteString("async ")
	}
	b.WriteString("fn ")
	b.WriteString(fn.Name)
	if len(fn.TypeParams) > 0 {
		b.WriteString("<" + strings.Join(fn.TypeParams, ", ") + ">")
	}
	b.WriteString("(")
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		s, err := tr.paramText(p, info, known)
		if err != nil {
			return "", err
		}
		params[i] = s
	}
	b.WriteString(strings.Join(params, ", "))
	b.WriteString(")")
	if fn.Name != "main" && fn.ReturnType != nil {
		t, err := typeName(fn.ReturnType)
		if err != nil {
			return "", err
		}
		b.WriteString(" -> " + t)
	}
	b.WriteString(" ")
	c := &ctx{info: info, returnType: fn.ReturnType, known: known}
	body, err := tr.block(fn.Body, c)
	if err != nil {
		return "", err
	}
	b.WriteString(body)
	return b.String(), nil
}

func (tr *transpiler) paramText(p ast.Param, info *mutation.Info, known map[string]bool) (string, error) {
	typ := "_"
	if p.Type != nil {
		t, err := typeName(p.Type)
		if err != nil {
			return "", err
		}
		typ = t
	}
	if ident, ok := p.Pattern.Kind.(ast.IdentPat); ok {
		known[ident.Name] = true
		mutKw := ""
		if info.MutableVars[ident.Name] {
			mutKw = "mut "
		}
		return fmt.Sprintf("%s%s: %s", mutKw, ident.Name, typ), nil
	}
	pat, err := pattern(p.Pattern)
	if err != nil {
		return "", err
	}
	for _, n := range ast.Names(p.Pattern) {
		known[n] = true
	}
	return fmt.Sprintf("%s: %s", pat, typ), nil
}

func (tr *transpiler) structDecl(s *ast.StructDecl) (string, error) {
	var b strings.Builder
	if s.IsPub {
		b.WriteString("pub ")
	}
	b.WriteString("struct " + s.Name)
	if len(s.TypeParams) > 0 {
		b.WriteString("<" + strings.Join(s.TypeParams, ", ") + ">")
	}
	b.WriteString(" {\n")
	for _, f := range s.Fields {
		t, err := typeName(f.Type)
		if err != nil {
			return "", err
		}
		vis := fieldVisibility(f)
		b.WriteString(fmt.Sprintf("    %s%s: %s,\n", vis, f.Name, t))
	}
	b.WriteString("}")
	return b.String(), nil
}

func fieldVisibility(f ast.StructField) string {
	switch f.Visibility {
	case ast.VisPub:
		return "pub "
	case ast.VisPubCrate:
		return "pub(crate) "
	default:
		if f.IsPub {
			return "pub "
		}
		return ""
	}
}

func (tr *transpiler) enumDecl(e *ast.EnumDecl) (string, error) {
	var b strings.Builder
	if e.IsPub {
		b.WriteString("pub ")
	}
	b.WriteString("enum " + e.Name)
	if len(e.TypeParams) > 0 {
		b.WriteString("<" + strings.Join(e.TypeParams, ", ") + ">")
	}
	b.WriteString(" {\n")
	for _, v := range e.Variants {
		if len(v.Struct) > 0 {
			b.WriteString("    " + v.Name + " {\n")
			for _, f := range v.Struct {
				t, err := typeName(f.Type)
				if err != nil {
					return "", err
				}
				b.WriteString(fmt.Sprintf("        %s: %s,\n", f.Name, t))
			}
			b.WriteString("    },\n")
			continue
		}
		if len(v.Fields) == 0 {
			b.WriteString("    " + v.Name + ",\n")
			continue
		}
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			t, err := typeName(f)
			if err != nil {
				return "", err
			}
			parts[i] = t
		}
		b.WriteString(fmt.Sprintf("    %s(%s),\n", v.Name, strings.Join(parts, ", ")))
	}
	b.WriteString("}")
	return b.String(), nil
}

func (tr *transpiler) traitDecl(t *ast.TraitDecl) (string, error) {
	var b strings.Builder
	b.WriteString("trait " + t.Name + " {\n")
	for _, m := range t.Methods {
		sig, err := tr.methodSignature(&m.FunctionLit)
		if err != nil {
			return "", err
		}
		if m.Body == nil {
			b.WriteString(indent(sig+";") + "\n")
			continue
		}
		fullMethod, err := tr.function(&m.FunctionLit)
		if err != nil {
			return "", err
		}
		b.WriteString(indent(fullMethod) + "\n")
	}
	b.WriteString("}")
	return b.String(), nil
}

func (tr *transpiler) methodSignature(fn *ast.FunctionLit) (string, error) {
	known := map[string]bool{}
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		s, err := tr.paramText(p, &mutation.Info{MutableVars: map[string]bool{}, StringVars: map[string]bool{}}, known)
		if err != nil {
			return "", err
		}
		params[i] = s
	}
	ret := ""
	if fn.ReturnType != nil {
		t, err := typeName(fn.ReturnType)
		if err != nil {
			return "", err
		}
		ret = " -> " + t
	}
	return fmt.Sprintf("fn %s(%s)%s", fn.Name, strings.Join(params, ", "), ret), nil
}

func (tr *transpiler) implDecl(impl *ast.ImplDecl) (string, error) {
	var b strings.Builder
	if impl.TraitName != "" {
		b.WriteString(fmt.Sprintf("impl %s for %s {\n", impl.TraitName, impl.TypeName))
	} else {
		b.WriteString(fmt.Sprintf("impl %s {\n", impl.TypeName))
	}
	for _, m := range impl.Methods {
		s, err := tr.function(&m.FunctionLit)
		if err != nil {
			return "", err
		}
		b.WriteString(indent(s) + "\n\n")
	}
	b.WriteString("}")
	return b.String(), nil
}

// classDecl lowers spec.md §6's "class (impl sugar)" as a struct plus its
// inherent impl, matching what the parser desugars the form from.
func (tr *transpiler) classDecl(c *ast.ClassDecl) (string, error) {
	structText, err := tr.structDecl(&ast.StructDecl{Name: c.Name, Fields: c.Fields, IsPub: c.IsPub, SpanV: c.SpanV})
	if err != nil {
		return "", err
	}
	implText, err := tr.implDecl(&ast.ImplDecl{TypeName: c.Name, Methods: c.Methods, SpanV: c.SpanV})
	if err != nil {
		return "", err
	}
	return structText + "\n\n" + implText, nil
}

// block lowers a `{ ... }` body: every expr but the last is a statement,
// the last is the block's value (no trailing semicolon), matching
// spec.md §3's Block value rule.
func (tr *transpiler) block(e *ast.Expr, c *ctx) (string, error) {
	blk, ok := e.Kind.(ast.Block)
	if !ok {
		s, err := tr.expr(e, c)
		if err != nil {
			return "", err
		}
		return "{ " + s + " }", nil
	}
	if len(blk.Exprs) == 0 {
		return "{}", nil
	}
	lines := make([]string, len(blk.Exprs))
	for i, sub := range blk.Exprs {
		s, err := tr.statement(sub, c, i == len(blk.Exprs)-1)
		if err != nil {
			return "", err
		}
		lines[i] = s
	}
	return "{\n" + indent(strings.Join(lines, "\n")) + "\n}", nil
}

// statement lowers e as one block member: Let/LetPattern already carry
// their own trailing `;`; block-like forms (if/match/while/for/loop/block)
// never get one; everything else gets `;` unless it's the block's final
// (value-producing) member.
func (tr *transpiler) statement(e *ast.Expr, c *ctx, isLast bool) (string, error) {
	switch e.Kind.(type) {
	case ast.Let, ast.LetPattern:
		return tr.expr(e, c)
	}
	text, err := tr.expr(e, c)
	if err != nil {
		return "", err
	}
	if isBlockLikeKind(e.Kind) {
		return text, nil
	}
	if isLast {
		return text, nil
	}
	return text + ";", nil
}

func (tr *transpiler) letExpr(k ast.Let, c *ctx) (string, error) {
	c.known[k.Name] = true
	mutKw := ""
	if c.info.MutableVars[k.Name] {
		mutKw = "mut "
	}
	valText, typeAnn, err := tr.lowerLetValue(k, c)
	if err != nil {
		return "", err
	}
	line := fmt.Sprintf("let %s%s%s = %s", mutKw, k.Name, typeAnn, valText)
	if k.Else != nil {
		els, err := tr.expr(k.Else, c)
		if err != nil {
			return "", err
		}
		line = fmt.Sprintf("%s else %s", line, els)
	}
	line += ";"
	if k.Body != nil {
		body, err := tr.expr(k.Body, c)
		if err != nil {
			return "", err
		}
		return "{ " + line + " " + body + " }", nil
	}
	return line, nil
}

// lowerLetValue implements spec.md §4.7 items 5, 7, and 8: a string
// literal lowers to an owned string, an empty list literal gets an
// explicit element type when inferable, and a non-empty list literal
// bound under an explicit Vec<T> annotation lowers via `vec![...]`.
func (tr *transpiler) lowerLetValue(k ast.Let, c *ctx) (value string, typeAnn string, err error) {
	if k.Type != nil {
		t, terr := typeName(k.Type)
		if terr != nil {
			return "", "", terr
		}
		typeAnn = ": " + t
	}
	if ll, ok := k.Value.Kind.(ast.ListLit); ok {
		elem := vecElemType(k.Type)
		if elem == "_" {
			elem = vecElemType(c.returnType)
		}
		v, lerr := tr.listLit(ll, c, elem)
		if lerr != nil {
			return "", "", lerr
		}
		return v, typeAnn, nil
	}
	v, verr := tr.expr(k.Value, c)
	if verr != nil {
		return "", "", verr
	}
	if _, ok := k.Value.Kind.(ast.StringLit); ok {
		v += ".to_string()"
	}
	return v, typeAnn, nil
}

func (tr *transpiler) listLit(l ast.ListLit, c *ctx, emptyElemType string) (string, error) {
	if len(l.Elems) == 0 {
		return fmt.Sprintf("Vec::<%s>::new()", emptyElemType), nil
	}
	parts, err := tr.exprList(l.Elems, c)
	if err != nil {
		return "", err
	}
	return "vec![" + strings.Join(parts, ", ") + "]", nil
}

func (tr *transpiler) letPatternExpr(k ast.LetPattern, c *ctx) (string, error) {
	for _, n := range ast.Names(k.Pattern) {
		c.known[n] = true
	}
	pat, err := pattern(k.Pattern)
	if err != nil {
		return "", err
	}
	value, err := tr.expr(k.Value, c)
	if err != nil {
		return "", err
	}
	line := fmt.Sprintf("let %s = %s;", pat, value)
	if k.Body != nil {
		body, err := tr.expr(k.Body, c)
		if err != nil {
			return "", err
		}
		return "{ " + line + " " + body + " }", nil
	}
	return line, nil
}
