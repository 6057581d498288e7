package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiml/ruchy/internal/ast"
)

func parseExpr(t *testing.T, src string) *ast.Expr {
	t.Helper()
	prog, errs := Parse(src)
	require.Empty(t, errs, "unexpected parse errors for %q: %v", src, errs)
	require.Len(t, prog.Items, 1)
	top, ok := prog.Items[0].(*ast.TopLevelExpr)
	require.True(t, ok, "expected a top-level expression")
	return top.Expr
}

func TestParser_PrecedenceAddBeforeMul(t *testing.T) {
	e := parseExpr(t, "1 + 2 * 3")
	bin, ok := e.Kind.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpAdd, bin.Op)
	rhs, ok := bin.Right.Kind.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpMul, rhs.Op)
}

func TestParser_UnaryBindsTighterThanPow(t *testing.T) {
	// spec.md §4.2 orders "power ** < unary", i.e. unary binds tighter,
	// so -2**2 parses as (-2)**2.
	e := parseExpr(t, "-2 ** 2")
	bin, ok := e.Kind.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpPow, bin.Op)
	_, ok = bin.Left.Kind.(ast.Unary)
	assert.True(t, ok, "expected unary minus to bind tighter than **")
}

func TestParser_LogicalPrecedence(t *testing.T) {
	// || binds loosest, so `a && b || c` parses as (a && b) || c.
	e := parseExpr(t, "a && b || c")
	bin, ok := e.Kind.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpOr, bin.Op)
	_, ok = bin.Left.Kind.(ast.Binary)
	assert.True(t, ok)
}

func TestParser_PipeLooserThanOr(t *testing.T) {
	// |> binds looser than ||, so the whole `a || b` becomes the piped
	// argument: `a || b |> f` parses as `(a || b) |> f`, i.e. `f(a || b)`.
	e := parseExpr(t, "a || b |> f")
	call, ok := e.Kind.(ast.Call)
	require.True(t, ok, "expected the pipe to be the outermost (loosest) operation")
	require.Len(t, call.Args, 1)
	_, ok = call.Args[0].Kind.(ast.Binary)
	assert.True(t, ok, "expected || to bind tighter than the pipe")
}

func TestParser_RangeBetweenComparisonAndBitwise(t *testing.T) {
	// spec.md §4.2: "Ranges bind between comparison and bitwise" — bitwise
	// binds tighter, so it's absorbed into the range's hi bound:
	// `a < b..c & d` parses as `a < (b..(c & d))`.
	e := parseExpr(t, "a < b..c & d")
	bin, ok := e.Kind.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpLt, bin.Op)
	rng, ok := bin.Right.Kind.(ast.Range)
	require.True(t, ok, "expected comparison's RHS to be the range")
	hi, ok := rng.Hi.Kind.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpBitAnd, hi.Op, "expected bitwise & to bind tighter than range, inside the hi bound")
}

func TestParser_BitwiseTighterThanComparison(t *testing.T) {
	e := parseExpr(t, "a == b & c")
	bin, ok := e.Kind.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpEq, bin.Op)
	_, ok = bin.Right.Kind.(ast.Binary)
	assert.True(t, ok, "expected & to bind tighter than ==")
}

func TestParser_PipeDesugarsToCall(t *testing.T) {
	e := parseExpr(t, "x |> f")
	call, ok := e.Kind.(ast.Call)
	require.True(t, ok)
	callee, ok := call.Callee.Kind.(ast.Identifier)
	require.True(t, ok)
	assert.Equal(t, "f", callee.Name)
	require.Len(t, call.Args, 1)
}

func TestParser_PipeIntoCallInsertsFirstArg(t *testing.T) {
	e := parseExpr(t, "x |> f(y)")
	call, ok := e.Kind.(ast.Call)
	require.True(t, ok)
	require.Len(t, call.Args, 2)
	first, ok := call.Args[0].Kind.(ast.Identifier)
	require.True(t, ok)
	assert.Equal(t, "x", first.Name)
}

func TestParser_LambdaVsOrPattern(t *testing.T) {
	e := parseExpr(t, "|x| x + 1")
	_, ok := e.Kind.(ast.Lambda)
	assert.True(t, ok)
}

func TestParser_TurbofishMethodCall(t *testing.T) {
	e := parseExpr(t, `"42".parse::<i32>()`)
	mc, ok := e.Kind.(ast.MethodCall)
	require.True(t, ok)
	assert.Equal(t, "parse", mc.Method)
	require.Len(t, mc.Turbofish, 1)
}

func TestParser_MatchArmsInOrder(t *testing.T) {
	prog, errs := Parse(`match x { 1 => "one", _ => "other" }`)
	require.Empty(t, errs)
	top := prog.Items[0].(*ast.TopLevelExpr)
	m, ok := top.Expr.Kind.(ast.Match)
	require.True(t, ok)
	require.Len(t, m.Arms, 2)
}

func TestParser_IfConditionExcludesStructLiteral(t *testing.T) {
	// `if x { ... }` must parse `{` as the block, not a struct literal.
	prog, errs := Parse("if x { y }")
	require.Empty(t, errs)
	top := prog.Items[0].(*ast.TopLevelExpr)
	iff, ok := top.Expr.Kind.(ast.If)
	require.True(t, ok)
	_, ok = iff.Cond.Kind.(ast.Identifier)
	assert.True(t, ok)
}

func TestParser_RangeInclusiveExclusive(t *testing.T) {
	e := parseExpr(t, "0..=10")
	r, ok := e.Kind.(ast.Range)
	require.True(t, ok)
	assert.True(t, r.Inclusive)
}

func TestParser_RangeExclusive(t *testing.T) {
	e := parseExpr(t, "0..10")
	r, ok := e.Kind.(ast.Range)
	require.True(t, ok)
	assert.False(t, r.Inclusive)
}

func TestParser_UnclosedDelimiterReportedAtOpener(t *testing.T) {
	_, errs := Parse("let x = (1 + 2")
	require.NotEmpty(t, errs)
}

func TestParser_IntegerSuffixPreservedInAST(t *testing.T) {
	e := parseExpr(t, "42i64")
	lit, ok := e.Kind.(ast.IntLit)
	require.True(t, ok)
	assert.Equal(t, "i64", lit.Suffix)
}

func TestParser_ForwardFunctionReference(t *testing.T) {
	// S5: `fun main(){ print(helper()) } fun helper()->i32{42}` must parse
	// regardless of textual order; name resolution happens later.
	prog, errs := Parse(`fun main(){ print(helper()) } fun helper()->i32{42}`)
	require.Empty(t, errs)
	assert.Len(t, prog.Items, 2)
}

func TestParser_DataFrameSchemaValidationRejectsBadColumnName(t *testing.T) {
	_, errs := Parse(`df!["1bad" => [1,2,3]]`, WithDataFrameSchemaValidation(true))
	require.NotEmpty(t, errs)
}

func TestParser_DataFrameSchemaValidationAcceptsGoodColumns(t *testing.T) {
	_, errs := Parse(`df![age => [1,2,3], name => [4,5,6]]`, WithDataFrameSchemaValidation(true))
	require.Empty(t, errs)
}

func TestParser_OrPatternMatchingBindings(t *testing.T) {
	prog, errs := Parse(`match x { 1 | 2 => "small", _ => "big" }`)
	require.Empty(t, errs)
	top := prog.Items[0].(*ast.TopLevelExpr)
	m := top.Expr.Kind.(ast.Match)
	_, ok := m.Arms[0].Pattern.Kind.(ast.OrPat)
	assert.True(t, ok)
}
