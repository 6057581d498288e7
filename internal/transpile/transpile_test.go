package transpile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiml/ruchy/internal/parser"
)

func mustTranspile(t *testing.T, src string) string {
	t.Helper()
	prog, errs := parser.Parse(src)
	require.Empty(t, errs)
	out, err := Transpile(prog)
	require.NoError(t, err)
	return out
}

// S1: a `return` inside a match arm must not get a spurious semicolon
// before the arm's trailing comma.
func TestTranspile_MatchArmReturnHasNoSemicolonBeforeComma(t *testing.T) {
	out := mustTranspile(t, `fun g() -> Result { match some() { Ok(v) => Ok(v), Err(e) => return Err(e) } }`)
	assert.Contains(t, out, "return Err(e),")
	assert.NotContains(t, out, "return Err(e);,")
}

func TestTranspile_MainNeverGetsReturnType(t *testing.T) {
	out := mustTranspile(t, `fun main() -> i32 { 0 }`)
	assert.Contains(t, out, "fn main() {")
	assert.NotContains(t, out, "fn main() -> i32")
}

func TestTranspile_NonMainReturnTypeIsPreserved(t *testing.T) {
	out := mustTranspile(t, `fun helper() -> i32 { 42 }`)
	assert.Contains(t, out, "fn helper() -> i32 {")
}

func TestTranspile_MutableParamGetsMutKeyword(t *testing.T) {
	out := mustTranspile(t, `fun inc(x) { x = x + 1; x }`)
	assert.Contains(t, out, "mut x: _")
}

func TestTranspile_ImmutableParamHasNoMutKeyword(t *testing.T) {
	out := mustTranspile(t, `fun id(x) { x }`)
	assert.NotContains(t, out, "mut x")
}

func TestTranspile_StringLiteralBindingBecomesOwnedString(t *testing.T) {
	out := mustTranspile(t, `let name = "ruchy"`)
	assert.Contains(t, out, `"ruchy".to_string()`)
}

func TestTranspile_EmptyVecInfersElementTypeFromAnnotation(t *testing.T) {
	out := mustTranspile(t, `let xs: Vec<i32> = []`)
	assert.Contains(t, out, "Vec::<i32>::new()")
}

func TestTranspile_NonEmptyListLitLowersToVecMacro(t *testing.T) {
	out := mustTranspile(t, `let xs = [1, 2, 3]`)
	assert.Contains(t, out, "vec![1, 2, 3]")
}

func TestTranspile_ContainsAutoBorrowsStringVar(t *testing.T) {
	out := mustTranspile(t, `fun f() { let s = "hi"; let t = "h"; s.contains(t) }`)
	assert.Contains(t, out, "s.contains(&t)")
}

func TestTranspile_MethodRenameTable(t *testing.T) {
	out := mustTranspile(t, `fun f() { "hi".to_upper() }`)
	assert.Contains(t, out, ".to_uppercase()")
}

func TestTranspile_MovedValueInLoopBodyIsCloned(t *testing.T) {
	out := mustTranspile(t, `fun f() { let xs = [1,2,3]; let mut total = 0; for x in xs { consume(xs) } }`)
	assert.Contains(t, out, "consume(xs.clone())")
}

func TestTranspile_TrigBuiltinLowersToFloatCastMethod(t *testing.T) {
	out := mustTranspile(t, `fun f() { sin(1) }`)
	assert.Contains(t, out, "((1) as f64).sin()")
}

func TestTranspile_ComputeHashStreamsFileThroughMD5(t *testing.T) {
	out := mustTranspile(t, `fun f() { compute_hash("x.txt") }`)
	assert.Contains(t, out, "md5::Context::new()")
	assert.Contains(t, out, "ctx.consume(&buf[..n])")
}

func TestTranspile_DataFrameBuilderChainLowersToSingleConstructor(t *testing.T) {
	out := mustTranspile(t, `fun f() { DataFrame::new().column("a", [1,2]).column("b", [3,4]).build() }`)
	assert.Contains(t, out, "DataFrame::from_columns(vec![")
	assert.Contains(t, out, `("a", vec![1, 2])`)
	assert.Contains(t, out, `("b", vec![3, 4])`)
}

func TestTranspile_ModuleUseLowersToUseStatement(t *testing.T) {
	out := mustTranspile(t, `use std::collections::HashMap`)
	assert.Contains(t, out, "use std::collections::HashMap;")
}

func TestTranspile_TurbofishOnMethodCallIsPreserved(t *testing.T) {
	out := mustTranspile(t, `fun f() { "42".parse::<i32>() }`)
	assert.Contains(t, out, `"42".parse::<i32>()`)
}

func TestTranspile_OrPatternLowersWithPipe(t *testing.T) {
	out := mustTranspile(t, `fun f() { match 1 { 1 | 2 => "a", _ => "b" } }`)
	assert.Contains(t, out, "1 | 2 =>")
}

func TestTranspile_BuiltinTypeNameMapping(t *testing.T) {
	out := mustTranspile(t, `fun f(x: int) -> float { 0.0 }`)
	assert.Contains(t, out, "x: i64")
	assert.Contains(t, out, "-> f64")
}

func TestTranspile_IntegerSuffixIsPreservedVerbatim(t *testing.T) {
	out := mustTranspile(t, `let n = 5i64`)
	assert.Contains(t, out, "5i64")
}

// P-Transpile-Deterministic: the same program always transpiles to the
// same text.
func TestTranspile_DeterministicAcrossRuns(t *testing.T) {
	src := `fun add(a, b) { a + b }`
	first := mustTranspile(t, src)
	second := mustTranspile(t, src)
	assert.Equal(t, first, second)
}

// literal pattern round trip: a negative integer literal pattern keeps its
// leading minus.
func TestTranspile_NegativeLiteralPatternKeepsMinus(t *testing.T) {
	out := mustTranspile(t, `fun f() { match -1 { -1 => "neg", _ => "other" } }`)
	assert.Contains(t, out, "-1 =>")
}

func TestTranspile_StructLitAndFieldAccessLowerDirectly(t *testing.T) {
	out := mustTranspile(t, `
		struct Point { x: int, y: int }
		fun f() { let p = Point { x: 1, y: 2 }; p.x }
	`)
	assert.Contains(t, out, "Point { x: 1, y: 2 }")
	assert.True(t, strings.Contains(out, "p.x"))
}
