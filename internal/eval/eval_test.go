package eval

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiml/ruchy/internal/parser"
	"github.com/paiml/ruchy/internal/value"
)

func runSource(t *testing.T, src string) (value.Value, string, error) {
	t.Helper()
	prog, errs := parser.Parse(src)
	require.Empty(t, errs, "unexpected parse errors for %q: %v", src, errs)
	var out bytes.Buffer
	ev := New(prog, WithStdout(&out))
	v, err := ev.CallMain()
	return v, out.String(), err
}

// S2: closures over a shared mutable global survive repeated calls.
func TestEval_GlobalMutableStateAcrossCalls(t *testing.T) {
	_, out, err := runSource(t, `let mut c = 0; fun inc(){ c = c + 1 } inc(); inc(); print(c)`)
	require.NoError(t, err)
	assert.Equal(t, "2", out)
}

// S4: block scope shadowing doesn't leak the inner binding back out.
func TestEval_BlockShadowingDoesNotLeak(t *testing.T) {
	_, out, err := runSource(t, `let x=10; if true { let x=20; print(x) } print(x)`)
	require.NoError(t, err)
	assert.Equal(t, "2010", out)
}

// S5: forward references to functions declared later in the file resolve.
func TestEval_ForwardFunctionReferenceViaMain(t *testing.T) {
	_, out, err := runSource(t, `fun main(){ print(helper()) } fun helper()->i32{42}`)
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestEval_PrintlnAddsNewline(t *testing.T) {
	_, out, err := runSource(t, `println(1, 2)`)
	require.NoError(t, err)
	assert.Equal(t, "1 2\n", out)
}

func TestEval_BuiltinShadowedByUserFunction(t *testing.T) {
	_, out, err := runSource(t, `fun print(x) { println(x + 1) } print(1)`)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestEval_AssertPasses(t *testing.T) {
	_, _, err := runSource(t, `assert(1 + 1 == 2)`)
	require.NoError(t, err)
}

func TestEval_AssertFailureIsUserError(t *testing.T) {
	_, _, err := runSource(t, `assert(1 == 2, "nope")`)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, UserError, rerr.Kind)
	assert.Equal(t, "nope", rerr.Message)
}

func TestEval_AssertEqFailureReportsBothSides(t *testing.T) {
	_, _, err := runSource(t, `assert_eq(1, 2)`)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "left: 1")
	assert.Contains(t, rerr.Message, "right: 2")
}

func TestEval_MathBuiltins(t *testing.T) {
	_, out, err := runSource(t, `print(sqrt(4.0)); print(min(3, 7)); print(max(3, 7))`)
	require.NoError(t, err)
	assert.Equal(t, "237", out)
}

func TestEval_UndefinedNameSuggestsClosestBinding(t *testing.T) {
	// fuzzy.RankFindFold requires the undefined name to be a subsequence of
	// the candidate, so "cnt" (not "counnt") is the typo that actually ranks
	// against "count".
	_, _, err := runSource(t, `let count = 1; print(cnt)`)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, NameError, rerr.Kind)
	require.NotEmpty(t, rerr.Suggestions)
	assert.Equal(t, "count", rerr.Suggestions[0])
}

// S3: inclusive/exclusive/open string slicing and out-of-bounds errors.
func TestEval_StringSlicingRanges(t *testing.T) {
	_, out, err := runSource(t, `let s = "hello"; print(s[1..3]); print(s[1..=3]); print(s[..2]); print(s[3..])`)
	require.NoError(t, err)
	assert.Equal(t, "elellhelo", out)
}

func TestEval_StringSliceOutOfBoundsIsIndexError(t *testing.T) {
	_, _, err := runSource(t, `let s = "hi"; print(s[0..10])`)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, IndexError, rerr.Kind)
}

// S6: turbofish type application inside a lambda body.
func TestEval_TurbofishInsideLambda(t *testing.T) {
	_, out, err := runSource(t, `let parse = |s| s.parse::<i32>(); print(parse("42") + 1)`)
	require.NoError(t, err)
	assert.Equal(t, "43", out)
}

func TestEval_ArithmeticAndControlFlow(t *testing.T) {
	_, out, err := runSource(t, `
		let mut i = 0
		let mut total = 0
		while i < 5 {
			total = total + i
			i = i + 1
		}
		print(total)
	`)
	require.NoError(t, err)
	assert.Equal(t, "10", out)
}

func TestEval_MatchWithGuardAndOrPattern(t *testing.T) {
	_, out, err := runSource(t, `
		let x = 4
		match x {
			1 | 2 => print("small"),
			n if n > 3 => print("big"),
			_ => print("other"),
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "big", out)
}

func TestEval_DivisionByZeroIsArithmeticError(t *testing.T) {
	_, _, err := runSource(t, `print(1 / 0)`)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ArithmeticError, rerr.Kind)
}
