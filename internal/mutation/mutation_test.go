package mutation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/parser"
)

func TestAnalyze_TopLevelMutableVar(t *testing.T) {
	prog, errs := parser.Parse(`let mut c = 0; c = c + 1`)
	require.Empty(t, errs)
	a := Analyze(prog)
	assert.True(t, a.Top().MutableVars["c"])
}

func TestAnalyze_ImmutableLetIsNotMutable(t *testing.T) {
	prog, errs := parser.Parse(`let n = 0`)
	require.Empty(t, errs)
	a := Analyze(prog)
	assert.False(t, a.Top().MutableVars["n"])
}

func TestAnalyze_StringLiteralBindingIsStringTyped(t *testing.T) {
	prog, errs := parser.Parse(`let name = "ruchy"`)
	require.Empty(t, errs)
	a := Analyze(prog)
	assert.True(t, a.Top().StringVars["name"])
}

func TestAnalyze_CompoundAssignMarksTargetMutable(t *testing.T) {
	prog, errs := parser.Parse(`fun f() { let i = 0; i += 1; i }`)
	require.Empty(t, errs)
	a := Analyze(prog)
	decl, ok := prog.Items[0].(*ast.FunctionDecl)
	require.True(t, ok)
	info := a.For(decl.Body)
	assert.True(t, info.MutableVars["i"])
}

func TestAnalyze_FunctionScopesAreIndependent(t *testing.T) {
	prog, errs := parser.Parse(`
		fun a() { let mut x = 1; x = 2 }
		fun b() { let y = 1; y }
	`)
	require.Empty(t, errs)
	a := Analyze(prog)
	declA := prog.Items[0].(*ast.FunctionDecl)
	declB := prog.Items[1].(*ast.FunctionDecl)
	assert.True(t, a.For(declA.Body).MutableVars["x"])
	assert.False(t, a.For(declB.Body).MutableVars["y"])
}
