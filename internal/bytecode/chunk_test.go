package bytecode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiml/ruchy/internal/parser"
)

func TestChunk_CBORRoundTrip(t *testing.T) {
	prog, errs := parser.Parse(`fun add(a, b) { a + b }`)
	require.Empty(t, errs)
	chunk, err := Compile(prog)
	require.NoError(t, err)

	data, err := chunk.Encode()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	decoded, err := DecodeChunk(data)
	require.NoError(t, err)

	if diff := cmp.Diff(chunk, decoded, cmp.AllowUnexported(Instr{})); diff != "" {
		t.Errorf("chunk mismatch after cbor round trip (-want +got):\n%s", diff)
	}
}

func TestChunk_AddConstDeduplicates(t *testing.T) {
	c := NewChunk()
	a := c.addConst(Const{Kind: ConstInt, Int: 7})
	b := c.addConst(Const{Kind: ConstInt, Int: 7})
	assert.Equal(t, a, b)
	assert.Len(t, c.Constants, 1)
}

func TestChunk_AddNameDeduplicates(t *testing.T) {
	c := NewChunk()
	a := c.addName("x")
	b := c.addName("x")
	assert.Equal(t, a, b)
	assert.Len(t, c.Names, 1)
}

func TestCompile_UnsupportedExprReportsUnsupported(t *testing.T) {
	prog, errs := parser.Parse(`Point { x: 1 }`)
	require.Empty(t, errs)
	_, err := Compile(prog)
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, Unsupported, cerr.Kind)
}

func TestCompile_WhileLoopEmitsBackwardJump(t *testing.T) {
	prog, errs := parser.Parse(`fun main() -> i32 { let mut i = 0; while i < 3 { i = i + 1 } i }`)
	require.Empty(t, errs)
	chunk, err := Compile(prog)
	require.NoError(t, err)
	require.Len(t, chunk.Children, 1)
	mainChunk := chunk.Children[0]
	var sawBackwardJump bool
	for idx, instr := range mainChunk.Code {
		if instr.Op == OpJump && int(instr.Operand) < 0 {
			sawBackwardJump = true
			_ = idx
		}
	}
	assert.True(t, sawBackwardJump, "expected the while loop to compile a backward OpJump")
}
