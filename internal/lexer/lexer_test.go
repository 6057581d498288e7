package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiml/ruchy/internal/token"
)

type tokExpect struct {
	Type    token.Type
	Literal string
}

func assertTokens(t *testing.T, src string, want []tokExpect) {
	t.Helper()
	toks, err := All(src)
	require.NoError(t, err)
	// All appends a trailing EOF; drop it before comparing.
	require.NotEmpty(t, toks)
	require.Equal(t, token.EOF, toks[len(toks)-1].Type)
	got := make([]tokExpect, 0, len(toks)-1)
	for _, tk := range toks[:len(toks)-1] {
		got = append(got, tokExpect{Type: tk.Type, Literal: tk.Literal})
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(tokExpect{})); diff != "" {
		t.Errorf("%s: token mismatch (-want +got):\n%s", src, diff)
	}
}

func TestLexer_Punctuation(t *testing.T) {
	assertTokens(t, "+ - * / % **", []tokExpect{
		{token.PLUS, "+"}, {token.MINUS, "-"}, {token.STAR, "*"},
		{token.SLASH, "/"}, {token.PERCENT, "%"}, {token.STARSTAR, "**"},
	})
}

func TestLexer_Keywords(t *testing.T) {
	assertTokens(t, "let mut x = 1", []tokExpect{
		{token.LET, "let"}, {token.MUT, "mut"}, {token.IDENT, "x"},
		{token.ASSIGN, "="}, {token.INT, "1"},
	})
}

func TestLexer_IntegerSuffix(t *testing.T) {
	toks, err := All("42i32")
	require.NoError(t, err)
	require.Equal(t, token.INT, toks[0].Type)
	assert.Equal(t, "42", toks[0].Literal)
	assert.Equal(t, "i32", toks[0].Suffix)
}

func TestLexer_FloatSuffix(t *testing.T) {
	toks, err := All("3.14f64")
	require.NoError(t, err)
	require.Equal(t, token.FLOAT, toks[0].Type)
	assert.Equal(t, "f64", toks[0].Suffix)
}

func TestLexer_CharLiteralEscapes(t *testing.T) {
	toks, err := All(`'\n'`)
	require.NoError(t, err)
	require.Equal(t, token.CHAR, toks[0].Type)
	assert.Equal(t, "\n", toks[0].Literal)
}

func TestLexer_RawString(t *testing.T) {
	toks, err := All(`r"no \n escape"`)
	require.NoError(t, err)
	require.Equal(t, token.RAW_STRING, toks[0].Type)
	assert.Equal(t, `no \n escape`, toks[0].Literal)
}

func TestLexer_UnterminatedString(t *testing.T) {
	_, err := All(`"abc`)
	require.Error(t, err)
	var lexErr *Error
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, UnterminatedString, lexErr.Kind)
}

func TestLexer_UnexpectedChar(t *testing.T) {
	_, err := All("let x = `bad`")
	require.Error(t, err)
	var lexErr *Error
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, UnexpectedChar, lexErr.Kind)
}

func TestLexer_LineComment(t *testing.T) {
	assertTokens(t, "1 // comment\n2", []tokExpect{
		{token.INT, "1"}, {token.INT, "2"},
	})
}

func TestLexer_UnicodeIdentifier(t *testing.T) {
	toks, err := All("let café = 1")
	require.NoError(t, err)
	require.Equal(t, token.IDENT, toks[1].Type)
	assert.Equal(t, "café", toks[1].Literal)
}

func TestLexer_Spans(t *testing.T) {
	toks, err := All("abc")
	require.NoError(t, err)
	require.NotEmpty(t, toks)
	assert.Equal(t, uint32(0), toks[0].Span.Start)
	assert.Equal(t, uint32(3), toks[0].Span.End)
}
