// Package token defines the lexical tokens shared by the lexer and parser.
package token

import "fmt"

// Span is a byte-offset range into the source text. Every AST node and
// bytecode instruction carries one for diagnostics.
type Span struct {
	Start uint32
	End   uint32
}

// Cover returns the smallest span containing both a and b.
func Cover(a, b Span) Span {
	s := a
	if b.Start < s.Start {
		s.Start = b.Start
	}
	if b.End > s.End {
		s.End = b.End
	}
	return s
}

// Type enumerates the kinds of lexical tokens Ruchy source decomposes into.
type Type int

const (
	ILLEGAL Type = iota
	EOF

	// Literals
	IDENT
	INT
	FLOAT
	STRING
	FSTRING_START // f" literal opener
	FSTRING_TEXT  // literal text fragment inside an f-string
	FSTRING_EXPR_START
	FSTRING_EXPR_END
	FSTRING_END
	CHAR
	RAW_STRING

	// Keywords
	FUN
	LET
	MUT
	VAR
	IF
	ELSE
	MATCH
	WHILE
	FOR
	LOOP
	IN
	BREAK
	CONTINUE
	RETURN
	STRUCT
	ENUM
	TRAIT
	IMPL
	USE
	MODULE
	EXPORT
	CLASS
	PUB
	TRUE
	FALSE
	NIL
	UNIT_KW
	ASYNC
	AWAIT
	SPAWN
	TRY
	CATCH
	THROW
	OK
	ERR
	SOME
	NONE
	AS
	CRATE

	// Punctuation / operators
	PLUS
	MINUS
	STAR
	SLASH
	PERCENT
	STARSTAR // **
	ASSIGN   // =
	PLUS_EQ
	MINUS_EQ
	STAR_EQ
	SLASH_EQ
	PERCENT_EQ
	EQ // ==
	NE // !=
	LT
	LE
	GT
	GE
	AND_AND // &&
	OR_OR   // ||
	NOT     // !
	AMP     // &
	PIPE_OP // | (bitwise or, lambda parameter delimiter, or-pattern separator)
	CARET   // ^
	SHL     // <<
	SHR     // >>
	INC     // ++
	DEC     // --
	LPAREN
	RPAREN
	LBRACE
	RBRACE
	LBRACKET
	RBRACKET
	COMMA
	COLON
	COLONCOLON // ::
	SEMI
	DOT
	DOTDOT   // ..
	DOTDOTEQ // ..=
	DOTDOTDOT
	ARROW    // ->
	FATARROW // =>
	QUESTION
	AT
	BANG_BANG
	PIPE_FORWARD // |>
	UNDERSCORE

	COMMENT
)

var names = map[Type]string{
	ILLEGAL: "ILLEGAL", EOF: "EOF",
	IDENT: "IDENT", INT: "INT", FLOAT: "FLOAT", STRING: "STRING",
	FSTRING_START: "FSTRING_START", FSTRING_TEXT: "FSTRING_TEXT",
	FSTRING_EXPR_START: "FSTRING_EXPR_START", FSTRING_EXPR_END: "FSTRING_EXPR_END",
	FSTRING_END: "FSTRING_END", CHAR: "CHAR", RAW_STRING: "RAW_STRING",
	FUN: "fun", LET: "let", MUT: "mut", VAR: "var", IF: "if", ELSE: "else",
	MATCH: "match", WHILE: "while", FOR: "for", LOOP: "loop", IN: "in",
	BREAK: "break", CONTINUE: "continue", RETURN: "return", STRUCT: "struct",
	ENUM: "enum", TRAIT: "trait", IMPL: "impl", USE: "use", MODULE: "module",
	EXPORT: "export", CLASS: "class", PUB: "pub", TRUE: "true", FALSE: "false",
	NIL: "nil", UNIT_KW: "unit", ASYNC: "async", AWAIT: "await", SPAWN: "spawn",
	TRY: "try", CATCH: "catch", THROW: "throw", OK: "Ok", ERR: "Err",
	SOME: "Some", NONE: "None", AS: "as", CRATE: "crate",
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/", PERCENT: "%", STARSTAR: "**",
	ASSIGN: "=", PLUS_EQ: "+=", MINUS_EQ: "-=", STAR_EQ: "*=", SLASH_EQ: "/=",
	PERCENT_EQ: "%=", EQ: "==", NE: "!=", LT: "<", LE: "<=", GT: ">", GE: ">=",
	AND_AND: "&&", OR_OR: "||", NOT: "!", AMP: "&", CARET: "^", SHL: "<<", SHR: ">>",
	INC: "++", DEC: "--", LPAREN: "(", RPAREN: ")", LBRACE: "{", RBRACE: "}",
	LBRACKET: "[", RBRACKET: "]", COMMA: ",", COLON: ":", COLONCOLON: "::",
	SEMI: ";", DOT: ".", DOTDOT: "..", DOTDOTEQ: "..=", DOTDOTDOT: "...",
	ARROW: "->", FATARROW: "=>", QUESTION: "?", AT: "@", PIPE_FORWARD: "|>",
	UNDERSCORE: "_", COMMENT: "COMMENT",
}

func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

var keywords = map[string]Type{
	"fun": FUN, "let": LET, "mut": MUT, "var": VAR, "if": IF, "else": ELSE,
	"match": MATCH, "while": WHILE, "for": FOR, "loop": LOOP, "in": IN,
	"break": BREAK, "continue": CONTINUE, "return": RETURN, "struct": STRUCT,
	"enum": ENUM, "trait": TRAIT, "impl": IMPL, "use": USE, "module": MODULE,
	"export": EXPORT, "class": CLASS, "pub": PUB, "true": TRUE, "false": FALSE,
	"nil": NIL, "async": ASYNC, "await": AWAIT, "spawn": SPAWN, "try": TRY,
	"catch": CATCH, "throw": THROW, "Ok": OK, "Err": ERR, "Some": SOME,
	"None": NONE, "as": AS, "crate": CRATE,
}

// Lookup returns the keyword token type for ident, or IDENT if ident is not
// a reserved word.
func Lookup(ident string) Type {
	if t, ok := keywords[ident]; ok {
		return t
	}
	return IDENT
}

// Token is a single lexical unit with its source span.
type Token struct {
	Type    Type
	Literal string
	Suffix  string // numeric type suffix, e.g. "i32", "f64"; empty if absent
	Span    Span
	Line    int
	Column  int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Type, t.Literal, t.Line, t.Column)
}
