// Package lexer converts Ruchy source bytes into a stream of tokens with
// source spans, the first stage of the pipeline described in spec.md §2.
package lexer

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/rangetable"

	"github.com/paiml/ruchy/internal/token"
)

// ASCII fast-path classification tables, mirroring the teacher lexer's
// pre-computed [128]bool arrays.
var (
	isWhitespace [128]bool
	isDigitAscii [128]bool
	isIdentStart [128]bool
	isIdentPart  [128]bool
)

// identTable is the Unicode range table used once the ASCII fast path
// misses: letters, numbers, the connector-punctuation class, and
// non-spacing marks are all legal identifier continuation runes.
var identTable = rangetable.Merge(unicode.L, unicode.N, unicode.Pc, unicode.Mn)

func init() {
	for i := 0; i < 128; i++ {
		ch := byte(i)
		isWhitespace[i] = ch == ' ' || ch == '\t' || ch == '\r'
		isDigitAscii[i] = '0' <= ch && ch <= '9'
		isIdentStart[i] = ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
		isIdentPart[i] = isIdentStart[i] || isDigitAscii[i]
	}
}

func isIdentStartRune(r rune) bool {
	if r < 128 {
		return isIdentStart[r]
	}
	return unicode.Is(identTable, r) && unicode.IsLetter(r)
}

func isIdentPartRune(r rune) bool {
	if r < 128 {
		return isIdentPart[r]
	}
	return unicode.Is(identTable, r)
}

func isDigitRune(r rune) bool {
	return r >= '0' && r <= '9'
}

// ErrorKind enumerates the lexical error taxonomy of spec.md §4.1.
type ErrorKind int

const (
	UnterminatedString ErrorKind = iota
	InvalidEscape
	InvalidNumber
	UnexpectedChar
	UnterminatedInterpolation
)

func (k ErrorKind) String() string {
	switch k {
	case UnterminatedString:
		return "UnterminatedString"
	case InvalidEscape:
		return "InvalidEscape"
	case InvalidNumber:
		return "InvalidNumber"
	case UnexpectedChar:
		return "UnexpectedChar"
	case UnterminatedInterpolation:
		return "UnterminatedInterpolation"
	default:
		return "UnknownLexError"
	}
}

// Error is a lexical failure with source position.
type Error struct {
	Kind   ErrorKind
	Detail string
	Span   token.Span
	Line   int
	Column int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %d:%d: %s", e.Kind, e.Line, e.Column, e.Detail)
}

// mode tracks the handful of contexts the lexer must distinguish to decide
// whether `{`/`}` are f-string interpolation delimiters.
type mode int

const (
	modeNormal mode = iota
	modeFString
)

// Lexer turns Ruchy source into tokens on demand via Next, or all at once
// via All. It is not safe for concurrent use.
type Lexer struct {
	input    string
	position int
	readPos  int
	ch       rune
	line     int
	column   int

	modeStack []mode

	// fstringBrace tracks, per active f-string, the brace depth of the
	// expression currently being re-entered so `{{`/`}}` escapes inside
	// the surrounding literal text are not confused with expression
	// delimiters (spec.md §4.2 f-string parsing).
	fstringBraceDepth []int
	fstringQuote      []rune

	logger *slog.Logger

	lastBinaryOpLine int // not read or written; line continuation (OQ-1) is not specially lexed
}

// Option configures a Lexer.
type Option func(*Lexer)

// WithLogger attaches a structured logger for debug tracing; the default is
// a discard logger so normal use has zero overhead.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lexer) { l.logger = logger }
}

// New constructs a Lexer over source, reading it fully up front like the
// teacher's io.Reader-based constructor.
func New(source io.Reader, opts ...Option) (*Lexer, error) {
	data, err := io.ReadAll(source)
	if err != nil {
		return nil, err
	}
	return NewFromString(string(data), opts...), nil
}

// NewFromString constructs a Lexer directly over a string, avoiding a copy
// for callers that already have source text in memory.
func NewFromString(src string, opts ...Option) *Lexer {
	l := &Lexer{
		input:     src,
		line:      1,
		column:    0,
		modeStack: []mode{modeNormal},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.readChar()
	return l
}

// All lexes the entire input and returns every token including a trailing
// EOF, or the first lexical error encountered.
func All(src string) ([]token.Token, error) {
	l := NewFromString(src)
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return toks, err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) curMode() mode { return l.modeStack[len(l.modeStack)-1] }
func (l *Lexer) pushMode(m mode) {
	l.modeStack = append(l.modeStack, m)
}
func (l *Lexer) popMode() {
	if len(l.modeStack) > 1 {
		l.modeStack = l.modeStack[:len(l.modeStack)-1]
	}
}

func (l *Lexer) readChar() {
	l.position = l.readPos
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
		if r == utf8.RuneError && size == 1 {
			r = rune(l.input[l.readPos])
		}
		l.ch = r
		l.readPos += size
	}
	if l.ch == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) peekCharAt(offset int) rune {
	pos := l.readPos
	var r rune
	for i := 0; i <= offset; i++ {
		if pos >= len(l.input) {
			return 0
		}
		var size int
		r, size = utf8.DecodeRuneInString(l.input[pos:])
		pos += size
	}
	return r
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch < 128 && isWhitespace[l.ch] || l.ch == '\n':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') && l.ch != 0 {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) makeTok(typ token.Type, lit string, start int, startLine, startCol int) token.Token {
	return token.Token{
		Type:    typ,
		Literal: lit,
		Span:    token.Span{Start: uint32(start), End: uint32(l.position)},
		Line:    startLine,
		Column:  startCol,
	}
}

// Next returns the next token in the input.
func (l *Lexer) Next() (token.Token, error) {
	if l.curMode() == modeFString {
		return l.nextFStringToken()
	}
	return l.nextNormalToken()
}

func (l *Lexer) nextNormalToken() (token.Token, error) {
	l.skipWhitespaceAndComments()

	start, startLine, startCol := l.position, l.line, l.column

	if l.ch == 0 {
		return l.makeTok(token.EOF, "", start, startLine, startCol), nil
	}

	switch {
	case isIdentStartRune(l.ch):
		return l.readIdentifier(start, startLine, startCol)
	case isDigitRune(l.ch):
		return l.readNumber(start, startLine, startCol)
	case l.ch == '"':
		return l.readString(start, startLine, startCol, false)
	case l.ch == 'f' && l.peekChar() == '"':
		l.readChar() // consume 'f'
		return l.readString(start, startLine, startCol, true)
	case l.ch == 'r' && (l.peekChar() == '"' || l.peekChar() == '#'):
		return l.readRawString(start, startLine, startCol)
	case l.ch == '\'':
		return l.readChar_(start, startLine, startCol)
	}

	return l.readOperator(start, startLine, startCol)
}

func (l *Lexer) readIdentifier(start, startLine, startCol int) (token.Token, error) {
	for isIdentPartRune(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.position]
	typ := token.Lookup(lit)
	if lit == "_" {
		typ = token.UNDERSCORE
	}
	return l.makeTok(typ, lit, start, startLine, startCol), nil
}

func (l *Lexer) readNumber(start, startLine, startCol int) (token.Token, error) {
	isFloat := false
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
	} else if l.ch == '0' && (l.peekChar() == 'b' || l.peekChar() == 'B') {
		l.readChar()
		l.readChar()
		for l.ch == '0' || l.ch == '1' || l.ch == '_' {
			l.readChar()
		}
	} else if l.ch == '0' && (l.peekChar() == 'o' || l.peekChar() == 'O') {
		l.readChar()
		l.readChar()
		for (l.ch >= '0' && l.ch <= '7') || l.ch == '_' {
			l.readChar()
		}
	} else {
		for isDigitRune(l.ch) || l.ch == '_' {
			l.readChar()
		}
		if l.ch == '.' && isDigitRune(l.peekChar()) {
			isFloat = true
			l.readChar()
			for isDigitRune(l.ch) || l.ch == '_' {
				l.readChar()
			}
		}
		if l.ch == 'e' || l.ch == 'E' {
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			if isDigitRune(l.ch) {
				isFloat = true
				for isDigitRune(l.ch) {
					l.readChar()
				}
			} else {
				// an 'e' with no exponent digits after it is a malformed number
				return token.Token{}, &Error{Kind: InvalidNumber, Detail: "missing exponent digits",
					Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
			}
		}
	}

	numEnd := l.position
	suffix := ""
	if isIdentStartRune(l.ch) {
		sufStart := l.position
		for isIdentPartRune(l.ch) {
			l.readChar()
		}
		suffix = l.input[sufStart:l.position]
		if !isValidSuffix(suffix) {
			return token.Token{}, &Error{Kind: InvalidNumber, Detail: "unknown numeric suffix " + suffix,
				Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
		}
		if strings.HasPrefix(suffix, "f") {
			isFloat = true
		}
	}

	lit := l.input[start:numEnd]
	typ := token.INT
	if isFloat {
		typ = token.FLOAT
		if _, err := strconv.ParseFloat(strings.ReplaceAll(lit, "_", ""), 64); err != nil {
			return token.Token{}, &Error{Kind: InvalidNumber, Detail: err.Error(),
				Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
		}
	}
	tok := l.makeTok(typ, lit, start, startLine, startCol)
	tok.Suffix = suffix
	return tok, nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

var validIntSuffixes = map[string]bool{
	"i8": true, "i16": true, "i32": true, "i64": true, "i128": true, "isize": true,
	"u8": true, "u16": true, "u32": true, "u64": true, "u128": true, "usize": true,
}

var validFloatSuffixes = map[string]bool{"f32": true, "f64": true}

func isValidSuffix(s string) bool {
	return validIntSuffixes[s] || validFloatSuffixes[s]
}

func (l *Lexer) readChar_(start, startLine, startCol int) (token.Token, error) {
	l.readChar() // consume opening '
	var b strings.Builder
	if l.ch == '\\' {
		r, err := l.readEscape(start, startLine, startCol)
		if err != nil {
			return token.Token{}, err
		}
		b.WriteRune(r)
	} else if l.ch == 0 || l.ch == '\'' {
		return token.Token{}, &Error{Kind: UnterminatedString, Detail: "empty char literal",
			Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
	} else {
		b.WriteRune(l.ch)
		l.readChar()
	}
	if l.ch != '\'' {
		return token.Token{}, &Error{Kind: UnterminatedString, Detail: "unterminated character literal",
			Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
	}
	l.readChar() // consume closing '
	return l.makeTok(token.CHAR, b.String(), start, startLine, startCol), nil
}

func (l *Lexer) readEscape(start, startLine, startCol int) (rune, error) {
	l.readChar() // consume backslash
	switch l.ch {
	case 'n':
		l.readChar()
		return '\n', nil
	case 't':
		l.readChar()
		return '\t', nil
	case 'r':
		l.readChar()
		return '\r', nil
	case '\\':
		l.readChar()
		return '\\', nil
	case '\'':
		l.readChar()
		return '\'', nil
	case '"':
		l.readChar()
		return '"', nil
	case '0':
		l.readChar()
		return 0, nil
	case 'u':
		l.readChar()
		if l.ch != '{' {
			return 0, &Error{Kind: InvalidEscape, Detail: "expected '{' after \\u",
				Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
		}
		l.readChar()
		hexStart := l.position
		for l.ch != '}' && l.ch != 0 {
			l.readChar()
		}
		hex := l.input[hexStart:l.position]
		if l.ch == '}' {
			l.readChar()
		}
		v, err := strconv.ParseInt(hex, 16, 32)
		if err != nil {
			return 0, &Error{Kind: InvalidEscape, Detail: "invalid unicode escape \\u{" + hex + "}",
				Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
		}
		return rune(v), nil
	default:
		return 0, &Error{Kind: InvalidEscape, Detail: fmt.Sprintf("unknown escape \\%c", l.ch),
			Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
	}
}

// readString lexes `"..."` and, when interpolated is true, enters f-string
// mode so Next() starts re-dispatching to nextFStringToken for the parts.
func (l *Lexer) readString(start, startLine, startCol int, interpolated bool) (token.Token, error) {
	quote := l.ch
	l.readChar() // consume opening quote
	if !interpolated {
		var b strings.Builder
		for l.ch != quote {
			if l.ch == 0 {
				return token.Token{}, &Error{Kind: UnterminatedString, Detail: "unterminated string literal",
					Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
			}
			if l.ch == '\\' {
				r, err := l.readEscape(start, startLine, startCol)
				if err != nil {
					return token.Token{}, err
				}
				b.WriteRune(r)
				continue
			}
			b.WriteRune(l.ch)
			l.readChar()
		}
		l.readChar() // consume closing quote
		return l.makeTok(token.STRING, b.String(), start, startLine, startCol), nil
	}

	l.pushMode(modeFString)
	l.fstringBraceDepth = append(l.fstringBraceDepth, 0)
	l.fstringQuote = append(l.fstringQuote, quote)
	return l.makeTok(token.FSTRING_START, "", start, startLine, startCol), nil
}

// nextFStringToken is called while inside an f-string: it emits alternating
// FSTRING_TEXT fragments and FSTRING_EXPR_START/END markers that bracket a
// normal sub-lex of the embedded expression (spec.md §4.2).
func (l *Lexer) nextFStringToken() (token.Token, error) {
	start, startLine, startCol := l.position, l.line, l.column
	quote := l.fstringQuote[len(l.fstringQuote)-1]

	if l.fstringBraceDepth[len(l.fstringBraceDepth)-1] > 0 {
		// We're inside the embedded expression: hand off to normal
		// tokenization until the matching '}' is seen.
		if l.ch == '{' {
			l.fstringBraceDepth[len(l.fstringBraceDepth)-1]++
		}
		if l.ch == '}' {
			l.fstringBraceDepth[len(l.fstringBraceDepth)-1]--
			if l.fstringBraceDepth[len(l.fstringBraceDepth)-1] == 0 {
				l.readChar()
				return l.makeTok(token.FSTRING_EXPR_END, "", start, startLine, startCol), nil
			}
		}
		l.popMode()
		tok, err := l.nextNormalToken()
		l.pushMode(modeFString)
		return tok, err
	}

	var b strings.Builder
	for {
		switch l.ch {
		case 0:
			return token.Token{}, &Error{Kind: UnterminatedInterpolation, Detail: "unterminated f-string",
				Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
		case quote:
			l.readChar()
			l.popMode()
			l.fstringBraceDepth = l.fstringBraceDepth[:len(l.fstringBraceDepth)-1]
			l.fstringQuote = l.fstringQuote[:len(l.fstringQuote)-1]
			if b.Len() > 0 {
				// there's no lookahead token queue here, so pending text
				// travels as the FSTRING_END token's literal.
			}
			tok := l.makeTok(token.FSTRING_END, b.String(), start, startLine, startCol)
			return tok, nil
		case '{':
			if l.peekChar() == '{' {
				b.WriteByte('{')
				l.readChar()
				l.readChar()
				continue
			}
			if b.Len() > 0 {
				return l.makeTok(token.FSTRING_TEXT, b.String(), start, startLine, startCol), nil
			}
			l.readChar()
			l.fstringBraceDepth[len(l.fstringBraceDepth)-1] = 1
			return l.makeTok(token.FSTRING_EXPR_START, "", start, startLine, startCol), nil
		case '}':
			if l.peekChar() == '}' {
				b.WriteByte('}')
				l.readChar()
				l.readChar()
				continue
			}
			b.WriteByte('}')
			l.readChar()
		case '\\':
			r, err := l.readEscape(start, startLine, startCol)
			if err != nil {
				return token.Token{}, err
			}
			b.WriteRune(r)
		default:
			if b.Len() == 0 {
				// fall through to accumulate
			}
			b.WriteRune(l.ch)
			l.readChar()
		}
	}
}

// readRawString lexes `r"..."` and `r#"..."#` raw strings: no escapes are
// processed.
func (l *Lexer) readRawString(start, startLine, startCol int) (token.Token, error) {
	l.readChar() // consume 'r'
	hashes := 0
	for l.ch == '#' {
		hashes++
		l.readChar()
	}
	if l.ch != '"' {
		return token.Token{}, &Error{Kind: UnexpectedChar, Detail: "expected '\"' to open raw string",
			Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
	}
	l.readChar()
	contentStart := l.position
	closer := "\"" + strings.Repeat("#", hashes)
	for {
		if l.ch == 0 {
			return token.Token{}, &Error{Kind: UnterminatedString, Detail: "unterminated raw string",
				Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
		}
		if l.ch == '"' && strings.HasPrefix(l.input[l.position:], closer) {
			content := l.input[contentStart:l.position]
			for i := 0; i < len(closer); i++ {
				l.readChar()
			}
			return l.makeTok(token.RAW_STRING, content, start, startLine, startCol), nil
		}
		l.readChar()
	}
}

func (l *Lexer) readOperator(start, startLine, startCol int) (token.Token, error) {
	ch := l.ch
	two := string(ch) + string(l.peekChar())
	three := two + string(l.peekCharAt(1))

	switch three {
	case "..=":
		l.readChar()
		l.readChar()
		l.readChar()
		return l.makeTok(token.DOTDOTEQ, three, start, startLine, startCol), nil
	case "...":
		l.readChar()
		l.readChar()
		l.readChar()
		return l.makeTok(token.DOTDOTDOT, three, start, startLine, startCol), nil
	}

	twoCharTypes := map[string]token.Type{
		"**": token.STARSTAR, "==": token.EQ, "!=": token.NE, "<=": token.LE, ">=": token.GE,
		"&&": token.AND_AND, "||": token.OR_OR, "+=": token.PLUS_EQ, "-=": token.MINUS_EQ,
		"*=": token.STAR_EQ, "/=": token.SLASH_EQ, "%=": token.PERCENT_EQ,
		"::": token.COLONCOLON, "->": token.ARROW, "=>": token.FATARROW,
		"..": token.DOTDOT, "++": token.INC, "--": token.DEC, "<<": token.SHL, ">>": token.SHR,
		"|>": token.PIPE_FORWARD,
	}
	if typ, ok := twoCharTypes[two]; ok {
		l.readChar()
		l.readChar()
		return l.makeTok(typ, two, start, startLine, startCol), nil
	}

	oneCharTypes := map[rune]token.Type{
		'+': token.PLUS, '-': token.MINUS, '*': token.STAR, '/': token.SLASH, '%': token.PERCENT,
		'=': token.ASSIGN, '<': token.LT, '>': token.GT, '!': token.NOT, '&': token.AMP,
		'|': token.AMP, '^': token.CARET, '(': token.LPAREN, ')': token.RPAREN,
		'{': token.LBRACE, '}': token.RBRACE, '[': token.LBRACKET, ']': token.RBRACKET,
		',': token.COMMA, ':': token.COLON, ';': token.SEMI, '.': token.DOT,
		'?': token.QUESTION, '@': token.AT,
	}
	oneCharTypes['|'] = token.PIPE_OP

	if typ, ok := oneCharTypes[ch]; ok {
		l.readChar()
		return l.makeTok(typ, string(ch), start, startLine, startCol), nil
	}

	l.readChar()
	return token.Token{}, &Error{Kind: UnexpectedChar, Detail: fmt.Sprintf("unexpected character %q", ch),
		Span: token.Span{Start: uint32(start), End: uint32(l.position)}, Line: startLine, Column: startCol}
}
