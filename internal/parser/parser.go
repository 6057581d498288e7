// Package parser implements the two-layer parser of spec.md §4.2: a
// recursive-descent item layer over `fn`/`struct`/`enum`/`trait`/`impl`/
// `use`/`module`/`export`/`class`, and a Pratt expression layer with
// explicit operator precedences. Structure and error-recovery idiom are
// grounded on the teacher's runtime/parser (ParserConfig, ParseError with
// suggestions, panic-mode recovery at statement boundaries).
package parser

import (
	"fmt"
	"strconv"

	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/diag"
	"github.com/paiml/ruchy/internal/invariant"
	"github.com/paiml/ruchy/internal/lexer"
	"github.com/paiml/ruchy/internal/token"
)

// Parser holds parse state over a pre-lexed token stream.
type Parser struct {
	toks   []token.Token
	pos    int
	source string
	errors []*Error
	cfg    *config

	// noStructLiteral tracks nesting of "struct-literal disallowed"
	// contexts (if/while/for/match condition positions), per spec.md
	// §4.2's "condition positions exclude struct literals" tie-break.
	noStructLiteral int

	telemetry Telemetry
}

// New lexes source and returns a Parser positioned at the first token, or
// the first lexical error (the lexer and parser are run as one pass per
// spec.md §2's pipeline, but a lex failure is reported distinctly).
func New(source string, opts ...Option) (*Parser, error) {
	toks, err := lexer.All(source)
	if err != nil {
		return nil, err
	}
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Parser{toks: toks, source: source, cfg: cfg, telemetry: Telemetry{TokenCount: len(toks)}}, nil
}

// Parse lexes and parses source in one call, returning every item-layer
// error accumulated via panic-mode recovery (spec.md §4.2 "Errors").
func Parse(source string, opts ...Option) (*ast.Program, []*Error) {
	p, err := New(source, opts...)
	if err != nil {
		return nil, []*Error{{Code: UnexpectedToken, Message: err.Error(), Severity: diag.SeverityError}}
	}
	prog := p.ParseProgram()
	p.telemetry.ErrorCount = len(p.errors)
	return prog, p.errors
}

func (p *Parser) Errors() []*Error { return p.errors }

// Telemetry returns parse counters collected during this parse, populated
// regardless of the configured TelemetryLevel (the level gates whether a
// caller bothers reading them, per the teacher's production-safe-counters
// idiom).
func (p *Parser) Telemetry() Telemetry { return p.telemetry }

func (p *Parser) cur() token.Token  { return p.toks[p.pos] }
func (p *Parser) peekN(n int) token.Token {
	idx := p.pos + n
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}
func (p *Parser) atEOF() bool { return p.cur().Type == token.EOF }

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) check(t token.Type) bool { return p.cur().Type == t }

func (p *Parser) match(t token.Type) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t token.Type, context string) (token.Token, bool) {
	if p.check(t) {
		return p.advance(), true
	}
	p.errorHere(UnexpectedToken, fmt.Sprintf("expected %s %s, found %s", t, context, p.cur().Type),
		[]string{t.String()})
	return p.cur(), false
}

func (p *Parser) errorHere(code ErrorCode, msg string, expected []string) {
	p.errors = append(p.errors, &Error{
		Code: code, Message: msg, Found: p.cur(), Expected: expected,
		Severity: diag.SeverityError, Span: p.cur().Span,
	})
}

// keywordLiterals backs "did you mean `fun`?" suggestions when an
// unrecognized identifier appears where an expression or item was expected,
// e.g. a typo'd keyword.
var keywordLiterals = []string{
	"fun", "struct", "enum", "trait", "impl", "class", "use", "module", "export",
	"let", "mut", "if", "else", "match", "while", "for", "loop", "break", "continue",
	"return", "pub", "async", "await", "spawn", "try", "catch", "throw",
}

// errorWithKeywordSuggestion reports an UnexpectedToken where an expression
// was expected, adding a fuzzy-matched keyword suggestion when the
// offending token is an identifier that resembles a keyword (grounded on
// diag.Suggest, the same "did you mean" mechanism used for undefined
// names).
func (p *Parser) errorWithKeywordSuggestion(tok token.Token) {
	msg := "expected an expression, found " + tok.Type.String()
	var suggestions []string
	if tok.Type == token.IDENT {
		suggestions = diag.Suggest(tok.Literal, keywordLiterals, 1)
	}
	p.errors = append(p.errors, &Error{
		Code: UnexpectedToken, Message: msg, Found: p.cur(),
		Severity: diag.SeverityError, Span: p.cur().Span, Suggestions: suggestions,
	})
}

// synchronize implements panic-mode recovery at statement boundaries:
// `;`, block end, or a top-level item keyword (spec.md §4.2 "Errors").
func (p *Parser) synchronize() {
	for !p.atEOF() {
		if p.cur().Type == token.SEMI {
			p.advance()
			return
		}
		switch p.cur().Type {
		case token.RBRACE, token.FUN, token.STRUCT, token.ENUM, token.TRAIT,
			token.IMPL, token.USE, token.MODULE, token.EXPORT, token.CLASS:
			return
		}
		p.advance()
	}
}

// ParseProgram parses the item layer. Per spec.md invariant (v), name
// resolution is two-pass at top level: this function only builds the AST;
// callers (evaluator, mutation analysis) are responsible for registering
// all item names before checking any body, which this single linear pass
// already makes possible since every Item node is available before any
// consumer walks bodies.
func (p *Parser) ParseProgram() *ast.Program {
	start := p.cur().Span
	var items []ast.Item
	for !p.atEOF() {
		before := p.pos
		if it := p.parseItem(); it != nil {
			items = append(items, it)
		}
		invariant.Invariant(p.pos > before || p.atEOF(), "parser must make progress")
	}
	end := start
	if len(p.toks) > 0 {
		end = p.toks[len(p.toks)-1].Span
	}
	return &ast.Program{Items: items, SpanV: token.Cover(start, end)}
}

func (p *Parser) parseItem() ast.Item {
	isPub := false
	if p.check(token.PUB) {
		isPub = true
		p.advance()
	}
	switch p.cur().Type {
	case token.FUN:
		return p.parseFunctionDecl(isPub, false)
	case token.ASYNC:
		p.advance()
		if !p.expectKw(token.FUN) {
			p.synchronize()
			return nil
		}
		return p.parseFunctionDecl(isPub, true)
	case token.STRUCT:
		return p.parseStructDecl(isPub)
	case token.ENUM:
		return p.parseEnumDecl(isPub)
	case token.TRAIT:
		return p.parseTraitDecl()
	case token.IMPL:
		return p.parseImplDecl()
	case token.CLASS:
		return p.parseClassDecl(isPub)
	case token.USE:
		return p.parseUseDecl()
	case token.MODULE:
		return p.parseModuleDecl()
	case token.EXPORT:
		return p.parseExportDecl()
	default:
		start := p.cur().Span
		e := p.parseExpression(precAssign)
		p.match(token.SEMI)
		return &ast.TopLevelExpr{Expr: e, SpanV: token.Cover(start, e.Span())}
	}
}

func (p *Parser) expectKw(t token.Type) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	p.errorHere(UnexpectedToken, fmt.Sprintf("expected %s, found %s", t, p.cur().Type), []string{t.String()})
	return false
}

// ---- fun ----

func (p *Parser) parseFunctionDecl(isPub, isAsync bool) ast.Item {
	start := p.cur().Span
	p.advance() // 'fun'
	nameTok, _ := p.expect(token.IDENT, "function name")
	fn := p.parseFunctionRest(nameTok.Literal, isPub, isAsync)
	return &ast.FunctionDecl{FunctionLit: *fn, SpanV: token.Cover(start, fn.Body.Span())}
}

func (p *Parser) parseFunctionRest(name string, isPub, isAsync bool) *ast.FunctionLit {
	var typeParams []string
	if p.match(token.LT) {
		for !p.check(token.GT) && !p.atEOF() {
			tp, _ := p.expect(token.IDENT, "type parameter")
			typeParams = append(typeParams, tp.Literal)
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.GT, "to close type parameter list")
	}
	p.expect(token.LPAREN, "to open parameter list")
	var params []ast.Param
	for !p.check(token.RPAREN) && !p.atEOF() {
		params = append(params, p.parseParam())
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN, "to close parameter list")

	var retType *ast.TypeExpr
	if p.match(token.ARROW) {
		retType = p.parseType()
	}
	body := p.parseBlock()
	return &ast.FunctionLit{
		Name: name, TypeParams: typeParams, Params: params, ReturnType: retType,
		Body: body, IsPub: isPub, IsAsync: isAsync,
	}
}

func (p *Parser) parseParam() ast.Param {
	start := p.cur().Span
	pat := p.parsePattern()
	var typ *ast.TypeExpr
	if p.match(token.COLON) {
		typ = p.parseType()
	}
	var def *ast.Expr
	if p.match(token.ASSIGN) {
		def = p.parseExpression(precAssign)
	}
	_ = start
	return ast.Param{Pattern: pat, Type: typ, Default: def}
}

func (p *Parser) parseType() *ast.TypeExpr {
	start := p.cur().Span
	if p.match(token.AMP) {
		mut := p.match(token.MUT)
		inner := p.parseType()
		return ast.NewType(ast.ReferenceType{Mut: mut, Inner: inner}, token.Cover(start, inner.Span()))
	}
	if p.match(token.LBRACKET) {
		elem := p.parseType()
		if p.match(token.SEMI) {
			sizeTok, _ := p.expect(token.INT, "array size")
			end, _ := p.expect(token.RBRACKET, "to close array type")
			size, _ := strconv.Atoi(sizeTok.Literal)
			return ast.NewType(ast.ArrayType{Elem: elem, Size: size}, token.Cover(start, end.Span))
		}
		end, _ := p.expect(token.RBRACKET, "to close list type")
		return ast.NewType(ast.ListType{Elem: elem}, token.Cover(start, end.Span))
	}
	if p.match(token.LPAREN) {
		var elems []*ast.TypeExpr
		for !p.check(token.RPAREN) && !p.atEOF() {
			elems = append(elems, p.parseType())
			if !p.match(token.COMMA) {
				break
			}
		}
		end, _ := p.expect(token.RPAREN, "to close tuple type")
		return ast.NewType(ast.TupleType{Elems: elems}, token.Cover(start, end.Span))
	}
	nameTok, _ := p.expect(token.IDENT, "type name")
	base := ast.NewType(ast.NamedType{Name: nameTok.Literal}, nameTok.Span)
	if p.match(token.LT) {
		var params []*ast.TypeExpr
		for !p.check(token.GT) && !p.atEOF() {
			params = append(params, p.parseType())
			if !p.match(token.COMMA) {
				break
			}
		}
		end, _ := p.expect(token.GT, "to close generic type argument list")
		base = ast.NewType(ast.GenericType{Base: nameTok.Literal, Params: params}, token.Cover(nameTok.Span, end.Span))
	}
	if p.match(token.QUESTION) {
		base = ast.NewType(ast.OptionalType{Inner: base}, token.Cover(start, p.toks[p.pos-1].Span))
	}
	return base
}

// ---- struct / enum / trait / impl / class ----

func (p *Parser) parseStructDecl(isPub bool) ast.Item {
	start := p.cur().Span
	p.advance() // 'struct'
	nameTok, _ := p.expect(token.IDENT, "struct name")
	typeParams := p.maybeParseTypeParams()
	fields := p.parseStructFields()
	end := p.toks[p.pos-1].Span
	return &ast.StructDecl{Name: nameTok.Literal, TypeParams: typeParams, Fields: fields, IsPub: isPub, SpanV: token.Cover(start, end)}
}

func (p *Parser) maybeParseTypeParams() []string {
	var out []string
	if p.match(token.LT) {
		for !p.check(token.GT) && !p.atEOF() {
			tp, _ := p.expect(token.IDENT, "type parameter")
			out = append(out, tp.Literal)
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.GT, "to close type parameter list")
	}
	return out
}

func (p *Parser) parseStructFields() []ast.StructField {
	p.expect(token.LBRACE, "to open struct body")
	var fields []ast.StructField
	for !p.check(token.RBRACE) && !p.atEOF() {
		vis := ast.VisPrivate
		if p.match(token.PUB) {
			vis = ast.VisPub
			if p.match(token.LPAREN) {
				p.expect(token.CRATE, "crate")
				p.expect(token.RPAREN, "to close pub(...)")
				vis = ast.VisPubCrate
			}
		}
		nameTok, _ := p.expect(token.IDENT, "field name")
		p.expect(token.COLON, "before field type")
		typ := p.parseType()
		var def *ast.Expr
		if p.match(token.ASSIGN) {
			def = p.parseExpression(precAssign)
		}
		fields = append(fields, ast.StructField{
			Name: nameTok.Literal, Type: typ, IsPub: vis == ast.VisPub, Visibility: vis, Default: def,
		})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE, "to close struct body")
	return fields
}

func (p *Parser) parseEnumDecl(isPub bool) ast.Item {
	start := p.cur().Span
	p.advance() // 'enum'
	nameTok, _ := p.expect(token.IDENT, "enum name")
	typeParams := p.maybeParseTypeParams()
	p.expect(token.LBRACE, "to open enum body")
	var variants []ast.EnumVariant
	for !p.check(token.RBRACE) && !p.atEOF() {
		vNameTok, _ := p.expect(token.IDENT, "variant name")
		v := ast.EnumVariant{Name: vNameTok.Literal}
		if p.match(token.LPAREN) {
			for !p.check(token.RPAREN) && !p.atEOF() {
				v.Fields = append(v.Fields, p.parseType())
				if !p.match(token.COMMA) {
					break
				}
			}
			p.expect(token.RPAREN, "to close tuple variant")
		} else if p.check(token.LBRACE) {
			v.Struct = p.parseStructFields()
		}
		variants = append(variants, v)
		if !p.match(token.COMMA) {
			break
		}
	}
	end, _ := p.expect(token.RBRACE, "to close enum body")
	return &ast.EnumDecl{Name: nameTok.Literal, TypeParams: typeParams, Variants: variants, IsPub: isPub, SpanV: token.Cover(start, end.Span)}
}

func (p *Parser) parseTraitDecl() ast.Item {
	start := p.cur().Span
	p.advance() // 'trait'
	nameTok, _ := p.expect(token.IDENT, "trait name")
	p.expect(token.LBRACE, "to open trait body")
	var methods []*ast.FunctionDecl
	for !p.check(token.RBRACE) && !p.atEOF() {
		isPub := p.match(token.PUB)
		p.expectKw(token.FUN)
		mNameTok, _ := p.expect(token.IDENT, "method name")
		fn := p.parseFunctionRest(mNameTok.Literal, isPub, false)
		methods = append(methods, &ast.FunctionDecl{FunctionLit: *fn})
	}
	end, _ := p.expect(token.RBRACE, "to close trait body")
	return &ast.TraitDecl{Name: nameTok.Literal, Methods: methods, SpanV: token.Cover(start, end.Span)}
}

func (p *Parser) parseImplDecl() ast.Item {
	start := p.cur().Span
	p.advance() // 'impl'
	firstTok, _ := p.expect(token.IDENT, "type or trait name")
	typeName := firstTok.Literal
	traitName := ""
	if p.match(token.FOR) {
		traitName = typeName
		tNameTok, _ := p.expect(token.IDENT, "type name")
		typeName = tNameTok.Literal
	} else if p.check(token.IN) {
		// `impl Trait in Type` not part of grammar; ignore
	}
	p.expect(token.LBRACE, "to open impl body")
	var methods []*ast.FunctionDecl
	for !p.check(token.RBRACE) && !p.atEOF() {
		isPub := p.match(token.PUB)
		p.expectKw(token.FUN)
		mNameTok, _ := p.expect(token.IDENT, "method name")
		fn := p.parseFunctionRest(mNameTok.Literal, isPub, false)
		methods = append(methods, &ast.FunctionDecl{FunctionLit: *fn})
	}
	end, _ := p.expect(token.RBRACE, "to close impl body")
	return &ast.ImplDecl{TraitName: traitName, TypeName: typeName, Methods: methods, SpanV: token.Cover(start, end.Span)}
}

func (p *Parser) parseClassDecl(isPub bool) ast.Item {
	start := p.cur().Span
	p.advance() // 'class'
	nameTok, _ := p.expect(token.IDENT, "class name")
	p.maybeParseTypeParams()
	p.expect(token.LBRACE, "to open class body")
	var fields []ast.StructField
	var methods []*ast.FunctionDecl
	for !p.check(token.RBRACE) && !p.atEOF() {
		fieldPub := p.match(token.PUB)
		if p.check(token.FUN) {
			p.advance()
			mNameTok, _ := p.expect(token.IDENT, "method name")
			fn := p.parseFunctionRest(mNameTok.Literal, fieldPub, false)
			methods = append(methods, &ast.FunctionDecl{FunctionLit: *fn})
			continue
		}
		fNameTok, _ := p.expect(token.IDENT, "field name")
		p.expect(token.COLON, "before field type")
		typ := p.parseType()
		var def *ast.Expr
		if p.match(token.ASSIGN) {
			def = p.parseExpression(precAssign)
		}
		fields = append(fields, ast.StructField{Name: fNameTok.Literal, Type: typ, IsPub: fieldPub, Default: def})
		p.match(token.COMMA)
	}
	end, _ := p.expect(token.RBRACE, "to close class body")
	return &ast.ClassDecl{Name: nameTok.Literal, Fields: fields, Methods: methods, IsPub: isPub, SpanV: token.Cover(start, end.Span)}
}

// ---- use / module / export ----

func (p *Parser) parseUseDecl() ast.Item {
	start := p.cur().Span
	p.advance() // 'use'
	path, items := p.parseUsePath()
	p.match(token.SEMI)
	end := p.toks[p.pos-1].Span
	return &ast.UseDecl{Path: path, Items: items, SpanV: token.Cover(start, end)}
}

func (p *Parser) parseUsePath() ([]string, []ast.ImportItem) {
	var path []string
	for {
		nameTok, _ := p.expect(token.IDENT, "module path segment")
		path = append(path, nameTok.Literal)
		if !p.match(token.COLONCOLON) {
			return path, nil
		}
		if p.match(token.LBRACE) {
			var items []ast.ImportItem
			for !p.check(token.RBRACE) && !p.atEOF() {
				itemTok, _ := p.expect(token.IDENT, "import item")
				it := ast.ImportItem{Name: itemTok.Literal}
				if p.match(token.AS) {
					aliasTok, _ := p.expect(token.IDENT, "alias")
					it.Alias = aliasTok.Literal
				}
				items = append(items, it)
				if !p.match(token.COMMA) {
					break
				}
			}
			p.expect(token.RBRACE, "to close import list")
			return path, items
		}
		if p.match(token.STAR) {
			return path, []ast.ImportItem{{Name: "*"}}
		}
	}
}

func (p *Parser) parseModuleDecl() ast.Item {
	start := p.cur().Span
	p.advance() // 'module'
	nameTok, _ := p.expect(token.IDENT, "module name")
	p.expect(token.LBRACE, "to open module body")
	var items []ast.Item
	for !p.check(token.RBRACE) && !p.atEOF() {
		if it := p.parseItem(); it != nil {
			items = append(items, it)
		}
	}
	end, _ := p.expect(token.RBRACE, "to close module body")
	return &ast.ModuleDecl{Name: nameTok.Literal, Items: items, SpanV: token.Cover(start, end.Span)}
}

func (p *Parser) parseExportDecl() ast.Item {
	start := p.cur().Span
	p.advance() // 'export'
	inner := p.parseItem()
	if inner == nil {
		return nil
	}
	return &ast.ExportDecl{Item: inner, SpanV: token.Cover(start, inner.Span())}
}
