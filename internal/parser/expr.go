package parser

import (
	"strconv"

	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/token"
)

// Operator precedence levels, lowest to highest, per spec.md §4.2: "|| <
// && < comparison < bitwise |/^/& < shift < additive < multiplicative <
// power ** < unary", with "ranges ../..= bind between comparison and
// bitwise" and "the pipe |> binds tighter than assignment, looser than
// ||" layered in.
const (
	precLowest = iota
	precAssign
	precPipe
	precOr
	precAnd
	precComparison // ==, !=, <, <=, >, >= are one tier per spec.md
	precRange
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precAdditive
	precMultiplicative
	precPow
	precUnary
	precPostfix
)

var binInfix = map[token.Type]struct {
	prec int
	op   ast.BinOp
}{
	token.OR_OR:     {precOr, ast.OpOr},
	token.AND_AND:   {precAnd, ast.OpAnd},
	token.PIPE_OP:   {precBitOr, ast.OpBitOr},
	token.CARET:     {precBitXor, ast.OpBitXor},
	token.AMP:       {precBitAnd, ast.OpBitAnd},
	token.EQ:        {precComparison, ast.OpEq},
	token.NE:        {precComparison, ast.OpNe},
	token.LT:        {precComparison, ast.OpLt},
	token.LE:        {precComparison, ast.OpLe},
	token.GT:        {precComparison, ast.OpGt},
	token.GE:        {precComparison, ast.OpGe},
	token.SHL:       {precShift, ast.OpShl},
	token.SHR:       {precShift, ast.OpShr},
	token.PLUS:      {precAdditive, ast.OpAdd},
	token.MINUS:     {precAdditive, ast.OpSub},
	token.STAR:      {precMultiplicative, ast.OpMul},
	token.SLASH:     {precMultiplicative, ast.OpDiv},
	token.PERCENT:   {precMultiplicative, ast.OpMod},
	token.STARSTAR:  {precPow, ast.OpPow},
}

var compoundOps = map[token.Type]ast.BinOp{
	token.PLUS_EQ:    ast.OpAdd,
	token.MINUS_EQ:   ast.OpSub,
	token.STAR_EQ:    ast.OpMul,
	token.SLASH_EQ:   ast.OpDiv,
	token.PERCENT_EQ: ast.OpMod,
}

// cannotStartExpr holds tokens that can never begin an expression, used to
// detect open range ends (`a..`) and empty call-argument-adjacent slices.
var cannotStartExpr = map[token.Type]bool{
	token.RBRACE: true, token.RPAREN: true, token.RBRACKET: true,
	token.COMMA: true, token.SEMI: true, token.EOF: true,
	token.FATARROW: true, token.COLON: true,
}

func (p *Parser) canStartExpression() bool {
	return !cannotStartExpr[p.cur().Type]
}

// parseExpression implements precedence climbing: minPrec is the lowest
// precedence of operator this call is willing to consume, so right-hand
// recursive calls pass prec+1 for left-associative operators and prec for
// right-associative ones (STARSTAR, assignment).
func (p *Parser) parseExpression(minPrec int) *ast.Expr {
	left := p.parseUnary()
	for {
		cur := p.cur().Type
		switch cur {
		case token.ASSIGN:
			if minPrec > precAssign {
				return left
			}
			p.advance()
			val := p.parseExpression(precAssign)
			left = ast.NewExpr(ast.Assign{Target: left, Value: val}, token.Cover(left.Span(), val.Span()))
			continue
		case token.PLUS_EQ, token.MINUS_EQ, token.STAR_EQ, token.SLASH_EQ, token.PERCENT_EQ:
			if minPrec > precAssign {
				return left
			}
			op := compoundOps[cur]
			p.advance()
			val := p.parseExpression(precAssign)
			left = ast.NewExpr(ast.CompoundAssign{Target: left, Op: op, Value: val}, token.Cover(left.Span(), val.Span()))
			continue
		case token.PIPE_FORWARD:
			if minPrec > precPipe {
				return left
			}
			p.advance()
			rhs := p.parseExpression(precPipe + 1)
			left = ast.NewExpr(desugarPipe(left, rhs), token.Cover(left.Span(), rhs.Span()))
			continue
		case token.DOTDOT, token.DOTDOTEQ:
			if minPrec > precRange {
				return left
			}
			inclusive := cur == token.DOTDOTEQ
			end := p.advance().Span
			var hi *ast.Expr
			if p.canStartExpression() {
				hi = p.parseExpression(precRange + 1)
				end = hi.Span()
			}
			left = ast.NewExpr(ast.Range{Lo: left, Hi: hi, Inclusive: inclusive}, token.Cover(left.Span(), end))
			continue
		default:
			if info, ok := binInfix[cur]; ok && info.prec >= minPrec {
				p.advance()
				nextMin := info.prec + 1
				if cur == token.STARSTAR {
					nextMin = info.prec // right-associative
				}
				right := p.parseExpression(nextMin)
				left = ast.NewExpr(ast.Binary{Op: info.op, Left: left, Right: right}, token.Cover(left.Span(), right.Span()))
				continue
			}
		}
		return left
	}
}

// desugarPipe lowers `lhs |> rhs` to a plain Call, inserting lhs as the
// first argument: `e |> f` becomes `f(e)`, and `e |> f(x)` becomes
// `f(e, x)` so the pipe reads as "pass e into f alongside its other args"
// (spec.md §6 "pipe e |> f"). The evaluator, VM, and transpiler need no
// dedicated Pipe case since this produces an ordinary ast.Call node.
func desugarPipe(lhs, rhs *ast.Expr) ast.ExprKind {
	if call, ok := rhs.Kind.(ast.Call); ok {
		args := make([]*ast.Expr, 0, len(call.Args)+1)
		args = append(args, lhs)
		args = append(args, call.Args...)
		return ast.Call{Callee: call.Callee, Args: args}
	}
	return ast.Call{Callee: rhs, Args: []*ast.Expr{lhs}}
}

func (p *Parser) parseUnary() *ast.Expr {
	switch p.cur().Type {
	case token.MINUS:
		start := p.advance().Span
		operand := p.parseUnary()
		return ast.NewExpr(ast.Unary{Op: ast.OpNeg, Expr: operand}, token.Cover(start, operand.Span()))
	case token.NOT:
		start := p.advance().Span
		operand := p.parseUnary()
		return ast.NewExpr(ast.Unary{Op: ast.OpNot, Expr: operand}, token.Cover(start, operand.Span()))
	case token.INC:
		start := p.advance().Span
		target := p.parseUnary()
		return ast.NewExpr(ast.IncDec{Kind: ast.PreIncrement, Target: target}, token.Cover(start, target.Span()))
	case token.DEC:
		start := p.advance().Span
		target := p.parseUnary()
		return ast.NewExpr(ast.IncDec{Kind: ast.PreDecrement, Target: target}, token.Cover(start, target.Span()))
	default:
		return p.parsePostfix(p.parsePrimary())
	}
}

func (p *Parser) parsePostfix(left *ast.Expr) *ast.Expr {
	for {
		switch p.cur().Type {
		case token.DOT:
			p.advance()
			if p.match(token.AWAIT) {
				left = ast.NewExpr(ast.Await{Expr: left}, token.Cover(left.Span(), p.toks[p.pos-1].Span))
				continue
			}
			nameTok, _ := p.expect(token.IDENT, "field or method name")
			var turbofish []*ast.TypeExpr
			if p.check(token.COLONCOLON) && p.peekN(1).Type == token.LT {
				p.advance()
				p.advance()
				for !p.check(token.GT) && !p.atEOF() {
					turbofish = append(turbofish, p.parseType())
					if !p.match(token.COMMA) {
						break
					}
				}
				p.expect(token.GT, "to close turbofish")
			}
			if p.check(token.LPAREN) {
				args, end := p.parseArgList()
				left = ast.NewExpr(ast.MethodCall{Receiver: left, Method: nameTok.Literal, Turbofish: turbofish, Args: args},
					token.Cover(left.Span(), end))
				continue
			}
			left = ast.NewExpr(ast.FieldAccess{Receiver: left, Field: nameTok.Literal}, token.Cover(left.Span(), nameTok.Span))
		case token.LPAREN:
			args, end := p.parseArgList()
			left = ast.NewExpr(ast.Call{Callee: left, Args: args}, token.Cover(left.Span(), end))
		case token.LBRACKET:
			p.advance()
			var start_, end_ *ast.Expr
			inclusive := false
			if p.check(token.DOTDOT) || p.check(token.DOTDOTEQ) {
				inclusive = p.cur().Type == token.DOTDOTEQ
				p.advance()
				if !p.check(token.RBRACKET) {
					end_ = p.parseExpression(precLowest)
				}
			} else {
				inner := p.parseExpression(precLowest)
				if rng, ok := inner.Kind.(ast.Range); ok {
					start_, end_, inclusive = rng.Lo, rng.Hi, rng.Inclusive
				} else {
					endTok, _ := p.expect(token.RBRACKET, "to close index expression")
					left = ast.NewExpr(ast.IndexAccess{Receiver: left, Index: inner}, token.Cover(left.Span(), endTok.Span))
					continue
				}
			}
			endTok, _ := p.expect(token.RBRACKET, "to close slice expression")
			left = ast.NewExpr(ast.Slice{Receiver: left, Start: start_, End: end_, Inclusive: inclusive},
				token.Cover(left.Span(), endTok.Span))
		case token.QUESTION:
			end := p.advance().Span
			left = ast.NewExpr(ast.Try{Expr: left}, token.Cover(left.Span(), end))
		case token.AS:
			p.advance()
			typ := p.parseType()
			left = ast.NewExpr(ast.TypeCast{Expr: left, Type: typ}, token.Cover(left.Span(), typ.Span()))
		case token.INC:
			end := p.advance().Span
			left = ast.NewExpr(ast.IncDec{Kind: ast.PostIncrement, Target: left}, token.Cover(left.Span(), end))
		case token.DEC:
			end := p.advance().Span
			left = ast.NewExpr(ast.IncDec{Kind: ast.PostDecrement, Target: left}, token.Cover(left.Span(), end))
		default:
			return left
		}
	}
}

func (p *Parser) parseArgList() ([]*ast.Expr, token.Span) {
	p.expect(token.LPAREN, "to open argument list")
	var args []*ast.Expr
	for !p.check(token.RPAREN) && !p.atEOF() {
		args = append(args, p.parseExpression(precAssign+1))
		if !p.match(token.COMMA) {
			break
		}
	}
	end, _ := p.expect(token.RPAREN, "to close argument list")
	return args, end.Span
}

func (p *Parser) parsePrimary() *ast.Expr {
	tok := p.cur()
	switch tok.Type {
	case token.INT:
		p.advance()
		v, err := strconv.ParseInt(tok.Literal, 0, 64)
		if err != nil {
			p.errorHere(InvalidNumberLiteral, "invalid integer literal "+tok.Literal, nil)
		}
		return ast.NewExpr(ast.IntLit{Value: v, Suffix: tok.Suffix}, tok.Span)
	case token.FLOAT:
		p.advance()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorHere(InvalidNumberLiteral, "invalid float literal "+tok.Literal, nil)
		}
		return ast.NewExpr(ast.FloatLit{Value: v, Suffix: tok.Suffix}, tok.Span)
	case token.STRING, token.RAW_STRING:
		p.advance()
		return ast.NewExpr(ast.StringLit{Value: tok.Literal}, tok.Span)
	case token.CHAR:
		p.advance()
		r := rune(0)
		for _, c := range tok.Literal {
			r = c
			break
		}
		return ast.NewExpr(ast.CharLit{Value: r}, tok.Span)
	case token.TRUE, token.FALSE:
		p.advance()
		return ast.NewExpr(ast.BoolLit{Value: tok.Type == token.TRUE}, tok.Span)
	case token.NIL, token.UNIT_KW:
		p.advance()
		return ast.NewExpr(ast.UnitLit{}, tok.Span)
	case token.UNDERSCORE:
		p.advance()
		return ast.NewExpr(ast.Identifier{Name: "_"}, tok.Span)
	case token.FSTRING_START:
		return p.parseFString()
	case token.IDENT:
		return p.parseIdentOrStructLit()
	case token.LPAREN:
		return p.parseParenOrTuple()
	case token.LBRACKET:
		return p.parseListOrArrayInit()
	case token.LBRACE:
		return p.parseBlock()
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.FOR:
		return p.parseFor()
	case token.LOOP:
		return p.parseLoop()
	case token.MATCH:
		return p.parseMatch()
	case token.LET:
		return p.parseLetExpr()
	case token.FUN:
		return p.parseAnonFunction()
	case token.PIPE_OP, token.OR_OR:
		return p.parseLambda()
	case token.BREAK:
		start := p.advance().Span
		var val *ast.Expr
		if p.canStartExpression() && !p.check(token.SEMI) {
			val = p.parseExpression(precAssign + 1)
		}
		end := start
		if val != nil {
			end = val.Span()
		}
		return ast.NewExpr(ast.Break{Value: val}, token.Cover(start, end))
	case token.CONTINUE:
		start := p.advance().Span
		return ast.NewExpr(ast.Continue{}, start)
	case token.RETURN:
		start := p.advance().Span
		var val *ast.Expr
		if p.canStartExpression() && !p.check(token.SEMI) {
			val = p.parseExpression(precAssign + 1)
		}
		end := start
		if val != nil {
			end = val.Span()
		}
		return ast.NewExpr(ast.Return{Value: val}, token.Cover(start, end))
	case token.THROW:
		start := p.advance().Span
		val := p.parseExpression(precAssign + 1)
		return ast.NewExpr(ast.Throw{Expr: val}, token.Cover(start, val.Span()))
	case token.SPAWN:
		start := p.advance().Span
		val := p.parseExpression(precUnary)
		return ast.NewExpr(ast.Spawn{Expr: val}, token.Cover(start, val.Span()))
	case token.ASYNC:
		start := p.advance().Span
		body := p.parseBlock()
		return ast.NewExpr(ast.AsyncBlock{Body: body}, token.Cover(start, body.Span()))
	case token.TRY:
		return p.parseTryCatch()
	case token.OK, token.ERR, token.SOME:
		return p.parseWrapperCtor(tok)
	case token.NONE:
		p.advance()
		return ast.NewExpr(ast.NoneExpr{}, tok.Span)
	default:
		p.errorWithKeywordSuggestion(tok)
		p.advance()
		return ast.NewExpr(ast.UnitLit{}, tok.Span)
	}
}

func (p *Parser) parseWrapperCtor(tok token.Token) *ast.Expr {
	p.advance()
	p.expect(token.LPAREN, "to open "+tok.Literal+"(...)")
	val := p.parseExpression(precAssign + 1)
	end, _ := p.expect(token.RPAREN, "to close "+tok.Literal+"(...)")
	span := token.Cover(tok.Span, end.Span)
	switch tok.Type {
	case token.OK:
		return ast.NewExpr(ast.OkExpr{Value: val}, span)
	case token.ERR:
		return ast.NewExpr(ast.ErrExpr{Value: val}, span)
	default:
		return ast.NewExpr(ast.SomeExpr{Value: val}, span)
	}
}

// parseIdentOrStructLit disambiguates a bare identifier, a `Module::name`
// path, a macro invocation `name!(...)`/`df![...]`/`sql!{...}`, and a
// struct literal `Name { field: value }`. Struct literals are suppressed
// in condition position (spec.md §4.2's "no struct literal in condition").
func (p *Parser) parseIdentOrStructLit() *ast.Expr {
	start := p.cur()
	segments := []string{p.advance().Literal}
	for p.check(token.COLONCOLON) {
		p.advance()
		if p.check(token.LT) { // path turbofish Vec::<T>::new(); args are discarded (open question)
			p.advance()
			for !p.check(token.GT) && !p.atEOF() {
				p.parseType()
				if !p.match(token.COMMA) {
					break
				}
			}
			p.expect(token.GT, "to close turbofish")
			continue
		}
		seg, _ := p.expect(token.IDENT, "path segment")
		segments = append(segments, seg.Literal)
	}

	if p.check(token.NOT) {
		return p.parseMacroCall(start.Span, segments[len(segments)-1])
	}

	if len(segments) == 1 {
		name := segments[0]
		if p.noStructLiteral == 0 && p.check(token.LBRACE) && p.looksLikeStructLitBody() {
			return p.parseStructLitBody(name, start.Span)
		}
		return ast.NewExpr(ast.Identifier{Name: name}, start.Span)
	}
	last := p.toks[p.pos-1]
	if p.noStructLiteral == 0 && p.check(token.LBRACE) && p.looksLikeStructLitBody() {
		return p.parseStructLitBody(segments[len(segments)-1], start.Span)
	}
	module := segments[0]
	for _, s := range segments[1 : len(segments)-1] {
		module += "::" + s
	}
	return ast.NewExpr(ast.QualifiedName{Module: module, Name: segments[len(segments)-1]}, token.Cover(start.Span, last.Span))
}

// looksLikeStructLitBody peeks past `{` for `IDENT :` or `IDENT ,` or an
// immediate `}`, distinguishing `Point { x: 1 }` from a trailing block.
func (p *Parser) looksLikeStructLitBody() bool {
	if p.peekN(1).Type == token.RBRACE {
		return true
	}
	return p.peekN(1).Type == token.IDENT && (p.peekN(2).Type == token.COLON || p.peekN(2).Type == token.COMMA)
}

func (p *Parser) parseStructLitBody(name string, start token.Span) *ast.Expr {
	p.advance() // '{'
	var fields []ast.FieldInit
	var base *ast.Expr
	for !p.check(token.RBRACE) && !p.atEOF() {
		if p.match(token.DOTDOT) {
			base = p.parseExpression(precAssign + 1)
			break
		}
		nameTok, _ := p.expect(token.IDENT, "field name")
		var val *ast.Expr
		if p.match(token.COLON) {
			val = p.parseExpression(precAssign + 1)
		}
		fields = append(fields, ast.FieldInit{Name: nameTok.Literal, Value: val})
		if !p.match(token.COMMA) {
			break
		}
	}
	end, _ := p.expect(token.RBRACE, "to close struct literal")
	return ast.NewExpr(ast.StructLit{Name: name, Fields: fields, Base: base}, token.Cover(start, end.Span))
}

func (p *Parser) parseMacroCall(start token.Span, name string) *ast.Expr {
	p.advance() // '!'
	switch {
	case p.check(token.LBRACKET) && name == "df":
		return p.parseDataFrameMacro(start)
	case p.check(token.LBRACE) && name == "sql":
		return p.parseSQLMacro(start)
	case p.match(token.LBRACKET):
		var args []*ast.Expr
		for !p.check(token.RBRACKET) && !p.atEOF() {
			args = append(args, p.parseExpression(precAssign+1))
			if !p.match(token.COMMA) {
				break
			}
		}
		end, _ := p.expect(token.RBRACKET, "to close macro invocation")
		return ast.NewExpr(ast.Macro{Name: name, Args: args}, token.Cover(start, end.Span))
	default:
		args, end := p.parseArgList()
		return ast.NewExpr(ast.Macro{Name: name, Args: args}, token.Cover(start, end))
	}
}

// parseDataFrameMacro parses `df![col1 => [v1, v2], col2 => [v3, v4]]`,
// grounded on the confirmed original_source DataFrame builder semantics.
func (p *Parser) parseDataFrameMacro(start token.Span) *ast.Expr {
	p.advance() // '['
	var cols []ast.DataFrameColumn
	for !p.check(token.RBRACKET) && !p.atEOF() {
		name := p.parseExpression(precAssign + 1)
		p.expect(token.FATARROW, "between column name and data in df! macro")
		data := p.parseExpression(precAssign + 1)
		cols = append(cols, ast.DataFrameColumn{Name: name, Data: data})
		if !p.match(token.COMMA) {
			break
		}
	}
	end, _ := p.expect(token.RBRACKET, "to close df! macro")
	if p.cfg.validateDfSchema {
		if err := validateDataFrameColumns(cols); err != nil {
			p.errorHere(InvalidPattern, "df! column definitions: "+err.Error(), nil)
		}
	}
	return ast.NewExpr(ast.Macro{Name: "df", DataFrame: cols}, token.Cover(start, end.Span))
}

// parseSQLMacro captures the body of `sql!{ ... }` verbatim by spanning raw
// source text between the braces: SQL is not Ruchy syntax.
func (p *Parser) parseSQLMacro(start token.Span) *ast.Expr {
	p.expect(token.LBRACE, "to open sql! macro")
	depth := 1
	bodyStart := p.cur().Span.Start
	bodyEnd := bodyStart
	for depth > 0 && !p.atEOF() {
		if p.check(token.LBRACE) {
			depth++
		} else if p.check(token.RBRACE) {
			depth--
			if depth == 0 {
				break
			}
		}
		bodyEnd = p.cur().Span.End
		p.advance()
	}
	body := ""
	if int(bodyEnd) <= len(p.source) {
		body = p.source[bodyStart:bodyEnd]
	}
	end, _ := p.expect(token.RBRACE, "to close sql! macro")
	return ast.NewExpr(ast.Macro{Name: "sql", SQL: body}, token.Cover(start, end.Span))
}

func (p *Parser) parseParenOrTuple() *ast.Expr {
	start := p.advance().Span // '('
	if p.match(token.RPAREN) {
		return ast.NewExpr(ast.UnitLit{}, token.Cover(start, p.toks[p.pos-1].Span))
	}
	first := p.parseExpression(precLowest)
	if p.match(token.COMMA) {
		elems := []*ast.Expr{first}
		for !p.check(token.RPAREN) && !p.atEOF() {
			elems = append(elems, p.parseExpression(precLowest))
			if !p.match(token.COMMA) {
				break
			}
		}
		end, _ := p.expect(token.RPAREN, "to close tuple")
		return ast.NewExpr(ast.TupleLit{Elems: elems}, token.Cover(start, end.Span))
	}
	end, _ := p.expect(token.RPAREN, "to close parenthesized expression")
	first.SpanV = token.Cover(start, end.Span)
	return first
}

func (p *Parser) parseListOrArrayInit() *ast.Expr {
	start := p.advance().Span // '['
	if p.match(token.RBRACKET) {
		return ast.NewExpr(ast.ListLit{}, token.Cover(start, p.toks[p.pos-1].Span))
	}
	first := p.parseExpression(precAssign + 1)
	if p.match(token.SEMI) {
		count := p.parseExpression(precAssign + 1)
		end, _ := p.expect(token.RBRACKET, "to close array initializer")
		return ast.NewExpr(ast.ArrayInit{Elem: first, Count: count}, token.Cover(start, end.Span))
	}
	elems := []*ast.Expr{first}
	for p.match(token.COMMA) {
		if p.check(token.RBRACKET) {
			break
		}
		elems = append(elems, p.parseExpression(precAssign+1))
	}
	end, _ := p.expect(token.RBRACKET, "to close list literal")
	return ast.NewExpr(ast.ListLit{Elems: elems}, token.Cover(start, end.Span))
}

// parseBlock parses `{ expr; expr; ... }`, where a trailing expression
// without a semicolon is the block's value (spec.md invariant ii).
func (p *Parser) parseBlock() *ast.Expr {
	start, _ := p.expect(token.LBRACE, "to open block")
	var exprs []*ast.Expr
	for !p.check(token.RBRACE) && !p.atEOF() {
		before := p.pos
		exprs = append(exprs, p.parseItemOrStatementExpr())
		for p.match(token.SEMI) {
		}
		if p.pos == before {
			p.synchronize()
		}
	}
	end, _ := p.expect(token.RBRACE, "to close block")
	return ast.NewExpr(ast.Block{Exprs: exprs}, token.Cover(start.Span, end.Span))
}

// parseItemOrStatementExpr allows nested item declarations (`fun`, `struct`,
// ...) inside a block body by wrapping them, matching the grammar's "a
// function may be declared inside another function" allowance.
func (p *Parser) parseItemOrStatementExpr() *ast.Expr {
	switch p.cur().Type {
	case token.STRUCT, token.ENUM, token.TRAIT, token.IMPL, token.USE, token.MODULE, token.EXPORT:
		start := p.cur().Span
		it := p.parseItem()
		if it == nil {
			return ast.NewExpr(ast.UnitLit{}, start)
		}
		return ast.NewExpr(ast.UnitLit{}, it.Span())
	case token.FUN:
		start := p.cur().Span
		p.advance()
		nameTok, _ := p.expect(token.IDENT, "function name")
		fn := p.parseFunctionRest(nameTok.Literal, false, false)
		return ast.NewExpr(*fn, token.Cover(start, fn.Body.Span()))
	default:
		return p.parseExpression(precLowest)
	}
}

func (p *Parser) parseIf() *ast.Expr {
	start := p.advance().Span // 'if'
	if p.match(token.LET) {
		pat := p.parsePattern()
		p.expect(token.ASSIGN, "in if-let binding")
		p.noStructLiteral++
		val := p.parseExpression(precAssign + 1)
		p.noStructLiteral--
		then := p.parseBlock()
		var elseB *ast.Expr
		if p.match(token.ELSE) {
			elseB = p.parseElseBranch()
		}
		end := then.Span()
		if elseB != nil {
			end = elseB.Span()
		}
		return ast.NewExpr(ast.IfLet{Pattern: pat, Value: val, Then: then, Else: elseB}, token.Cover(start, end))
	}
	p.noStructLiteral++
	cond := p.parseExpression(precAssign + 1)
	p.noStructLiteral--
	then := p.parseBlock()
	var elseB *ast.Expr
	if p.match(token.ELSE) {
		elseB = p.parseElseBranch()
	}
	end := then.Span()
	if elseB != nil {
		end = elseB.Span()
	}
	return ast.NewExpr(ast.If{Cond: cond, Then: then, Else: elseB}, token.Cover(start, end))
}

func (p *Parser) parseElseBranch() *ast.Expr {
	if p.check(token.IF) {
		return p.parseIf()
	}
	return p.parseBlock()
}

func (p *Parser) parseWhile() *ast.Expr {
	start := p.advance().Span // 'while'
	if p.match(token.LET) {
		pat := p.parsePattern()
		p.expect(token.ASSIGN, "in while-let binding")
		p.noStructLiteral++
		val := p.parseExpression(precAssign + 1)
		p.noStructLiteral--
		body := p.parseBlock()
		return ast.NewExpr(ast.WhileLet{Pattern: pat, Value: val, Body: body}, token.Cover(start, body.Span()))
	}
	p.noStructLiteral++
	cond := p.parseExpression(precAssign + 1)
	p.noStructLiteral--
	body := p.parseBlock()
	return ast.NewExpr(ast.While{Cond: cond, Body: body}, token.Cover(start, body.Span()))
}

func (p *Parser) parseFor() *ast.Expr {
	start := p.advance().Span // 'for'
	pat := p.parsePattern()
	p.expect(token.IN, "between for-loop pattern and iterable")
	p.noStructLiteral++
	iter := p.parseExpression(precAssign + 1)
	p.noStructLiteral--
	body := p.parseBlock()
	return ast.NewExpr(ast.For{Pattern: pat, Iter: iter, Body: body}, token.Cover(start, body.Span()))
}

func (p *Parser) parseLoop() *ast.Expr {
	start := p.advance().Span // 'loop'
	body := p.parseBlock()
	return ast.NewExpr(ast.Loop{Body: body}, token.Cover(start, body.Span()))
}

func (p *Parser) parseMatch() *ast.Expr {
	start := p.advance().Span // 'match'
	p.noStructLiteral++
	subject := p.parseExpression(precAssign + 1)
	p.noStructLiteral--
	p.expect(token.LBRACE, "to open match body")
	var arms []ast.MatchArm
	for !p.check(token.RBRACE) && !p.atEOF() {
		pat := p.parsePattern()
		for p.match(token.PIPE_OP) {
			alt := p.parsePattern()
			names := map[string]bool{}
			for _, n := range ast.Names(pat) {
				names[n] = true
			}
			same := len(ast.Names(alt)) == len(names)
			for _, n := range ast.Names(alt) {
				same = same && names[n]
			}
			if !same {
				p.errorHere(MismatchedOrPatternBindings, "or-pattern alternatives bind different names", nil)
			}
			pat = ast.NewPattern(ast.OrPat{Alts: []*ast.Pattern{pat, alt}}, pat.Span())
		}
		var guard *ast.Expr
		if p.match(token.IF) {
			guard = p.parseExpression(precAssign + 1)
		}
		p.expect(token.FATARROW, "between match pattern and arm body")
		body := p.parseExpression(precAssign + 1)
		arms = append(arms, ast.MatchArm{Pattern: pat, Guard: guard, Body: body})
		if !p.match(token.COMMA) {
			p.match(token.SEMI)
		}
	}
	end, _ := p.expect(token.RBRACE, "to close match body")
	return ast.NewExpr(ast.Match{Expr: subject, Arms: arms}, token.Cover(start, end.Span))
}

// parseLetExpr parses `let [mut] name [: Type] = value [else { ... }]` as an
// expression; if followed immediately by another expression in the same
// block it is a plain statement, consumed by Block's Exprs slice either
// way (spec.md §4.4's Let node has an optional Body field, but this parser
// always leaves it nil).
func (p *Parser) parseLetExpr() *ast.Expr {
	start := p.advance().Span // 'let'
	if p.check(token.LPAREN) || p.check(token.LBRACKET) {
		pat := p.parsePattern()
		p.expect(token.ASSIGN, "in let binding")
		val := p.parseExpression(precAssign + 1)
		return ast.NewExpr(ast.LetPattern{Pattern: pat, Value: val}, token.Cover(start, val.Span()))
	}
	isMut := p.match(token.MUT)
	nameTok, _ := p.expect(token.IDENT, "binding name")
	var typ *ast.TypeExpr
	if p.match(token.COLON) {
		typ = p.parseType()
	}
	p.expect(token.ASSIGN, "in let binding")
	val := p.parseExpression(precAssign + 1)
	end := val.Span()
	var elseB *ast.Expr
	if p.match(token.ELSE) {
		elseB = p.parseBlock()
		end = elseB.Span()
	}
	return ast.NewExpr(ast.Let{Name: nameTok.Literal, Type: typ, Value: val, IsMutable: isMut, Else: elseB}, token.Cover(start, end))
}

func (p *Parser) parseAnonFunction() *ast.Expr {
	start := p.advance().Span // 'fun'
	fn := p.parseFunctionRest("", false, false)
	return ast.NewExpr(*fn, token.Cover(start, fn.Body.Span()))
}

// parseLambda parses `|x, y| expr` and the zero-parameter shorthand `|| expr`
// (lexed as OR_OR since `||` has no space-sensitive meaning here).
func (p *Parser) parseLambda() *ast.Expr {
	start := p.cur().Span
	var params []ast.Param
	if p.check(token.OR_OR) {
		p.advance()
	} else {
		p.advance() // first '|'
		for !p.check(token.PIPE_OP) && !p.atEOF() {
			params = append(params, p.parseParam())
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.PIPE_OP, "to close lambda parameter list")
	}
	body := p.parseExpression(precAssign + 1)
	return ast.NewExpr(ast.Lambda{Params: params, Body: body}, token.Cover(start, body.Span()))
}

func (p *Parser) parseTryCatch() *ast.Expr {
	start := p.advance().Span // 'try'
	body := p.parseBlock()
	p.expectKw(token.CATCH)
	varName := ""
	if p.check(token.IDENT) {
		varName = p.advance().Literal
	}
	catchBody := p.parseBlock()
	return ast.NewExpr(ast.TryCatch{Body: body, CatchVar: varName, CatchBody: catchBody}, token.Cover(start, catchBody.Span()))
}

// parseFString re-enters expression parsing for each `{...}` hole inside an
// f-string, per spec.md §4.2's re-entrant f-string grammar and the lexer's
// FSTRING_EXPR_START/FSTRING_EXPR_END mode-stack protocol.
func (p *Parser) parseFString() *ast.Expr {
	start := p.advance().Span // FSTRING_START
	var parts []ast.InterpPart
	for {
		switch p.cur().Type {
		case token.FSTRING_TEXT:
			parts = append(parts, ast.InterpPart{Text: p.advance().Literal})
		case token.FSTRING_EXPR_START:
			p.advance()
			e := p.parseExpression(precLowest)
			parts = append(parts, ast.InterpPart{Expr: e})
			p.expect(token.FSTRING_EXPR_END, "to close f-string interpolation")
		case token.FSTRING_END:
			endTok := p.advance()
			if endTok.Literal != "" {
				parts = append(parts, ast.InterpPart{Text: endTok.Literal})
			}
			end := endTok.Span
			return ast.NewExpr(ast.StringInterpolation{Parts: parts}, token.Cover(start, end))
		case token.EOF:
			p.errorHere(UnterminatedInterpolation, "unterminated f-string interpolation", nil)
			return ast.NewExpr(ast.StringInterpolation{Parts: parts}, token.Cover(start, p.cur().Span))
		default:
			p.advance()
		}
	}
}
