package parser

import (
	"strconv"

	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/token"
)

// parsePattern parses the pattern grammar of spec.md §4.2 "Pattern
// parsing": literals, identifiers (with `mut`), wildcards, tuples, list
// patterns with a single rest binding, struct and tuple-struct patterns,
// ranges, guards, and `|`-separated alternatives whose binding sets must
// agree (checked by the caller via ast.Names, spec.md §4.4).
func (p *Parser) parsePattern() *ast.Pattern {
	pat := p.parsePatternPrimary()
	if lo, hi, incl, ok := p.maybeRangeTail(pat); ok {
		pat = ast.NewPattern(ast.RangePat{Lo: lo, Hi: hi, Inclusive: incl}, pat.Span())
	}
	if p.check(token.IF) {
		p.advance()
		guard := p.parseExpression(precAssign + 1)
		pat = ast.NewPattern(ast.GuardPat{Pattern: pat, Guard: guard}, pat.Span())
	}
	return pat
}

// maybeRangeTail handles `lo..hi` / `lo..=hi` range patterns, where lo must
// already have parsed as a LiteralPat.
func (p *Parser) maybeRangeTail(pat *ast.Pattern) (*ast.Expr, *ast.Expr, bool, bool) {
	lit, ok := pat.Kind.(ast.LiteralPat)
	if !ok {
		return nil, nil, false, false
	}
	if !p.check(token.DOTDOT) && !p.check(token.DOTDOTEQ) {
		return nil, nil, false, false
	}
	inclusive := p.cur().Type == token.DOTDOTEQ
	p.advance()
	hiExpr := p.parseExpression(precRange + 1)
	return lit.Value, hiExpr, inclusive, true
}

func (p *Parser) parsePatternPrimary() *ast.Pattern {
	tok := p.cur()
	switch tok.Type {
	case token.UNDERSCORE:
		p.advance()
		return ast.NewPattern(ast.WildcardPat{}, tok.Span)
	case token.MUT:
		p.advance()
		name, _ := p.expect(token.IDENT, "binding name after mut")
		return ast.NewPattern(ast.IdentPat{Name: name.Literal, IsMut: true}, token.Cover(tok.Span, name.Span))
	case token.INT:
		p.advance()
		v, _ := strconv.ParseInt(tok.Literal, 0, 64)
		lit := ast.NewExpr(ast.IntLit{Value: v, Suffix: tok.Suffix}, tok.Span)
		return ast.NewPattern(ast.LiteralPat{Value: lit}, tok.Span)
	case token.FLOAT:
		p.advance()
		v, _ := strconv.ParseFloat(tok.Literal, 64)
		lit := ast.NewExpr(ast.FloatLit{Value: v, Suffix: tok.Suffix}, tok.Span)
		return ast.NewPattern(ast.LiteralPat{Value: lit}, tok.Span)
	case token.STRING:
		p.advance()
		lit := ast.NewExpr(ast.StringLit{Value: tok.Literal}, tok.Span)
		return ast.NewPattern(ast.LiteralPat{Value: lit}, tok.Span)
	case token.CHAR:
		p.advance()
		r := rune(0)
		for _, c := range tok.Literal {
			r = c
			break
		}
		lit := ast.NewExpr(ast.CharLit{Value: r}, tok.Span)
		return ast.NewPattern(ast.LiteralPat{Value: lit}, tok.Span)
	case token.TRUE, token.FALSE:
		p.advance()
		lit := ast.NewExpr(ast.BoolLit{Value: tok.Type == token.TRUE}, tok.Span)
		return ast.NewPattern(ast.LiteralPat{Value: lit}, tok.Span)
	case token.MINUS:
		p.advance()
		inner := p.parsePatternPrimary()
		if litPat, ok := inner.Kind.(ast.LiteralPat); ok {
			if il, ok := litPat.Value.Kind.(ast.IntLit); ok {
				il.Value = -il.Value
				litPat.Value = ast.NewExpr(il, litPat.Value.Span())
				return ast.NewPattern(litPat, token.Cover(tok.Span, inner.Span()))
			}
			if fl, ok := litPat.Value.Kind.(ast.FloatLit); ok {
				fl.Value = -fl.Value
				litPat.Value = ast.NewExpr(fl, litPat.Value.Span())
				return ast.NewPattern(litPat, token.Cover(tok.Span, inner.Span()))
			}
		}
		return inner
	case token.LPAREN:
		p.advance()
		if p.match(token.RPAREN) {
			unit := ast.NewExpr(ast.UnitLit{}, tok.Span)
			return ast.NewPattern(ast.LiteralPat{Value: unit}, tok.Span)
		}
		elems := []*ast.Pattern{p.parsePattern()}
		isTuple := false
		for p.match(token.COMMA) {
			isTuple = true
			if p.check(token.RPAREN) {
				break
			}
			elems = append(elems, p.parsePattern())
		}
		end, _ := p.expect(token.RPAREN, "to close pattern group")
		if !isTuple {
			return elems[0]
		}
		return ast.NewPattern(ast.TuplePat{Elems: elems}, token.Cover(tok.Span, end.Span))
	case token.LBRACKET:
		return p.parseListPattern()
	case token.IDENT:
		return p.parseIdentOrStructOrEnumPattern()
	default:
		p.errorHere(InvalidPattern, "expected a pattern, found "+tok.Type.String(), nil)
		p.advance()
		return ast.NewPattern(ast.WildcardPat{}, tok.Span)
	}
}

func (p *Parser) parseListPattern() *ast.Pattern {
	start := p.advance().Span // '['
	var head, tail []*ast.Pattern
	hasRest := false
	restName := ""
	seenRest := false
	for !p.check(token.RBRACKET) && !p.atEOF() {
		if p.check(token.DOTDOTDOT) {
			p.advance()
			hasRest = true
			seenRest = true
			if p.check(token.IDENT) {
				restName = p.advance().Literal
			} else {
				restName = "_"
			}
		} else {
			pat := p.parsePattern()
			if seenRest {
				tail = append(tail, pat)
			} else {
				head = append(head, pat)
			}
		}
		if !p.match(token.COMMA) {
			break
		}
	}
	end, _ := p.expect(token.RBRACKET, "to close list pattern")
	return ast.NewPattern(ast.ListPat{Head: head, HasRest: hasRest, RestName: restName, Tail: tail}, token.Cover(start, end.Span))
}

// parseIdentOrStructOrEnumPattern handles a bare binding, a path
// (`Enum::Variant`), a tuple-struct pattern (`Some(x)`), and a struct
// pattern (`Point { x, y }`, possibly with a `..` rest marker).
func (p *Parser) parseIdentOrStructOrEnumPattern() *ast.Pattern {
	start := p.cur()
	name := p.advance().Literal
	for p.match(token.COLONCOLON) {
		seg, _ := p.expect(token.IDENT, "path segment in pattern")
		name = seg.Literal
	}
	if p.match(token.LPAREN) {
		var args []*ast.Pattern
		for !p.check(token.RPAREN) && !p.atEOF() {
			args = append(args, p.parsePattern())
			if !p.match(token.COMMA) {
				break
			}
		}
		end, _ := p.expect(token.RPAREN, "to close tuple-struct pattern")
		return ast.NewPattern(ast.TupleStructPat{Name: name, Args: args}, token.Cover(start.Span, end.Span))
	}
	if p.check(token.LBRACE) {
		p.advance()
		var fields []ast.FieldPat
		hasRest := false
		for !p.check(token.RBRACE) && !p.atEOF() {
			if p.match(token.DOTDOT) {
				hasRest = true
				break
			}
			fNameTok, _ := p.expect(token.IDENT, "field name in struct pattern")
			var sub *ast.Pattern
			if p.match(token.COLON) {
				sub = p.parsePattern()
			}
			fields = append(fields, ast.FieldPat{Name: fNameTok.Literal, Pattern: sub})
			if !p.match(token.COMMA) {
				break
			}
		}
		end, _ := p.expect(token.RBRACE, "to close struct pattern")
		return ast.NewPattern(ast.StructPat{Name: name, Fields: fields, HasRest: hasRest}, token.Cover(start.Span, end.Span))
	}
	return ast.NewPattern(ast.IdentPat{Name: name}, start.Span)
}
