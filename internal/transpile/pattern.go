package transpile

import (
	"fmt"
	"strings"

	"github.com/paiml/ruchy/internal/ast"
)

// pattern lowers a Pattern 1:1 into the target's pattern syntax (spec.md
// §4.7 item 15). List rest-bindings use the target's slice-pattern idiom:
// `[h, ...t]` becomes `[h, t @ ..]`, or `[h, ..]` when the rest is unnamed.
func pattern(p *ast.Pattern) (string, error) {
	if p == nil || p.Kind == nil {
		return "_", nil
	}
	switch k := p.Kind.(type) {
	case ast.WildcardPat:
		return "_", nil
	case ast.IdentPat:
		if k.IsMut {
			return "mut " + k.Name, nil
		}
		return k.Name, nil
	case ast.LiteralPat:
		return literalPatternText(k.Value)
	case ast.OrPat:
		parts := make([]string, len(k.Alts))
		for i, alt := range k.Alts {
			s, err := pattern(alt)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, " | "), nil
	case ast.TuplePat:
		parts := make([]string, len(k.Elems))
		for i, e := range k.Elems {
			s, err := pattern(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	case ast.ListPat:
		return listPatternText(k)
	case ast.StructPat:
		return structPatternText(k)
	case ast.TupleStructPat:
		parts := make([]string, len(k.Args))
		for i, a := range k.Args {
			s, err := pattern(a)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return fmt.Sprintf("%s(%s)", k.Name, strings.Join(parts, ", ")), nil
	case ast.RangePat:
		lo, err := literalPatternText(k.Lo)
		if err != nil {
			return "", err
		}
		hi, err := literalPatternText(k.Hi)
		if err != nil {
			return "", err
		}
		op := ".."
		if k.Inclusive {
			op = "..="
		}
		return lo + op + hi, nil
	case ast.GuardPat:
		// matchExpr lifts an arm's top-level GuardPat into the arm's `if`
		// guard before calling pattern; a guard nested inside an
		// alternative pattern has no direct target-language equivalent, so
		// only the pattern itself is lowered here.
		return pattern(k.Pattern)
	default:
		return "", newError(InvalidPattern, p.SpanV, "unsupported pattern form %T", k)
	}
}

func listPatternText(l ast.ListPat) (string, error) {
	var parts []string
	for _, h := range l.Head {
		s, err := pattern(h)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if l.HasRest {
		if l.RestName != "" && l.RestName != "_" {
			parts = append(parts, l.RestName+" @ ..")
		} else {
			parts = append(parts, "..")
		}
	}
	for _, t := range l.Tail {
		s, err := pattern(t)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

func structPatternText(s ast.StructPat) (string, error) {
	parts := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Pattern == nil {
			parts = append(parts, f.Name)
			continue
		}
		sub, err := pattern(f.Pattern)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.Name, sub))
	}
	if s.HasRest {
		parts = append(parts, "..")
	}
	return fmt.Sprintf("%s { %s }", s.Name, strings.Join(parts, ", ")), nil
}

// literalPatternText renders the narrow set of expressions legal inside a
// literal or range pattern: integers, floats, chars, strings, bare
// identifiers (unit-like enum/const paths), and a leading unary minus.
func literalPatternText(e *ast.Expr) (string, error) {
	if e == nil {
		return "", nil
	}
	switch k := e.Kind.(type) {
	case ast.IntLit, ast.FloatLit, ast.CharLit, ast.StringLit, ast.BoolLit:
		return e.Kind.String(), nil
	case ast.Identifier:
		return k.Name, nil
	case ast.QualifiedName:
		return k.Module + "::" + k.Name, nil
	case ast.Unary:
		if k.Op == ast.OpNeg {
			inner, err := literalPatternText(k.Expr)
			if err != nil {
				return "", err
			}
			return "-" + inner, nil
		}
	}
	return "", newError(InvalidPattern, e.SpanV, "unsupported literal-pattern expression %T", e.Kind)
}
