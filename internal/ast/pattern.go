package ast

import (
	"fmt"
	"strings"

	"github.com/paiml/ruchy/internal/token"
)

// PatternKind is the closed variant for pattern syntax (spec.md §3 Patterns
// row and §4.2 "Pattern parsing").
type PatternKind interface {
	patternKind()
	String() string
}

// Pattern wraps a PatternKind with its span, mirroring Expr.
type Pattern struct {
	Kind  PatternKind
	SpanV token.Span
}

func (p *Pattern) Span() token.Span { return p.SpanV }
func (p *Pattern) String() string {
	if p == nil || p.Kind == nil {
		return "_"
	}
	return p.Kind.String()
}

func NewPattern(kind PatternKind, span token.Span) *Pattern {
	return &Pattern{Kind: kind, SpanV: span}
}

type WildcardPat struct{}
type LiteralPat struct{ Value *Expr }
type IdentPat struct {
	Name  string
	IsMut bool
}
type OrPat struct{ Alts []*Pattern }
type TuplePat struct{ Elems []*Pattern }

// ListPat matches `[p1, p2, ...rest]`. HasRest is false when there is no
// rest binding; RestName is the bound identifier (may be "_").
type ListPat struct {
	Head     []*Pattern
	HasRest  bool
	RestName string
	Tail     []*Pattern // patterns after the rest, for `[a, ...mid, b]`
}

type FieldPat struct {
	Name    string
	Pattern *Pattern // nil for shorthand `{ name }`
}
type StructPat struct {
	Name   string
	Fields []FieldPat
	HasRest bool // `{ a, .. }`
}
type TupleStructPat struct {
	Name string
	Args []*Pattern
}
type RangePat struct {
	Lo, Hi    *Expr
	Inclusive bool
}
type GuardPat struct {
	Pattern *Pattern
	Guard   *Expr
}

func (WildcardPat) patternKind()    {}
func (LiteralPat) patternKind()     {}
func (IdentPat) patternKind()       {}
func (OrPat) patternKind()          {}
func (TuplePat) patternKind()       {}
func (ListPat) patternKind()        {}
func (StructPat) patternKind()      {}
func (TupleStructPat) patternKind() {}
func (RangePat) patternKind()       {}
func (GuardPat) patternKind()       {}

func (WildcardPat) String() string { return "_" }
func (l LiteralPat) String() string { return l.Value.String() }
func (i IdentPat) String() string {
	if i.IsMut {
		return "mut " + i.Name
	}
	return i.Name
}
func (o OrPat) String() string {
	parts := make([]string, len(o.Alts))
	for i, a := range o.Alts {
		parts[i] = a.String()
	}
	return strings.Join(parts, " | ")
}
func (t TuplePat) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
func (l ListPat) String() string {
	var parts []string
	for _, h := range l.Head {
		parts = append(parts, h.String())
	}
	if l.HasRest {
		parts = append(parts, "..."+l.RestName)
	}
	for _, t := range l.Tail {
		parts = append(parts, t.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (s StructPat) String() string { return s.Name + "{...}" }
func (t TupleStructPat) String() string {
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", t.Name, strings.Join(parts, ", "))
}
func (r RangePat) String() string {
	op := ".."
	if r.Inclusive {
		op = "..="
	}
	return fmt.Sprintf("%s%s%s", r.Lo, op, r.Hi)
}
func (g GuardPat) String() string { return fmt.Sprintf("%s if %s", g.Pattern, g.Guard) }

// Names returns the identifiers a pattern binds, used to enforce that
// alternatives of an Or pattern bind identical name sets (spec.md §4.4).
func Names(p *Pattern) []string {
	if p == nil {
		return nil
	}
	switch k := p.Kind.(type) {
	case IdentPat:
		if k.Name == "_" {
			return nil
		}
		return []string{k.Name}
	case OrPat:
		if len(k.Alts) == 0 {
			return nil
		}
		return Names(k.Alts[0])
	case TuplePat:
		var names []string
		for _, e := range k.Elems {
			names = append(names, Names(e)...)
		}
		return names
	case ListPat:
		var names []string
		for _, h := range k.Head {
			names = append(names, Names(h)...)
		}
		if k.HasRest && k.RestName != "_" && k.RestName != "" {
			names = append(names, k.RestName)
		}
		for _, t := range k.Tail {
			names = append(names, Names(t)...)
		}
		return names
	case StructPat:
		var names []string
		for _, f := range k.Fields {
			if f.Pattern != nil {
				names = append(names, Names(f.Pattern)...)
			} else {
				names = append(names, f.Name)
			}
		}
		return names
	case TupleStructPat:
		var names []string
		for _, a := range k.Args {
			names = append(names, Names(a)...)
		}
		return names
	case GuardPat:
		return Names(k.Pattern)
	default:
		return nil
	}
}
