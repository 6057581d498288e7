package ast

import (
	"fmt"
	"strings"

	"github.com/paiml/ruchy/internal/token"
)

// TypeKind is the closed variant over type syntax (spec.md §3 Types row).
type TypeKind interface {
	typeKind()
	String() string
}

type TypeExpr struct {
	Kind  TypeKind
	SpanV token.Span
}

func (t *TypeExpr) Span() token.Span { return t.SpanV }
func (t *TypeExpr) String() string {
	if t == nil || t.Kind == nil {
		return "_"
	}
	return t.Kind.String()
}

func NewType(kind TypeKind, span token.Span) *TypeExpr {
	return &TypeExpr{Kind: kind, SpanV: span}
}

type NamedType struct{ Name string }
type GenericType struct {
	Base   string
	Params []*TypeExpr
}
type OptionalType struct{ Inner *TypeExpr }
type ListType struct{ Elem *TypeExpr }
type ArrayType struct {
	Elem *TypeExpr
	Size int
}
type TupleType struct{ Elems []*TypeExpr }
type FunctionType struct {
	Params []*TypeExpr
	Ret    *TypeExpr
}
type ReferenceType struct {
	Mut      bool
	Lifetime string // empty if elided
	Inner    *TypeExpr
}

func (NamedType) typeKind()     {}
func (GenericType) typeKind()   {}
func (OptionalType) typeKind()  {}
func (ListType) typeKind()      {}
func (ArrayType) typeKind()     {}
func (TupleType) typeKind()     {}
func (FunctionType) typeKind()  {}
func (ReferenceType) typeKind() {}

func (n NamedType) String() string { return n.Name }
func (g GenericType) String() string {
	parts := make([]string, len(g.Params))
	for i, p := range g.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s<%s>", g.Base, strings.Join(parts, ", "))
}
func (o OptionalType) String() string { return o.Inner.String() + "?" }
func (l ListType) String() string     { return "[" + l.Elem.String() + "]" }
func (a ArrayType) String() string    { return fmt.Sprintf("[%s; %d]", a.Elem, a.Size) }
func (t TupleType) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
func (f FunctionType) String() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("fn(%s) -> %s", strings.Join(parts, ", "), f.Ret)
}
func (r ReferenceType) String() string {
	m := ""
	if r.Mut {
		m = "mut "
	}
	return "&" + m + r.Inner.String()
}

// BaseTypeName returns the leading identifier of a type for quick checks
// like "does the return type look like []T" (used by mutation analysis's
// empty-vec inference, spec.md §4.7 item 7).
func BaseTypeName(t *TypeExpr) string {
	if t == nil {
		return ""
	}
	switch k := t.Kind.(type) {
	case NamedType:
		return k.Name
	case GenericType:
		return k.Base
	case ListType:
		return "[]"
	case ArrayType:
		return "[]"
	default:
		return ""
	}
}
