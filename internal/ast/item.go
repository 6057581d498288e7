package ast

import (
	"strings"

	"github.com/paiml/ruchy/internal/token"
)

// Item is the closed variant for the item layer (spec.md §4.2 "Item
// layer"): fn, struct, enum, trait, impl, use, module, export, class.
type Item interface {
	Node
	itemKind()
}

// Program is the root of a parsed file: a two-pass-resolved sequence of
// items, matching spec.md invariant (v) (all items visible before any body
// is checked).
type Program struct {
	Items []Item
	SpanV token.Span
}

func (p *Program) Span() token.Span { return p.SpanV }
func (p *Program) String() string {
	parts := make([]string, len(p.Items))
	for i, it := range p.Items {
		parts[i] = it.String()
	}
	return strings.Join(parts, "\n")
}

type StructField struct {
	Name    string
	Type    *TypeExpr
	IsPub   bool
	Visibility Visibility
	Default *Expr // field default used when omitted from a struct literal
}

type Visibility int

const (
	VisPrivate Visibility = iota
	VisPub
	VisPubCrate
)

type FunctionDecl struct {
	FunctionLit
	SpanV token.Span
}

func (f *FunctionDecl) Span() token.Span { return f.SpanV }
func (f *FunctionDecl) String() string   { return f.FunctionLit.String() }
func (*FunctionDecl) itemKind()          {}

type StructDecl struct {
	Name       string
	TypeParams []string
	Fields     []StructField
	IsPub      bool
	SpanV      token.Span
}

func (s *StructDecl) Span() token.Span { return s.SpanV }
func (s *StructDecl) String() string   { return "struct " + s.Name }
func (*StructDecl) itemKind()          {}

type EnumVariant struct {
	Name   string
	Fields []*TypeExpr // tuple-style payload; empty for unit variants
	Struct []StructField
}

type EnumDecl struct {
	Name       string
	TypeParams []string
	Variants   []EnumVariant
	IsPub      bool
	SpanV      token.Span
}

func (e *EnumDecl) Span() token.Span { return e.SpanV }
func (e *EnumDecl) String() string   { return "enum " + e.Name }
func (*EnumDecl) itemKind()          {}

type TraitDecl struct {
	Name    string
	Methods []*FunctionDecl
	SpanV   token.Span
}

func (t *TraitDecl) Span() token.Span { return t.SpanV }
func (t *TraitDecl) String() string   { return "trait " + t.Name }
func (*TraitDecl) itemKind()          {}

type ImplDecl struct {
	TraitName string // empty for an inherent impl
	TypeName  string
	Methods   []*FunctionDecl
	SpanV     token.Span
}

func (i *ImplDecl) Span() token.Span { return i.SpanV }
func (i *ImplDecl) String() string   { return "impl " + i.TypeName }
func (*ImplDecl) itemKind()          {}

// ClassDecl is sugar for a struct plus its inherent impl (spec.md §6:
// "class (impl sugar)").
type ClassDecl struct {
	Name    string
	Fields  []StructField
	Methods []*FunctionDecl
	IsPub   bool
	SpanV   token.Span
}

func (c *ClassDecl) Span() token.Span { return c.SpanV }
func (c *ClassDecl) String() string   { return "class " + c.Name }
func (*ClassDecl) itemKind()          {}

type UseDecl struct {
	Path  []string
	Items []ImportItem // empty means importing the path itself
	SpanV token.Span
}

func (u *UseDecl) Span() token.Span { return u.SpanV }
func (u *UseDecl) String() string   { return "use " + strings.Join(u.Path, "::") }
func (*UseDecl) itemKind()          {}

type ModuleDecl struct {
	Name  string
	Items []Item
	SpanV token.Span
}

func (m *ModuleDecl) Span() token.Span { return m.SpanV }
func (m *ModuleDecl) String() string   { return "module " + m.Name }
func (*ModuleDecl) itemKind()          {}

type ExportDecl struct {
	Item  Item
	SpanV token.Span
}

func (e *ExportDecl) Span() token.Span { return e.SpanV }
func (e *ExportDecl) String() string   { return "export " + e.Item.String() }
func (*ExportDecl) itemKind()          {}

// TopLevelExpr wraps a bare expression statement at top level (a Ruchy
// file is also a runnable script, e.g. spec.md S5's trailing `main()`
// call convention seen in the original test suite).
type TopLevelExpr struct {
	Expr  *Expr
	SpanV token.Span
}

func (t *TopLevelExpr) Span() token.Span { return t.SpanV }
func (t *TopLevelExpr) String() string   { return t.Expr.String() }
func (*TopLevelExpr) itemKind()          {}
