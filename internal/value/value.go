// Package value implements the runtime Value representation and lexical
// Environment shared by the evaluator and the bytecode VM (spec.md §3
// "Value (runtime)" and "Environment"), grounded on the teacher's
// runtime/executor value/context split (core interpreter value union plus
// a scope-chain context).
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/bytecode"
)

// Value is the closed runtime value variant of spec.md §3. Shared payloads
// (String, Array, Object, HashMap, HashSet, DataFrame) hold a pointer so
// that copies of the Value alias the same backing storage, matching the
// spec's "shared via reference-counted handles" ownership model; Go's GC
// plays the role the original's Rc<…> counts would.
type Value interface {
	valueKind()
	Type() string
	String() string
}

type Integer struct {
	V      int64
	Suffix string
}
type Float struct{ V float64 }
type Bool struct{ V bool }
type Char struct{ V rune }

// String is the shared-immutable string variant: Rc<str> becomes a pointer
// to an immutable Go string, cheap to copy, identity-comparable.
type String struct{ V *string }

func NewString(s string) String { return String{V: &s} }

// Array is a shared, mutable handle: in-place mutation (push, index-assign)
// writes through *V, so every Value holding this handle observes it,
// matching spec.md's "mutation of a shared collection acquires a unique
// handle (copy-on-write when refcount > 1)" — Go's GC makes true refcounts
// unnecessary, so copy-on-write triggers only at explicit `.clone()`.
type Array struct{ V *[]Value }

func NewArray(elems []Value) Array { return Array{V: &elems} }

type Tuple struct{ V []Value }

type Object struct{ V *map[string]Value }

func NewObject(fields map[string]Value) Object { return Object{V: &fields} }

type HashMap struct {
	Keys *[]Value
	Vals *map[string]Value // keyed by a canonical string form of the Value key
}

type HashSet struct{ V *map[string]Value }

type Range struct {
	Start, End int64
	Inclusive  bool
}

type Function struct {
	Name        string
	Params      []ast.Param
	Body        *ast.Expr
	CapturedEnv *Environment
}

type Lambda struct {
	Params      []ast.Param
	Body        *ast.Expr
	CapturedEnv *Environment
}

type EnumVariant struct {
	Enum    string
	Variant string
	Data    []Value
}

type StructInstance struct {
	Struct string
	Fields *map[string]Value
}

type DataFrameColumn struct {
	Name string
	Data []Value
}

type DataFrame struct{ V *[]DataFrameColumn }

// Result and Option model Ruchy's Ok/Err/Some/None as ordinary values so
// that `?` and pattern matching treat them uniformly with everything else.
type Result struct {
	IsOk  bool
	Value Value
}

type Option struct {
	IsSome bool
	Value  Value
}

type Unit struct{}
type Nil struct{}

// Closure is the VM's callable value, produced by bytecode.OpMakeClosure:
// a reference to the compiled Chunk for the function body plus the
// upvalues captured by value at closure-creation time. Distinct from
// Function/Lambda (which close over a live Environment by reference) since
// the VM's flat operand stack has no cactus-stack of Environments to hold
// a reference into; capturing by value is the documented simplification
// (see the project's design notes on bytecode closures).
type Closure struct {
	Chunk    *bytecode.Chunk
	Upvalues []Value
}

func (Closure) valueKind()    {}
func (Closure) Type() string  { return "Function" }
func (c Closure) String() string {
	if c.Chunk == nil {
		return "fn <anonymous>"
	}
	return "fn " + c.Chunk.ID.String()
}

func (Integer) valueKind()        {}
func (Float) valueKind()          {}
func (Bool) valueKind()           {}
func (Char) valueKind()           {}
func (String) valueKind()         {}
func (Array) valueKind()          {}
func (Tuple) valueKind()          {}
func (Object) valueKind()         {}
func (HashMap) valueKind()        {}
func (HashSet) valueKind()        {}
func (Range) valueKind()          {}
func (Function) valueKind()       {}
func (Lambda) valueKind()         {}
func (EnumVariant) valueKind()    {}
func (StructInstance) valueKind() {}
func (DataFrame) valueKind()      {}
func (Result) valueKind()         {}
func (Option) valueKind()         {}
func (Unit) valueKind()           {}
func (Nil) valueKind()            {}

func (Integer) Type() string        { return "Integer" }
func (Float) Type() string          { return "Float" }
func (Bool) Type() string           { return "Bool" }
func (Char) Type() string           { return "Char" }
func (String) Type() string         { return "String" }
func (Array) Type() string          { return "Array" }
func (Tuple) Type() string          { return "Tuple" }
func (Object) Type() string         { return "Object" }
func (HashMap) Type() string        { return "HashMap" }
func (HashSet) Type() string        { return "HashSet" }
func (Range) Type() string          { return "Range" }
func (Function) Type() string       { return "Function" }
func (Lambda) Type() string         { return "Lambda" }
func (EnumVariant) Type() string    { return "EnumVariant" }
func (StructInstance) Type() string { return "Struct" }
func (DataFrame) Type() string      { return "DataFrame" }
func (Result) Type() string         { return "Result" }
func (Option) Type() string         { return "Option" }
func (Unit) Type() string           { return "Unit" }
func (Nil) Type() string            { return "Nil" }

func (i Integer) String() string { return strconv.FormatInt(i.V, 10) }
func (f Float) String() string {
	if f.V == math.Trunc(f.V) && !math.IsInf(f.V, 0) {
		return strconv.FormatFloat(f.V, 'f', 1, 64)
	}
	return strconv.FormatFloat(f.V, 'g', -1, 64)
}
func (b Bool) String() string { return strconv.FormatBool(b.V) }
func (c Char) String() string { return string(c.V) }
func (s String) String() string {
	if s.V == nil {
		return ""
	}
	return *s.V
}
func (a Array) String() string {
	if a.V == nil {
		return "[]"
	}
	parts := make([]string, len(*a.V))
	for i, v := range *a.V {
		parts[i] = Repr(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (t Tuple) String() string {
	parts := make([]string, len(t.V))
	for i, v := range t.V {
		parts[i] = Repr(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
func (o Object) String() string {
	if o.V == nil {
		return "{}"
	}
	keys := make([]string, 0, len(*o.V))
	for k := range *o.V {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, Repr((*o.V)[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (h HashMap) String() string {
	if h.Vals == nil {
		return "{}"
	}
	keys := make([]string, 0, len(*h.Vals))
	for k := range *h.Vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, Repr((*h.Vals)[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (h HashSet) String() string {
	if h.V == nil {
		return "{}"
	}
	keys := make([]string, 0, len(*h.V))
	for k := range *h.V {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "{" + strings.Join(keys, ", ") + "}"
}
func (r Range) String() string {
	op := ".."
	if r.Inclusive {
		op = "..="
	}
	return fmt.Sprintf("%d%s%d", r.Start, op, r.End)
}
func (f Function) String() string { return "fn " + f.Name }
func (Lambda) String() string     { return "lambda" }
func (e EnumVariant) String() string {
	if len(e.Data) == 0 {
		return e.Enum + "::" + e.Variant
	}
	parts := make([]string, len(e.Data))
	for i, d := range e.Data {
		parts[i] = Repr(d)
	}
	return fmt.Sprintf("%s::%s(%s)", e.Enum, e.Variant, strings.Join(parts, ", "))
}
func (s StructInstance) String() string {
	if s.Fields == nil {
		return s.Struct + " {}"
	}
	keys := make([]string, 0, len(*s.Fields))
	for k := range *s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, Repr((*s.Fields)[k]))
	}
	return fmt.Sprintf("%s { %s }", s.Struct, strings.Join(parts, ", "))
}
func (d DataFrame) String() string {
	if d.V == nil {
		return "DataFrame[]"
	}
	names := make([]string, len(*d.V))
	for i, c := range *d.V {
		names[i] = c.Name
	}
	return "DataFrame[" + strings.Join(names, ", ") + "]"
}
func (r Result) String() string {
	if r.IsOk {
		return "Ok(" + Repr(r.Value) + ")"
	}
	return "Err(" + Repr(r.Value) + ")"
}
func (o Option) String() string {
	if o.IsSome {
		return "Some(" + Repr(o.Value) + ")"
	}
	return "None"
}
func (Unit) String() string { return "()" }
func (Nil) String() string  { return "nil" }

// Repr renders v the way it would appear nested inside a container
// (quoting strings), distinct from String() which is the bare-display
// form used for top-level printing.
func Repr(v Value) string {
	if s, ok := v.(String); ok {
		return strconv.Quote(s.String())
	}
	if c, ok := v.(Char); ok {
		return "'" + string(c.V) + "'"
	}
	if v == nil {
		return "nil"
	}
	return v.String()
}

// Truthy implements the evaluator's boolean-coercion rule for condition
// positions: only Bool participates; anything else is a type error at the
// call site, so Truthy only needs to read Bool values.
func Truthy(v Value) bool {
	b, ok := v.(Bool)
	return ok && b.V
}

// Equal implements value equality for `==`/`!=` and match-arm literal
// comparison. Floats use IEEE-754 equality per spec.md §4.4.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Integer:
		y, ok := b.(Integer)
		return ok && x.V == y.V
	case Float:
		y, ok := b.(Float)
		return ok && x.V == y.V
	case Bool:
		y, ok := b.(Bool)
		return ok && x.V == y.V
	case Char:
		y, ok := b.(Char)
		return ok && x.V == y.V
	case String:
		y, ok := b.(String)
		return ok && x.String() == y.String()
	case Unit:
		_, ok := b.(Unit)
		return ok
	case Nil:
		_, ok := b.(Nil)
		return ok
	case Tuple:
		y, ok := b.(Tuple)
		if !ok || len(x.V) != len(y.V) {
			return false
		}
		for i := range x.V {
			if !Equal(x.V[i], y.V[i]) {
				return false
			}
		}
		return true
	case Array:
		y, ok := b.(Array)
		if !ok || x.V == nil || y.V == nil || len(*x.V) != len(*y.V) {
			return ok && x.V == nil && y.V == nil
		}
		for i := range *x.V {
			if !Equal((*x.V)[i], (*y.V)[i]) {
				return false
			}
		}
		return true
	case EnumVariant:
		y, ok := b.(EnumVariant)
		if !ok || x.Enum != y.Enum || x.Variant != y.Variant || len(x.Data) != len(y.Data) {
			return false
		}
		for i := range x.Data {
			if !Equal(x.Data[i], y.Data[i]) {
				return false
			}
		}
		return true
	case Option:
		y, ok := b.(Option)
		if !ok || x.IsSome != y.IsSome {
			return false
		}
		if !x.IsSome {
			return true
		}
		return Equal(x.Value, y.Value)
	case Result:
		y, ok := b.(Result)
		if !ok || x.IsOk != y.IsOk {
			return false
		}
		return Equal(x.Value, y.Value)
	default:
		return false
	}
}

// CanonicalKey renders v as a stable map key for HashMap/HashSet, whose
// Go backing store is keyed by string rather than by an arbitrary Value.
func CanonicalKey(v Value) string {
	return v.Type() + ":" + Repr(v)
}
