package transpile

import (
	"fmt"
	"strings"

	"github.com/paiml/ruchy/internal/ast"
)

// builtinTypeNames implements spec.md §4.7 item 17's fixed scalar mapping.
var builtinTypeNames = map[string]string{
	"int":    "i64",
	"float":  "f64",
	"str":    "&str",
	"string": "String",
	"String": "String",
	"bool":   "bool",
	"char":   "char",
	"Object": "indexmap::IndexMap<String, Value>",
}

// typeName lowers a TypeExpr to its target-language spelling. Generic forms
// (Vec<T>, Option<T>, Result<T,E>, HashMap<K,V>) pass their base name and
// params through unchanged, per spec.md §4.7 item 17.
func typeName(t *ast.TypeExpr) (string, error) {
	if t == nil {
		return "_", nil
	}
	switch k := t.Kind.(type) {
	case ast.NamedType:
		if mapped, ok := builtinTypeNames[k.Name]; ok {
			return mapped, nil
		}
		return k.Name, nil
	case ast.GenericType:
		parts := make([]string, len(k.Params))
		for i, p := range k.Params {
			s, err := typeName(p)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		base := k.Base
		if mapped, ok := builtinTypeNames[base]; ok {
			base = mapped
		}
		return fmt.Sprintf("%s<%s>", base, strings.Join(parts, ", ")), nil
	case ast.OptionalType:
		inner, err := typeName(k.Inner)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Option<%s>", inner), nil
	case ast.ListType:
		inner, err := typeName(k.Elem)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Vec<%s>", inner), nil
	case ast.ArrayType:
		inner, err := typeName(k.Elem)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[%s; %d]", inner, k.Size), nil
	case ast.TupleType:
		parts := make([]string, len(k.Elems))
		for i, e := range k.Elems {
			s, err := typeName(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	case ast.FunctionType:
		parts := make([]string, len(k.Params))
		for i, p := range k.Params {
			s, err := typeName(p)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		ret, err := typeName(k.Ret)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("fn(%s) -> %s", strings.Join(parts, ", "), ret), nil
	case ast.ReferenceType:
		inner, err := typeName(k.Inner)
		if err != nil {
			return "", err
		}
		m := ""
		if k.Mut {
			m = "mut "
		}
		lt := ""
		if k.Lifetime != "" {
			lt = "'" + k.Lifetime + " "
		}
		return "&" + lt + m + inner, nil
	default:
		return "", newError(Unsupported, t.SpanV, "unsupported type form %T", k)
	}
}

// vecElemType extracts T out of a Vec<T>/[T] type for empty-vec inference
// (spec.md §4.7 item 7); falls back to "_" when the shape isn't a list.
func vecElemType(t *ast.TypeExpr) string {
	if t == nil {
		return "_"
	}
	switch k := t.Kind.(type) {
	case ast.ListType:
		s, err := typeName(k.Elem)
		if err != nil {
			return "_"
		}
		return s
	case ast.GenericType:
		if k.Base == "Vec" && len(k.Params) == 1 {
			s, err := typeName(k.Params[0])
			if err != nil {
				return "_"
			}
			return s
		}
	}
	return "_"
}
