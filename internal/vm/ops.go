package vm

import (
	"math"
	"strconv"

	"github.com/paiml/ruchy/internal/bytecode"
	"github.com/paiml/ruchy/internal/token"
	"github.com/paiml/ruchy/internal/value"
)

// applyOp implements the arithmetic/comparison opcodes' semantics. It is
// kept independent of internal/eval's applyBinOp (same operator table, two
// implementations) so the VM is a genuine second implementation of
// spec.md's operational semantics rather than a thin wrapper around the
// evaluator, per spec.md §8.P-Eval-VM-Equiv's intent.
func applyOp(op bytecode.Op, l, r value.Value, span token.Span) (value.Value, error) {
	if op == bytecode.OpEq {
		return value.Bool{V: value.Equal(l, r)}, nil
	}
	if op == bytecode.OpNe {
		return value.Bool{V: !value.Equal(l, r)}, nil
	}
	if op == bytecode.OpAdd {
		if ls, ok := l.(value.String); ok {
			if rs, ok2 := r.(value.String); ok2 {
				return value.NewString(ls.String() + rs.String()), nil
			}
			return nil, vmErr(Trapped, span, "cannot add String and %s", r.Type())
		}
	}
	li, lIsInt := l.(value.Integer)
	ri, rIsInt := r.(value.Integer)
	if lIsInt && rIsInt {
		return intOp(op, li, ri, span)
	}
	lf, lok := floatOf(l)
	rf, rok := floatOf(r)
	if lok && rok {
		return floatOp(op, lf, rf, span)
	}
	return nil, vmErr(Trapped, span, "operator not defined for %s and %s", l.Type(), r.Type())
}

func floatOf(v value.Value) (float64, bool) {
	switch x := v.(type) {
	case value.Float:
		return x.V, true
	case value.Integer:
		return float64(x.V), true
	}
	return 0, false
}

func intOp(op bytecode.Op, l, r value.Integer, span token.Span) (value.Value, error) {
	switch op {
	case bytecode.OpAdd:
		return value.Integer{V: l.V + r.V}, nil
	case bytecode.OpSub:
		return value.Integer{V: l.V - r.V}, nil
	case bytecode.OpMul:
		return value.Integer{V: l.V * r.V}, nil
	case bytecode.OpDiv:
		if r.V == 0 {
			return nil, vmErr(Trapped, span, "division by zero")
		}
		return value.Integer{V: l.V / r.V}, nil
	case bytecode.OpMod:
		if r.V == 0 {
			return nil, vmErr(Trapped, span, "modulo by zero")
		}
		return value.Integer{V: l.V % r.V}, nil
	case bytecode.OpPow:
		return value.Integer{V: int64(math.Pow(float64(l.V), float64(r.V)))}, nil
	case bytecode.OpLt:
		return value.Bool{V: l.V < r.V}, nil
	case bytecode.OpLe:
		return value.Bool{V: l.V <= r.V}, nil
	case bytecode.OpGt:
		return value.Bool{V: l.V > r.V}, nil
	case bytecode.OpGe:
		return value.Bool{V: l.V >= r.V}, nil
	default:
		return nil, vmErr(BadOpcode, span, "opcode %s not valid for integers", op)
	}
}

func floatOp(op bytecode.Op, l, r float64, span token.Span) (value.Value, error) {
	switch op {
	case bytecode.OpAdd:
		return value.Float{V: l + r}, nil
	case bytecode.OpSub:
		return value.Float{V: l - r}, nil
	case bytecode.OpMul:
		return value.Float{V: l * r}, nil
	case bytecode.OpDiv:
		return value.Float{V: l / r}, nil
	case bytecode.OpMod:
		return value.Float{V: math.Mod(l, r)}, nil
	case bytecode.OpPow:
		return value.Float{V: math.Pow(l, r)}, nil
	case bytecode.OpLt:
		return value.Bool{V: l < r}, nil
	case bytecode.OpLe:
		return value.Bool{V: l <= r}, nil
	case bytecode.OpGt:
		return value.Bool{V: l > r}, nil
	case bytecode.OpGe:
		return value.Bool{V: l >= r}, nil
	default:
		return nil, vmErr(BadOpcode, span, "opcode %s not valid for floats", op)
	}
}

func indexValue(recv, idx value.Value, span token.Span) (value.Value, error) {
	switch r := recv.(type) {
	case value.Array:
		i, ok := idx.(value.Integer)
		if !ok || r.V == nil || i.V < 0 || int(i.V) >= len(*r.V) {
			return nil, vmErr(Trapped, span, "index out of range")
		}
		return (*r.V)[i.V], nil
	case value.Tuple:
		i, ok := idx.(value.Integer)
		if !ok || i.V < 0 || int(i.V) >= len(r.V) {
			return nil, vmErr(Trapped, span, "tuple index out of range")
		}
		return r.V[i.V], nil
	case value.String:
		i, ok := idx.(value.Integer)
		runes := []rune(r.String())
		if !ok || i.V < 0 || int(i.V) >= len(runes) {
			return nil, vmErr(Trapped, span, "string index out of range")
		}
		return value.Char{V: runes[i.V]}, nil
	case value.Range:
		i, ok := idx.(value.Integer)
		end := r.End
		if r.Inclusive {
			end++
		}
		if !ok || i.V < 0 || r.Start+i.V >= end {
			return nil, vmErr(Trapped, span, "range index out of range")
		}
		return value.Integer{V: r.Start + i.V}, nil
	case value.Result:
		i, ok := idx.(value.Integer)
		if !ok || i.V != 0 {
			return nil, vmErr(Trapped, span, "Result payload index out of range")
		}
		return r.Value, nil
	case value.Option:
		i, ok := idx.(value.Integer)
		if !ok || i.V != 0 || !r.IsSome {
			return nil, vmErr(Trapped, span, "Option payload index out of range")
		}
		return r.Value, nil
	case value.EnumVariant:
		i, ok := idx.(value.Integer)
		if !ok || i.V < 0 || int(i.V) >= len(r.Data) {
			return nil, vmErr(Trapped, span, "enum variant payload index out of range")
		}
		return r.Data[i.V], nil
	case value.StructInstance:
		i, ok := idx.(value.Integer)
		if !ok || r.Fields == nil {
			return nil, vmErr(Trapped, span, "struct positional field index out of range")
		}
		v, ok := (*r.Fields)[strconv.Itoa(int(i.V))]
		if !ok {
			return nil, vmErr(Trapped, span, "struct positional field index out of range")
		}
		return v, nil
	default:
		return nil, vmErr(Trapped, span, "cannot index %s", recv.Type())
	}
}

func setIndexValue(recv, idx, v value.Value, span token.Span) error {
	arr, ok := recv.(value.Array)
	if !ok || arr.V == nil {
		return vmErr(Trapped, span, "cannot index-assign into %s", recv.Type())
	}
	i, ok := idx.(value.Integer)
	if !ok || i.V < 0 || int(i.V) >= len(*arr.V) {
		return vmErr(Trapped, span, "index out of range")
	}
	(*arr.V)[i.V] = v
	return nil
}

// getField also answers a handful of synthetic, non-identifier field names
// used by the bytecode compiler to test/iterate values it has no dedicated
// opcode for: "$tag" names the active variant of a Result/Option/EnumVariant
// or the type name of a StructInstance (for TupleStructPat compilation),
// and "$len" gives the element count of an Array/String/Range (for `for`
// loop compilation). Neither is a real Ruchy field; both are rejected by
// the parser as identifiers, so they can't collide with user field names.
func getField(recv value.Value, name string, span token.Span) (value.Value, error) {
	switch name {
	case "$tag":
		switch r := recv.(type) {
		case value.Result:
			if r.IsOk {
				return value.NewString("Ok"), nil
			}
			return value.NewString("Err"), nil
		case value.Option:
			if r.IsSome {
				return value.NewString("Some"), nil
			}
			return value.NewString("None"), nil
		case value.EnumVariant:
			return value.NewString(r.Variant), nil
		case value.StructInstance:
			return value.NewString(r.Struct), nil
		default:
			return nil, vmErr(Trapped, span, "cannot tag-test %s", recv.Type())
		}
	case "$len":
		switch r := recv.(type) {
		case value.Array:
			if r.V == nil {
				return value.Integer{V: 0}, nil
			}
			return value.Integer{V: int64(len(*r.V))}, nil
		case value.String:
			return value.Integer{V: int64(len([]rune(r.String())))}, nil
		case value.Tuple:
			return value.Integer{V: int64(len(r.V))}, nil
		case value.Range:
			return value.Integer{V: int64(len(rangeItems(r)))}, nil
		default:
			return nil, vmErr(Trapped, span, "cannot measure length of %s", recv.Type())
		}
	}
	switch r := recv.(type) {
	case value.StructInstance:
		if r.Fields == nil {
			return nil, vmErr(Trapped, span, "struct %s has no field %q", r.Struct, name)
		}
		v, ok := (*r.Fields)[name]
		if !ok {
			return nil, vmErr(Trapped, span, "struct %s has no field %q", r.Struct, name)
		}
		return v, nil
	case value.Object:
		v, ok := (*r.V)[name]
		if !ok {
			return nil, vmErr(Trapped, span, "object has no field %q", name)
		}
		return v, nil
	default:
		return nil, vmErr(Trapped, span, "cannot access field %q on %s", name, recv.Type())
	}
}

func setField(recv value.Value, name string, v value.Value, span token.Span) error {
	switch r := recv.(type) {
	case value.StructInstance:
		(*r.Fields)[name] = v
		return nil
	case value.Object:
		(*r.V)[name] = v
		return nil
	default:
		return vmErr(Trapped, span, "cannot assign field %q on %s", name, recv.Type())
	}
}
