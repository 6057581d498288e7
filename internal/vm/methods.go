package vm

import (
	"sort"
	"strconv"
	"strings"

	"github.com/paiml/ruchy/internal/bytecode"
	"github.com/paiml/ruchy/internal/token"
	"github.com/paiml/ruchy/internal/value"
)

// callMethod implements a practical subset of spec.md §4.6's builtin
// method table, mirroring internal/eval/methods.go's receiver-keyed
// dispatch so a compiled method call observes the same behavior the
// evaluator gives it, per spec.md §8.P-Eval-VM-Equiv. Kept as its own
// table rather than calling into internal/eval, consistent with ops.go's
// applyOp being a genuine second implementation of the operator set.
// DataFrame methods are not duplicated here; see DESIGN.md for why.
func (vm *VM) callMethod(recv value.Value, method string, args []value.Value, span token.Span) (value.Value, error) {
	switch r := recv.(type) {
	case value.String:
		if v, ok, err := stringMethod(r, method, args, span); ok || err != nil {
			return v, err
		}
	case value.Array:
		if v, ok, err := vm.arrayMethod(r, method, args, span); ok || err != nil {
			return v, err
		}
	case value.HashMap:
		if v, ok, err := hashMapMethod(r, method, args, span); ok || err != nil {
			return v, err
		}
	case value.HashSet:
		if v, ok, err := hashSetMethod(r, method, args, span); ok || err != nil {
			return v, err
		}
	case value.Range:
		if v, ok, err := vm.rangeMethod(r, method, args, span); ok || err != nil {
			return v, err
		}
	case value.Option:
		if v, ok, err := vm.optionMethod(r, method, args, span); ok || err != nil {
			return v, err
		}
	case value.Result:
		if v, ok, err := vm.resultMethod(r, method, args, span); ok || err != nil {
			return v, err
		}
	case value.Integer, value.Float:
		if v, ok, err := numberMethod(r, method, span); ok || err != nil {
			return v, err
		}
	case value.EnumVariant:
		if v, ok, err := enumVariantMethod(r, method); ok {
			return v, nil
		}
	}
	return nil, vmErr(Trapped, span, "%s has no method %q", recv.Type(), method)
}

// invoke calls a closure value from inside an already-running
// fetch-decode-execute loop (e.g. the function argument to Array.map),
// without disturbing the frames belonging to that outer loop: run stops
// as soon as control returns to the depth recorded before the call.
func (vm *VM) invoke(fn value.Value, args []value.Value, span token.Span) (value.Value, error) {
	if err := vm.push(fn); err != nil {
		return nil, err
	}
	for _, a := range args {
		if err := vm.push(a); err != nil {
			return nil, err
		}
	}
	depth := len(vm.frames)
	if err := vm.call(len(args), span); err != nil {
		return nil, err
	}
	return vm.run(depth)
}

func arityErr(span token.Span, method string, want int) error {
	return vmErr(Trapped, span, "%s() expects %d argument(s)", method, want)
}

func stringMethod(s value.String, method string, args []value.Value, span token.Span) (value.Value, bool, error) {
	str := s.String()
	switch method {
	case "len":
		return value.Integer{V: int64(len([]rune(str)))}, true, nil
	case "is_empty":
		return value.Bool{V: str == ""}, true, nil
	case "to_uppercase", "to_upper":
		return value.NewString(strings.ToUpper(str)), true, nil
	case "to_lowercase", "to_lower":
		return value.NewString(strings.ToLower(str)), true, nil
	case "trim":
		return value.NewString(strings.TrimSpace(str)), true, nil
	case "trim_start":
		return value.NewString(strings.TrimLeft(str, " \t\n\r")), true, nil
	case "trim_end":
		return value.NewString(strings.TrimRight(str, " \t\n\r")), true, nil
	case "contains":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		return value.Bool{V: strings.Contains(str, args[0].String())}, true, nil
	case "starts_with":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		return value.Bool{V: strings.HasPrefix(str, args[0].String())}, true, nil
	case "ends_with":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		return value.Bool{V: strings.HasSuffix(str, args[0].String())}, true, nil
	case "replace":
		if len(args) != 2 {
			return nil, true, arityErr(span, method, 2)
		}
		return value.NewString(strings.ReplaceAll(str, args[0].String(), args[1].String())), true, nil
	case "split":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		parts := strings.Split(str, args[0].String())
		elems := make([]value.Value, len(parts))
		for i, p := range parts {
			elems[i] = value.NewString(p)
		}
		return value.NewArray(elems), true, nil
	case "chars":
		runes := []rune(str)
		elems := make([]value.Value, len(runes))
		for i, r := range runes {
			elems[i] = value.Char{V: r}
		}
		return value.NewArray(elems), true, nil
	case "repeat":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		n, ok := args[0].(value.Integer)
		if !ok {
			return nil, true, vmErr(Trapped, span, "repeat() expects an integer")
		}
		return value.NewString(strings.Repeat(str, int(n.V))), true, nil
	case "to_string", "clone":
		return value.NewString(str), true, nil
	case "parse_int":
		n, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
		if err != nil {
			return value.Result{IsOk: false, Value: value.NewString(err.Error())}, true, nil
		}
		return value.Result{IsOk: true, Value: value.Integer{V: n}}, true, nil
	case "parse_float":
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return value.Result{IsOk: false, Value: value.NewString(err.Error())}, true, nil
		}
		return value.Result{IsOk: true, Value: value.Float{V: f}}, true, nil
	}
	return nil, false, nil
}

func (vm *VM) arrayMethod(a value.Array, method string, args []value.Value, span token.Span) (value.Value, bool, error) {
	var elems []value.Value
	if a.V != nil {
		elems = *a.V
	}
	switch method {
	case "len":
		return value.Integer{V: int64(len(elems))}, true, nil
	case "is_empty":
		return value.Bool{V: len(elems) == 0}, true, nil
	case "push":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		if a.V == nil {
			return nil, true, vmErr(Trapped, span, "push on an uninitialized array")
		}
		*a.V = append(*a.V, args[0])
		return value.Unit{}, true, nil
	case "pop":
		if len(elems) == 0 {
			return value.Option{IsSome: false}, true, nil
		}
		last := elems[len(elems)-1]
		*a.V = elems[:len(elems)-1]
		return value.Option{IsSome: true, Value: last}, true, nil
	case "first":
		if len(elems) == 0 {
			return value.Option{IsSome: false}, true, nil
		}
		return value.Option{IsSome: true, Value: elems[0]}, true, nil
	case "last":
		if len(elems) == 0 {
			return value.Option{IsSome: false}, true, nil
		}
		return value.Option{IsSome: true, Value: elems[len(elems)-1]}, true, nil
	case "contains":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		for _, el := range elems {
			if value.Equal(el, args[0]) {
				return value.Bool{V: true}, true, nil
			}
		}
		return value.Bool{V: false}, true, nil
	case "reverse":
		rev := make([]value.Value, len(elems))
		for i, el := range elems {
			rev[len(elems)-1-i] = el
		}
		return value.NewArray(rev), true, nil
	case "sort":
		sorted := append([]value.Value{}, elems...)
		sort.SliceStable(sorted, func(i, j int) bool { return lessValue(sorted[i], sorted[j]) })
		return value.NewArray(sorted), true, nil
	case "join":
		sep := ""
		if len(args) == 1 {
			sep = args[0].String()
		}
		parts := make([]string, len(elems))
		for i, el := range elems {
			parts[i] = el.String()
		}
		return value.NewString(strings.Join(parts, sep)), true, nil
	case "sum":
		return sumValues(elems, span)
	case "map":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		out := make([]value.Value, len(elems))
		for i, el := range elems {
			v, err := vm.invoke(args[0], []value.Value{el}, span)
			if err != nil {
				return nil, true, err
			}
			out[i] = v
		}
		return value.NewArray(out), true, nil
	case "filter":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		var out []value.Value
		for _, el := range elems {
			v, err := vm.invoke(args[0], []value.Value{el}, span)
			if err != nil {
				return nil, true, err
			}
			if value.Truthy(v) {
				out = append(out, el)
			}
		}
		return value.NewArray(out), true, nil
	case "reduce", "fold":
		if len(args) != 2 {
			return nil, true, arityErr(span, method, 2)
		}
		acc := args[0]
		var err error
		for _, el := range elems {
			acc, err = vm.invoke(args[1], []value.Value{acc, el}, span)
			if err != nil {
				return nil, true, err
			}
		}
		return acc, true, nil
	case "for_each":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		for _, el := range elems {
			if _, err := vm.invoke(args[0], []value.Value{el}, span); err != nil {
				return nil, true, err
			}
		}
		return value.Unit{}, true, nil
	case "find":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		for _, el := range elems {
			v, err := vm.invoke(args[0], []value.Value{el}, span)
			if err != nil {
				return nil, true, err
			}
			if value.Truthy(v) {
				return value.Option{IsSome: true, Value: el}, true, nil
			}
		}
		return value.Option{IsSome: false}, true, nil
	case "any":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		for _, el := range elems {
			v, err := vm.invoke(args[0], []value.Value{el}, span)
			if err != nil {
				return nil, true, err
			}
			if value.Truthy(v) {
				return value.Bool{V: true}, true, nil
			}
		}
		return value.Bool{V: false}, true, nil
	case "all":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		for _, el := range elems {
			v, err := vm.invoke(args[0], []value.Value{el}, span)
			if err != nil {
				return nil, true, err
			}
			if !value.Truthy(v) {
				return value.Bool{V: false}, true, nil
			}
		}
		return value.Bool{V: true}, true, nil
	case "clone":
		return value.NewArray(append([]value.Value{}, elems...)), true, nil
	}
	return nil, false, nil
}

func lessValue(a, b value.Value) bool {
	switch x := a.(type) {
	case value.Integer:
		if y, ok := b.(value.Integer); ok {
			return x.V < y.V
		}
	case value.Float:
		if y, ok := b.(value.Float); ok {
			return x.V < y.V
		}
	case value.String:
		if y, ok := b.(value.String); ok {
			return x.String() < y.String()
		}
	}
	return false
}

func sumValues(elems []value.Value, span token.Span) (value.Value, bool, error) {
	var acc value.Value = value.Integer{V: 0}
	for _, el := range elems {
		r, err := applyOp(bytecode.OpAdd, acc, el, span)
		if err != nil {
			return nil, true, err
		}
		acc = r
	}
	return acc, true, nil
}

func hashMapMethod(h value.HashMap, method string, args []value.Value, span token.Span) (value.Value, bool, error) {
	switch method {
	case "len":
		if h.Vals == nil {
			return value.Integer{V: 0}, true, nil
		}
		return value.Integer{V: int64(len(*h.Vals))}, true, nil
	case "is_empty":
		return value.Bool{V: h.Vals == nil || len(*h.Vals) == 0}, true, nil
	case "get":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		if h.Vals == nil {
			return value.Option{IsSome: false}, true, nil
		}
		v, ok := (*h.Vals)[value.CanonicalKey(args[0])]
		return value.Option{IsSome: ok, Value: v}, true, nil
	case "insert":
		if len(args) != 2 {
			return nil, true, arityErr(span, method, 2)
		}
		if h.Vals == nil {
			return nil, true, vmErr(Trapped, span, "insert on an uninitialized map")
		}
		key := value.CanonicalKey(args[0])
		prev, existed := (*h.Vals)[key]
		(*h.Vals)[key] = args[1]
		if h.Keys != nil && !existed {
			*h.Keys = append(*h.Keys, args[0])
		}
		return value.Option{IsSome: existed, Value: prev}, true, nil
	case "contains_key":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		if h.Vals == nil {
			return value.Bool{V: false}, true, nil
		}
		_, ok := (*h.Vals)[value.CanonicalKey(args[0])]
		return value.Bool{V: ok}, true, nil
	case "keys":
		if h.Keys == nil {
			return value.NewArray(nil), true, nil
		}
		return value.NewArray(append([]value.Value{}, *h.Keys...)), true, nil
	case "values":
		if h.Vals == nil {
			return value.NewArray(nil), true, nil
		}
		var out []value.Value
		for _, v := range *h.Vals {
			out = append(out, v)
		}
		return value.NewArray(out), true, nil
	}
	return nil, false, nil
}

func hashSetMethod(s value.HashSet, method string, args []value.Value, span token.Span) (value.Value, bool, error) {
	switch method {
	case "len":
		if s.V == nil {
			return value.Integer{V: 0}, true, nil
		}
		return value.Integer{V: int64(len(*s.V))}, true, nil
	case "contains":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		if s.V == nil {
			return value.Bool{V: false}, true, nil
		}
		_, ok := (*s.V)[value.CanonicalKey(args[0])]
		return value.Bool{V: ok}, true, nil
	case "insert":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		if s.V == nil {
			return nil, true, vmErr(Trapped, span, "insert on an uninitialized set")
		}
		key := value.CanonicalKey(args[0])
		_, existed := (*s.V)[key]
		(*s.V)[key] = args[0]
		return value.Bool{V: !existed}, true, nil
	}
	return nil, false, nil
}

func (vm *VM) rangeMethod(r value.Range, method string, args []value.Value, span token.Span) (value.Value, bool, error) {
	items := rangeItems(r)
	switch method {
	case "len", "count":
		return value.Integer{V: int64(len(items))}, true, nil
	case "collect", "to_vec":
		return value.NewArray(items), true, nil
	case "contains":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		for _, it := range items {
			if value.Equal(it, args[0]) {
				return value.Bool{V: true}, true, nil
			}
		}
		return value.Bool{V: false}, true, nil
	case "map", "filter", "for_each", "any", "all", "find", "reduce", "fold":
		return vm.arrayMethod(value.NewArray(items), method, args, span)
	}
	return nil, false, nil
}

func rangeItems(r value.Range) []value.Value {
	end := r.End
	if r.Inclusive {
		end++
	}
	if end <= r.Start {
		return nil
	}
	out := make([]value.Value, 0, end-r.Start)
	for i := r.Start; i < end; i++ {
		out = append(out, value.Integer{V: i})
	}
	return out
}

func (vm *VM) optionMethod(o value.Option, method string, args []value.Value, span token.Span) (value.Value, bool, error) {
	switch method {
	case "is_some":
		return value.Bool{V: o.IsSome}, true, nil
	case "is_none":
		return value.Bool{V: !o.IsSome}, true, nil
	case "unwrap":
		if !o.IsSome {
			return nil, true, vmErr(Trapped, span, "called unwrap() on a None value")
		}
		return o.Value, true, nil
	case "unwrap_or":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		if o.IsSome {
			return o.Value, true, nil
		}
		return args[0], true, nil
	case "map":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		if !o.IsSome {
			return o, true, nil
		}
		v, err := vm.invoke(args[0], []value.Value{o.Value}, span)
		if err != nil {
			return nil, true, err
		}
		return value.Option{IsSome: true, Value: v}, true, nil
	}
	return nil, false, nil
}

func (vm *VM) resultMethod(r value.Result, method string, args []value.Value, span token.Span) (value.Value, bool, error) {
	switch method {
	case "is_ok":
		return value.Bool{V: r.IsOk}, true, nil
	case "is_err":
		return value.Bool{V: !r.IsOk}, true, nil
	case "unwrap":
		if !r.IsOk {
			return nil, true, vmErr(Trapped, span, "called unwrap() on an Err value: %s", value.Repr(r.Value))
		}
		return r.Value, true, nil
	case "unwrap_or":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		if r.IsOk {
			return r.Value, true, nil
		}
		return args[0], true, nil
	case "map":
		if len(args) != 1 {
			return nil, true, arityErr(span, method, 1)
		}
		if !r.IsOk {
			return r, true, nil
		}
		v, err := vm.invoke(args[0], []value.Value{r.Value}, span)
		if err != nil {
			return nil, true, err
		}
		return value.Result{IsOk: true, Value: v}, true, nil
	}
	return nil, false, nil
}

func numberMethod(v value.Value, method string, span token.Span) (value.Value, bool, error) {
	f, _ := floatOf(v)
	switch method {
	case "abs":
		if i, ok := v.(value.Integer); ok {
			if i.V < 0 {
				return value.Integer{V: -i.V, Suffix: i.Suffix}, true, nil
			}
			return i, true, nil
		}
		if f < 0 {
			return value.Float{V: -f}, true, nil
		}
		return v, true, nil
	case "to_string":
		return value.NewString(v.String()), true, nil
	case "sqrt":
		return value.Float{V: sqrtFloat(f)}, true, nil
	}
	_ = span
	return nil, false, nil
}

func sqrtFloat(f float64) float64 {
	if f < 0 {
		return 0
	}
	guess := f
	for i := 0; i < 40 && guess != 0; i++ {
		guess = 0.5 * (guess + f/guess)
	}
	return guess
}

func enumVariantMethod(v value.EnumVariant, method string) (value.Value, bool) {
	if method == "is_some" || method == "is_ok" {
		return value.Bool{V: v.Variant != "None" && v.Variant != "Err"}, true
	}
	return nil, false
}
