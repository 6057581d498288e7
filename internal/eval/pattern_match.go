package eval

import (
	"github.com/paiml/ruchy/internal/ast"
	"github.com/paiml/ruchy/internal/value"
)

// matchPattern implements the runtime half of the pattern grammar
// internal/parser/patparse.go parses (spec.md §4.4 "pattern matching"),
// binding names into env on success. irrefutable marks contexts where a
// failed match is a program error rather than a normal branch miss — `let`
// destructuring, function parameters, and `for` loop bindings — so the
// caller gets a NoMatchError instead of a silent false.
func (ev *Evaluator) matchPattern(p *ast.Pattern, v value.Value, env *value.Environment, irrefutable bool) (bool, error) {
	ok, err := ev.tryMatch(p, v, env)
	if err != nil {
		return false, err
	}
	if !ok && irrefutable {
		return false, newError(NoMatchError, p.Span(), "pattern %s did not match value %s", p, value.Repr(v))
	}
	return ok, nil
}

func (ev *Evaluator) tryMatch(p *ast.Pattern, v value.Value, env *value.Environment) (bool, error) {
	switch k := p.Kind.(type) {
	case ast.WildcardPat:
		return true, nil
	case ast.IdentPat:
		if k.Name != "_" {
			env.Define(k.Name, v, k.IsMut)
		}
		return true, nil
	case ast.LiteralPat:
		lit, err := ev.Eval(k.Value, env)
		if err != nil {
			return false, err
		}
		return value.Equal(lit, v), nil
	case ast.OrPat:
		for _, alt := range k.Alts {
			if ok, err := ev.tryMatch(alt, v, env); err != nil {
				return false, err
			} else if ok {
				return true, nil
			}
		}
		return false, nil
	case ast.TuplePat:
		t, ok := v.(value.Tuple)
		if !ok || len(t.V) != len(k.Elems) {
			return false, nil
		}
		for i, elPat := range k.Elems {
			if ok, err := ev.tryMatch(elPat, t.V[i], env); err != nil {
				return false, err
			} else if !ok {
				return false, nil
			}
		}
		return true, nil
	case ast.ListPat:
		return ev.matchListPattern(k, v, env)
	case ast.StructPat:
		return ev.matchStructPattern(k, v, env)
	case ast.TupleStructPat:
		return ev.matchTupleStructPattern(k, v, env)
	case ast.RangePat:
		return ev.matchRangePattern(k, v, env)
	case ast.GuardPat:
		ok, err := ev.tryMatch(k.Pattern, v, env)
		if err != nil || !ok {
			return false, err
		}
		cond, err := ev.Eval(k.Guard, env)
		if err != nil {
			return false, err
		}
		return value.Truthy(cond), nil
	default:
		return false, newError(TypeError, p.Span(), "unsupported pattern kind %T", k)
	}
}

func (ev *Evaluator) matchListPattern(k ast.ListPat, v value.Value, env *value.Environment) (bool, error) {
	arr, ok := v.(value.Array)
	if !ok || arr.V == nil {
		return false, nil
	}
	elems := *arr.V
	minLen := len(k.Head) + len(k.Tail)
	if !k.HasRest && len(elems) != minLen {
		return false, nil
	}
	if k.HasRest && len(elems) < minLen {
		return false, nil
	}
	for i, hp := range k.Head {
		if ok, err := ev.tryMatch(hp, elems[i], env); err != nil || !ok {
			return false, err
		}
	}
	if k.HasRest {
		restLen := len(elems) - minLen
		rest := append([]value.Value{}, elems[len(k.Head):len(k.Head)+restLen]...)
		if k.RestName != "" && k.RestName != "_" {
			env.Define(k.RestName, value.NewArray(rest), false)
		}
		for i, tp := range k.Tail {
			if ok, err := ev.tryMatch(tp, elems[len(k.Head)+restLen+i], env); err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

func (ev *Evaluator) matchStructPattern(k ast.StructPat, v value.Value, env *value.Environment) (bool, error) {
	si, ok := v.(value.StructInstance)
	if !ok || si.Struct != k.Name || si.Fields == nil {
		return false, nil
	}
	for _, fp := range k.Fields {
		fv, ok := (*si.Fields)[fp.Name]
		if !ok {
			return false, nil
		}
		if fp.Pattern == nil {
			env.Define(fp.Name, fv, false)
			continue
		}
		if ok, err := ev.tryMatch(fp.Pattern, fv, env); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (ev *Evaluator) matchTupleStructPattern(k ast.TupleStructPat, v value.Value, env *value.Environment) (bool, error) {
	switch x := v.(type) {
	case value.EnumVariant:
		if x.Variant != k.Name && x.Enum+"::"+x.Variant != k.Name {
			return false, nil
		}
		if len(x.Data) != len(k.Args) {
			return false, nil
		}
		for i, ap := range k.Args {
			if ok, err := ev.tryMatch(ap, x.Data[i], env); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case value.Result:
		return ev.matchResultOrOption(k, x.IsOk, x.Value, "Ok", "Err", env)
	case value.Option:
		return ev.matchOptionPattern(k, x, env)
	case value.StructInstance:
		if x.Struct != k.Name || x.Fields == nil {
			return false, nil
		}
		for i, ap := range k.Args {
			fv, ok := (*x.Fields)[itoa(i)]
			if !ok {
				return false, nil
			}
			if ok, err := ev.tryMatch(ap, fv, env); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return false, nil
}

func (ev *Evaluator) matchOptionPattern(k ast.TupleStructPat, o value.Option, env *value.Environment) (bool, error) {
	if k.Name != "Some" || !o.IsSome || len(k.Args) != 1 {
		return false, nil
	}
	return ev.tryMatch(k.Args[0], o.Value, env)
}

func (ev *Evaluator) matchResultOrOption(k ast.TupleStructPat, isOk bool, payload value.Value, okName, errName string, env *value.Environment) (bool, error) {
	switch k.Name {
	case okName:
		if !isOk || len(k.Args) != 1 {
			return false, nil
		}
		return ev.tryMatch(k.Args[0], payload, env)
	case errName:
		if isOk || len(k.Args) != 1 {
			return false, nil
		}
		return ev.tryMatch(k.Args[0], payload, env)
	}
	return false, nil
}

func (ev *Evaluator) matchRangePattern(k ast.RangePat, v value.Value, env *value.Environment) (bool, error) {
	i, ok := v.(value.Integer)
	if !ok {
		return false, nil
	}
	var lo, hi int64
	if k.Lo != nil {
		loVal, err := ev.Eval(k.Lo, env)
		if err != nil {
			return false, err
		}
		lo = loVal.(value.Integer).V
	}
	if k.Hi != nil {
		hiVal, err := ev.Eval(k.Hi, env)
		if err != nil {
			return false, err
		}
		hi = hiVal.(value.Integer).V
	}
	if i.V < lo {
		return false, nil
	}
	if k.Inclusive {
		return i.V <= hi, nil
	}
	return i.V < hi, nil
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
