package value

import "github.com/paiml/ruchy/internal/invariant"

// binding pairs a value with its mutability per spec.md §3
// "Environment... distinguished immutable vs mutable bindings".
type binding struct {
	value   Value
	mutable bool
}

// Environment is a single frame in the lexical scope chain. Frames are
// linked by pointer, not copied, so a closure's CapturedEnv sees later
// mutations made through any alias of the same frame chain — this is the
// "parent environment by shared reference" requirement of spec.md §3/§5,
// confirmed against the original's global-mutable-state regression test.
type Environment struct {
	vars   map[string]*binding
	parent *Environment
}

// NewEnvironment creates a root environment with no parent.
func NewEnvironment() *Environment {
	return &Environment{vars: map[string]*binding{}}
}

// Child creates a new scope layered over e, used when entering a block,
// function call, or loop body (spec.md §4.4 "Blocks create scopes").
func (e *Environment) Child() *Environment {
	return &Environment{vars: map[string]*binding{}, parent: e}
}

// Define introduces a new binding in the current frame, shadowing any
// binding of the same name in an outer frame without altering it (spec.md
// §8 scenario S4).
func (e *Environment) Define(name string, v Value, mutable bool) {
	e.vars[name] = &binding{value: v, mutable: mutable}
}

// Get looks up name along the scope chain, innermost first.
func (e *Environment) Get(name string) (Value, bool) {
	for env := e; env != nil; env = env.parent {
		if b, ok := env.vars[name]; ok {
			return b.value, true
		}
	}
	return nil, false
}

// Set assigns to the nearest enclosing binding named name, per spec.md
// §4.4 "assignment traverses the scope chain looking for the first
// matching name." Returns false if no such binding exists, or if it is
// immutable (callers surface this as a RuntimeError).
func (e *Environment) Set(name string, v Value) (ok, immutable bool) {
	for env := e; env != nil; env = env.parent {
		if b, found := env.vars[name]; found {
			if !b.mutable {
				return false, true
			}
			b.value = v
			return true, false
		}
	}
	return false, false
}

// IsMutable reports whether name resolves to a mutable binding.
func (e *Environment) IsMutable(name string) bool {
	for env := e; env != nil; env = env.parent {
		if b, ok := env.vars[name]; ok {
			return b.mutable
		}
	}
	return false
}

// MustGet panics if name is unresolved; used only where the caller has
// already proven the binding exists (e.g. a freshly defined parameter).
func (e *Environment) MustGet(name string) Value {
	v, ok := e.Get(name)
	invariant.Precondition(ok, "binding %q must exist in scope", name)
	return v
}

// Names returns every name visible from e, innermost frame first, for
// "did you mean" suggestions on an undefined-name error.
func (e *Environment) Names() []string {
	var out []string
	for env := e; env != nil; env = env.parent {
		for name := range env.vars {
			out = append(out, name)
		}
	}
	return out
}
