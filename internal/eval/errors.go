package eval

import (
	"fmt"

	"github.com/paiml/ruchy/internal/diag"
	"github.com/paiml/ruchy/internal/token"
	"github.com/paiml/ruchy/internal/value"
)

// RuntimeErrorKind enumerates the evaluator's error taxonomy (spec.md §4.4
// "Arithmetic... division by zero is a runtime error" and friends).
type RuntimeErrorKind int

const (
	TypeError RuntimeErrorKind = iota
	NameError
	IndexError
	// InvalidRange is spec.md §4.4's boundary behavior for a reversed slice
	// bound (`m<n`), kept distinct from IndexError's plain out-of-bounds
	// case since the two are named separately in the taxonomy.
	InvalidRange
	ArithmeticError
	// ArithmeticOverflow is spec.md §7's distinct overflow case, raised only
	// when debug-mode checked arithmetic (OQ-3) is enabled; ArithmeticError
	// remains the kind for division/modulo by zero.
	ArithmeticOverflow
	ImmutableAssignError
	NoMatchError
	UserError // carries a thrown/Err value surfaced past all handlers
)

func (k RuntimeErrorKind) String() string {
	switch k {
	case TypeError:
		return "TypeError"
	case NameError:
		return "NameError"
	case IndexError:
		return "IndexError"
	case InvalidRange:
		return "InvalidRange"
	case ArithmeticError:
		return "ArithmeticError"
	case ArithmeticOverflow:
		return "ArithmeticOverflow"
	case ImmutableAssignError:
		return "ImmutableAssignError"
	case NoMatchError:
		return "NoMatchError"
	default:
		return "UserError"
	}
}

// RuntimeError is the evaluator's Result<Value, RuntimeError> failure
// variant from spec.md §4.4.
type RuntimeError struct {
	Kind        RuntimeErrorKind
	Message     string
	Span        token.Span
	Value       value.Value // populated for UserError (the thrown/Err payload)
	Suggestions []string    // "did you mean" candidates for NameError
}

func (e *RuntimeError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (did you mean %s?)", e.Kind, e.Message, e.Suggestions[0])
}

func newError(kind RuntimeErrorKind, span token.Span, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...), Span: span}
}

// newNameError builds an undefined-name RuntimeError with fuzzy-matched
// "did you mean" suggestions ranked against every name visible in env,
// grounded on the planner's existing use of fuzzysearch for unknown
// decorator names (diag.Suggest).
func newNameError(span token.Span, name string, candidates []string) *RuntimeError {
	err := newError(NameError, span, "undefined name %q", name)
	err.Suggestions = diag.Suggest(name, candidates, 3)
	return err
}

// signalKind distinguishes the non-error control-flow unwinds the
// evaluator must thread past arbitrarily many scopes: break, continue,
// return, and a catchable throw (spec.md §4.4's `?`/throw/catch rules).
type signalKind int

const (
	sigBreak signalKind = iota
	sigContinue
	sigReturn
	sigThrow
)

// signal implements error so it can travel through the same (Value, error)
// return channel as a RuntimeError; loops and function calls type-assert
// for *signal to catch their own kind and re-raise anything else.
type signal struct {
	kind  signalKind
	value value.Value
}

func (s *signal) Error() string { return "unhandled control-flow signal" }

func asSignal(err error) (*signal, bool) {
	s, ok := err.(*signal)
	return s, ok
}
