package parser

import (
	"fmt"

	"github.com/paiml/ruchy/internal/diag"
	"github.com/paiml/ruchy/internal/token"
)

// ErrorCode enumerates the error_code values of spec.md §7's ParseError.
type ErrorCode int

const (
	UnexpectedToken ErrorCode = iota
	UnclosedDelimiter
	InvalidPattern
	InvalidNumberLiteral
	UnterminatedInterpolation
	DuplicateBinding
	MismatchedOrPatternBindings
)

func (c ErrorCode) String() string {
	switch c {
	case UnexpectedToken:
		return "UnexpectedToken"
	case UnclosedDelimiter:
		return "UnclosedDelimiter"
	case InvalidPattern:
		return "InvalidPattern"
	case InvalidNumberLiteral:
		return "InvalidNumberLiteral"
	case UnterminatedInterpolation:
		return "UnterminatedInterpolation"
	case DuplicateBinding:
		return "DuplicateBinding"
	case MismatchedOrPatternBindings:
		return "MismatchedOrPatternBindings"
	default:
		return "Unknown"
	}
}

// Error is spec.md §7's ParseError: found token, expected set, recovery
// hint, severity, error code, and span.
type Error struct {
	Code          ErrorCode
	Message       string
	Found         token.Token
	Expected      []string
	RecoveryHint  string
	Severity      diag.Severity
	Span          token.Span
	Suggestions   []string
	OpenedAt      *token.Token // for unclosed-delimiter errors, reported at the opener's span
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s at %d:%d", e.Code, e.Message, e.Found.Line, e.Found.Column)
	if e.OpenedAt != nil {
		msg += fmt.Sprintf(" (opened at %d:%d)", e.OpenedAt.Line, e.OpenedAt.Column)
	}
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean `%s`?)", e.Suggestions[0])
	}
	return msg
}
