// Package diag renders shared diagnostic context (source snippets, carets,
// "did you mean" suggestions) for the error taxonomy of spec.md §7, grounded
// on the teacher's ParseError{Context, Suggestions} shape
// (runtime/parser/errors.go).
package diag

import (
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/paiml/ruchy/internal/token"
)

// Severity mirrors spec.md §7's ParseError.severity field.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "error"
	}
}

// Suggest ranks candidates by similarity to name and returns up to n
// "did you mean" suggestions, grounded on the planner's existing fuzzy
// suggestion use for unknown decorator names (runtime/planner/planner.go).
func Suggest(name string, candidates []string, n int) []string {
	ranked := fuzzy.RankFindFold(name, candidates)
	if len(ranked) == 0 {
		return nil
	}
	sortRanksByDistance(ranked)
	out := make([]string, 0, n)
	for i := 0; i < len(ranked) && i < n; i++ {
		out = append(out, ranked[i].Target)
	}
	return out
}

func sortRanksByDistance(r fuzzy.Ranks) {
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && r[j].Distance < r[j-1].Distance; j-- {
			r[j], r[j-1] = r[j-1], r[j]
		}
	}
}

// Snippet renders up to maxLines of source context around span with a caret
// line under the offending column, matching spec.md §7's "source snippets,
// carets, and multi-line context; up to ~8 lines of context are shown."
func Snippet(source string, span token.Span, line, column, maxLines int) string {
	if maxLines <= 0 {
		maxLines = 8
	}
	lines := strings.Split(source, "\n")
	start := line - maxLines/2
	if start < 1 {
		start = 1
	}
	end := start + maxLines - 1
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for l := start; l <= end; l++ {
		if l-1 >= len(lines) || l-1 < 0 {
			continue
		}
		fmt.Fprintf(&b, "%4d | %s\n", l, lines[l-1])
		if l == line {
			b.WriteString("     | ")
			for i := 1; i < column; i++ {
				b.WriteByte(' ')
			}
			b.WriteString("^\n")
		}
	}
	return b.String()
}
