package reducer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// UnboundIdentifierError reports a name with no binding reachable from the
// point of use, with fuzzy "did you mean" candidates from the names actually
// in scope (spec.md §7).
type UnboundIdentifierError struct {
	Name        string
	Suggestions []string
}

func (e *UnboundIdentifierError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("voxlogica: unbound identifier %q", e.Name)
	}
	return fmt.Sprintf("voxlogica: unbound identifier %q (did you mean: %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}

func unboundIdentifier(name string, inScope []string) error {
	candidates := append([]string(nil), inScope...)
	sort.Strings(candidates)
	matches := fuzzy.RankFindFold(name, candidates)
	sort.Sort(matches)
	suggestions := make([]string, 0, 3)
	for i, m := range matches {
		if i >= 3 {
			break
		}
		suggestions = append(suggestions, m.Target)
	}
	return &UnboundIdentifierError{Name: name, Suggestions: suggestions}
}

// ArityMismatchError reports a call site whose argument count does not
// satisfy the callee's arity, whether the callee is a primitive or a
// user-defined closure.
type ArityMismatchError struct {
	Callee   string
	Expected string
	Got      int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("voxlogica: %s expects %s argument(s), got %d", e.Callee, e.Expected, e.Got)
}

// NotCallableError reports an application whose callee resolved to a plain
// value binding (or an expression that did not reduce to a closure).
type NotCallableError struct {
	Name string
}

func (e *NotCallableError) Error() string {
	return fmt.Sprintf("voxlogica: %q is not callable (bound to a value, not a function)", e.Name)
}

// UnsupportedCaptureError reports a free variable inside a for-comprehension
// body that resolves to something other than a plain value binding — see
// the design note on closures-capturing-closures in closure.go.
type UnsupportedCaptureError struct {
	Name string
}

func (e *UnsupportedCaptureError) Error() string {
	return fmt.Sprintf("voxlogica: %q cannot be captured by a for-comprehension body (only plain value bindings, not functions, may cross into per-element closures)", e.Name)
}
