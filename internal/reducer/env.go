package reducer

import (
	"github.com/voxlogica-go/voxlogica/internal/ast"
	"github.com/voxlogica-go/voxlogica/internal/ir"
)

// Binding is what a name in an Environment resolves to: either a plain
// value (already reduced to a NodeId) or a user-defined closure.
type Binding struct {
	IsClosure bool
	Value     ir.NodeId
	Closure   *Closure
}

// Closure is a reducer-time value capturing parameters, an unreduced body
// AST, and a snapshot of the enclosing environment. Closures are first-class
// but are never hashed as-is: direct application inlines the body at reduce
// time, and a closure that escapes into a for-comprehension is erased into a
// canonical NodeSpec (see closure.go) before it can be hashed.
type Closure struct {
	Params   []string
	Body     ast.Expr
	Captured *Env
}

// Env is a persistent (immutable, linked) environment. Binding a name
// returns a new Env whose parent is the receiver; the receiver itself is
// never mutated, which is exactly the "snapshot" semantics a captured
// closure environment needs (spec.md §4.4): later rebindings in a sibling
// or child Env can never be observed by a Closure that captured an earlier
// Env value.
type Env struct {
	name    string
	binding Binding
	parent  *Env
}

// NewEnv returns the empty environment.
func NewEnv() *Env { return nil }

// Bind returns a new Env extending e with name bound to b. Shadowing an
// existing binding of name is just a new link at the head of the chain —
// Lookup finds the innermost (most recently bound) match first, and the
// outer binding is never mutated or removed.
func (e *Env) Bind(name string, b Binding) *Env {
	return &Env{name: name, binding: b, parent: e}
}

// Lookup walks the chain from innermost to outermost looking for name.
func (e *Env) Lookup(name string) (Binding, bool) {
	for env := e; env != nil; env = env.parent {
		if env.name == name {
			return env.binding, true
		}
	}
	return Binding{}, false
}

// Names returns every name currently reachable, innermost first, used for
// "did you mean" suggestions on UnboundIdentifier.
func (e *Env) Names() []string {
	var out []string
	seen := map[string]bool{}
	for env := e; env != nil; env = env.parent {
		if !seen[env.name] {
			seen[env.name] = true
			out = append(out, env.name)
		}
	}
	return out
}
