package reducer

import (
	"fmt"
	"sort"

	"github.com/voxlogica-go/voxlogica/internal/ast"
	"github.com/voxlogica-go/voxlogica/internal/ir"
)

// planClosureNode erases closure into a "closure" NodeSpec carrying a
// canonical, hashable projection of its body: bound names (parameters and
// any nested let/for variables) are replaced by de Bruijn indices and free
// variables by the NodeId they resolved to, so two textually different but
// semantically identical closures — same shape, same captured values —
// collapse to the same NodeId (spec.md §9, "closures as data").
//
// Free variables that resolve to a user-defined function (rather than a
// plain value) are rejected: only concrete values may cross into a
// per-element closure body by capture. Calling another top-level function
// from inside a for-comprehension body is still supported — env (which the
// returned Closure captures verbatim for later re-entrant application, see
// Session.ApplyElement) already carries every top-level binding made before
// this point in the program — only smuggling a *locally bound* closure in as
// a captured free variable is unsupported.
func (s *Session) planClosureNode(env *Env, params []string, body ast.Expr) (ir.NodeId, *Closure, error) {
	freeNames := freeVariableNames(params, body)
	freeVarIds := make(map[string]ir.NodeId, len(freeNames))
	for _, name := range freeNames {
		b, ok := env.Lookup(name)
		if !ok {
			return "", nil, unboundIdentifier(name, env.Names())
		}
		if b.Closure != nil {
			return "", nil, &UnsupportedCaptureError{Name: name}
		}
		freeVarIds[name] = b.Value
	}

	serialized, err := serializeBody(body, params, freeVarIds)
	if err != nil {
		return "", nil, err
	}

	nodeId, err := s.Planner.AddNode(ir.NodeSpec{
		Kind:     ir.KindClosure,
		Operator: "closure",
		Attrs: map[string]any{
			"arity": len(params),
			"body":  serialized,
		},
		OutputKind: ir.OutputClosure,
	})
	if err != nil {
		return "", nil, err
	}

	closure := &Closure{Params: append([]string(nil), params...), Body: body, Captured: env}
	return nodeId, closure, nil
}

// freeVariableNames returns, sorted and deduplicated, every identifier
// referenced in body in a value position that is not one of params and not
// bound by a nested let/for inside body. Identifiers used as an App callee
// are excluded: those name a primitive or a top-level function, resolved by
// name at application time, never captured by value.
func freeVariableNames(params []string, body ast.Expr) []string {
	seen := map[string]bool{}
	var walk func(e ast.Expr, bound []string)
	walk = func(e ast.Expr, bound []string) {
		switch e := e.(type) {
		case ast.Number, ast.String, ast.Boolean, ast.Qualified:
			// no identifiers
		case ast.Identifier:
			if !contains(bound, e.Name) {
				seen[e.Name] = true
			}
		case ast.App:
			switch e.Callee.(type) {
			case ast.Identifier, ast.Qualified:
				// resolved by name at call time, not captured
			default:
				walk(e.Callee, bound)
			}
			for _, a := range e.Args {
				walk(a, bound)
			}
		case ast.LetExpr:
			walk(e.RHS, bound)
			walk(e.Body, push(bound, e.Name))
		case ast.For:
			walk(e.Iter, bound)
			walk(e.Body, push(bound, e.Var))
		default:
			panic(fmt.Sprintf("voxlogica: unhandled ast.Expr %T in freeVariableNames", e))
		}
	}
	walk(body, params)

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func push(stack []string, name string) []string {
	out := make([]string, len(stack)+1)
	copy(out, stack)
	out[len(stack)] = name
	return out
}

func contains(stack []string, name string) bool {
	for _, s := range stack {
		if s == name {
			return true
		}
	}
	return false
}

// serializeBody projects body into the canonical, JSON-serializable form
// hashed as the closure NodeSpec's "body" attr. bound tracks the stack of
// locally-bound names (params, then any nested let/for names) innermost
// last; a reference to one becomes a de Bruijn index (distance from the
// innermost binder) so alpha-equivalent bodies always serialize identically.
func serializeBody(e ast.Expr, bound []string, freeVarIds map[string]ir.NodeId) (any, error) {
	switch e := e.(type) {
	case ast.Number:
		return map[string]any{"t": "num", "v": e.Value}, nil
	case ast.String:
		return map[string]any{"t": "str", "v": e.Value}, nil
	case ast.Boolean:
		return map[string]any{"t": "bool", "v": e.Value}, nil
	case ast.Identifier:
		if idx, ok := indexOf(bound, e.Name); ok {
			return map[string]any{"t": "bound", "i": len(bound) - 1 - idx}, nil
		}
		if id, ok := freeVarIds[e.Name]; ok {
			return map[string]any{"t": "free", "id": id}, nil
		}
		return map[string]any{"t": "global", "name": e.Name}, nil
	case ast.Qualified:
		return map[string]any{"t": "qualified", "ns": e.Namespace, "name": e.Name}, nil
	case ast.App:
		callee, err := serializeBody(e.Callee, bound, freeVarIds)
		if err != nil {
			return nil, err
		}
		args := make([]any, len(e.Args))
		for i, a := range e.Args {
			v, err := serializeBody(a, bound, freeVarIds)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return map[string]any{"t": "app", "callee": callee, "args": args}, nil
	case ast.LetExpr:
		rhs, err := serializeBody(e.RHS, bound, freeVarIds)
		if err != nil {
			return nil, err
		}
		inner, err := serializeBody(e.Body, push(bound, e.Name), freeVarIds)
		if err != nil {
			return nil, err
		}
		return map[string]any{"t": "let", "rhs": rhs, "body": inner}, nil
	case ast.For:
		iter, err := serializeBody(e.Iter, bound, freeVarIds)
		if err != nil {
			return nil, err
		}
		inner, err := serializeBody(e.Body, push(bound, e.Var), freeVarIds)
		if err != nil {
			return nil, err
		}
		return map[string]any{"t": "for", "iter": iter, "body": inner}, nil
	default:
		return nil, fmt.Errorf("voxlogica: unhandled ast.Expr %T in serializeBody", e)
	}
}

func indexOf(stack []string, name string) (int, bool) {
	for i, s := range stack {
		if s == name {
			return i, true
		}
	}
	return 0, false
}
