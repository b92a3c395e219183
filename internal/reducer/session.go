// Package reducer walks a parsed ast.Program and produces an ir.SymbolicPlan
// (spec.md §4.4): literals become constants, applications become primitive
// or closure NodeSpecs, let-bindings extend a persistent environment, and
// for-comprehensions desugar into a default.map call over an erased closure
// NodeSpec (spec.md §9).
package reducer

import (
	"fmt"

	"github.com/voxlogica-go/voxlogica/internal/ast"
	"github.com/voxlogica-go/voxlogica/internal/contract"
	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/planner"
	"github.com/voxlogica-go/voxlogica/internal/registry"
)

// MapOperator is the fully-qualified default-namespace primitive a
// for-comprehension desugars its producer/body pair into. default's
// manifest (internal/primitives/default) registers a matching PrimitiveSpec;
// the execution strategies additionally special-case this operator to apply
// the erased closure per element rather than running it as an ordinary
// kernel (spec.md §4.7).
const MapOperator = "default.map"

// Value is what reduceExpr returns for one Expr: either an already-planned
// NodeId, or a Closure that has not been applied yet.
type Value struct {
	NodeId  ir.NodeId
	Closure *Closure
}

func (v Value) isClosure() bool { return v.Closure != nil }

// Session drives one Reduce (or, later, one REPL statement) against a
// shared Planner and Registry. It is not safe for concurrent use.
type Session struct {
	Planner  *planner.Planner
	Registry *registry.Registry

	// closures indexes every "closure" NodeSpec planned so far by its
	// NodeId, so a strategy can retrieve the Closure (raw body AST plus
	// captured environment) needed to apply it per sequence element. This
	// table is reducer/session-internal and is never part of a persisted
	// SymbolicPlan (spec.md §4.4: closures are reducer-time only).
	closures map[ir.NodeId]*Closure
}

// NewSession returns a Session with a fresh Planner, ready to Reduce against
// reg's imported namespaces.
func NewSession(reg *registry.Registry) *Session {
	return &Session{
		Planner:  planner.New(),
		Registry: reg,
		closures: make(map[ir.NodeId]*Closure),
	}
}

// Reduce walks program's declarations and goals in order, producing a
// SymbolicPlan. bindings maps every top-level plain-value let name to the
// NodeId it reduced to (function definitions are not included — they have
// no standalone value until applied).
func (s *Session) Reduce(program *ast.Program) (*ir.SymbolicPlan, map[string]ir.NodeId, error) {
	contract.NotNil(program, "program")

	env := NewEnv()
	bindings := map[string]ir.NodeId{}

	for _, decl := range program.Declarations {
		switch d := decl.(type) {
		case ast.Import:
			s.Planner.ImportNamespace(d.Namespace)
			if err := s.Registry.ImportNamespace(d.Namespace); err != nil {
				return nil, nil, err
			}

		case ast.Let:
			if d.Params != nil {
				closure := &Closure{Params: d.Params, Body: d.RHS}
				bound := env.Bind(d.Name, Binding{Closure: closure})
				closure.Captured = bound // self-reference: enables recursion
				env = bound
				continue
			}
			val, err := s.reduceExpr(env, d.RHS)
			if err != nil {
				return nil, nil, err
			}
			if val.isClosure() {
				env = env.Bind(d.Name, Binding{Closure: val.Closure})
				continue
			}
			env = env.Bind(d.Name, Binding{Value: val.NodeId})
			bindings[d.Name] = val.NodeId

		default:
			return nil, nil, fmt.Errorf("voxlogica: unhandled ast.Declaration %T", decl)
		}
	}

	for _, g := range program.Goals {
		switch goal := g.(type) {
		case ast.Print:
			val, err := s.reduceExpr(env, goal.Expr)
			if err != nil {
				return nil, nil, err
			}
			if val.isClosure() {
				return nil, nil, &NotCallableError{Name: goal.Label}
			}
			s.Planner.AddGoal(ir.GoalPrint, val.NodeId, goal.Label)

		case ast.Save:
			val, err := s.reduceExpr(env, goal.Expr)
			if err != nil {
				return nil, nil, err
			}
			if val.isClosure() {
				return nil, nil, &NotCallableError{Name: goal.Path}
			}
			s.Planner.AddGoal(ir.GoalSave, val.NodeId, goal.Path)

		default:
			return nil, nil, fmt.Errorf("voxlogica: unhandled ast.Goal %T", g)
		}
	}

	plan := s.Planner.ToPlan()
	if err := plan.Validate(); err != nil {
		return nil, nil, err
	}
	return plan, bindings, nil
}

// Closure retrieves the Closure erased into the "closure" NodeSpec id, for
// an execution strategy applying a default.map/default.for_loop node.
func (s *Session) Closure(id ir.NodeId) (*Closure, bool) {
	c, ok := s.closures[id]
	return c, ok
}

// ApplyElement re-enters reduction on closure's body with its single
// parameter bound to elementNodeId — the NodeId of one concrete sequence
// element — producing the NodeId a strategy should evaluate/cache for that
// element (spec.md §4.7: "applying a closure re-enters the reducer on its
// body, producing a new NodeSpec"). Two elements that bind the same
// elementNodeId (e.g. two equal constants) reduce to the same result NodeId
// for free, since the Planner underneath is the same one used at reduce
// time.
func (s *Session) ApplyElement(closure *Closure, elementNodeId ir.NodeId) (ir.NodeId, error) {
	contract.Precondition(len(closure.Params) == 1, "for-comprehension closures are always unary, got %d params", len(closure.Params))

	childEnv := closure.Captured.Bind(closure.Params[0], Binding{Value: elementNodeId})
	val, err := s.reduceExpr(childEnv, closure.Body)
	if err != nil {
		return "", err
	}
	if val.isClosure() {
		return "", fmt.Errorf("voxlogica: for-comprehension body must reduce to a value, not a function")
	}
	return val.NodeId, nil
}

func (s *Session) reduceExpr(env *Env, expr ast.Expr) (Value, error) {
	switch e := expr.(type) {
	case ast.Number:
		id, err := s.Planner.AddConstant(e.Value, ir.OutputScalar)
		return Value{NodeId: id}, err

	case ast.String:
		id, err := s.Planner.AddConstant(e.Value, ir.OutputScalar)
		return Value{NodeId: id}, err

	case ast.Boolean:
		id, err := s.Planner.AddConstant(e.Value, ir.OutputScalar)
		return Value{NodeId: id}, err

	case ast.Identifier:
		b, ok := env.Lookup(e.Name)
		if !ok {
			return Value{}, unboundIdentifier(e.Name, env.Names())
		}
		if b.Closure != nil {
			return Value{Closure: b.Closure}, nil
		}
		return Value{NodeId: b.Value}, nil

	case ast.Qualified:
		return Value{}, fmt.Errorf("voxlogica: %s.%s may only appear as the callee of a call", e.Namespace, e.Name)

	case ast.App:
		return s.reduceApp(env, e)

	case ast.LetExpr:
		val, err := s.reduceExpr(env, e.RHS)
		if err != nil {
			return Value{}, err
		}
		child := env.Bind(e.Name, bindingOf(val))
		return s.reduceExpr(child, e.Body)

	case ast.For:
		return s.reduceFor(env, e)

	default:
		return Value{}, fmt.Errorf("voxlogica: unhandled ast.Expr %T", expr)
	}
}

func bindingOf(v Value) Binding {
	if v.isClosure() {
		return Binding{Closure: v.Closure}
	}
	return Binding{Value: v.NodeId}
}

func (s *Session) reduceApp(env *Env, app ast.App) (Value, error) {
	switch callee := app.Callee.(type) {
	case ast.Identifier:
		if b, ok := env.Lookup(callee.Name); ok {
			if b.Closure == nil {
				return Value{}, &NotCallableError{Name: callee.Name}
			}
			return s.applyClosure(env, callee.Name, b.Closure, app.Args)
		}
		return s.reducePrimitiveCall(env, callee.Name, app.Args)

	case ast.Qualified:
		return s.reducePrimitiveCall(env, callee.Namespace+"."+callee.Name, app.Args)

	default:
		val, err := s.reduceExpr(env, app.Callee)
		if err != nil {
			return Value{}, err
		}
		if !val.isClosure() {
			return Value{}, &NotCallableError{Name: "<expression>"}
		}
		return s.applyClosure(env, "<expression>", val.Closure, app.Args)
	}
}

func (s *Session) applyClosure(callerEnv *Env, name string, closure *Closure, argExprs []ast.Expr) (Value, error) {
	if len(argExprs) != len(closure.Params) {
		return Value{}, &ArityMismatchError{Callee: name, Expected: fmt.Sprintf("exactly %d", len(closure.Params)), Got: len(argExprs)}
	}

	bodyEnv := closure.Captured
	for i, param := range closure.Params {
		argVal, err := s.reduceExpr(callerEnv, argExprs[i])
		if err != nil {
			return Value{}, err
		}
		bodyEnv = bodyEnv.Bind(param, bindingOf(argVal))
	}
	return s.reduceExpr(bodyEnv, closure.Body)
}

func (s *Session) reducePrimitiveCall(env *Env, operator string, argExprs []ast.Expr) (Value, error) {
	args := make([]ir.NodeId, len(argExprs))
	for i, a := range argExprs {
		val, err := s.reduceExpr(env, a)
		if err != nil {
			return Value{}, err
		}
		if val.isClosure() {
			return Value{}, fmt.Errorf("voxlogica: %s: argument %d is a function, not a value; pass it through a for-comprehension instead", operator, i)
		}
		args[i] = val.NodeId
	}

	spec, err := s.Registry.Resolve(operator, s.Planner.ImportedNamespaces())
	if err != nil {
		return Value{}, err
	}
	if !spec.Arity.Accepts(len(args)) {
		return Value{}, &ArityMismatchError{Callee: spec.QualifiedName(), Expected: spec.Arity.String(), Got: len(args)}
	}

	node := spec.Planner(registry.PrimitiveCall{Args: args})
	if err := s.Registry.ValidateAttrs(spec, node.Attrs); err != nil {
		return Value{}, err
	}
	id, err := s.Planner.AddNode(node)
	if err != nil {
		return Value{}, err
	}
	return Value{NodeId: id}, nil
}

func (s *Session) reduceFor(env *Env, f ast.For) (Value, error) {
	iterVal, err := s.reduceExpr(env, f.Iter)
	if err != nil {
		return Value{}, err
	}
	if iterVal.isClosure() {
		return Value{}, fmt.Errorf("voxlogica: for %s in ...: iterable must be a value, not a function", f.Var)
	}

	closureId, closure, err := s.planClosureNode(env, []string{f.Var}, f.Body)
	if err != nil {
		return Value{}, err
	}
	s.closures[closureId] = closure

	node := ir.NodeSpec{
		Kind:       ir.KindPrimitive,
		Operator:   MapOperator,
		Args:       []ir.NodeId{iterVal.NodeId, closureId},
		Attrs:      map[string]any{},
		OutputKind: ir.OutputSequence,
	}
	id, err := s.Planner.AddNode(node)
	if err != nil {
		return Value{}, err
	}
	return Value{NodeId: id}, nil
}
