package reducer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxlogica-go/voxlogica/internal/ast"
	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/reducer"
	"github.com/voxlogica-go/voxlogica/internal/registry"
)

func defaultRegistry() *registry.Registry {
	r := registry.New()
	r.RegisterManifest("default", func() []registry.PrimitiveSpec {
		return []registry.PrimitiveSpec{
			{
				Name:      "addition",
				Namespace: "default",
				Kind:      registry.Pure,
				Arity:     registry.Fixed(2),
				Planner:   registry.DefaultPlanner("default.addition", ir.OutputScalar),
			},
			{
				Name:      "range",
				Namespace: "default",
				Kind:      registry.Pure,
				Arity:     registry.Fixed(2),
				Planner:   registry.DefaultPlanner("default.range", ir.OutputSequence),
			},
		}
	})
	return r
}

func mustImport(t *testing.T, reg *registry.Registry, ns string) {
	t.Helper()
	require.NoError(t, reg.ImportNamespace(ns))
}

func TestReduce_ConstantsAreShared(t *testing.T) {
	reg := defaultRegistry()
	mustImport(t, reg, "default")
	s := reducer.NewSession(reg)

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: "default"},
			ast.Let{Name: "a", RHS: ast.Number{Value: 1}},
			ast.Let{Name: "b", RHS: ast.Number{Value: 1}},
		},
		Goals: []ast.Goal{
			ast.Print{Label: "a", Expr: ast.Identifier{Name: "a"}},
		},
	}

	plan, bindings, err := s.Reduce(program)
	require.NoError(t, err)
	require.Equal(t, bindings["a"], bindings["b"])
	require.Equal(t, 1, plan.NodeCount())
}

func TestReduce_Arithmetic(t *testing.T) {
	reg := defaultRegistry()
	mustImport(t, reg, "default")
	s := reducer.NewSession(reg)

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: "default"},
			ast.Let{Name: "x", RHS: ast.App{
				Callee: ast.Identifier{Name: "addition"},
				Args:   []ast.Expr{ast.Number{Value: 1}, ast.Number{Value: 2}},
			}},
		},
		Goals: []ast.Goal{
			ast.Print{Label: "x", Expr: ast.Identifier{Name: "x"}},
		},
	}

	plan, bindings, err := s.Reduce(program)
	require.NoError(t, err)
	require.NoError(t, plan.Validate())
	node, ok := plan.Node(bindings["x"])
	require.True(t, ok)
	require.Equal(t, "default.addition", node.Operator)
	require.Len(t, node.Args, 2)
}

// TestReduce_LetShadowing exercises H8: `let x = 1 in let x = addition(x,1)
// in addition(x,1)` must reduce to addition(addition(1,1),1), not rebind the
// outer x inside its own right-hand side.
func TestReduce_LetShadowing(t *testing.T) {
	reg := defaultRegistry()
	mustImport(t, reg, "default")
	s := reducer.NewSession(reg)

	inner := ast.LetExpr{
		Name: "x",
		RHS: ast.App{
			Callee: ast.Identifier{Name: "addition"},
			Args:   []ast.Expr{ast.Identifier{Name: "x"}, ast.Number{Value: 1}},
		},
		Body: ast.App{
			Callee: ast.Identifier{Name: "addition"},
			Args:   []ast.Expr{ast.Identifier{Name: "x"}, ast.Number{Value: 1}},
		},
	}

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: "default"},
			ast.Let{Name: "x", RHS: ast.Number{Value: 1}},
			ast.Let{Name: "result", RHS: inner},
		},
		Goals: []ast.Goal{
			ast.Print{Label: "result", Expr: ast.Identifier{Name: "result"}},
		},
	}

	plan, bindings, err := s.Reduce(program)
	require.NoError(t, err)

	outer, ok := plan.Node(bindings["result"])
	require.True(t, ok)
	require.Equal(t, "default.addition", outer.Operator)

	innerNode, ok := plan.Node(outer.Args[0])
	require.True(t, ok)
	require.Equal(t, "default.addition", innerNode.Operator)

	// innerNode's first argument must be the original x == 1, not result's
	// own NodeId (which would indicate runaway self-reference).
	leaf, ok := plan.Node(innerNode.Args[0])
	require.True(t, ok)
	require.Equal(t, ir.KindConstant, leaf.Kind)
	require.Equal(t, float64(1), leaf.Attrs["value"])
}

func TestReduce_ForComprehensionDesugarsToMap(t *testing.T) {
	reg := defaultRegistry()
	mustImport(t, reg, "default")
	s := reducer.NewSession(reg)

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: "default"},
			ast.Let{Name: "xs", RHS: ast.App{
				Callee: ast.Identifier{Name: "range"},
				Args:   []ast.Expr{ast.Number{Value: 0}, ast.Number{Value: 5}},
			}},
			ast.Let{Name: "ys", RHS: ast.For{
				Var:  "x",
				Iter: ast.Identifier{Name: "xs"},
				Body: ast.App{
					Callee: ast.Identifier{Name: "addition"},
					Args:   []ast.Expr{ast.Identifier{Name: "x"}, ast.Number{Value: 1}},
				},
			}},
		},
		Goals: []ast.Goal{
			ast.Print{Label: "ys", Expr: ast.Identifier{Name: "ys"}},
		},
	}

	plan, bindings, err := s.Reduce(program)
	require.NoError(t, err)

	mapNode, ok := plan.Node(bindings["ys"])
	require.True(t, ok)
	require.Equal(t, reducer.MapOperator, mapNode.Operator)
	require.Equal(t, ir.OutputSequence, mapNode.OutputKind)
	require.Len(t, mapNode.Args, 2)
	require.Equal(t, bindings["xs"], mapNode.Args[0])

	closureId := mapNode.Args[1]
	closureNode, ok := plan.Node(closureId)
	require.True(t, ok)
	require.Equal(t, ir.KindClosure, closureNode.Kind)

	closure, ok := s.Closure(closureId)
	require.True(t, ok)
	require.Equal(t, []string{"x"}, closure.Params)

	// Applying the closure to a synthetic element NodeId re-enters
	// reduction and produces the expected addition node.
	elemId, err := s.Planner.AddConstant(float64(7), ir.OutputScalar)
	require.NoError(t, err)
	resultId, err := s.ApplyElement(closure, elemId)
	require.NoError(t, err)

	// resultId was planned after plan (a snapshot) was taken, so it is only
	// visible through the live Planner, not through the earlier snapshot.
	resultNode, ok := s.Planner.Node(resultId)
	require.True(t, ok)
	require.Equal(t, "default.addition", resultNode.Operator)
	require.Equal(t, elemId, resultNode.Args[0])
}

func TestReduce_ForComprehensionSharesEqualElementResults(t *testing.T) {
	reg := defaultRegistry()
	mustImport(t, reg, "default")
	s := reducer.NewSession(reg)

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: "default"},
			ast.Let{Name: "xs", RHS: ast.App{
				Callee: ast.Identifier{Name: "range"},
				Args:   []ast.Expr{ast.Number{Value: 0}, ast.Number{Value: 5}},
			}},
			ast.Let{Name: "ys", RHS: ast.For{
				Var:  "x",
				Iter: ast.Identifier{Name: "xs"},
				Body: ast.App{
					Callee: ast.Identifier{Name: "addition"},
					Args:   []ast.Expr{ast.Identifier{Name: "x"}, ast.Number{Value: 1}},
				},
			}},
		},
	}

	_, bindings, err := s.Reduce(program)
	require.NoError(t, err)

	mapNode, _ := s.Planner.Node(bindings["ys"])
	closure, _ := s.Closure(mapNode.Args[1])

	elemA, err := s.Planner.AddConstant(float64(3), ir.OutputScalar)
	require.NoError(t, err)
	elemB, err := s.Planner.AddConstant(float64(3), ir.OutputScalar)
	require.NoError(t, err)
	require.Equal(t, elemA, elemB) // equal constants already share a NodeId

	resultA, err := s.ApplyElement(closure, elemA)
	require.NoError(t, err)
	resultB, err := s.ApplyElement(closure, elemB)
	require.NoError(t, err)
	require.Equal(t, resultA, resultB)
}

func TestReduce_ForComprehensionCapturesOuterFreeVariable(t *testing.T) {
	reg := defaultRegistry()
	mustImport(t, reg, "default")
	s := reducer.NewSession(reg)

	buildProgram := func(k float64) *ast.Program {
		return &ast.Program{
			Declarations: []ast.Declaration{
				ast.Import{Namespace: "default"},
				ast.Let{Name: "k", RHS: ast.Number{Value: k}},
				ast.Let{Name: "xs", RHS: ast.App{
					Callee: ast.Identifier{Name: "range"},
					Args:   []ast.Expr{ast.Number{Value: 0}, ast.Number{Value: 5}},
				}},
				ast.Let{Name: "ys", RHS: ast.For{
					Var:  "x",
					Iter: ast.Identifier{Name: "xs"},
					Body: ast.App{
						Callee: ast.Identifier{Name: "addition"},
						Args:   []ast.Expr{ast.Identifier{Name: "x"}, ast.Identifier{Name: "k"}},
					},
				}},
			},
		}
	}

	_, bindingsA, err := s.Reduce(buildProgram(10))
	require.NoError(t, err)
	nodeA, _ := s.Planner.Node(bindingsA["ys"])
	closureA, ok := s.Closure(nodeA.Args[1])
	require.True(t, ok)

	elemId, err := s.Planner.AddConstant(float64(2), ir.OutputScalar)
	require.NoError(t, err)
	resultA, err := s.ApplyElement(closureA, elemId)
	require.NoError(t, err)
	sumA, _ := s.Planner.Node(resultA)
	require.Equal(t, elemId, sumA.Args[0])
	kNodeA, _ := s.Planner.Node(sumA.Args[1])
	require.Equal(t, float64(10), kNodeA.Attrs["value"])

	s2 := reducer.NewSession(defaultRegistry())
	require.NoError(t, s2.Registry.ImportNamespace("default"))
	_, bindingsB, err := s2.Reduce(buildProgram(99))
	require.NoError(t, err)
	nodeB, _ := s2.Planner.Node(bindingsB["ys"])

	// Different captured free-variable values must yield a different
	// closure NodeId — the capture is part of the canonical hash.
	require.NotEqual(t, nodeA.Args[1], nodeB.Args[1])
}

func TestReduce_UnboundIdentifierSuggestsClosestName(t *testing.T) {
	reg := defaultRegistry()
	mustImport(t, reg, "default")
	s := reducer.NewSession(reg)

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: "default"},
			ast.Let{Name: "threshold", RHS: ast.Number{Value: 1}},
		},
		Goals: []ast.Goal{
			ast.Print{Label: "bad", Expr: ast.Identifier{Name: "threshol"}},
		},
	}

	_, _, err := s.Reduce(program)
	require.Error(t, err)
	var unbound *reducer.UnboundIdentifierError
	require.ErrorAs(t, err, &unbound)
	require.Contains(t, unbound.Suggestions, "threshold")
}

func TestReduce_ArityMismatch(t *testing.T) {
	reg := defaultRegistry()
	mustImport(t, reg, "default")
	s := reducer.NewSession(reg)

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: "default"},
			ast.Let{Name: "x", RHS: ast.App{
				Callee: ast.Identifier{Name: "addition"},
				Args:   []ast.Expr{ast.Number{Value: 1}},
			}},
		},
	}

	_, _, err := s.Reduce(program)
	require.Error(t, err)
	var mismatch *reducer.ArityMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestReduce_UserDefinedFunction(t *testing.T) {
	reg := defaultRegistry()
	mustImport(t, reg, "default")
	s := reducer.NewSession(reg)

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: "default"},
			ast.Let{Name: "increment", Params: []string{"n"}, RHS: ast.App{
				Callee: ast.Identifier{Name: "addition"},
				Args:   []ast.Expr{ast.Identifier{Name: "n"}, ast.Number{Value: 1}},
			}},
			ast.Let{Name: "x", RHS: ast.App{
				Callee: ast.Identifier{Name: "increment"},
				Args:   []ast.Expr{ast.Number{Value: 41}},
			}},
		},
		Goals: []ast.Goal{
			ast.Print{Label: "x", Expr: ast.Identifier{Name: "x"}},
		},
	}

	plan, bindings, err := s.Reduce(program)
	require.NoError(t, err)
	node, ok := plan.Node(bindings["x"])
	require.True(t, ok)
	require.Equal(t, "default.addition", node.Operator)
}

func TestReduce_NotCallable(t *testing.T) {
	reg := defaultRegistry()
	mustImport(t, reg, "default")
	s := reducer.NewSession(reg)

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: "default"},
			ast.Let{Name: "x", RHS: ast.Number{Value: 1}},
			ast.Let{Name: "y", RHS: ast.App{
				Callee: ast.Identifier{Name: "x"},
				Args:   []ast.Expr{ast.Number{Value: 1}},
			}},
		},
	}

	_, _, err := s.Reduce(program)
	require.Error(t, err)
	var notCallable *reducer.NotCallableError
	require.ErrorAs(t, err, &notCallable)
}
