package deferred_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxlogica-go/voxlogica/internal/ast"
	dfault "github.com/voxlogica-go/voxlogica/internal/primitives/default"
	testprims "github.com/voxlogica-go/voxlogica/internal/primitives/test"
	"github.com/voxlogica-go/voxlogica/internal/reducer"
	"github.com/voxlogica-go/voxlogica/internal/registry"
	"github.com/voxlogica-go/voxlogica/internal/store"
	"github.com/voxlogica-go/voxlogica/internal/strategy"
	"github.com/voxlogica-go/voxlogica/internal/strategy/deferred"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.RegisterManifest(dfault.Namespace, dfault.Manifest)
	reg.RegisterManifest(testprims.Namespace, testprims.Manifest)
	require.NoError(t, reg.ImportNamespace(dfault.Namespace))
	require.NoError(t, reg.ImportNamespace(testprims.Namespace))
	return reg
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDeferred_Run_Arithmetic(t *testing.T) {
	reg := newRegistry(t)
	st := newStore(t)
	session := reducer.NewSession(reg)

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: dfault.Namespace},
			ast.Let{Name: "a", RHS: ast.App{
				Callee: ast.Identifier{Name: "addition"},
				Args:   []ast.Expr{ast.Number{Value: 2}, ast.Number{Value: 3}},
			}},
		},
		Goals: []ast.Goal{
			ast.Print{Label: "a", Expr: ast.Identifier{Name: "a"}},
		},
	}

	plan, _, err := session.Reduce(program)
	require.NoError(t, err)

	s := deferred.New(session, reg, st, 4)
	prepared, err := s.CompilePlan(plan)
	require.NoError(t, err)

	result, err := s.Run(context.Background(), prepared)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.Failures)
	require.Equal(t, 1, result.CacheSummary.Computed)
}

func TestDeferred_Run_ForComprehensionAppliesClosurePerElementConcurrently(t *testing.T) {
	reg := newRegistry(t)
	st := newStore(t)
	session := reducer.NewSession(reg)

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: dfault.Namespace},
			ast.Let{Name: "xs", RHS: ast.For{
				Var:  "x",
				Iter: ast.App{Callee: ast.Identifier{Name: "range"}, Args: []ast.Expr{ast.Number{Value: 0}, ast.Number{Value: 8}}},
				Body: ast.App{Callee: ast.Identifier{Name: "addition"}, Args: []ast.Expr{ast.Identifier{Name: "x"}, ast.Number{Value: 1}}},
			}},
		},
		Goals: []ast.Goal{
			ast.Print{Label: "xs", Expr: ast.Identifier{Name: "xs"}},
		},
	}

	plan, _, err := session.Reduce(program)
	require.NoError(t, err)

	s := deferred.New(session, reg, st, 4)
	prepared, err := s.CompilePlan(plan)
	require.NoError(t, err)

	result, err := s.Run(context.Background(), prepared)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.Failures)

	page, err := s.Page(context.Background(), prepared, plan.Goals[0].Id, 0, 10)
	require.NoError(t, err)
	require.False(t, page.HasMore)
	require.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0}, page.Items)
}

func TestDeferred_Run_KernelFailureIsReportedNotFatal(t *testing.T) {
	reg := newRegistry(t)
	st := newStore(t)
	session := reducer.NewSession(reg)

	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: dfault.Namespace},
			ast.Let{Name: "bad", RHS: ast.App{
				Callee: ast.Identifier{Name: "division"},
				Args:   []ast.Expr{ast.Number{Value: 1}, ast.Number{Value: 0}},
			}},
			ast.Let{Name: "good", RHS: ast.Number{Value: 42}},
		},
		Goals: []ast.Goal{
			ast.Print{Label: "bad", Expr: ast.Identifier{Name: "bad"}},
			ast.Print{Label: "good", Expr: ast.Identifier{Name: "good"}},
		},
	}

	plan, _, err := session.Reduce(program)
	require.NoError(t, err)

	s := deferred.New(session, reg, st, 4)
	prepared, err := s.CompilePlan(plan)
	require.NoError(t, err)

	result, err := s.Run(context.Background(), prepared)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "bad", result.Failures[0].GoalName)
}

func TestDeferred_Run_SharedSubexpressionComputedOnce(t *testing.T) {
	reg := newRegistry(t)
	st := newStore(t)
	session := reducer.NewSession(reg)

	// Both goals depend on the same "shared" node; concurrent evaluation
	// must coalesce the two requests into a single kernel invocation.
	program := &ast.Program{
		Declarations: []ast.Declaration{
			ast.Import{Namespace: dfault.Namespace},
			ast.Let{Name: "shared", RHS: ast.App{
				Callee: ast.Identifier{Name: "addition"},
				Args:   []ast.Expr{ast.Number{Value: 10}, ast.Number{Value: 20}},
			}},
			ast.Let{Name: "a", RHS: ast.App{
				Callee: ast.Identifier{Name: "addition"},
				Args:   []ast.Expr{ast.Identifier{Name: "shared"}, ast.Number{Value: 1}},
			}},
			ast.Let{Name: "b", RHS: ast.App{
				Callee: ast.Identifier{Name: "addition"},
				Args:   []ast.Expr{ast.Identifier{Name: "shared"}, ast.Number{Value: 2}},
			}},
		},
		Goals: []ast.Goal{
			ast.Print{Label: "a", Expr: ast.Identifier{Name: "a"}},
			ast.Print{Label: "b", Expr: ast.Identifier{Name: "b"}},
		},
	}

	plan, _, err := session.Reduce(program)
	require.NoError(t, err)

	s := deferred.New(session, reg, st, 4)
	prepared, err := s.CompilePlan(plan)
	require.NoError(t, err)

	result, err := s.Run(context.Background(), prepared)
	require.NoError(t, err)
	require.True(t, result.Success)
	// shared + a + b == 3 distinct computed nodes, regardless of how many
	// times "shared" was concurrently requested.
	require.Equal(t, 3, result.CacheSummary.Computed)
}

var _ strategy.Strategy = (*deferred.Deferred)(nil)
