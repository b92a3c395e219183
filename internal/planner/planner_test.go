package planner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/planner"
)

func TestAddNode_SharesEqualNodes(t *testing.T) {
	p := planner.New()
	id1, err := p.AddConstant(42, ir.OutputScalar)
	require.NoError(t, err)
	id2, err := p.AddConstant(42, ir.OutputScalar)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	plan := p.ToPlan()
	require.Equal(t, 1, plan.NodeCount())
}

func TestAddNode_DistinctNodesGetDistinctIds(t *testing.T) {
	p := planner.New()
	id1, err := p.AddConstant(42, ir.OutputScalar)
	require.NoError(t, err)
	id2, err := p.AddConstant(43, ir.OutputScalar)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	plan := p.ToPlan()
	require.Equal(t, 2, plan.NodeCount())
}

func TestImportNamespace_PreservesOrderDedups(t *testing.T) {
	p := planner.New()
	p.ImportNamespace("default")
	p.ImportNamespace("strings")
	p.ImportNamespace("default")

	plan := p.ToPlan()
	require.Equal(t, []string{"default", "strings"}, plan.ImportedNamespaces)
}

func TestToPlan_IsSnapshot(t *testing.T) {
	p := planner.New()
	id, err := p.AddConstant(1, ir.OutputScalar)
	require.NoError(t, err)
	plan1 := p.ToPlan()

	_, err = p.AddConstant(2, ir.OutputScalar)
	require.NoError(t, err)

	require.Equal(t, 1, plan1.NodeCount())
	_, ok := plan1.Node(id)
	require.True(t, ok)
}

func TestAddGoal(t *testing.T) {
	p := planner.New()
	id, err := p.AddConstant("hello", ir.OutputScalar)
	require.NoError(t, err)
	p.AddGoal(ir.GoalPrint, id, "out")

	plan := p.ToPlan()
	require.Len(t, plan.Goals, 1)
	require.Equal(t, ir.GoalPrint, plan.Goals[0].Operation)
	require.Equal(t, "out", plan.Goals[0].Name)
	require.NoError(t, plan.Validate())
}
