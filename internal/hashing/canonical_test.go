package hashing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxlogica-go/voxlogica/internal/hashing"
	"github.com/voxlogica-go/voxlogica/internal/ir"
)

func constNode(value any) ir.NodeSpec {
	return ir.NodeSpec{
		Kind:       ir.KindConstant,
		Operator:   "constant",
		Attrs:      map[string]any{"value": value},
		OutputKind: ir.OutputScalar,
	}
}

// H1: hash is invariant to kwarg/attrs key order.
func TestHashNode_OrderInvariant(t *testing.T) {
	a := ir.NodeSpec{
		Kind:     ir.KindPrimitive,
		Operator: "default.addition",
		Args:     []ir.NodeId{"x", "y"},
		Kwargs: []ir.KwArg{
			{Key: "b", Value: "nodeB"},
			{Key: "a", Value: "nodeA"},
		},
		Attrs:      map[string]any{"z": 1, "a": 2},
		OutputKind: ir.OutputScalar,
	}
	b := ir.NodeSpec{
		Kind:     ir.KindPrimitive,
		Operator: "default.addition",
		Args:     []ir.NodeId{"x", "y"},
		Kwargs: []ir.KwArg{
			{Key: "a", Value: "nodeA"},
			{Key: "b", Value: "nodeB"},
		},
		Attrs:      map[string]any{"a": 2, "z": 1},
		OutputKind: ir.OutputScalar,
	}

	ha, err := hashing.HashNode(a)
	require.NoError(t, err)
	hb, err := hashing.HashNode(b)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}

func TestHashNode_DifferentPayloadsDiffer(t *testing.T) {
	h1, err := hashing.HashNode(constNode(1))
	require.NoError(t, err)
	h2, err := hashing.HashNode(constNode(2))
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestHashNode_Deterministic(t *testing.T) {
	n := constNode("hello")
	h1, err := hashing.HashNode(n)
	require.NoError(t, err)
	h2, err := hashing.HashNode(n)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)
}

func TestHashSequenceItem_DistinctPerIndex(t *testing.T) {
	h0, err := hashing.HashSequenceItem("parent", 0)
	require.NoError(t, err)
	h1, err := hashing.HashSequenceItem("parent", 1)
	require.NoError(t, err)
	require.NotEqual(t, h0, h1)

	hOther, err := hashing.HashSequenceItem("other-parent", 0)
	require.NoError(t, err)
	require.NotEqual(t, h0, hOther)
}

func TestNormalize_RejectsNonCanonicalizable(t *testing.T) {
	ch := make(chan int)
	_, err := hashing.Normalize(ch)
	require.ErrorIs(t, err, hashing.ErrNonCanonical)
}

type syntaxValue struct{ inner string }

func (s syntaxValue) Syntax() any { return s.inner }

func TestNormalize_UsesSyntaxProjection(t *testing.T) {
	n1 := ir.NodeSpec{
		Kind:       ir.KindConstant,
		Operator:   "constant",
		Attrs:      map[string]any{"value": syntaxValue{inner: "same"}},
		OutputKind: ir.OutputScalar,
	}
	n2 := ir.NodeSpec{
		Kind:       ir.KindConstant,
		Operator:   "constant",
		Attrs:      map[string]any{"value": "same"},
		OutputKind: ir.OutputScalar,
	}
	h1, err := hashing.HashNode(n1)
	require.NoError(t, err)
	h2, err := hashing.HashNode(n2)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}
