package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/registry"
)

func addManifest() registry.ManifestLoader {
	return func() []registry.PrimitiveSpec {
		return []registry.PrimitiveSpec{
			{
				Name:       "addition",
				Namespace:  "default",
				Kind:       registry.Pure,
				Arity:      registry.Fixed(2),
				Planner:    registry.DefaultPlanner("default.addition", ir.OutputScalar),
				KernelName: "default.addition",
				Load: func() (registry.Kernel, error) {
					return func(args map[string]any) (any, error) {
						return args["0"].(float64) + args["1"].(float64), nil
					}, nil
				},
			},
			{
				Name:       "print",
				Namespace:  "default",
				Kind:       registry.Effect,
				Arity:      registry.Fixed(1),
				Planner:    registry.DefaultPlanner("default.print", ir.OutputEffect),
				KernelName: "default.print",
				Load:       func() (registry.Kernel, error) { return func(map[string]any) (any, error) { return nil, nil }, nil },
			},
		}
	}
}

func TestResolve_QualifiedName(t *testing.T) {
	r := registry.New()
	r.RegisterManifest("default", addManifest())
	require.NoError(t, r.ImportNamespace("default"))

	spec, err := r.Resolve("default.addition", nil)
	require.NoError(t, err)
	require.Equal(t, "default.addition", spec.QualifiedName())
}

func TestResolve_ImportOrderFirstMatchWins(t *testing.T) {
	r := registry.New()
	r.RegisterManifest("default", addManifest())
	r.RegisterManifest("other", func() []registry.PrimitiveSpec {
		return []registry.PrimitiveSpec{{
			Name:      "addition",
			Namespace: "other",
			Planner:   registry.DefaultPlanner("other.addition", ir.OutputScalar),
		}}
	})
	require.NoError(t, r.ImportNamespace("default"))
	require.NoError(t, r.ImportNamespace("other"))

	spec, err := r.Resolve("addition", []string{"default", "other"})
	require.NoError(t, err)
	require.Equal(t, "default.addition", spec.QualifiedName())

	spec, err = r.Resolve("addition", []string{"other", "default"})
	require.NoError(t, err)
	require.Equal(t, "other.addition", spec.QualifiedName())
}

func TestResolve_UnknownPrimitive(t *testing.T) {
	r := registry.New()
	r.RegisterManifest("default", addManifest())
	require.NoError(t, r.ImportNamespace("default"))

	_, err := r.Resolve("addtion", []string{"default"})
	require.Error(t, err)
	var unk *registry.UnknownPrimitiveError
	require.ErrorAs(t, err, &unk)
	require.Contains(t, unk.Suggestions, "addition")
}

func TestKernel_LoadedLazilyAndCached(t *testing.T) {
	r := registry.New()
	calls := 0
	r.RegisterManifest("default", func() []registry.PrimitiveSpec {
		return []registry.PrimitiveSpec{{
			Name:      "addition",
			Namespace: "default",
			Planner:   registry.DefaultPlanner("default.addition", ir.OutputScalar),
			Load: func() (registry.Kernel, error) {
				calls++
				return func(map[string]any) (any, error) { return nil, nil }, nil
			},
		}}
	})
	require.NoError(t, r.ImportNamespace("default"))
	spec, err := r.Resolve("default.addition", nil)
	require.NoError(t, err)

	_, err = r.Kernel(spec)
	require.NoError(t, err)
	_, err = r.Kernel(spec)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestEffectLock_SameNameSameLock(t *testing.T) {
	r := registry.New()
	l1 := r.EffectLock("default.print")
	l2 := r.EffectLock("default.print")
	require.Same(t, l1, l2)
}

func TestValidateAttrs_SchemaViolation(t *testing.T) {
	r := registry.New()
	r.RegisterManifest("default", func() []registry.PrimitiveSpec {
		return []registry.PrimitiveSpec{{
			Name:        "threshold",
			Namespace:   "default",
			Planner:     registry.DefaultPlanner("default.threshold", ir.OutputScalar),
			AttrsSchema: []byte(`{"type":"object","required":["level"],"properties":{"level":{"type":"number"}}}`),
		}}
	})
	require.NoError(t, r.ImportNamespace("default"))
	spec, err := r.Resolve("default.threshold", nil)
	require.NoError(t, err)

	require.Error(t, r.ValidateAttrs(spec, map[string]any{}))
	require.NoError(t, r.ValidateAttrs(spec, map[string]any{"level": 3.0}))
}

func TestLegacyKernel_AdaptsZeroArgExecute(t *testing.T) {
	r := registry.New()
	spec := r.LegacyKernel("default", "legacy_echo", func(args map[string]any) (any, error) {
		return args["0"], nil
	}, ir.OutputScalar, "legacy echo")
	require.Equal(t, "default.legacy_echo", spec.QualifiedName())

	k, err := r.Kernel(spec)
	require.NoError(t, err)
	v, err := k(map[string]any{"0": "hi"})
	require.NoError(t, err)
	require.Equal(t, "hi", v)
}
