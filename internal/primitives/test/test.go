// Package test registers the "test" namespace: demo_data, fibonacci, and
// impure, small fixture primitives that need no real image-processing
// kernel (SPEC_FULL.md §C.3). The strict and deferred strategy test suites
// import it and use demo_data.
package test

import (
	"sync/atomic"

	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/lazyseq"
	"github.com/voxlogica-go/voxlogica/internal/registry"
)

const Namespace = "test"

// Manifest returns a fresh set of test-namespace primitives. impureCounter
// is shared by every "impure" kernel invocation produced from one Manifest()
// call; it is not exposed outside this function.
func Manifest() []registry.PrimitiveSpec {
	var impureCounter int64

	return []registry.PrimitiveSpec{
		{
			Name: "demo_data", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(0),
			Planner: registry.DefaultPlanner("test.demo_data", ir.OutputSequence),
			Load: func() (registry.Kernel, error) {
				return func(map[string]any) (any, error) {
					return lazyseq.FromSlice([]any{float64(1), float64(2), float64(3), float64(4), float64(5)}), nil
				}, nil
			},
			Description: "demo_data(): the fixed sequence [1,2,3,4,5]",
		},
		{
			Name: "fibonacci", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(1),
			Planner: registry.DefaultPlanner("test.fibonacci", ir.OutputScalar),
			Load: func() (registry.Kernel, error) {
				return func(args map[string]any) (any, error) {
					n, ok := args["0"].(float64)
					if !ok {
						return float64(0), nil
					}
					a, b := 0.0, 1.0
					for i := 0; i < int(n); i++ {
						a, b = b, a+b
					}
					return a, nil
				}, nil
			},
			Description: "fibonacci(n): the n-th Fibonacci number, iteratively",
		},
		{
			Name: "impure", Namespace: Namespace, Kind: registry.Effect, Arity: registry.Fixed(1),
			Planner: registry.DefaultPlanner("test.impure", ir.OutputEffect),
			Load: func() (registry.Kernel, error) {
				return func(args map[string]any) (any, error) {
					atomic.AddInt64(&impureCounter, 1)
					return args["0"], nil
				}, nil
			},
			Description: "impure(v): an effect primitive that counts its own invocations",
		},
	}
}
