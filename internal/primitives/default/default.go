// Package dfault registers the "default" namespace's primitives: arithmetic,
// the map/for_loop higher-order pair a for-comprehension desugars into, and
// the load/index/print primitives spec.md's scenarios (S2, S6) exercise.
// Named dfault (not default, a Go keyword) only at the package-identifier
// level; QualifiedName() still reports "default.*".
package dfault

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/lazyseq"
	"github.com/voxlogica-go/voxlogica/internal/registry"
)

const Namespace = "default"

// MapOperator and ForLoopOperator are consulted directly (by operator
// string) by the execution strategies, which apply a closure argument
// per-element via internal/reducer.Session.ApplyElement rather than through
// ordinary kernel dispatch — no Kernel here can carry out that re-entrant
// reduction, since it needs the reducer's live Session, not just args.
const (
	MapOperator     = Namespace + ".map"
	ForLoopOperator = Namespace + ".for_loop"
)

func arithmeticKernel(op func(a, b float64) (float64, error)) registry.Kernel {
	return func(args map[string]any) (any, error) {
		a, ok := args["0"].(float64)
		if !ok {
			return nil, fmt.Errorf("voxlogica: %v is not a number", args["0"])
		}
		b, ok := args["1"].(float64)
		if !ok {
			return nil, fmt.Errorf("voxlogica: %v is not a number", args["1"])
		}
		return op(a, b)
	}
}

// Manifest returns the default namespace's primitives.
func Manifest() []registry.PrimitiveSpec {
	notApplicable := func(op string) registry.KernelLoader {
		return func() (registry.Kernel, error) {
			return func(map[string]any) (any, error) {
				return nil, fmt.Errorf("voxlogica: %s is applied by the execution strategy's closure machinery, not invoked as an ordinary kernel", op)
			}, nil
		}
	}

	return []registry.PrimitiveSpec{
		{
			Name: "addition", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(2),
			Planner: registry.DefaultPlanner("default.addition", ir.OutputScalar),
			Load: func() (registry.Kernel, error) {
				return arithmeticKernel(func(a, b float64) (float64, error) { return a + b, nil }), nil
			},
			Description: "a + b",
		},
		{
			Name: "subtraction", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(2),
			Planner: registry.DefaultPlanner("default.subtraction", ir.OutputScalar),
			Load: func() (registry.Kernel, error) {
				return arithmeticKernel(func(a, b float64) (float64, error) { return a - b, nil }), nil
			},
			Description: "a - b",
		},
		{
			Name: "multiplication", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(2),
			Planner: registry.DefaultPlanner("default.multiplication", ir.OutputScalar),
			Load: func() (registry.Kernel, error) {
				return arithmeticKernel(func(a, b float64) (float64, error) { return a * b, nil }), nil
			},
			Description: "a * b",
		},
		{
			Name: "division", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(2),
			Planner: registry.DefaultPlanner("default.division", ir.OutputScalar),
			Load: func() (registry.Kernel, error) {
				return arithmeticKernel(func(a, b float64) (float64, error) {
					if b == 0 {
						return nil, fmt.Errorf("voxlogica: division by zero")
					}
					return a / b, nil
				}), nil
			},
			Description: "a / b",
		},
		{
			Name: "range", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(2),
			Planner: registry.DefaultPlanner("default.range", ir.OutputSequence),
			Load: func() (registry.Kernel, error) {
				return func(args map[string]any) (any, error) {
					start, ok := args["0"].(float64)
					if !ok {
						return nil, fmt.Errorf("voxlogica: range start must be a number")
					}
					end, ok := args["1"].(float64)
					if !ok {
						return nil, fmt.Errorf("voxlogica: range end must be a number")
					}
					n := 0
					if end > start {
						n = int(end - start)
					}
					items := make([]any, 0, n)
					for v := start; v < end; v++ {
						items = append(items, v)
					}
					return lazyseq.FromSlice(items), nil
				}, nil
			},
			Description: "range(start, end): sequence of numbers [start, end)",
		},
		{
			Name: "load", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(1),
			Planner: registry.DefaultPlanner("default.load", ir.OutputSequence),
			Load: func() (registry.Kernel, error) {
				return func(args map[string]any) (any, error) {
					path, ok := args["0"].(string)
					if !ok {
						return nil, fmt.Errorf("voxlogica: load path must be a string")
					}
					return loadLines(path)
				}, nil
			},
			Description: "load(path): a sequence of the file's lines; the whole file is read into memory when the kernel runs, lines are not streamed",
		},
		{
			Name: "index", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(2),
			Planner: registry.DefaultPlanner("default.index", ir.OutputScalar),
			Load: func() (registry.Kernel, error) {
				return func(args map[string]any) (any, error) {
					seq, ok := args["0"].(lazyseq.LazySequence)
					if !ok {
						return nil, fmt.Errorf("voxlogica: index: first argument is not a sequence")
					}
					i, ok := args["1"].(float64)
					if !ok {
						return nil, fmt.Errorf("voxlogica: index: second argument must be a number")
					}
					items, hasMore, err := lazyseq.Page(context.Background(), seq, int(i), 1)
					if err != nil {
						return nil, err
					}
					if len(items) == 0 {
						return nil, fmt.Errorf("voxlogica: index %d out of range", int(i))
					}
					_ = hasMore
					return items[0], nil
				}, nil
			},
			Description: "index(seq, i): the i-th element of seq",
		},
		{
			Name: "print", Namespace: Namespace, Kind: registry.Effect, Arity: registry.Fixed(1),
			Planner: registry.DefaultPlanner("default.print", ir.OutputEffect),
			Load: func() (registry.Kernel, error) {
				return func(args map[string]any) (any, error) {
					fmt.Println(args["0"])
					return args["0"], nil
				}, nil
			},
			Description: "print(v): an effect primitive that writes v to stdout",
		},
		{
			Name: "constant", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(1),
			Planner: registry.DefaultPlanner("default.constant", ir.OutputScalar),
			Load: func() (registry.Kernel, error) {
				return func(args map[string]any) (any, error) { return args["0"], nil }, nil
			},
			Description: "constant(v): identity",
		},
		{
			Name: "map", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(2),
			Planner: registry.DefaultPlanner(MapOperator, ir.OutputSequence),
			Load:    notApplicable(MapOperator),
		},
		{
			Name: "for_loop", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(2),
			Planner: registry.DefaultPlanner(ForLoopOperator, ir.OutputSequence),
			Load:    notApplicable(ForLoopOperator),
		},
	}
}

func loadLines(path string) (lazyseq.LazySequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("voxlogica: load(%s): %w", path, err)
	}
	defer f.Close()

	var lines []any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("voxlogica: load(%s): %w", path, err)
	}
	return lazyseq.FromSlice(lines), nil
}
