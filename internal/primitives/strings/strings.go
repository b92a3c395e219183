// Package strings registers the "strings" namespace: concat and
// format_string, mirroring the Python original's strings package layout
// (SPEC_FULL.md §C.3).
package strings

import (
	"fmt"
	stdstrings "strings"

	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/registry"
)

const Namespace = "strings"

func Manifest() []registry.PrimitiveSpec {
	return []registry.PrimitiveSpec{
		{
			Name: "concat", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(2),
			Planner: registry.DefaultPlanner("strings.concat", ir.OutputScalar),
			Load: func() (registry.Kernel, error) {
				return func(args map[string]any) (any, error) {
					a := fmt.Sprintf("%v", args["0"])
					b := fmt.Sprintf("%v", args["1"])
					return a + b, nil
				}, nil
			},
			Description: "concat(a, b): string concatenation, coercing non-strings",
		},
		{
			Name: "format_string", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Variadic(1),
			Planner: registry.DefaultPlanner("strings.format_string", ir.OutputScalar),
			Load: func() (registry.Kernel, error) {
				return func(args map[string]any) (any, error) {
					format, ok := args["0"].(string)
					if !ok {
						return nil, fmt.Errorf("voxlogica: format_string: first argument must be a string template")
					}
					rendered := format
					for i := 1; ; i++ {
						key := fmt.Sprintf("%d", i)
						v, ok := args[key]
						if !ok {
							break
						}
						placeholder := "{" + key + "}"
						rendered = stdstrings.ReplaceAll(rendered, placeholder, fmt.Sprintf("%v", v))
					}
					return rendered, nil
				}, nil
			},
			Description: `format_string(template, ...): replaces "{1}", "{2}", ... in template`,
		},
	}
}
